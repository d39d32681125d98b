// Package scheduler runs periodic jobs on an injectable clock.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Job is a running periodic task. Stop is idempotent and waits for an
// in-flight run to finish.
type Job struct {
	name     string
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*options)

type options struct {
	immediate bool
}

// Immediately runs fn once before the first tick.
func Immediately() Option {
	return func(o *options) { o.immediate = true }
}

// Every runs fn every interval until the job is stopped. A panic inside
// fn is logged and the next tick still fires.
func Every(clk clock.Clock, interval time.Duration, name string, fn func(), logger *zap.Logger, opts ...Option) *Job {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	j := &Job{
		name:     name,
		stopChan: make(chan struct{}),
	}
	ticker := clk.Ticker(interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer ticker.Stop()

		if o.immediate {
			Safe(name, fn, logger)
		}
		for {
			select {
			case <-ticker.C:
				select {
				case <-j.stopChan:
					return
				default:
				}
				Safe(name, fn, logger)
			case <-j.stopChan:
				return
			}
		}
	}()

	logger.Debug("Job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return j
}

func (j *Job) Stop() {
	if j == nil {
		return
	}
	j.stopOnce.Do(func() { close(j.stopChan) })
	j.wg.Wait()
}

func (j *Job) Name() string {
	return j.name
}

// Safe calls fn and converts a panic into a logged error.
func Safe(name string, fn func(), logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked",
				zap.String("job", name),
				zap.Error(fmt.Errorf("%v", r)),
			)
		}
	}()
	fn()
}

// Group stops a set of jobs together.
type Group struct {
	mu   sync.Mutex
	jobs []*Job
}

func (g *Group) Add(j *Job) {
	g.mu.Lock()
	g.jobs = append(g.jobs, j)
	g.mu.Unlock()
}

// StopAll stops every job and empties the group.
func (g *Group) StopAll() {
	g.mu.Lock()
	jobs := g.jobs
	g.jobs = nil
	g.mu.Unlock()

	for _, j := range jobs {
		j.Stop()
	}
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.jobs)
}
