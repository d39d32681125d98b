//go:build darwin

package platform

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

var hidIdleRe = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

type darwinImpl struct {
	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newPlatform() (Platform, error) {
	return &darwinImpl{}, nil
}

// StartActivityMonitoring polls the HID idle counter. Like the X11 probe
// it cannot distinguish input devices.
func (p *darwinImpl) StartActivityMonitoring(callback func(ActivityEvent)) error {
	if _, err := hidIdleTime(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.stopChan != nil {
		p.mu.Unlock()
		return errors.New("activity monitoring already running")
	}
	stop := make(chan struct{})
	p.stopChan = stop
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		last := time.Now()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				idle, err := hidIdleTime()
				since := now.Sub(last)
				last = now
				if err == nil && idle < since {
					callback(ActivityEvent{Type: ActivityMouseMove, Timestamp: now})
				}
			}
		}
	}()
	return nil
}

func hidIdleTime() (time.Duration, error) {
	out, err := exec.Command("ioreg", "-c", "IOHIDSystem").Output()
	if err != nil {
		return 0, fmt.Errorf("ioreg failed: %w", err)
	}
	m := hidIdleRe.FindSubmatch(out)
	if m == nil {
		return 0, errors.New("HIDIdleTime not reported")
	}
	ns, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ns), nil
}

func (p *darwinImpl) StopActivityMonitoring() error {
	p.mu.Lock()
	stop := p.stopChan
	p.stopChan = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		p.wg.Wait()
	}
	return nil
}

func (p *darwinImpl) ListProcesses() ([]Process, error) {
	out, err := exec.Command("ps", "-axo", "pid=,comm=").Output()
	if err != nil {
		return nil, fmt.Errorf("ps failed: %w", err)
	}

	var procs []Process
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.SplitN(strings.TrimSpace(sc.Text()), " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		exe := strings.TrimSpace(fields[1])
		procs = append(procs, Process{PID: pid, Name: filepath.Base(exe), Exe: exe})
	}
	return procs, nil
}

// CaptureScreen shells out to screencapture. A failure there almost always
// means the Screen Recording permission has not been granted.
func (p *darwinImpl) CaptureScreen() ([]byte, error) {
	f, err := os.CreateTemp("", "ri-shot-*.png")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if out, err := exec.Command("screencapture", "-x", "-t", "png", path).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: grant Screen Recording permission in System Settings (%s)",
			ErrCaptureUnavailable, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty capture", ErrCaptureUnavailable)
	}
	return data, nil
}

func (p *darwinImpl) GetSystemInfo() (*SystemInfo, error) {
	hostname, _ := os.Hostname()
	version := runtime.GOOS
	if out, err := exec.Command("sw_vers", "-productVersion").Output(); err == nil {
		version = strings.TrimSpace(string(out))
	}
	return &SystemInfo{
		OS:        "darwin",
		OSVersion: version,
		Arch:      runtime.GOARCH,
		Hostname:  hostname,
	}, nil
}
