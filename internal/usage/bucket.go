// Package usage accumulates time per application or per link between two
// session updates.
package usage

import (
	"sort"
	"sync"
	"time"
)

// NoiseFloor is the minimum accumulated time an entry needs before it is
// reported. Entries at or below it are dropped from snapshots.
const NoiseFloor = time.Second

type Entry struct {
	Key        string
	Title      string
	Path       string
	TimeSpent  time.Duration
	LastSeen   time.Time
	VisitCount int
}

// Observation is one poll's contribution to an entry.
type Observation struct {
	Key        string
	Delta      time.Duration
	Title      string
	Path       string
	VisitCount int
	SeenAt     time.Time
}

// Bucket is safe for concurrent use by one poller and the flusher.
type Bucket struct {
	mu      sync.Mutex
	entries map[string]*Entry
	limit   int
}

// NewBucket returns an empty bucket. A limit of zero means unbounded
// snapshots.
func NewBucket(limit int) *Bucket {
	return &Bucket{
		entries: make(map[string]*Entry),
		limit:   limit,
	}
}

func (b *Bucket) Observe(o Observation) {
	if o.Key == "" {
		return
	}
	delta := o.Delta
	if delta < 0 {
		delta = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[o.Key]
	if !ok {
		e = &Entry{Key: o.Key}
		b.entries[o.Key] = e
	}
	e.TimeSpent += delta
	if o.SeenAt.After(e.LastSeen) {
		e.LastSeen = o.SeenAt
	}
	if o.Title != "" {
		e.Title = o.Title
	}
	if o.Path != "" {
		e.Path = o.Path
	}
	if o.VisitCount > e.VisitCount {
		e.VisitCount = o.VisitCount
	}
}

// Snapshot returns the reportable entries, largest time first. Ties are
// broken by visit count and then by key so the order is stable.
func (b *Bucket) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bucket) Clear() {
	b.mu.Lock()
	b.entries = make(map[string]*Entry)
	b.mu.Unlock()
}

// Drain returns the snapshot and clears the bucket in one step, so an
// observation lands either in this snapshot or in the next one.
func (b *Bucket) Drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.snapshotLocked()
	b.entries = make(map[string]*Entry)
	return out
}

func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Bucket) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.TimeSpent <= NoiseFloor {
			continue
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TimeSpent != out[j].TimeSpent {
			return out[i].TimeSpent > out[j].TimeSpent
		}
		if out[i].VisitCount != out[j].VisitCount {
			return out[i].VisitCount > out[j].VisitCount
		}
		return out[i].Key < out[j].Key
	})

	if b.limit > 0 && len(out) > b.limit {
		out = out[:b.limit]
	}
	return out
}
