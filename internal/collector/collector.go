package collector

import "sync"

// Collector buffers items produced between two session updates. It is
// safe for concurrent producers and a single drainer.
type Collector[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates an empty collector
func New[T any]() *Collector[T] {
	return &Collector[T]{}
}

func (c *Collector[T]) Add(item T) {
	c.mu.Lock()
	c.items = append(c.items, item)
	c.mu.Unlock()
}

// Drain returns everything collected so far and empties the buffer.
func (c *Collector[T]) Drain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.items
	c.items = nil
	return items
}

func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Collector[T]) Reset() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
