package supervisor

import "sync"

// Counter is the failure counter shared by every connection attempt of a
// supervisor. It is reset when a connection opens and incremented when an
// attempt ends. All operations are mutually exclusive.
type Counter struct {
	mu sync.Mutex
	n  int
}

// NewCounter returns a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Reset sets the counter to zero.
func (c *Counter) Reset() {
	c.mu.Lock()
	c.n = 0
	c.mu.Unlock()
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Value returns the current value.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
