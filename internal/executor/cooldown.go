package executor

import (
	"sync"
	"time"
)

// Cooldown suppresses re-submitting an opportunity key for a while after its
// execution failed. It is safe for concurrent use.
type Cooldown struct {
	until map[string]time.Time // key -> cooldown expiry
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
}

// NewCooldown creates a Cooldown that blocks a key for ttl after Mark.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		until: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Mark starts the cooldown for key.
func (c *Cooldown) Mark(key string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[key] = c.now().Add(c.ttl)
}

// Active reports whether key is still cooling down.
func (c *Cooldown) Active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.until[key]
	if !ok {
		return false
	}
	if !c.now().Before(exp) {
		delete(c.until, key)
		return false
	}
	return true
}

// Cleanup removes expired entries. Call it periodically to bound memory.
func (c *Cooldown) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, exp := range c.until {
		if !now.Before(exp) {
			delete(c.until, k)
		}
	}
}

// Len returns the number of keys cooling down.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.until)
}
