package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Advance(d time.Duration)
	Reset()
}

type Config struct {
	// Start pins the clock to a fixed instant instead of the wall clock.
	Start time.Time
}

var DefaultConfig = Config{}

type clock struct {
	mu    sync.Mutex
	start time.Time
	delta time.Duration
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		return time.Now().Add(c.delta)
	}
	return c.start.Add(c.delta)
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delta += d
}

func (c *clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delta = 0
}

func Make(config ...Config) Clock {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &clock{start: cfg.Start}
}

// Fixed returns a clock frozen at t until advanced.
func Fixed(t time.Time) Clock {
	return Make(Config{Start: t})
}
