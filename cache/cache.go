// Package cache keeps the most recent multi-channel readings of bus devices
// so that one hardware transaction can serve every channel of a sensor.
package cache

import (
	"sync"
	"time"
)

const (
	DefaultCapacity = 8
	DefaultTTL      = 1000 * time.Millisecond
	// MaxChannels is the number of values stored per address.
	MaxChannels = 4
)

type entry struct {
	addr   byte
	ts     time.Time
	values [MaxChannels]float32
	count  int
	valid  bool
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.entries = make([]entry, n)
		}
	}
}

// Cache is a fixed size table of readings keyed by bus address. When all
// slots are taken the oldest entry is evicted.
type Cache struct {
	mx      sync.Mutex
	entries []entry
	ttl     time.Duration
	now     func() time.Time
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make([]entry, DefaultCapacity),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value of a channel. It misses when the address is
// unknown, the entry is older than the TTL or the channel was not stored.
func (c *Cache) Get(addr byte, channel int) (float32, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()
	now := c.now()
	for i := range c.entries {
		e := &c.entries[i]
		if !e.valid || e.addr != addr {
			continue
		}
		if now.Sub(e.ts) >= c.ttl || channel < 0 || channel >= e.count {
			return 0, false
		}
		return e.values[channel], true
	}
	return 0, false
}

// Set stores up to MaxChannels values for addr, reusing the slot of the
// same address, then the first free slot, then the oldest one.
func (c *Cache) Set(addr byte, values ...float32) {
	c.mx.Lock()
	defer c.mx.Unlock()
	slot := c.slot(addr)
	e := &c.entries[slot]
	e.addr = addr
	e.ts = c.now()
	e.count = copy(e.values[:], values)
	e.valid = true
}

func (c *Cache) slot(addr byte) int {
	for i := range c.entries {
		if c.entries[i].addr == addr && (c.entries[i].valid || !c.entries[i].ts.IsZero()) {
			return i
		}
	}
	for i := range c.entries {
		if !c.entries[i].valid {
			return i
		}
	}
	oldest := 0
	for i := 1; i < len(c.entries); i++ {
		if c.entries[i].ts.Before(c.entries[oldest].ts) {
			oldest = i
		}
	}
	return oldest
}

// Invalidate drops every entry stored for addr.
func (c *Cache) Invalidate(addr byte) {
	c.mx.Lock()
	defer c.mx.Unlock()
	for i := range c.entries {
		if c.entries[i].addr == addr {
			c.entries[i].valid = false
		}
	}
}

// Len returns the number of valid entries, fresh or stale.
func (c *Cache) Len() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.valid {
			n++
		}
	}
	return n
}
