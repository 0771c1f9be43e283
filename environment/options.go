package environment

import (
	"math"
	"time"
)

const (
	// DefaultCalibrationSlots is the number of BME280 chips tracked at once.
	DefaultCalibrationSlots = 2
	// DefaultLightSlots is the number of BH1750 chips tracked at once.
	DefaultLightSlots = 2
)

var nan = float32(math.NaN())

type config struct {
	sleep func(time.Duration)
	slots int
}

type Option func(*config)

// WithSleep replaces time.Sleep for the fixed conversion delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *config) {
		c.sleep = sleep
	}
}

// WithSlots overrides the number of chips a driver keeps state for.
func WithSlots(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.slots = n
		}
	}
}

func newConfig(slots int, opts []Option) config {
	c := config{sleep: time.Sleep, slots: slots}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
