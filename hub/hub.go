// Package hub wires the bus manager, the reading cache, the sensor decoders
// and the display driver into the single object a node owns for its whole
// lifetime.
package hub

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/adc"
	"github.com/mklimuk/halnode/cache"
	"github.com/mklimuk/halnode/dashboard"
	"github.com/mklimuk/halnode/display"
	"github.com/mklimuk/halnode/environment"
	"github.com/mklimuk/halnode/i2c"
	"github.com/mklimuk/halnode/register"
)

var _ halnode.SensorReader = &Hub{}

type Config struct {
	Sleep        func(time.Duration)
	CacheOptions []cache.Option
}

type Option func(*Config)

// WithSleep replaces time.Sleep in every decoder.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		c.Sleep = sleep
	}
}

func WithCache(opts ...cache.Option) Option {
	return func(c *Config) {
		c.CacheOptions = append(c.CacheOptions, opts...)
	}
}

type Hub struct {
	Bus     *i2c.Manager
	Cache   *cache.Cache
	Generic *register.Generic
	BME280  *environment.BME280
	BH1750  *environment.BH1750
	SHT31   *environment.SHT31
	ADS1115 *adc.ADS1115
	Display *display.SSD1306
}

func New(bus *i2c.Manager, opts ...Option) *Hub {
	config := Config{Sleep: time.Sleep}
	for _, opt := range opts {
		opt(&config)
	}
	readings := cache.New(config.CacheOptions...)
	return &Hub{
		Bus:     bus,
		Cache:   readings,
		Generic: register.NewGeneric(bus),
		BME280:  environment.NewBME280(bus, readings, environment.WithSleep(config.Sleep)),
		BH1750:  environment.NewBH1750(bus),
		SHT31:   environment.NewSHT31(bus, readings, environment.WithSleep(config.Sleep)),
		ADS1115: adc.NewADS1115(bus, adc.WithSleep(config.Sleep)),
		Display: display.NewSSD1306(bus),
	}
}

// Read dispatches a reading to the decoder of its kind. Failures return NaN.
func (h *Hub) Read(ctx context.Context, ref halnode.SensorRef) (float32, error) {
	switch ref.Kind {
	case halnode.KindGeneric:
		return h.Generic.Read(ctx, ref.Addr, ref.Reg, ref.RegLen, ref.Scale)
	case halnode.KindBME280:
		return h.BME280.Read(ctx, ref.Addr, ref.Channel)
	case halnode.KindBH1750:
		return h.BH1750.GetLux(ctx, ref.Addr)
	case halnode.KindSHT31:
		return h.SHT31.Read(ctx, ref.Addr, ref.Channel)
	case halnode.KindADS1115:
		return h.ADS1115.Read(ctx, ref.Addr, ref.Channel)
	}
	return float32(math.NaN()), fmt.Errorf("unknown sensor kind %q: %w", ref.Kind, halnode.ErrNotFound)
}

// Invalidate drops the cached readings of addr so the next read hits the bus.
func (h *Hub) Invalidate(addr byte) {
	h.Cache.Invalidate(addr)
}

// Renderer returns a template renderer bound to the hub display driver.
func (h *Hub) Renderer(devices halnode.DeviceProvider, system halnode.SystemInfo) *dashboard.Renderer {
	return dashboard.NewRenderer(h.Display, dashboard.NewExpander(devices, system))
}

// Poller returns the display refresh loop for the registered displays.
func (h *Hub) Poller(displays halnode.DisplayEnumerator, devices halnode.DeviceProvider, system halnode.SystemInfo, opts ...dashboard.PollerOpt) *dashboard.Poller {
	return dashboard.NewPoller(displays, h.Renderer(devices, system), opts...)
}
