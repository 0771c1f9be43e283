package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/halnode"
)

const DefaultInterval = 5000 * time.Millisecond

type PollerOpt func(*Poller)

func WithInterval(interval time.Duration) PollerOpt {
	return func(p *Poller) {
		p.interval = interval
	}
}

func WithClock(now func() time.Time) PollerOpt {
	return func(p *Poller) {
		p.now = now
	}
}

// Poller refreshes every registered display on a fixed cadence.
type Poller struct {
	displays halnode.DisplayEnumerator
	renderer *Renderer
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

func NewPoller(displays halnode.DisplayEnumerator, renderer *Renderer, opts ...PollerOpt) *Poller {
	p := &Poller{
		displays: displays,
		renderer: renderer,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll renders all displays when the interval has elapsed since the last
// refresh and returns immediately otherwise. It reports whether a refresh
// took place.
func (p *Poller) Poll(ctx context.Context) bool {
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return false
	}
	p.last = now
	for _, t := range p.displays.Displays() {
		if t.Addr == 0 || t.Template == "" {
			continue
		}
		err := p.renderer.Render(ctx, t.Addr, t.Template, t.Height())
		if err != nil {
			slog.Warn("display refresh failed", "display", t.Name, "addr", fmt.Sprintf("%#02x", t.Addr), "err", err)
		}
	}
	return true
}

// Run calls Poll until ctx is done. tick sets how often the cadence is
// checked and defaults to a tenth of the interval.
func (p *Poller) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = p.interval / 10
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}
