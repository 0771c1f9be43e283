package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/display"
	"github.com/mklimuk/halnode/emulator"
	"github.com/mklimuk/halnode/i2c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	addr byte
	no   int
	text string
}

type recordingDisplay struct {
	lines []line
	err   error
}

func (d *recordingDisplay) WriteText(ctx context.Context, addr byte, no int, text string) error {
	d.lines = append(d.lines, line{addr, no, text})
	return d.err
}

func TestRenderer_Render(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		tmpl     string
		height   int
		expected []string
	}{
		{"32px", "T={temp}\nup {uptime}", 32, []string{"T=21.5", "up 1h02m", "", ""}},
		{"32px empty", "", 32, []string{"", "", "", ""}},
		{"32px overflow", "1\n2\n3\n4\n5\n6", 32, []string{"1", "2", "3", "4"}},
		{"64px", "{name}", 64, []string{"greenhouse", "", "", "", "", "", "", ""}},
		{"trailing newline", "a\n", 64, []string{"a", "", "", "", "", "", "", ""}},
		{"empty middle line", "a\n\nb", 32, []string{"a", "", "b", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDisplay{}
			r := NewRenderer(d, newTestExpander())
			require.NoError(t, r.Render(ctx, 0x3C, tt.tmpl, tt.height))
			require.Len(t, d.lines, len(tt.expected))
			for i, l := range d.lines {
				assert.Equal(t, line{0x3C, i, tt.expected[i]}, l)
			}
		})
	}
}

func TestRenderer_StopsOnError(t *testing.T) {
	d := &recordingDisplay{err: errors.New("nack")}
	r := NewRenderer(d, newTestExpander())
	err := r.Render(context.Background(), 0x3C, "x", 64)
	assert.Error(t, err)
	assert.Len(t, d.lines, 1)
}

func TestRenderer_Panel(t *testing.T) {
	ctx := context.Background()
	panel := emulator.NewSSD1306()
	bus := emulator.NewBus()
	bus.Attach(0x3C, panel)
	m := i2c.NewManager(bus.Open, i2c.WithTimeout(0))
	require.NoError(t, m.Acquire(ctx))
	drv := display.NewSSD1306(m)
	require.NoError(t, drv.Init(ctx, 0x3C, 32))

	// leave garbage on every page first
	for p := range display.Pages {
		require.NoError(t, drv.WriteText(ctx, 0x3C, p, "########"))
	}
	r := NewRenderer(drv, newTestExpander())
	require.NoError(t, r.Render(ctx, 0x3C, "", 32))
	for p := range 4 {
		assert.True(t, panel.Blank(p), "page %d", p)
	}
	for p := 4; p < display.Pages; p++ {
		assert.False(t, panel.Blank(p), "page %d is outside a 32px panel", p)
	}

	require.NoError(t, r.Render(ctx, 0x3C, "T={temp}", 32))
	assert.Equal(t, display.RenderLine("T=21.5"), panel.Page(0)[:126])
	assert.Contains(t, panel.Render(8), "#")
}

func TestPoller_Poll(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := &recordingDisplay{}
	targets := halnode.MockDisplays{
		{Name: "small", Addr: 0x3C, Template: "{temp}", Pin: 1},
		{Name: "big", Addr: 0x3D, Template: "{relay}"},
		{Name: "unset", Addr: 0, Template: "x"},
		{Name: "empty", Addr: 0x3C, Template: ""},
	}
	p := NewPoller(targets, NewRenderer(d, newTestExpander()), WithClock(func() time.Time { return now }))

	assert.True(t, p.Poll(ctx))
	require.Len(t, d.lines, 4+8)
	assert.Equal(t, line{0x3C, 0, "21.5"}, d.lines[0])
	assert.Equal(t, line{0x3D, 0, "1"}, d.lines[4])

	now = now.Add(4999 * time.Millisecond)
	assert.False(t, p.Poll(ctx))
	assert.Len(t, d.lines, 12)

	now = now.Add(time.Millisecond)
	assert.True(t, p.Poll(ctx))
	assert.Len(t, d.lines, 24)
}

func TestPoller_Run(t *testing.T) {
	d := &recordingDisplay{}
	targets := halnode.MockDisplays{{Name: "oled", Addr: 0x3C, Template: "x", Pin: 1}}
	p := NewPoller(targets, NewRenderer(d, newTestExpander()), WithInterval(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, d.lines, 4, "only the first poll is due within the hour")
}
