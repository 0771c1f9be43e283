package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/mklimuk/halnode/display"
)

// TextDisplay is the part of the display driver the renderer needs.
type TextDisplay interface {
	WriteText(ctx context.Context, addr byte, line int, text string) error
}

type Renderer struct {
	display  TextDisplay
	expander *Expander
}

func NewRenderer(d TextDisplay, e *Expander) *Renderer {
	return &Renderer{display: d, expander: e}
}

// Render expands tmpl and writes one line per page. Every line the panel can
// show is written, so lines without text and an empty template blank the
// panel.
func (r *Renderer) Render(ctx context.Context, addr byte, tmpl string, height int) error {
	var lines []string
	if tmpl != "" {
		lines = strings.Split(r.expander.Expand(ctx, tmpl), "\n")
	}
	for i := range display.Lines(height) {
		var text string
		if i < len(lines) {
			text = lines[i]
		}
		if err := r.display.WriteText(ctx, addr, i, text); err != nil {
			return fmt.Errorf("render line %d at %#02x: %w", i, addr, err)
		}
	}
	return nil
}
