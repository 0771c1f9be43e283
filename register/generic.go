// Package register reads plain register mapped sensors: one or two bytes,
// big-endian, multiplied by a fixed scale.
package register

import (
	"context"
	"math"

	"github.com/mklimuk/halnode"
)

type Generic struct {
	transport halnode.I2CBus
}

func NewGeneric(transport halnode.I2CBus) *Generic {
	return &Generic{transport: transport}
}

// Read returns raw(reg) * scale. length is clamped to 1..2 bytes.
func (g *Generic) Read(ctx context.Context, addr, reg byte, length int, scale float32) (float32, error) {
	if !g.transport.Active() {
		return float32(math.NaN()), halnode.ErrBusInactive
	}
	length = min(max(length, 1), 2)
	buf := make([]byte, length)
	if err := g.transport.ReadRegister(ctx, addr, reg, buf); err != nil {
		return float32(math.NaN()), err
	}
	return Decode(buf) * scale, nil
}

// Decode combines up to two bytes big-endian.
func Decode(buf []byte) float32 {
	var raw uint16
	for _, b := range buf {
		raw = raw<<8 | uint16(b)
	}
	return float32(raw)
}
