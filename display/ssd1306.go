// Package display drives SSD1306 OLED controllers over I2C as 21x8 text
// terminals.
package display

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/halnode"
)

const (
	SSD1306Addr    = 0x3C
	SSD1306AddrAlt = 0x3D
)

const (
	Width = 128
	Pages = 8
	// MaxChars is the number of glyph cells on one text line.
	MaxChars = Width / (GlyphWidth + 1)

	cellWidth = GlyphWidth + 1
	lineWidth = MaxChars * cellWidth
	// largest data payload sent in one transaction
	chunkSize = 16
)

const (
	controlCommand = 0x00
	controlData    = 0x40
)

// SSD1306 commands
const (
	cmdColumnAddr     = 0x21
	cmdPageAddr       = 0x22
	cmdMemoryMode     = 0x20
	cmdChargePump     = 0x8D
	cmdContrast       = 0x81
	cmdSegRemap       = 0xA1
	cmdDisplayRAM     = 0xA4
	cmdNormalDisplay  = 0xA6
	cmdMultiplex      = 0xA8
	cmdDisplayOff     = 0xAE
	cmdDisplayOn      = 0xAF
	cmdComScanDec     = 0xC8
	cmdDisplayOffset  = 0xD3
	cmdClockDiv       = 0xD5
	cmdPrecharge      = 0xD9
	cmdComPins        = 0xDA
	cmdVcomDetect     = 0xDB
	cmdStartLineZero  = 0x40
	memoryHorizontal  = 0x00
	chargePumpEnabled = 0x14
)

type SSD1306 struct {
	transport halnode.I2CBus
}

func NewSSD1306(transport halnode.I2CBus) *SSD1306 {
	return &SSD1306{transport: transport}
}

// Lines returns the number of text lines of a panel height.
func Lines(height int) int {
	if height == 32 {
		return 4
	}
	return 8
}

// Init probes the panel, configures it for the given height in a mirrored
// orientation and clears it. Heights other than 32 are driven as 64.
func (d *SSD1306) Init(ctx context.Context, addr byte, height int) error {
	if !d.transport.Active() {
		return halnode.ErrBusInactive
	}
	if !d.transport.Detect(ctx, addr) {
		slog.Warn("ssd1306: not found", "addr", fmt.Sprintf("%#02x", addr))
		return fmt.Errorf("ssd1306: %#02x: %w", addr, halnode.ErrNotFound)
	}
	mux, comPins := byte(0x3F), byte(0x12)
	if height == 32 {
		mux, comPins = 0x1F, 0x02
	} else {
		height = 64
	}
	sequence := [][]byte{
		{cmdDisplayOff},
		{cmdClockDiv, 0x80},
		{cmdMultiplex, mux},
		{cmdDisplayOffset, 0x00},
		{cmdStartLineZero},
		{cmdChargePump, chargePumpEnabled},
		{cmdMemoryMode, memoryHorizontal},
		{cmdSegRemap},
		{cmdComScanDec},
		{cmdComPins, comPins},
		{cmdContrast, 0xCF},
		{cmdPrecharge, 0xF1},
		{cmdVcomDetect, 0x40},
		{cmdDisplayRAM},
		{cmdNormalDisplay},
		{cmdDisplayOn},
	}
	for _, cmd := range sequence {
		if err := d.command(ctx, addr, cmd...); err != nil {
			return fmt.Errorf("ssd1306: init command %#02x failed: %w", cmd[0], err)
		}
	}
	if err := d.Clear(ctx, addr); err != nil {
		return err
	}
	slog.Info("ssd1306: initialized", "addr", fmt.Sprintf("%#02x", addr), "size", fmt.Sprintf("%dx%d", Width, height))
	return nil
}

// Deinit clears the panel and switches it off.
func (d *SSD1306) Deinit(ctx context.Context, addr byte) error {
	if !d.transport.Active() {
		return halnode.ErrBusInactive
	}
	if err := d.Clear(ctx, addr); err != nil {
		return err
	}
	if err := d.command(ctx, addr, cmdDisplayOff); err != nil {
		return fmt.Errorf("ssd1306: display off failed: %w", err)
	}
	slog.Info("ssd1306: deinitialized", "addr", fmt.Sprintf("%#02x", addr))
	return nil
}

// Clear zeroes all 8 pages regardless of the panel height.
func (d *SSD1306) Clear(ctx context.Context, addr byte) error {
	if !d.transport.Active() {
		return halnode.ErrBusInactive
	}
	if err := d.window(ctx, addr, 0, Pages-1); err != nil {
		return err
	}
	return d.blank(ctx, addr, Width*Pages)
}

// WriteText renders up to MaxChars characters on one page and blanks the
// rest of the line.
func (d *SSD1306) WriteText(ctx context.Context, addr byte, line int, text string) error {
	if !d.transport.Active() {
		return halnode.ErrBusInactive
	}
	if line < 0 || line >= Pages {
		return fmt.Errorf("ssd1306: line %d out of range", line)
	}
	if err := d.window(ctx, addr, byte(line), byte(line)); err != nil {
		return err
	}
	n := min(len(text), MaxChars)
	row := RenderLine(text)
	for i := range n {
		if err := d.data(ctx, addr, row[i*cellWidth:(i+1)*cellWidth]); err != nil {
			return fmt.Errorf("ssd1306: could not write glyph %d: %w", i, err)
		}
	}
	return d.blank(ctx, addr, (MaxChars-n)*cellWidth)
}

// RenderLine returns the column bytes of one text line: MaxChars cells of a
// glyph followed by a blank column.
func RenderLine(text string) []byte {
	row := make([]byte, lineWidth)
	for i := 0; i < len(text) && i < MaxChars; i++ {
		g := Glyph(text[i])
		copy(row[i*cellWidth:], g[:])
	}
	return row
}

func (d *SSD1306) window(ctx context.Context, addr byte, first, last byte) error {
	if err := d.command(ctx, addr, cmdColumnAddr, 0, Width-1); err != nil {
		return fmt.Errorf("ssd1306: could not set columns: %w", err)
	}
	if err := d.command(ctx, addr, cmdPageAddr, first, last); err != nil {
		return fmt.Errorf("ssd1306: could not set pages: %w", err)
	}
	return nil
}

func (d *SSD1306) blank(ctx context.Context, addr byte, n int) error {
	zeros := make([]byte, chunkSize)
	for n > 0 {
		c := min(n, chunkSize)
		if err := d.data(ctx, addr, zeros[:c]); err != nil {
			return fmt.Errorf("ssd1306: could not blank: %w", err)
		}
		n -= c
	}
	return nil
}

func (d *SSD1306) command(ctx context.Context, addr byte, cmd ...byte) error {
	return d.transport.WriteToAddr(ctx, addr, append([]byte{controlCommand}, cmd...))
}

func (d *SSD1306) data(ctx context.Context, addr byte, payload []byte) error {
	return d.transport.WriteToAddr(ctx, addr, append([]byte{controlData}, payload...))
}
