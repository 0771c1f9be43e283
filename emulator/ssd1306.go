package emulator

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"periph.io/x/devices/v3/ssd1306/image1bit"
)

const (
	ssdWidth = 128
	ssdPages = 8
)

// parameter count of every multi byte SSD1306 command understood by the model
var ssdParams = map[byte]int{
	0x20: 1, // memory mode
	0x21: 2, // column window
	0x22: 2, // page window
	0x81: 1, // contrast
	0x8D: 1, // charge pump
	0xA8: 1, // multiplex
	0xD3: 1, // display offset
	0xD5: 1, // clock divider
	0xD9: 1, // pre-charge
	0xDA: 1, // COM pins
	0xDB: 1, // VCOMH
}

// SSD1306 models the GDDRAM of a 128x64 controller in horizontal addressing
// mode. Transactions start with a control byte: 0x00 for a command stream,
// 0x40 for display data.
type SSD1306 struct {
	mx       sync.Mutex
	ram      *image1bit.VerticalLSB
	on       bool
	mux      byte
	comPins  byte
	colStart byte
	colEnd   byte
	pgStart  byte
	pgEnd    byte
	col      byte
	page     byte
	pending  []byte
	commands []byte
}

func NewSSD1306() *SSD1306 {
	return &SSD1306{
		ram:    image1bit.NewVerticalLSB(image.Rect(0, 0, ssdWidth, ssdPages*8)),
		colEnd: ssdWidth - 1,
		pgEnd:  ssdPages - 1,
	}
}

func (d *SSD1306) Tx(w, r []byte) error {
	if len(r) > 0 {
		return fmt.Errorf("ssd1306: reads are not supported")
	}
	if len(w) == 0 {
		return nil
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	switch w[0] {
	case 0x00:
		for _, b := range w[1:] {
			d.command(b)
		}
	case 0x40:
		for _, b := range w[1:] {
			d.data(b)
		}
	default:
		return fmt.Errorf("ssd1306: unsupported control byte %#02x", w[0])
	}
	return nil
}

func (d *SSD1306) command(b byte) {
	d.commands = append(d.commands, b)
	if len(d.pending) > 0 {
		d.pending = append(d.pending, b)
		if len(d.pending)-1 < ssdParams[d.pending[0]] {
			return
		}
		d.apply(d.pending[0], d.pending[1:])
		d.pending = d.pending[:0]
		return
	}
	if _, ok := ssdParams[b]; ok {
		d.pending = append(d.pending, b)
		return
	}
	switch b {
	case 0xAE:
		d.on = false
	case 0xAF:
		d.on = true
	}
}

func (d *SSD1306) apply(cmd byte, args []byte) {
	switch cmd {
	case 0x21:
		d.colStart, d.colEnd = args[0]&0x7F, args[1]&0x7F
		d.col = d.colStart
	case 0x22:
		d.pgStart, d.pgEnd = args[0]&0x07, args[1]&0x07
		d.page = d.pgStart
	case 0xA8:
		d.mux = args[0]
	case 0xDA:
		d.comPins = args[0]
	}
}

func (d *SSD1306) data(b byte) {
	off := int(d.page)*d.ram.Stride + int(d.col)
	d.ram.Pix[off] = b
	if d.col < d.colEnd {
		d.col++
		return
	}
	d.col = d.colStart
	if d.page < d.pgEnd {
		d.page++
	} else {
		d.page = d.pgStart
	}
}

// On reports whether the display was switched on.
func (d *SSD1306) On() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.on
}

// Geometry returns the last multiplex ratio and COM pins configuration.
func (d *SSD1306) Geometry() (mux, comPins byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.mux, d.comPins
}

// Commands returns every command byte received so far, parameters included.
func (d *SSD1306) Commands() []byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]byte(nil), d.commands...)
}

func (d *SSD1306) Pixel(x, y int) bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return bool(d.ram.BitAt(x, y))
}

// Page returns a copy of the 128 column bytes of one page.
func (d *SSD1306) Page(page int) []byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	off := page * d.ram.Stride
	return append([]byte(nil), d.ram.Pix[off:off+ssdWidth]...)
}

// Blank reports whether every pixel of the page is off.
func (d *SSD1306) Blank(page int) bool {
	for _, b := range d.Page(page) {
		if b != 0 {
			return false
		}
	}
	return true
}

// Image returns a snapshot of the display memory.
func (d *SSD1306) Image() *image1bit.VerticalLSB {
	d.mx.Lock()
	defer d.mx.Unlock()
	img := image1bit.NewVerticalLSB(d.ram.Rect)
	copy(img.Pix, d.ram.Pix)
	return img
}

// Render draws the first rows of the display as ASCII art.
func (d *SSD1306) Render(rows int) string {
	d.mx.Lock()
	defer d.mx.Unlock()
	var sb strings.Builder
	for y := range rows {
		for x := range ssdWidth {
			if d.ram.BitAt(x, y) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
