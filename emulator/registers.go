package emulator

import "sync"

// Registers models a device with a 256 byte register file and an auto
// incrementing register pointer. The first written byte selects the
// register, further bytes are stored from there on.
type Registers struct {
	mx  sync.Mutex
	mem [256]byte
	ptr byte
	// OnWrite, when set, is called after every register write.
	OnWrite func(reg byte, data []byte)
}

func NewRegisters() *Registers {
	return &Registers{}
}

// Load stores data starting at reg without triggering OnWrite.
func (d *Registers) Load(reg byte, data ...byte) *Registers {
	d.mx.Lock()
	defer d.mx.Unlock()
	for i, b := range data {
		d.mem[reg+byte(i)] = b
	}
	return d
}

// Peek returns n bytes starting at reg.
func (d *Registers) Peek(reg byte, n int) []byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = d.mem[reg+byte(i)]
	}
	return out
}

func (d *Registers) Tx(w, r []byte) error {
	d.mx.Lock()
	if len(w) > 0 {
		d.ptr = w[0]
		for i, b := range w[1:] {
			d.mem[d.ptr+byte(i)] = b
		}
	}
	for i := range r {
		r[i] = d.mem[d.ptr+byte(i)]
	}
	hook := d.OnWrite
	d.mx.Unlock()
	if hook != nil && len(w) > 1 {
		hook(w[0], append([]byte(nil), w[1:]...))
	}
	return nil
}
