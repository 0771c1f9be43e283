package emulator

import (
	"encoding/binary"
	"sync"
)

const (
	ads1115Conversion = 0x00
	ads1115Config     = 0x01
	ads1115LoThresh   = 0x02
	ads1115HiThresh   = 0x03

	ads1115ConfigReset = 0x8583
	ads1115StartBit    = 0x8000
)

// ADS1115 models the converter's pointer register and its four 16 bit
// registers. Writing the config word with the OS bit set runs a conversion
// of the selected single-ended input immediately.
type ADS1115 struct {
	mx       sync.Mutex
	ptr      byte
	regs     [4]uint16
	channels [4]uint16
}

// NewADS1115 returns a converter whose every input reads raw. The
// conversion register starts out holding raw as well.
func NewADS1115(raw uint16) *ADS1115 {
	a := &ADS1115{}
	a.regs[ads1115Conversion] = raw
	a.regs[ads1115Config] = ads1115ConfigReset
	a.regs[ads1115LoThresh] = 0x8000
	a.regs[ads1115HiThresh] = 0x7FFF
	for i := range a.channels {
		a.channels[i] = raw
	}
	return a
}

// SetInput changes the value converted for a single-ended input.
func (a *ADS1115) SetInput(channel int, raw uint16) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.channels[channel&0x03] = raw
}

// Register returns the current content of one of the four registers.
func (a *ADS1115) Register(ptr byte) uint16 {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.regs[ptr&0x03]
}

func (a *ADS1115) Tx(w, r []byte) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if len(w) > 0 {
		a.ptr = w[0] & 0x03
	}
	if len(w) >= 3 && a.ptr != ads1115Conversion {
		word := binary.BigEndian.Uint16(w[1:3])
		if a.ptr == ads1115Config {
			a.configure(word)
		} else {
			a.regs[a.ptr] = word
		}
	}
	if len(r) > 0 {
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], a.regs[a.ptr])
		copy(r, buf[:])
	}
	return nil
}

func (a *ADS1115) configure(word uint16) {
	a.regs[ads1115Config] = word &^ ads1115StartBit
	if word&ads1115StartBit == 0 {
		return
	}
	mux := (word >> 12) & 0x07
	if mux >= 4 {
		a.regs[ads1115Conversion] = a.channels[mux-4]
	}
	// conversion done
	a.regs[ads1115Config] |= ads1115StartBit
}
