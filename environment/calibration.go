package environment

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mklimuk/halnode"
)

const (
	bme280CalibBank1Len = 26
	bme280CalibBank2Len = 7
)

// Calibration holds the trimming constants burnt into every BME280.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// ParseCalibration decodes the two calibration banks: 26 bytes read from
// 0x88 and 7 bytes read from 0xE1.
func ParseCalibration(bank1, bank2 []byte) (Calibration, error) {
	if len(bank1) < bme280CalibBank1Len || len(bank2) < bme280CalibBank2Len {
		return Calibration{}, fmt.Errorf("bme280: short calibration data (%d+%d bytes)", len(bank1), len(bank2))
	}
	le := binary.LittleEndian
	c := Calibration{
		T1: le.Uint16(bank1[0:]),
		T2: int16(le.Uint16(bank1[2:])),
		T3: int16(le.Uint16(bank1[4:])),
		P1: le.Uint16(bank1[6:]),
		P2: int16(le.Uint16(bank1[8:])),
		P3: int16(le.Uint16(bank1[10:])),
		P4: int16(le.Uint16(bank1[12:])),
		P5: int16(le.Uint16(bank1[14:])),
		P6: int16(le.Uint16(bank1[16:])),
		P7: int16(le.Uint16(bank1[18:])),
		P8: int16(le.Uint16(bank1[20:])),
		P9: int16(le.Uint16(bank1[22:])),
		H1: bank1[25],
		H2: int16(le.Uint16(bank2[0:])),
		H3: bank2[2],
		// H4 and H5 are 12 bit values sharing the nibbles of 0xE5
		H4: int16(bank2[3])<<4 | int16(bank2[4]&0x0F),
		H5: int16(bank2[5])<<4 | int16(bank2[4]>>4),
		H6: int8(bank2[6]),
	}
	return c, nil
}

type calibrationSlot struct {
	addr  byte
	valid bool
	cal   Calibration
}

// CalibrationStore is a fixed size table of calibration records. Records are
// never evicted.
type CalibrationStore struct {
	mx    sync.Mutex
	slots []calibrationSlot
}

func NewCalibrationStore(size int) *CalibrationStore {
	return &CalibrationStore{slots: make([]calibrationSlot, size)}
}

func (s *CalibrationStore) Lookup(addr byte) (Calibration, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, slot := range s.slots {
		if slot.valid && slot.addr == addr {
			return slot.cal, true
		}
	}
	return Calibration{}, false
}

// Available reports whether a record for a new address can be stored.
func (s *CalibrationStore) Available() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.free() >= 0
}

// Store records the calibration of addr in the first free slot.
func (s *CalibrationStore) Store(addr byte, cal Calibration) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	for i := range s.slots {
		if s.slots[i].valid && s.slots[i].addr == addr {
			s.slots[i].cal = cal
			return nil
		}
	}
	i := s.free()
	if i < 0 {
		return fmt.Errorf("bme280: calibration table full (%d slots): %w", len(s.slots), halnode.ErrCapacityExhausted)
	}
	s.slots[i] = calibrationSlot{addr: addr, valid: true, cal: cal}
	return nil
}

func (s *CalibrationStore) free() int {
	for i := range s.slots {
		if !s.slots[i].valid {
			return i
		}
	}
	return -1
}
