package emulator

import "encoding/binary"

// BME280 register contents taken from the Bosch compensation worked example:
// 25.08 °C, 1006.53 hPa, 54.997 %RH.
var (
	bme280Bank1 = []byte{
		0x70, 0x6B, 0x43, 0x67, 0x18, 0xFC, 0x7D, 0x8E, 0x43, 0xD6, 0xD0, 0x0B,
		0x27, 0x0B, 0x8C, 0x00, 0xF9, 0xFF, 0x8C, 0x3C, 0xF8, 0xC6, 0x70, 0x17,
		0x00, 0x4B,
	}
	bme280Bank2 = []byte{0x6A, 0x01, 0x00, 0x13, 0x29, 0x03, 0x1E}
	bme280Burst = []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00, 0x75, 0x30}
)

// NewBME280 returns a register map answering with chip id and the worked
// example calibration and ADC counts.
func NewBME280(id byte) *Registers {
	return NewRegisters().
		Load(0xD0, id).
		Load(0x88, bme280Bank1...).
		Load(0xE1, bme280Bank2...).
		Load(0xF7, bme280Burst...)
}

// NewBH1750 returns a light sensor whose every read yields raw.
func NewBH1750(raw uint16) Device {
	return DeviceFunc(func(w, r []byte) error {
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], raw)
		copy(r, buf[:])
		return nil
	})
}

// NewSHT31 returns a humidity sensor answering the measurement read with the
// given raw words. CRC bytes are left zero.
func NewSHT31(temperature, humidity uint16) Device {
	return DeviceFunc(func(w, r []byte) error {
		buf := make([]byte, 6)
		binary.BigEndian.PutUint16(buf[0:], temperature)
		binary.BigEndian.PutUint16(buf[3:], humidity)
		copy(r, buf)
		return nil
	})
}

// Bench is a bus populated with one of each supported chip at its default
// address plus a display at 0x3C.
type Bench struct {
	*Bus
	BME280  *Registers
	ADS1115 *ADS1115
	Display *SSD1306
}

func NewBench() *Bench {
	b := &Bench{
		Bus:     NewBus(),
		BME280:  NewBME280(0x60),
		ADS1115: NewADS1115(0x2000),
		Display: NewSSD1306(),
	}
	b.Attach(0x76, b.BME280)
	b.Attach(0x48, b.ADS1115)
	b.Attach(0x23, NewBH1750(0x012C))
	b.Attach(0x44, NewSHT31(0x6666, 0x8000))
	b.Attach(0x3C, b.Display)
	return b
}
