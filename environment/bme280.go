package environment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/cache"
)

const (
	BME280AddrLow  = 0x76
	BME280AddrHigh = 0x77
)

const (
	bme280RegCalib1   = 0x88
	bme280RegChipID   = 0xD0
	bme280RegReset    = 0xE0
	bme280RegCalib2   = 0xE1
	bme280RegCtrlHum  = 0xF2
	bme280RegCtrlMeas = 0xF4
	bme280RegConfig   = 0xF5
	bme280RegData     = 0xF7

	bme280ChipID    = 0x60
	bme280ResetWord = 0xB6
	bme280ResetWait = 10 * time.Millisecond

	// humidity x1
	bme280CtrlHum = 0x01
	// temperature x1, pressure x1, normal mode
	bme280CtrlMeas = 0x27
	// standby 1000 ms, filter off
	bme280Config = 0xA0
)

// BME280 channels as stored in the reading cache.
const (
	BME280Temperature = 0
	BME280Humidity    = 1
	BME280Pressure    = 2
)

// BME280 reads temperature, humidity and pressure. Every chip is identified,
// reset and configured on first access and its calibration kept for the
// lifetime of the driver.
//
// Typical usage:
//
//	s := NewBME280(bus, cache.New())
//	t, err := s.Read(ctx, BME280AddrLow, BME280Temperature)
type BME280 struct {
	transport    halnode.I2CBus
	cache        *cache.Cache
	calibrations *CalibrationStore
	sleep        func(time.Duration)
}

func NewBME280(transport halnode.I2CBus, readings *cache.Cache, opts ...Option) *BME280 {
	c := newConfig(DefaultCalibrationSlots, opts)
	return &BME280{
		transport:    transport,
		cache:        readings,
		calibrations: NewCalibrationStore(c.slots),
		sleep:        c.sleep,
	}
}

// Read returns one channel, served from the cache when a recent burst of the
// same chip is available. Failures return NaN.
func (s *BME280) Read(ctx context.Context, addr byte, channel int) (float32, error) {
	if !s.transport.Active() {
		return nan, halnode.ErrBusInactive
	}
	if channel < BME280Temperature || channel > BME280Pressure {
		return nan, fmt.Errorf("bme280: %w: %d", halnode.ErrInvalidChannel, channel)
	}
	if v, ok := s.cache.Get(addr, channel); ok {
		return v, nil
	}
	m, err := s.Measure(ctx, addr)
	if err != nil {
		return nan, err
	}
	values := []float32{m.Temperature, m.Humidity, m.Pressure}
	s.cache.Set(addr, values...)
	return values[channel], nil
}

// Measure performs a burst read bypassing the cache.
func (s *BME280) Measure(ctx context.Context, addr byte) (Measurement, error) {
	cal, ok := s.calibrations.Lookup(addr)
	if !ok {
		var err error
		cal, err = s.init(ctx, addr)
		if err != nil {
			return Measurement{}, err
		}
	}
	buf := make([]byte, bme280RawLen)
	if err := s.transport.ReadRegister(ctx, addr, bme280RegData, buf); err != nil {
		return Measurement{}, fmt.Errorf("bme280: could not read measurement: %w", err)
	}
	raw, err := ParseRaw(buf)
	if err != nil {
		return Measurement{}, err
	}
	return cal.Compensate(raw), nil
}

// Calibration returns the calibration recorded for addr, if any.
func (s *BME280) Calibration(addr byte) (Calibration, bool) {
	return s.calibrations.Lookup(addr)
}

func (s *BME280) init(ctx context.Context, addr byte) (Calibration, error) {
	if !s.calibrations.Available() {
		return Calibration{}, fmt.Errorf("bme280: cannot track %#02x: %w", addr, halnode.ErrCapacityExhausted)
	}
	id := make([]byte, 1)
	if err := s.transport.ReadRegister(ctx, addr, bme280RegChipID, id); err != nil {
		return Calibration{}, fmt.Errorf("bme280: could not read chip id: %w", err)
	}
	if id[0] != bme280ChipID {
		slog.Warn("bme280: wrong chip ID", "addr", fmt.Sprintf("%#02x", addr), "id", fmt.Sprintf("%#02x", id[0]))
		return Calibration{}, fmt.Errorf("bme280: chip id %#02x at %#02x: %w", id[0], addr, halnode.ErrIdentityMismatch)
	}
	if err := s.transport.WriteRegister(ctx, addr, bme280RegReset, []byte{bme280ResetWord}); err != nil {
		return Calibration{}, fmt.Errorf("bme280: could not reset: %w", err)
	}
	s.sleep(bme280ResetWait)

	bank1 := make([]byte, bme280CalibBank1Len)
	if err := s.transport.ReadRegister(ctx, addr, bme280RegCalib1, bank1); err != nil {
		return Calibration{}, fmt.Errorf("bme280: could not read calibration: %w", err)
	}
	bank2 := make([]byte, bme280CalibBank2Len)
	if err := s.transport.ReadRegister(ctx, addr, bme280RegCalib2, bank2); err != nil {
		return Calibration{}, fmt.Errorf("bme280: could not read humidity calibration: %w", err)
	}
	cal, err := ParseCalibration(bank1, bank2)
	if err != nil {
		return Calibration{}, err
	}
	slog.Debug("bme280: calibration loaded", "addr", fmt.Sprintf("%#02x", addr))

	// ctrl_hum only takes effect after a ctrl_meas write
	config := []struct {
		reg byte
		val byte
	}{
		{bme280RegCtrlHum, bme280CtrlHum},
		{bme280RegCtrlMeas, bme280CtrlMeas},
		{bme280RegConfig, bme280Config},
	}
	for _, c := range config {
		if err := s.transport.WriteRegister(ctx, addr, c.reg, []byte{c.val}); err != nil {
			return Calibration{}, fmt.Errorf("bme280: could not configure register %#02x: %w", c.reg, err)
		}
	}
	if err := s.calibrations.Store(addr, cal); err != nil {
		return Calibration{}, err
	}
	slog.Info("bme280: initialized", "addr", fmt.Sprintf("%#02x", addr))
	return cal, nil
}
