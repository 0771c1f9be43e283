package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/cache"
)

const (
	SHT31AddrLow  = 0x44
	SHT31AddrHigh = 0x45
)

// single shot, high repeatability, clock stretching enabled
const sht31CmdMeasureHigh uint16 = 0x2C06

const sht31MeasureWait = 16 * time.Millisecond

const (
	SHT31Temperature = 0
	SHT31Humidity    = 1
)

// SHT31 represents Sensirion SHT31 Temperature/Humidity sensor. Both channels
// come from one measurement and are cached together.
// Typical usage:
//
//	s := NewSHT31(bus, cache.New())
//	h, err := s.Read(ctx, SHT31AddrLow, SHT31Humidity)
type SHT31 struct {
	transport halnode.I2CBus
	cache     *cache.Cache
	sleep     func(time.Duration)
}

func NewSHT31(trans halnode.I2CBus, readings *cache.Cache, opts ...Option) *SHT31 {
	c := newConfig(0, opts)
	return &SHT31{transport: trans, cache: readings, sleep: c.sleep}
}

func (s *SHT31) Read(ctx context.Context, addr byte, channel int) (float32, error) {
	if !s.transport.Active() {
		return nan, halnode.ErrBusInactive
	}
	if channel < SHT31Temperature || channel > SHT31Humidity {
		return nan, fmt.Errorf("sht31: %w: %d", halnode.ErrInvalidChannel, channel)
	}
	if v, ok := s.cache.Get(addr, channel); ok {
		return v, nil
	}
	temp, hum, err := s.GetTempAndHum(ctx, addr)
	if err != nil {
		return nan, err
	}
	s.cache.Set(addr, temp, hum)
	if channel == SHT31Humidity {
		return hum, nil
	}
	return temp, nil
}

// GetTempAndHum performs a single measurement bypassing the cache.
func (s *SHT31) GetTempAndHum(ctx context.Context, addr byte) (float32, float32, error) {
	var cmd [2]byte
	binary.BigEndian.PutUint16(cmd[:], sht31CmdMeasureHigh)
	if err := s.transport.WriteToAddr(ctx, addr, cmd[:]); err != nil {
		return nan, nan, fmt.Errorf("sht31: measure command failed: %w", err)
	}
	s.sleep(sht31MeasureWait)

	// T[0:2], CRC, RH[3:5], CRC; checksums are not verified
	buf := make([]byte, 6)
	if err := s.transport.ReadFromAddr(ctx, addr, buf); err != nil {
		return nan, nan, fmt.Errorf("sht31: read failed: %w", err)
	}
	return convertSHTTemperature(buf[0:2]), convertSHTHumidity(buf[3:5]), nil
}

// T(C) = -45 + 175 * raw / 65535
func convertSHTTemperature(raw []byte) float32 {
	return -45.0 + 175.0*float32(binary.BigEndian.Uint16(raw))/65535.0
}

// RH(%) = 100 * raw / 65535
func convertSHTHumidity(raw []byte) float32 {
	return 100.0 * float32(binary.BigEndian.Uint16(raw)) / 65535.0
}
