// Package adc reads the TI ADS1115 16 bit delta-sigma converter in single
// shot mode.
package adc

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/mklimuk/halnode"
)

const (
	ADS1115AddrGND = 0x48
	ADS1115AddrVDD = 0x49
	ADS1115AddrSDA = 0x4A
	ADS1115AddrSCL = 0x4B
)

const (
	regConversion byte = 0x00
	regConfig     byte = 0x01
)

// config register fields
const (
	configOS         uint16 = 0x8000 // start a single conversion
	configPGA4096    uint16 = 0x0200 // ±4.096 V
	configSingleShot uint16 = 0x0100
	configDR128      uint16 = 0x0080 // 128 SPS
)

// Channels is the number of single-ended inputs.
const Channels = 4

// MillivoltsPerLSB matches the fixed ±4.096 V gain.
const MillivoltsPerLSB = 0.125

const conversionWait = 10 * time.Millisecond

// Mux returns the input multiplexer code of a single-ended channel.
func Mux(channel int) uint16 {
	return uint16(4+channel) & 0x07
}

// Config returns the config register word starting a conversion of channel.
func Config(channel int) uint16 {
	return configOS | Mux(channel)<<12 | configPGA4096 | configSingleShot | configDR128
}

// Millivolts converts a raw conversion register value.
func Millivolts(raw []byte) float32 {
	return float32(int16(binary.BigEndian.Uint16(raw))) * MillivoltsPerLSB
}

type Opt func(*ADS1115)

func WithSleep(sleep func(time.Duration)) Opt {
	return func(a *ADS1115) {
		a.sleep = sleep
	}
}

// ADS1115 starts a conversion on every read; readings are never cached.
type ADS1115 struct {
	transport halnode.I2CBus
	sleep     func(time.Duration)
}

func NewADS1115(transport halnode.I2CBus, opts ...Opt) *ADS1115 {
	a := &ADS1115{transport: transport, sleep: time.Sleep}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Read returns the voltage of a single-ended input in millivolts, or NaN.
func (a *ADS1115) Read(ctx context.Context, addr byte, channel int) (float32, error) {
	nan := float32(math.NaN())
	if !a.transport.Active() {
		return nan, halnode.ErrBusInactive
	}
	if channel < 0 || channel >= Channels {
		return nan, fmt.Errorf("ads1115: %w: %d", halnode.ErrInvalidChannel, channel)
	}
	cfg := make([]byte, 2)
	binary.BigEndian.PutUint16(cfg, Config(channel))
	if err := a.transport.WriteRegister(ctx, addr, regConfig, cfg); err != nil {
		return nan, fmt.Errorf("ads1115: could not start conversion: %w", err)
	}
	a.sleep(conversionWait)
	raw := make([]byte, 2)
	if err := a.transport.ReadRegister(ctx, addr, regConversion, raw); err != nil {
		return nan, fmt.Errorf("ads1115: could not read conversion: %w", err)
	}
	return Millivolts(raw), nil
}
