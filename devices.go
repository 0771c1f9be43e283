package halnode

import (
	"context"
	"time"
)

// SensorKind names an I2C sensor protocol.
type SensorKind string

const (
	KindGeneric SensorKind = "i2c_generic"
	KindBME280  SensorKind = "bme280"
	KindBH1750  SensorKind = "bh1750"
	KindSHT31   SensorKind = "sht31"
	KindADS1115 SensorKind = "ads1115"
)

// SensorRef addresses a single reading: a protocol, a bus address and a
// channel. Reg, RegLen and Scale are only used by KindGeneric.
type SensorRef struct {
	Kind    SensorKind
	Addr    byte
	Channel int
	Reg     byte
	RegLen  int
	Scale   float32
}

// SensorReader resolves a SensorRef into a value. Failed reads return NaN
// together with the error.
type SensorReader interface {
	Read(ctx context.Context, ref SensorRef) (float32, error)
}

// Device is a named entry of the device registry as seen by the display
// template engine.
type Device interface {
	IsSensor() bool
	IsActuator() bool
	// ReadSensor returns the latest reading of a sensor device.
	ReadSensor(ctx context.Context) (float32, error)
	// LastValue returns the last value written to an actuator device.
	LastValue() int
}

type DeviceProvider interface {
	FindByName(name string) (Device, bool)
}

// DisplayTarget describes a registered SSD1306 display. The registry owns it;
// the poll loop only reads it.
type DisplayTarget struct {
	Name     string
	Addr     byte
	Template string
	// Pin is reused by the registry as the panel height selector: 1 selects a
	// 128x32 panel, anything else 128x64.
	Pin int
}

// Height returns the panel height in pixels.
func (t DisplayTarget) Height() int {
	if t.Pin == 1 {
		return 32
	}
	return 64
}

type DisplayEnumerator interface {
	Displays() []DisplayTarget
}

// SystemInfo backs the reserved template tokens.
type SystemInfo interface {
	IP() string
	FreeHeap() uint64
	Uptime() time.Duration
	DeviceName() string
}
