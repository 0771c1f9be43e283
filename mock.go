package halnode

import (
	"context"
	"time"
)

// SensorBehaviorFunc produces a reading for a mock sensor device.
type SensorBehaviorFunc func(ctx context.Context) (float32, error)

// MockDevice is a registry device driven by a behavior function, usable
// without any hardware.
//
// Example usage:
//
//	temp := NewMockSensor(func(ctx context.Context) (float32, error) { return 21.5, nil })
//	relay := NewMockActuator(1)
type MockDevice struct {
	sensor   SensorBehaviorFunc
	actuator bool
	value    int
}

// NewMockSensor creates a sensor device whose reading comes from behavior.
func NewMockSensor(behavior SensorBehaviorFunc) *MockDevice {
	return &MockDevice{sensor: behavior}
}

// NewMockActuator creates an actuator device reporting value as its last value.
func NewMockActuator(value int) *MockDevice {
	return &MockDevice{actuator: true, value: value}
}

func (m *MockDevice) IsSensor() bool   { return m.sensor != nil }
func (m *MockDevice) IsActuator() bool { return m.actuator }
func (m *MockDevice) LastValue() int   { return m.value }

// SetValue changes the value reported by an actuator.
func (m *MockDevice) SetValue(v int) { m.value = v }

func (m *MockDevice) ReadSensor(ctx context.Context) (float32, error) {
	if m.sensor == nil {
		return 0, ErrNotFound
	}
	return m.sensor(ctx)
}

// MockDeviceProvider resolves names from a static map.
type MockDeviceProvider map[string]Device

func (p MockDeviceProvider) FindByName(name string) (Device, bool) {
	d, ok := p[name]
	return d, ok
}

// MockDisplays is a static DisplayEnumerator.
type MockDisplays []DisplayTarget

func (d MockDisplays) Displays() []DisplayTarget { return d }

// MockSystemInfo returns fixed values for the reserved template tokens.
type MockSystemInfo struct {
	Addr string
	Heap uint64
	Up   time.Duration
	Name string
}

func (s MockSystemInfo) IP() string            { return s.Addr }
func (s MockSystemInfo) FreeHeap() uint64      { return s.Heap }
func (s MockSystemInfo) Uptime() time.Duration { return s.Up }
func (s MockSystemInfo) DeviceName() string    { return s.Name }
