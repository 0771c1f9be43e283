// Package registry is a YAML backed device registry. It names sensors,
// actuators and displays so that display templates and the poll loop can
// refer to them.
package registry

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"sync"

	"github.com/mklimuk/halnode"
	"gopkg.in/yaml.v3"
)

var _ halnode.DeviceProvider = &Registry{}
var _ halnode.DisplayEnumerator = &Registry{}

const (
	KindSSD1306  = "ssd1306"
	KindActuator = "actuator"
)

var sensorKinds = []halnode.SensorKind{
	halnode.KindGeneric,
	halnode.KindBME280,
	halnode.KindBH1750,
	halnode.KindSHT31,
	halnode.KindADS1115,
}

// Entry is one device as stored in the registry file.
type Entry struct {
	Name     string  `yaml:"name"`
	Kind     string  `yaml:"kind"`
	Addr     uint8   `yaml:"addr,omitempty"`
	Channel  int     `yaml:"channel,omitempty"`
	Reg      uint8   `yaml:"reg,omitempty"`
	RegLen   int     `yaml:"reg_len,omitempty"`
	Scale    float32 `yaml:"scale,omitempty"`
	Pin      int     `yaml:"pin,omitempty"`
	Template string  `yaml:"template,omitempty"`
	Value    int     `yaml:"value,omitempty"`
}

type File struct {
	Devices []Entry `yaml:"devices"`
}

type Device struct {
	entry  Entry
	reader halnode.SensorReader
	mx     sync.Mutex
	value  int
}

func (d *Device) Name() string { return d.entry.Name }

func (d *Device) Kind() string { return d.entry.Kind }

func (d *Device) IsSensor() bool {
	return slices.Contains(sensorKinds, halnode.SensorKind(d.entry.Kind))
}

func (d *Device) IsActuator() bool { return d.entry.Kind == KindActuator }

// Ref returns the sensor reference read by ReadSensor.
func (d *Device) Ref() halnode.SensorRef {
	return halnode.SensorRef{
		Kind:    halnode.SensorKind(d.entry.Kind),
		Addr:    d.entry.Addr,
		Channel: d.entry.Channel,
		Reg:     d.entry.Reg,
		RegLen:  d.entry.RegLen,
		Scale:   d.entry.Scale,
	}
}

func (d *Device) ReadSensor(ctx context.Context) (float32, error) {
	if !d.IsSensor() || d.reader == nil {
		return float32(math.NaN()), fmt.Errorf("%s is not a sensor: %w", d.entry.Name, halnode.ErrNotFound)
	}
	return d.reader.Read(ctx, d.Ref())
}

func (d *Device) LastValue() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.value
}

type Registry struct {
	mx      sync.RWMutex
	reader  halnode.SensorReader
	devices []*Device
}

// Load reads a registry file. Sensor devices resolve their readings through
// reader.
func Load(path string, reader halnode.SensorReader) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read registry: %w", err)
	}
	return Parse(data, reader)
}

func Parse(data []byte, reader halnode.SensorReader) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("could not parse registry: %w", err)
	}
	return New(reader, f.Devices...)
}

func New(reader halnode.SensorReader, entries ...Entry) (*Registry, error) {
	r := &Registry{reader: reader}
	for _, e := range entries {
		if err := r.Add(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add validates and registers a device. Names are unique.
func (r *Registry) Add(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("device without a name")
	}
	known := e.Kind == KindSSD1306 || e.Kind == KindActuator || slices.Contains(sensorKinds, halnode.SensorKind(e.Kind))
	if !known {
		return fmt.Errorf("device %s: unknown kind %q", e.Name, e.Kind)
	}
	if e.Kind == string(halnode.KindGeneric) && e.Scale == 0 {
		e.Scale = 1
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.find(e.Name) != nil {
		return fmt.Errorf("device %s: duplicate name", e.Name)
	}
	r.devices = append(r.devices, &Device{entry: e, reader: r.reader, value: e.Value})
	return nil
}

func (r *Registry) find(name string) *Device {
	for _, d := range r.devices {
		if d.entry.Name == name {
			return d
		}
	}
	return nil
}

func (r *Registry) FindByName(name string) (halnode.Device, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	d := r.find(name)
	if d == nil {
		return nil, false
	}
	return d, true
}

// Device returns the concrete registry entry for name.
func (r *Registry) Device(name string) (*Device, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	d := r.find(name)
	return d, d != nil
}

// Devices lists all devices in registration order.
func (r *Registry) Devices() []*Device {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return slices.Clone(r.devices)
}

func (r *Registry) Displays() []halnode.DisplayTarget {
	r.mx.RLock()
	defer r.mx.RUnlock()
	var targets []halnode.DisplayTarget
	for _, d := range r.devices {
		if d.entry.Kind != KindSSD1306 {
			continue
		}
		targets = append(targets, halnode.DisplayTarget{
			Name:     d.entry.Name,
			Addr:     d.entry.Addr,
			Template: d.entry.Template,
			Pin:      d.entry.Pin,
		})
	}
	return targets
}

// SetValue records the last value written to an actuator.
func (r *Registry) SetValue(name string, value int) error {
	d, ok := r.Device(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, halnode.ErrNotFound)
	}
	if !d.IsActuator() {
		return fmt.Errorf("%s is not an actuator", name)
	}
	d.mx.Lock()
	d.value = value
	d.mx.Unlock()
	return nil
}

// SetTemplate replaces the template of a display.
func (r *Registry) SetTemplate(name, template string) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	d := r.find(name)
	if d == nil {
		return fmt.Errorf("%s: %w", name, halnode.ErrNotFound)
	}
	if d.entry.Kind != KindSSD1306 {
		return fmt.Errorf("%s is not a display", name)
	}
	d.entry.Template = template
	return nil
}

// Marshal encodes the registry, including current actuator values, in the
// file format accepted by Parse.
func (r *Registry) Marshal() ([]byte, error) {
	r.mx.RLock()
	f := File{Devices: make([]Entry, 0, len(r.devices))}
	for _, d := range r.devices {
		e := d.entry
		e.Value = d.LastValue()
		f.Devices = append(f.Devices, e)
	}
	r.mx.RUnlock()
	return yaml.Marshal(f)
}

// Save writes the registry back to path.
func (r *Registry) Save(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("could not encode registry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write registry: %w", err)
	}
	return nil
}
