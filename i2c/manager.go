package i2c

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/snsctx"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

var _ halnode.I2CBus = &Manager{}
var _ i2c.Bus = &Manager{}
var _ drivers.I2C = &Manager{}

const (
	DefaultTimeout = 50 * time.Millisecond
	DefaultSpeed   = 100 * physic.KiloHertz

	// MaxTransfer bounds a single register read.
	MaxTransfer = 32

	// nine SCL cycles clock out a slave stuck in the middle of a byte
	recoveryPulses     = 9
	recoveryHalfPeriod = 5 * time.Microsecond
)

// Opener performs the physical bus setup. It is called on the first Acquire
// and after a recovery of an active bus.
type Opener func(ctx context.Context) (i2c.BusCloser, error)

type Config struct {
	Timeout time.Duration
	Speed   physic.Frequency
	// SCL is driven directly during Recover. When nil the pin is taken from
	// the open bus if it implements i2c.Pins.
	SCL   gpio.PinOut
	Sleep func(time.Duration)
}

type Option func(*Config)

// WithTimeout bounds every transaction. Zero disables the deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

func WithSpeed(speed physic.Frequency) Option {
	return func(c *Config) {
		c.Speed = speed
	}
}

func WithSCL(pin gpio.PinOut) Option {
	return func(c *Config) {
		c.SCL = pin
	}
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		c.Sleep = sleep
	}
}

// Manager owns the process-wide bus handle. The handle is physically open
// iff the reference count is positive; Recover is the only operation that
// rebuilds it outside of Acquire/Release.
type Manager struct {
	mx     sync.Mutex
	open   Opener
	config Config
	bus    i2c.BusCloser
	refs   int
	// inflight is closed when a transaction that missed its deadline finally
	// returns; until then the hardware is still busy.
	inflight chan struct{}
}

func NewManager(open Opener, opts ...Option) *Manager {
	config := Config{
		Timeout: DefaultTimeout,
		Speed:   DefaultSpeed,
		Sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Manager{open: open, config: config}
}

// Acquire takes a reference on the bus, opening it on the 0->1 transition.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs > 0 {
		m.refs++
		return nil
	}
	if err := m.setup(ctx); err != nil {
		return err
	}
	m.refs = 1
	slog.Info("i2c: initialized", "bus", m.bus.String(), "speed", m.config.Speed.String())
	return nil
}

// Release drops a reference and closes the bus on the 1->0 transition.
// Releasing an inactive bus is a no-op.
func (m *Manager) Release(ctx context.Context) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return nil
	}
	m.refs--
	if m.refs > 0 {
		return nil
	}
	err := m.teardown()
	slog.Info("i2c: deinitialized")
	return err
}

func (m *Manager) Active() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.refs > 0
}

// Refs returns the number of outstanding Acquire calls.
func (m *Manager) Refs() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.refs
}

// With runs fn with the bus acquired, taking a temporary reference only when
// the bus was not already active.
func (m *Manager) With(ctx context.Context, fn func() error) error {
	if m.Active() {
		return fn()
	}
	if err := m.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		err := m.Release(ctx)
		if err != nil {
			slog.Warn("i2c: release failed", "err", err)
		}
	}()
	return fn()
}

// Scan probes the 7-bit addresses 1..126 with an empty write and returns at
// most max responders in ascending order.
func (m *Manager) Scan(ctx context.Context, max int) ([]byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return nil, halnode.ErrBusInactive
	}
	var found []byte
	for a := 1; a < 127 && len(found) < max; a++ {
		if err := m.tx(ctx, uint16(a), nil, nil); err == nil {
			found = append(found, byte(a))
		}
	}
	return found, nil
}

// Detect reports whether address acknowledges an empty write.
func (m *Manager) Detect(ctx context.Context, address byte) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return false
	}
	return m.tx(ctx, uint16(address), nil, nil) == nil
}

func (m *Manager) ReadRegister(ctx context.Context, address, reg byte, buffer []byte) error {
	if len(buffer) == 0 || len(buffer) > MaxTransfer {
		return fmt.Errorf("invalid read length %d (1..%d)", len(buffer), MaxTransfer)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return halnode.ErrBusInactive
	}
	return m.tx(ctx, uint16(address), []byte{reg}, buffer)
}

func (m *Manager) WriteRegister(ctx context.Context, address, reg byte, data []byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return halnode.ErrBusInactive
	}
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return m.tx(ctx, uint16(address), w, nil)
}

func (m *Manager) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return halnode.ErrBusInactive
	}
	return m.tx(ctx, uint16(address), nil, buffer)
}

func (m *Manager) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return halnode.ErrBusInactive
	}
	return m.tx(ctx, uint16(address), buffer, nil)
}

// Tx lets periph and TinyGo drivers share the managed bus.
func (m *Manager) Tx(addr uint16, w, r []byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.refs == 0 {
		return halnode.ErrBusInactive
	}
	return m.tx(context.Background(), addr, w, r)
}

// SetSpeed changes the clock used now and on every later setup.
func (m *Manager) SetSpeed(f physic.Frequency) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.config.Speed = f
	if m.bus == nil {
		return nil
	}
	return m.bus.SetSpeed(f)
}

func (m *Manager) String() string {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.bus == nil {
		return "i2c.Manager{inactive}"
	}
	return fmt.Sprintf("i2c.Manager{%s, refs=%d}", m.bus, m.refs)
}

// Recover clocks SCL nine times to release a slave holding SDA low, then
// reopens the bus if it was active. It must not run concurrently with a
// transaction issued by another goroutine.
func (m *Manager) Recover(ctx context.Context) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	scl := m.config.SCL
	if scl == nil && m.bus != nil {
		if pins, ok := m.bus.(i2c.Pins); ok {
			scl = pins.SCL()
		}
	}
	if scl == nil || scl == gpio.INVALID {
		return halnode.ErrRecoveryUnsupported
	}
	active := m.refs > 0
	if m.bus != nil {
		if err := m.teardown(); err != nil {
			slog.Warn("i2c: close before recovery failed", "err", err)
		}
	}
	pulseErr := m.pulse(scl)
	if pulseErr == nil {
		slog.Info("i2c: bus recovery attempted", "pin", scl.String())
	}
	if !active {
		return pulseErr
	}
	if err := m.setup(ctx); err != nil {
		// the handle is gone, keep the invariant refs > 0 <=> open
		m.refs = 0
		if pulseErr != nil {
			return pulseErr
		}
		return fmt.Errorf("could not reinitialize bus after recovery: %w", err)
	}
	return pulseErr
}

func (m *Manager) pulse(scl gpio.PinOut) error {
	for range recoveryPulses {
		if err := scl.Out(gpio.Low); err != nil {
			return fmt.Errorf("could not drive SCL low: %w", err)
		}
		m.config.Sleep(recoveryHalfPeriod)
		if err := scl.Out(gpio.High); err != nil {
			return fmt.Errorf("could not drive SCL high: %w", err)
		}
		m.config.Sleep(recoveryHalfPeriod)
	}
	return nil
}

func (m *Manager) setup(ctx context.Context) error {
	bus, err := m.open(ctx)
	if err != nil {
		return fmt.Errorf("could not open i2c bus: %w", err)
	}
	if m.config.Speed > 0 {
		if err := bus.SetSpeed(m.config.Speed); err != nil {
			_ = bus.Close()
			return fmt.Errorf("could not set bus speed: %w", err)
		}
	}
	m.bus = bus
	m.inflight = nil
	return nil
}

func (m *Manager) teardown() error {
	bus := m.bus
	m.bus = nil
	m.inflight = nil
	if bus == nil {
		return nil
	}
	if err := bus.Close(); err != nil {
		return fmt.Errorf("could not close i2c bus: %w", err)
	}
	return nil
}

// tx runs one transaction on the open bus. Callers hold m.mx.
func (m *Manager) tx(ctx context.Context, addr uint16, w, r []byte) error {
	if m.bus == nil {
		return halnode.ErrBusInactive
	}
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		slog.Debug("i2c tx", "addr", fmt.Sprintf("%#02x", addr), "w", hex.EncodeToString(w), "r", len(r))
	}
	var err error
	if m.config.Timeout <= 0 {
		err = m.bus.Tx(addr, w, r)
	} else {
		err = m.txDeadline(ctx, addr, w, r)
	}
	if err != nil {
		return fmt.Errorf("%w at %#02x: %w", halnode.ErrTransaction, addr, err)
	}
	if verbose && len(r) > 0 {
		slog.Debug("i2c rx", "addr", fmt.Sprintf("%#02x", addr), "r", hex.EncodeToString(r))
	}
	return nil
}

func (m *Manager) txDeadline(ctx context.Context, addr uint16, w, r []byte) error {
	timer := time.NewTimer(m.config.Timeout)
	defer timer.Stop()
	if m.inflight != nil {
		select {
		case <-m.inflight:
			m.inflight = nil
		case <-timer.C:
			return fmt.Errorf("%w: bus still held by an earlier transaction", halnode.ErrTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// the physical transfer works on private buffers so that a late return
	// cannot touch memory the caller already reused
	wbuf := append([]byte(nil), w...)
	var rbuf []byte
	if len(r) > 0 {
		rbuf = make([]byte, len(r))
	}
	done := make(chan error, 1)
	finished := make(chan struct{})
	bus := m.bus
	go func() {
		done <- bus.Tx(addr, wbuf, rbuf)
		close(finished)
	}()
	select {
	case err := <-done:
		if err == nil {
			copy(r, rbuf)
		}
		return err
	case <-timer.C:
		m.inflight = finished
		return halnode.ErrTimeout
	case <-ctx.Done():
		m.inflight = finished
		return ctx.Err()
	}
}
