// Package adapter drives an MCP2221 USB to I2C bridge as a periph bus so the
// sensor decoders can run on a development host.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"github.com/mklimuk/halnode"
	halnodei2c "github.com/mklimuk/halnode/i2c"
	"github.com/mklimuk/halnode/snsctx"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var _ i2c.BusCloser = &MCP2221{}

const VendorID = 0x04D8
const ProductID = 0x00DD

const (
	reportSize = 64
	// MaxTransfer is the payload of a single HID report.
	MaxTransfer = reportSize - 4

	cmdStatus       = 0x10
	cmdWrite        = 0x90
	cmdRead         = 0x91
	cmdReadRepeated = 0x93
	cmdWriteNoStop  = 0x94
	cmdGetData      = 0x40

	statusCancel   = 0x10
	statusSetSpeed = 0x20
	speedAccepted  = 0x20
	engineBusy     = 0x01
	getDataFailed  = 0x41
	// the engine reports 127 bytes when the read did not complete
	dataSizeInvalid = 127
	ackStatusNACK   = 0x40

	statusSpeedByte  = 3
	statusDivByte    = 14
	statusAckByte    = 20
	getDataStateByte = 1
	getDataSizeByte  = 3

	// the divider is engineClock/speed - 3
	engineClock     = 12_000_000
	speedDivOffset  = 3
	defaultRespWait = 50 * time.Millisecond
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrNACK = errors.New("address not acknowledged")

// Link is one open HID endpoint. *hid.Device satisfies it.
type Link interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type MCP2221 struct {
	mx           sync.Mutex
	link         Link
	name         string
	verbose      bool
	request      []byte
	response     []byte
	responseWait time.Duration
	sleep        func(time.Duration)
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
	AddressNACK            bool   `yaml:"address_nack"`
}

type Option func(*MCP2221)

// WithResponseWait sets the delay between a request and reading its reply.
func WithResponseWait(wait time.Duration) Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(d *MCP2221) {
		d.sleep = sleep
	}
}

// WithVerbose dumps every report at debug level.
func WithVerbose(verbose bool) Option {
	return func(d *MCP2221) {
		d.verbose = verbose
	}
}

func NewMCP2221(link Link, name string, opts ...Option) *MCP2221 {
	d := &MCP2221{
		link:         link,
		name:         name,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: defaultRespWait,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Devices lists the attached MCP2221 bridges.
func Devices() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

// Open opens the bridge with the given enumeration index.
func Open(id int, opts ...Option) (*MCP2221, error) {
	devs := Devices()
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if id < 0 || id >= len(devs) {
		return nil, fmt.Errorf("no device with id %d (%d attached)", id, len(devs))
	}
	dev, err := devs[id].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return NewMCP2221(dev, fmt.Sprintf("mcp2221(%s)", devs[id].Path), opts...), nil
}

// Opener adapts Open to the bus manager. Transaction dumps follow the
// verbose flag of the acquiring context.
func Opener(id int, opts ...Option) halnodei2c.Opener {
	return func(ctx context.Context) (i2c.BusCloser, error) {
		opts := append([]Option{WithVerbose(snsctx.IsVerbose(ctx))}, opts...)
		return Open(id, opts...)
	}
}

func (d *MCP2221) String() string { return d.name }

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.link.Close(); err != nil {
		return fmt.Errorf("could not close adapter: %w", err)
	}
	return nil
}

// Tx runs a write, a read or a write followed by a repeated start read. An
// empty transaction probes the address with a zero length write.
func (d *MCP2221) Tx(addr uint16, w, r []byte) error {
	if len(w) > MaxTransfer || len(r) > MaxTransfer {
		return fmt.Errorf("transfer exceeds %d bytes", MaxTransfer)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if len(r) == 0 {
		return d.write(cmdWrite, addr, w)
	}
	cmd := byte(cmdRead)
	if len(w) > 0 {
		if err := d.write(cmdWriteNoStop, addr, w); err != nil {
			return err
		}
		cmd = cmdReadRepeated
	}
	return d.read(cmd, addr, r)
}

// SetSpeed programs the engine clock divider.
func (d *MCP2221) SetSpeed(f physic.Frequency) error {
	hz := int64(f / physic.Hertz)
	if hz <= 0 {
		return fmt.Errorf("invalid bus speed %s", f)
	}
	div := engineClock/hz - speedDivOffset
	if div < 0 || div > 0xFF {
		return fmt.Errorf("bus speed %s out of range", f)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = statusSetSpeed
	d.request[4] = byte(div)
	if err := d.send(); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[statusSpeedByte] != speedAccepted {
		return fmt.Errorf("speed %s rejected: %w", f, halnode.ErrBusBusy)
	}
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(0)
}

// ReleaseBus cancels the current transfer and frees the bus.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(statusCancel)
}

func (d *MCP2221) status(cancel byte) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = cancel
	if err := d.send(); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		20: I2C ACK status, bit 6 set on an address NACK
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[statusDivByte]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
		AddressNACK:          buffer[statusAckByte]&ackStatusNACK != 0,
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) write(cmd byte, addr uint16, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = byte(addr << 1)
	copy(d.request[4:], buffer)
	if err := d.send(); err != nil {
		return fmt.Errorf("write to %#02x failed: %w", addr, err)
	}
	if d.response[1] == engineBusy {
		slog.Debug("adapter busy")
		return halnode.ErrBusBusy
	}
	status, err := d.status(0)
	if err != nil {
		return err
	}
	if status.AddressNACK {
		return fmt.Errorf("%#02x: %w", addr, ErrNACK)
	}
	return nil
}

func (d *MCP2221) read(cmd byte, addr uint16, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = byte(addr<<1) + 1
	if err := d.send(); err != nil {
		return fmt.Errorf("bus read from %#02x failed: %w", addr, err)
	}
	if d.response[1] == engineBusy {
		return halnode.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetData
	if err := d.send(); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[getDataStateByte] == getDataFailed {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine: %w", ErrNACK)
	}
	if size := d.response[getDataSizeByte]; size == dataSizeInvalid || int(size) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), size)
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) send() error {
	if d.verbose {
		slog.Debug("sending message to adapter", "report", hex.EncodeToString(d.request))
	}
	n, err := d.link.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		d.sleep(d.responseWait)
	}
	n, err = d.link.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if d.verbose {
		slog.Debug("read message from adapter", "report", hex.EncodeToString(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
