package halnode

import (
	"context"
)

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
}

// RegisterReader writes the register pointer and reads len(buffer) bytes back
// using a repeated start.
type RegisterReader interface {
	ReadRegister(ctx context.Context, address, reg byte, buffer []byte) error
}

// RegisterWriter writes the register pointer followed by data in a single
// transaction.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, address, reg byte, data []byte) error
}

// I2CBus is the view of the shared bus that sensor decoders and the display
// driver borrow. Implementations fail fast with ErrBusInactive when the bus
// has not been acquired.
type I2CBus interface {
	AddressableReader
	AddressableWriter
	RegisterReader
	RegisterWriter
	Detect(ctx context.Context, address byte) bool
	Active() bool
}
