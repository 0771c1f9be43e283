package halnode

import "fmt"

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// Failures reported by the bus, decoders and display driver. They are never
// retried by this module.
var (
	ErrBusInactive         = fmt.Errorf("i2c bus is not initialized")
	ErrTransaction         = fmt.Errorf("i2c transaction failed")
	ErrTimeout             = fmt.Errorf("i2c transaction timed out")
	ErrIdentityMismatch    = fmt.Errorf("unexpected chip id")
	ErrCapacityExhausted   = fmt.Errorf("no free slot")
	ErrNotFound            = fmt.Errorf("device not found")
	ErrInvalidChannel      = fmt.Errorf("invalid channel")
	ErrRecoveryUnsupported = fmt.Errorf("bus recovery needs an SCL pin")
)
