// Package regmap accesses the ADIN2111 register file over a byte-oriented command bus.
//
// The Transport interface defines the lower layer bus transfer.
// It should be implemented for different bus technologies; this module offers
// a spidev implementation for production and an emulated device for tests.
//
// The Client type is the service exposed to the switch engine.
// It encodes register and FIFO transactions, range-checks addresses, and
// keeps a shadow of successfully written registers.
package regmap

import (
	"errors"
	"fmt"

	"github.com/spe-net/adin2111/core/logging"
)

var logger = logging.New("regmap")

// Transport is a blocking exchange of transaction bytes with the device.
//
// Transact sends tx and returns the bytes clocked back during the same
// transfer. The returned slice must have the same length as tx. Transact may
// block and may fail; it is invoked only from pipeline worker contexts.
type Transport interface {
	Transact(tx []byte) (rx []byte, e error)
}

// Error conditions.
var (
	// ErrInvalidRegister indicates an address outside the declared register space.
	ErrInvalidRegister = errors.New("invalid register address")

	// ErrShortResponse indicates the Transport returned fewer bytes than clocked out.
	ErrShortResponse = errors.New("short transport response")
)

// TransportError wraps a bus transfer failure.
// Pipelines classify these as recoverable: count and drop the current unit of work.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError determines whether an error originates from the Transport.
func IsTransportError(e error) bool {
	var te *TransportError
	return errors.As(e, &te)
}
