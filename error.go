package mocan

import (
	"errors"
)

var (
	ErrIllegalArgument  = errors.New("illegal argument")
	ErrIllegalBaudrate  = errors.New("illegal baudrate")
	ErrInvalidState     = errors.New("module not in a valid state for this operation")
	ErrTxOverflow       = errors.New("no free transmit object, buffer full")
	ErrTxBusy           = errors.New("transmit rejected by hardware, try again")
	ErrRxSlotsExhausted = errors.New("no free receive object")
	ErrNilPeripheral    = errors.New("peripheral is nil")
)

// IsInvalidArgument reports a caller error. These are never retried.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrIllegalArgument) || errors.Is(err, ErrIllegalBaudrate)
}

// IsResourceExhausted reports a condition the caller may retry later.
// A hardware rejected transmit is treated the same as a missing object.
func IsResourceExhausted(err error) bool {
	return errors.Is(err, ErrTxOverflow) || errors.Is(err, ErrTxBusy) || errors.Is(err, ErrRxSlotsExhausted)
}
