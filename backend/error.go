package backend

import (
	"errors"
)

type unrecoverableError struct {
	error
}

func (e unrecoverableError) Error() string {
	if e.error == nil {
		return "unrecoverable error"
	}
	return e.error.Error()
}

func (e unrecoverableError) Unwrap() error {
	return e.error
}

// Unrecoverable marks err so Open retries give up immediately.
func Unrecoverable(err error) error {
	return unrecoverableError{err}
}

// IsRecoverable checks if err was not marked with Unrecoverable.
func IsRecoverable(err error) bool {
	var u unrecoverableError
	return !errors.As(err, &u)
}

var (
	ErrDroppedFrame = errors.New("incoming channel full")
	ErrTxQueueFull  = errors.New("transmit queue full")
	ErrClosed       = errors.New("backend closed")
)
