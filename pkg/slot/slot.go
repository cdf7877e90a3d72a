// Package slot models the hardware message-object pool beneath the module.
package slot

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is fixed by board configuration and never changes at runtime.
type Direction int

const (
	Unused Direction = iota
	Inbound
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "rx"
	case Outbound:
		return "tx"
	default:
		return "unused"
	}
}

// ParseDirection accepts the names produced by String.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "rx", "inbound":
		return Inbound, nil
	case "tx", "outbound":
		return Outbound, nil
	case "", "unused":
		return Unused, nil
	}
	return Unused, fmt.Errorf("unknown slot direction %q", s)
}

// Status mirrors the per-object status bits of the peripheral.
type Status uint16

const (
	// RxPending is the receive event flag.
	RxPending Status = 1 << iota
	// NewData is set while a received frame sits in the object.
	NewData
	// TxPending is set from the transmit trigger until the frame left the object.
	TxPending
	// TxDone is the transmit complete event flag.
	TxDone
	// MsgLost is set when a frame overwrote unread data.
	MsgLost
)

func (s Status) String() string {
	var parts []string
	for _, b := range []struct {
		bit  Status
		name string
	}{
		{RxPending, "RXPND"},
		{NewData, "NEWDAT"},
		{TxPending, "TXPND"},
		{TxDone, "TXDONE"},
		{MsgLost, "MSGLST"},
	} {
		if s&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

var (
	ErrIndex     = errors.New("slot index out of range")
	ErrDirection = errors.New("wrong slot direction")
	ErrBusy      = errors.New("slot busy")
)

// Peripheral is the vendor message-object layer.
type Peripheral interface {
	Count() int
	Direction(i int) Direction
	Identifier(i int) uint32
	Mask(i int) uint32
	// Program sets identifier and mask and re-arms the object for its
	// direction in one step.
	Program(i int, id, mask uint32) error
	Status(i int) Status
	ResetStatus(i int, s Status)
	Load(i int, dlc uint8, data [8]byte) error
	Transmit(i int) error
	Receive(i int) (id uint32, dlc uint8, data [8]byte, err error)
}

// EventHandler receives the per-object interrupts of a Peripheral.
type EventHandler interface {
	OnReceiveEvent(i int)
	OnTransmitCompleteEvent(i int)
}

// Config describes one object of a board layout.
type Config struct {
	Direction Direction
	ID        uint32
	Mask      uint32
}

// Slot is a read-only view of one object.
type Slot struct {
	Index     int
	Direction Direction
	ID        uint32
	Mask      uint32
	Status    Status
}

func (s Slot) String() string {
	return fmt.Sprintf("LMO_%02d %-6s id=0x%03X mask=0x%03X %s", s.Index+1, s.Direction, s.ID, s.Mask, s.Status)
}
