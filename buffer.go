package mocan

import (
	"fmt"

	"github.com/roffe/mocan/pkg/frame"
	"github.com/roffe/mocan/pkg/slot"
	log "github.com/sirupsen/logrus"
)

// RxHandler is implemented by the protocol objects (NMT, SDO, PDO...) that
// consume received frames.
type RxHandler interface {
	Handle(f frame.Frame)
}

// RxHandlerFunc adapts a function to RxHandler.
type RxHandlerFunc func(f frame.Frame)

func (fn RxHandlerFunc) Handle(f frame.Frame) { fn(f) }

// RxBuffer is one receive registration.
type RxBuffer struct {
	ID      uint32
	Mask    uint32
	Handler RxHandler

	software bool
	slot     int
}

// Slot returns the receive object backing the entry, or -1.
func (rx *RxBuffer) Slot() int { return rx.slot }

func (rx *RxBuffer) matches(id uint32) bool {
	return rx.Handler != nil && (id^rx.ID)&rx.Mask == 0
}

// TxBuffer is one transmit entry. The stack fills Data and calls Send.
type TxBuffer struct {
	ID   uint32
	DLC  uint8
	Data [8]byte
	// Full is set while the frame has not been handed to hardware.
	Full bool
	// Sync frames are withdrawn by ClearPendingSyncPDOs.
	Sync bool

	slot int
}

// Slot returns the transmit object the entry was last bound to, or -1.
func (tx *TxBuffer) Slot() int { return tx.slot }

// Frame returns the entry as a frame.
func (tx *TxBuffer) Frame() frame.Frame {
	return frame.Frame{ID: tx.ID, DLC: tx.DLC, Data: tx.Data}
}

// RxOpt tunes a single receive registration.
type RxOpt func(rx *RxBuffer)

// WithoutHardware registers a software-only entry. It takes part in matching
// but never claims or reprograms a receive object.
func WithoutHardware() RxOpt {
	return func(rx *RxBuffer) {
		rx.software = true
	}
}

// RxBufferInit registers or replaces receive entry index. Identifier 0 is a
// real identifier (NMT) and gets an object like any other.
//
// Object selection reuses a receive object that already carries id, else
// claims the first receive object no other entry owns. When the pool is used
// up the entry is still registered and ErrRxSlotsExhausted is returned.
func (m *Module) RxBufferInit(index int, id, mask uint32, h RxHandler, opts ...RxOpt) error {
	if h == nil {
		m.log.Warn("rx buffer init without handler")
		return fmt.Errorf("%w: nil handler", ErrIllegalArgument)
	}
	if id > frame.MaxStdID {
		return fmt.Errorf("%w: identifier 0x%X", ErrIllegalArgument, id)
	}

	m.csMu.Lock()
	defer m.csMu.Unlock()
	if m.state == StateUninitialized {
		return fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}
	if index < 0 || index >= len(m.rx) {
		return fmt.Errorf("%w: rx index %d", ErrIllegalArgument, index)
	}

	if err := m.release(index); err != nil {
		return err
	}
	rx := &m.rx[index]
	*rx = RxBuffer{
		ID:      id,
		Mask:    mask & frame.MaxStdID,
		Handler: h,
		slot:    -1,
	}
	for _, opt := range opts {
		opt(rx)
	}
	if rx.software {
		return nil
	}

	i := m.dir.FindInbound(func(s slot.Slot) bool {
		return s.ID == id && (m.rxOwner[s.Index] < 0 || m.rx[m.rxOwner[s.Index]].ID == id)
	})
	if i < 0 {
		i = m.dir.FindInbound(func(s slot.Slot) bool {
			return m.rxOwner[s.Index] < 0
		})
	}
	if i < 0 {
		m.log.WithFields(log.Fields{"index": index, "id": fmt.Sprintf("0x%03X", id)}).Warn("no free receive object")
		return fmt.Errorf("%w: rx index %d id 0x%03X", ErrRxSlotsExhausted, index, id)
	}
	if m.rxOwner[i] < 0 {
		m.rxOwner[i] = index
	}
	rx.slot = i
	if err := m.program(i); err != nil {
		return err
	}
	m.log.WithFields(log.Fields{
		"index": index,
		"id":    fmt.Sprintf("0x%03X", id),
		"mask":  fmt.Sprintf("0x%03X", rx.Mask),
		"lmo":   i + 1,
	}).Debug("rx buffer bound")
	return nil
}

// release unbinds entry index from its receive object. Another entry sharing
// the object takes over ownership, else the object becomes free. Must be
// called with csMu held.
func (m *Module) release(index int) error {
	i := m.rx[index].slot
	if i < 0 {
		return nil
	}
	m.rx[index].slot = -1
	if m.rxOwner[i] != index {
		return m.program(i)
	}
	m.rxOwner[i] = -1
	for k := range m.rx {
		if m.rx[k].slot == i {
			m.rxOwner[i] = k
			return m.program(i)
		}
	}
	return nil
}

// program sets object i to the owner's identifier and the mask bits every
// sharing entry agrees on, so the object accepts the union of what they
// match. Must be called with csMu held.
func (m *Module) program(i int) error {
	owner := m.rxOwner[i]
	if owner < 0 {
		return nil
	}
	mask := uint32(frame.MaxStdID)
	for k := range m.rx {
		if m.rx[k].slot == i {
			mask &= m.rx[k].Mask
		}
	}
	if err := m.dir.Rebind(i, m.rx[owner].ID, mask); err != nil {
		return fmt.Errorf("rebind LMO_%02d: %w", i+1, err)
	}
	return nil
}

// TxBufferInit prepares transmit entry index and returns it. The index-th
// transmit object is remembered as the first candidate for Send.
func (m *Module) TxBufferInit(index int, id uint32, dlc uint8, sync bool) (*TxBuffer, error) {
	if id > frame.MaxStdID || dlc > frame.MaxDLC {
		return nil, fmt.Errorf("%w: identifier 0x%X length %d", ErrIllegalArgument, id, dlc)
	}
	m.csMu.Lock()
	defer m.csMu.Unlock()
	if m.state == StateUninitialized {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}
	if index < 0 || index >= len(m.tx) {
		return nil, fmt.Errorf("%w: tx index %d", ErrIllegalArgument, index)
	}
	tx := &m.tx[index]
	if tx.Full && m.txCount > 0 {
		m.txCount--
	}
	*tx = TxBuffer{
		ID:   id,
		DLC:  dlc,
		Sync: sync,
		slot: -1,
	}
	if out := m.dir.Outbound(); index < len(out) {
		tx.slot = out[index]
	}
	return tx, nil
}
