// Package sim is an in-memory message-object pool. It implements
// slot.Peripheral without hardware and is the base of every bus backend.
package sim

import (
	"fmt"
	"sync"

	"github.com/roffe/mocan/pkg/frame"
	"github.com/roffe/mocan/pkg/slot"
)

type object struct {
	dir      slot.Direction
	id       uint32
	mask     uint32
	status   slot.Status
	rxID     uint32
	dlc      uint8
	data     [8]byte
	programs int
}

// Pool holds a fixed set of message objects.
type Pool struct {
	mu      sync.Mutex
	objs    []object
	sent    []frame.Frame
	txErr   error
	onTx    func(i int, f frame.Frame) error
	autoAck bool
	noLog   bool
}

// New builds a pool from a board layout.
func New(layout []slot.Config) *Pool {
	p := &Pool{objs: make([]object, len(layout))}
	for i, c := range layout {
		mask := c.Mask
		if c.Direction == slot.Outbound {
			mask = 0x7FF
		}
		p.objs[i] = object{dir: c.Direction, id: c.ID & 0x7FF, mask: mask & 0x7FF}
	}
	return p
}

// OnTransmit installs a hook that receives every triggered frame. A non-nil
// error rejects the transmission.
func (p *Pool) OnTransmit(fn func(i int, f frame.Frame) error) {
	p.mu.Lock()
	p.onTx = fn
	p.mu.Unlock()
}

// AutoComplete makes Transmit finish immediately, as if the frame left the
// object before the trigger returned. TxDone is still raised.
func (p *Pool) AutoComplete(enabled bool) {
	p.mu.Lock()
	p.autoAck = enabled
	p.mu.Unlock()
}

// KeepSent controls whether transmitted frames are kept for Sent. Long
// running pools that forward frames elsewhere turn it off.
func (p *Pool) KeepSent(keep bool) {
	p.mu.Lock()
	p.noLog = !keep
	p.mu.Unlock()
}

// FailTransmit makes every following Transmit return err until called with nil.
func (p *Pool) FailTransmit(err error) {
	p.mu.Lock()
	p.txErr = err
	p.mu.Unlock()
}

func (p *Pool) Count() int { return len(p.objs) }

func (p *Pool) Direction(i int) slot.Direction {
	if i < 0 || i >= len(p.objs) {
		return slot.Unused
	}
	return p.objs[i].dir
}

func (p *Pool) Identifier(i int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) {
		return 0
	}
	return p.objs[i].id
}

func (p *Pool) Mask(i int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) {
		return 0
	}
	return p.objs[i].mask
}

func (p *Pool) Program(i int, id, mask uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) {
		return fmt.Errorf("%w: %d", slot.ErrIndex, i)
	}
	o := &p.objs[i]
	o.id = id & 0x7FF
	o.mask = mask & 0x7FF
	o.programs++
	// re-arm
	switch o.dir {
	case slot.Inbound:
		o.status &^= slot.RxPending | slot.NewData | slot.MsgLost
	case slot.Outbound:
		o.status &^= slot.TxDone
	}
	return nil
}

// Programs returns how many times object i was programmed.
func (p *Pool) Programs(i int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.objs[i].programs
}

func (p *Pool) Status(i int) slot.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) {
		return 0
	}
	return p.objs[i].status
}

func (p *Pool) ResetStatus(i int, s slot.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) {
		return
	}
	p.objs[i].status &^= s
}

// SetStatus raises status bits, for driving the pool from tests.
func (p *Pool) SetStatus(i int, s slot.Status) {
	p.mu.Lock()
	p.objs[i].status |= s
	p.mu.Unlock()
}

func (p *Pool) Load(i int, dlc uint8, data [8]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) {
		return fmt.Errorf("%w: %d", slot.ErrIndex, i)
	}
	o := &p.objs[i]
	if o.dir != slot.Outbound {
		return fmt.Errorf("%w: load on %s object %d", slot.ErrDirection, o.dir, i)
	}
	if o.status&slot.TxPending != 0 {
		return fmt.Errorf("%w: %d", slot.ErrBusy, i)
	}
	o.dlc = dlc
	o.data = data
	return nil
}

func (p *Pool) Transmit(i int) error {
	p.mu.Lock()
	if i < 0 || i >= len(p.objs) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", slot.ErrIndex, i)
	}
	o := &p.objs[i]
	if o.dir != slot.Outbound {
		p.mu.Unlock()
		return fmt.Errorf("%w: transmit on %s object %d", slot.ErrDirection, o.dir, i)
	}
	if o.status&slot.TxPending != 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", slot.ErrBusy, i)
	}
	if p.txErr != nil {
		err := p.txErr
		p.mu.Unlock()
		return err
	}
	f := frame.Frame{ID: o.id, DLC: o.dlc, Data: o.data}
	o.status |= slot.TxPending
	hook := p.onTx
	p.mu.Unlock()

	if hook != nil {
		if err := hook(i, f); err != nil {
			p.mu.Lock()
			o.status &^= slot.TxPending
			p.mu.Unlock()
			return err
		}
	}

	p.mu.Lock()
	if !p.noLog {
		p.sent = append(p.sent, f)
	}
	if p.autoAck {
		o.status &^= slot.TxPending
		o.status |= slot.TxDone
	}
	p.mu.Unlock()
	return nil
}

// Complete finishes the pending transmission of object i and raises TxDone.
func (p *Pool) Complete(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) || p.objs[i].status&slot.TxPending == 0 {
		return false
	}
	p.objs[i].status &^= slot.TxPending
	p.objs[i].status |= slot.TxDone
	return true
}

func (p *Pool) Receive(i int) (uint32, uint8, [8]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.objs) {
		return 0, 0, [8]byte{}, fmt.Errorf("%w: %d", slot.ErrIndex, i)
	}
	o := &p.objs[i]
	if o.dir != slot.Inbound {
		return 0, 0, [8]byte{}, fmt.Errorf("%w: receive on %s object %d", slot.ErrDirection, o.dir, i)
	}
	return o.rxID, o.dlc, o.data, nil
}

// Latch stores f in the first receive object whose identifier and mask accept
// it and raises RxPending and NewData. It returns the object index, or false
// when no object accepts the frame. Receive reports the identifier that
// arrived, which differs from the programmed one on masked objects.
func (p *Pool) Latch(f frame.Frame) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.objs {
		o := &p.objs[i]
		if o.dir != slot.Inbound {
			continue
		}
		if (f.ID^o.id)&o.mask != 0 {
			continue
		}
		if o.status&slot.NewData != 0 {
			o.status |= slot.MsgLost
		}
		o.rxID = f.ID & 0x7FF
		o.dlc = f.DLC
		o.data = f.Data
		o.status |= slot.RxPending | slot.NewData
		return i, true
	}
	return -1, false
}

// Poke writes raw contents into a receive object, bypassing acceptance. It is
// meant for exercising validation of corrupted objects.
func (p *Pool) Poke(i int, id uint32, dlc uint8, data [8]byte) {
	p.mu.Lock()
	o := &p.objs[i]
	o.rxID, o.dlc, o.data = id, dlc, data
	o.status |= slot.RxPending | slot.NewData
	p.mu.Unlock()
}

// Sent returns a copy of every frame that left the pool.
func (p *Pool) Sent() []frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]frame.Frame, len(p.sent))
	copy(out, p.sent)
	return out
}
