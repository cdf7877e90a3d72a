package mocan

import (
	"github.com/roffe/mocan/pkg/frame"
	"github.com/roffe/mocan/pkg/slot"
)

// OnReceiveEvent handles the receive interrupt of object i. It runs in
// interrupt context: it never blocks and only logs through the diagnostics
// ring. The matched handler is called with no module lock other than the
// interrupt lock held, so it may call Send.
func (m *Module) OnReceiveEvent(i int) {
	m.isrMu.Lock()
	defer m.isrMu.Unlock()
	m.counters.interrupts.Add(1)

	if i < 0 || i >= m.dir.Count() {
		m.counters.dropped.Add(1)
		m.diag.Printf("RX IRQ: index %d out of range", i)
		return
	}
	if d := m.dir.Direction(i); d != slot.Inbound {
		m.counters.dropped.Add(1)
		m.diag.Printf("RX IRQ: LMO_%02d is %s", i+1, d)
		return
	}
	st := m.p.Status(i)
	if st&(slot.RxPending|slot.NewData) == 0 {
		m.counters.spurious.Add(1)
		return
	}
	// re-arm before reading so a frame arriving now raises a new event
	m.p.ResetStatus(i, slot.RxPending|slot.NewData|slot.MsgLost)
	if st&slot.MsgLost != 0 {
		m.csMu.Lock()
		m.errStatus |= ErrorRxOverflow
		m.csMu.Unlock()
		m.diag.Printf("RX IRQ: LMO_%02d overrun", i+1)
	}

	id, dlc, data, err := m.p.Receive(i)
	if err != nil {
		m.counters.invalid.Add(1)
		m.diag.Printf("RX IRQ: LMO_%02d read: %v", i+1, err)
		return
	}
	f := frame.Frame{ID: id, DLC: dlc, Data: data}
	if err := f.Validate(); err != nil {
		m.counters.invalid.Add(1)
		m.diag.Printf("RX IRQ: LMO_%02d dropped: %v", i+1, err)
		return
	}

	h := m.match(id)
	if h == nil {
		m.counters.unmatched.Add(1)
		return
	}
	m.counters.rxFrames.Add(1)
	m.diag.Printf("RX IRQ: LMO_%02d id=0x%03X dlc=%d", i+1, id, dlc)
	h.Handle(f)
}

// match returns the handler of the first registration accepting id.
func (m *Module) match(id uint32) RxHandler {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	for k := range m.rx {
		if m.rx[k].matches(id) {
			return m.rx[k].Handler
		}
	}
	return nil
}

// OnTransmitCompleteEvent handles the transmit interrupt of object i.
func (m *Module) OnTransmitCompleteEvent(i int) {
	m.isrMu.Lock()
	defer m.isrMu.Unlock()
	m.counters.interrupts.Add(1)

	if i < 0 || i >= m.dir.Count() {
		m.counters.dropped.Add(1)
		m.diag.Printf("TX IRQ: index %d out of range", i)
		return
	}
	if d := m.dir.Direction(i); d != slot.Outbound {
		m.counters.dropped.Add(1)
		m.diag.Printf("TX IRQ: LMO_%02d is %s", i+1, d)
		return
	}
	if m.p.Status(i)&slot.TxDone == 0 {
		m.counters.spurious.Add(1)
		return
	}
	m.p.ResetStatus(i, slot.TxDone)

	m.csMu.Lock()
	if m.txCount > 0 {
		m.txCount--
	}
	m.firstTx = false
	m.csMu.Unlock()

	m.counters.txDone.Add(1)
	m.diag.Printf("TX IRQ: LMO_%02d (idx=%d)", i+1, i)
}

// Interrupt scans every object and dispatches pending receive and transmit
// events. It serves peripherals that share one interrupt line or have none.
func (m *Module) Interrupt() {
	for i := 0; i < m.dir.Count(); i++ {
		st := m.p.Status(i)
		switch m.dir.Direction(i) {
		case slot.Inbound:
			if st&(slot.RxPending|slot.NewData) != 0 {
				m.OnReceiveEvent(i)
			}
		case slot.Outbound:
			if st&slot.TxDone != 0 {
				m.OnTransmitCompleteEvent(i)
			}
		}
	}
}
