package mocan

import (
	"fmt"

	"github.com/roffe/mocan/pkg/frame"
	"github.com/roffe/mocan/pkg/slot"
)

// Send hands tx to a free transmit object. It returns nil once the hardware
// accepted the frame, ErrTxOverflow when every transmit object is busy and
// ErrTxBusy when the hardware refused the trigger. In both failure cases
// tx.Full stays set so the stack can retry; Send itself never retries.
func (m *Module) Send(tx *TxBuffer) error {
	if tx == nil {
		return fmt.Errorf("%w: nil tx buffer", ErrIllegalArgument)
	}
	if tx.ID > frame.MaxStdID || tx.DLC > frame.MaxDLC {
		return fmt.Errorf("%w: identifier 0x%X length %d", ErrIllegalArgument, tx.ID, tx.DLC)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.send(tx)
}

// SendData replaces the payload of tx and sends it. The payload is written
// under the transmit lock, so it is safe against a concurrent retry of the
// same entry from Process.
func (m *Module) SendData(tx *TxBuffer, data [8]byte) error {
	if tx == nil {
		return fmt.Errorf("%w: nil tx buffer", ErrIllegalArgument)
	}
	if tx.ID > frame.MaxStdID || tx.DLC > frame.MaxDLC {
		return fmt.Errorf("%w: identifier 0x%X length %d", ErrIllegalArgument, tx.ID, tx.DLC)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	tx.Data = data
	return m.send(tx)
}

// send must be called with txMu held.
func (m *Module) send(tx *TxBuffer) error {
	i := m.pickSlot(tx)
	if i < 0 {
		m.csMu.Lock()
		m.markFull(tx)
		m.errStatus |= ErrorTxOverflow
		m.csMu.Unlock()
		m.counters.txOverflows.Add(1)
		return fmt.Errorf("%w: id 0x%03X", ErrTxOverflow, tx.ID)
	}

	err := m.dir.Rebind(i, tx.ID, frame.MaxStdID)
	if err == nil {
		err = m.p.Load(i, tx.DLC, tx.Data)
	}
	if err == nil {
		err = m.p.Transmit(i)
	}

	m.csMu.Lock()
	if err != nil {
		m.markFull(tx)
		m.csMu.Unlock()
		m.counters.txRejected.Add(1)
		return fmt.Errorf("%w: LMO_%02d: %v", ErrTxBusy, i+1, err)
	}
	if tx.Full {
		tx.Full = false
	} else {
		m.txCount++
	}
	tx.slot = i
	m.csMu.Unlock()
	m.counters.txFrames.Add(1)
	return nil
}

// pickSlot prefers the object tx was last bound to.
func (m *Module) pickSlot(tx *TxBuffer) int {
	if c := tx.slot; c >= 0 && m.dir.Direction(c) == slot.Outbound && m.dir.IsFree(c) {
		return c
	}
	return m.dir.FirstFreeOutbound()
}

// markFull must be called with csMu held.
func (m *Module) markFull(tx *TxBuffer) {
	if !tx.Full {
		tx.Full = true
		m.txCount++
	}
}

// ClearPendingSyncPDOs withdraws every synchronous frame that is still waiting
// for a transmit object. Frames already accepted by hardware are left alone.
// It returns the number of withdrawn frames.
func (m *Module) ClearPendingSyncPDOs() int {
	m.csMu.Lock()
	cleared := 0
	for i := range m.tx {
		tx := &m.tx[i]
		if tx.Full && tx.Sync {
			tx.Full = false
			if m.txCount > 0 {
				m.txCount--
			}
			cleared++
		}
	}
	if cleared > 0 {
		m.errStatus |= ErrorPDOLate
	}
	m.csMu.Unlock()

	if cleared > 0 {
		m.counters.syncCleared.Add(uint64(cleared))
		m.log.WithField("cleared", cleared).Debug("withdrew pending sync PDOs")
	}
	return cleared
}
