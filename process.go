package mocan

import (
	"errors"

	"github.com/roffe/mocan/pkg/isrlog"
)

// Process is the main-context periodic call. It picks up events the
// interrupt path has not seen, resends entries still marked full, forwards
// interrupt diagnostics to the logger and reports error status changes.
func (m *Module) Process() {
	if m.State() == StateUninitialized {
		return
	}
	m.Interrupt()
	m.retryFull()
	m.DrainDiagnostics()

	m.csMu.Lock()
	cur := m.errStatus
	changed := cur != m.lastErr
	m.lastErr = cur
	m.csMu.Unlock()
	if changed {
		m.log.WithField("status", cur.String()).Warn("can error status changed")
	}
}

// retryFull resends every full entry in array order and stops at the first
// entry that still finds no free object.
func (m *Module) retryFull() {
	m.csMu.Lock()
	var pending []*TxBuffer
	for i := range m.tx {
		if m.tx[i].Full {
			pending = append(pending, &m.tx[i])
		}
	}
	m.csMu.Unlock()

	for _, tx := range pending {
		m.csMu.Lock()
		full := tx.Full
		m.csMu.Unlock()
		if !full {
			continue
		}
		err := m.Send(tx)
		if errors.Is(err, ErrTxOverflow) {
			return
		}
		if err != nil {
			m.log.WithError(err).WithField("id", tx.ID).Debug("retry failed")
		}
	}
}

// DrainDiagnostics forwards interrupt-side text to the logger at debug level.
// Main context only.
func (m *Module) DrainDiagnostics() int {
	return m.diag.Drain(func(line string) {
		if line == isrlog.OverflowMessage {
			m.log.Warn(line)
			return
		}
		m.log.Debug(line)
	})
}
