package mocan

import (
	"fmt"
	"sync/atomic"
)

type Stats struct {
	Interrupts  uint64
	RxFrames    uint64
	TxFrames    uint64
	TxDone      uint64
	Dropped     uint64
	Invalid     uint64
	Unmatched   uint64
	Spurious    uint64
	TxOverflows uint64
	TxRejected  uint64
	SyncCleared uint64
}

func (st Stats) String() string {
	return fmt.Sprintf("irq: %d rx: %d tx: %d txdone: %d dropped: %d invalid: %d unmatched: %d spurious: %d overflow: %d rejected: %d synccleared: %d",
		st.Interrupts, st.RxFrames, st.TxFrames, st.TxDone, st.Dropped, st.Invalid, st.Unmatched, st.Spurious, st.TxOverflows, st.TxRejected, st.SyncCleared)
}

// counters are written from both contexts.
type counters struct {
	interrupts  atomic.Uint64
	rxFrames    atomic.Uint64
	txFrames    atomic.Uint64
	txDone      atomic.Uint64
	dropped     atomic.Uint64
	invalid     atomic.Uint64
	unmatched   atomic.Uint64
	spurious    atomic.Uint64
	txOverflows atomic.Uint64
	txRejected  atomic.Uint64
	syncCleared atomic.Uint64
}

func (c *counters) reset() {
	for _, v := range []*atomic.Uint64{
		&c.interrupts, &c.rxFrames, &c.txFrames, &c.txDone, &c.dropped, &c.invalid,
		&c.unmatched, &c.spurious, &c.txOverflows, &c.txRejected, &c.syncCleared,
	} {
		v.Store(0)
	}
}

func (m *Module) Stats() Stats {
	c := &m.counters
	return Stats{
		Interrupts:  c.interrupts.Load(),
		RxFrames:    c.rxFrames.Load(),
		TxFrames:    c.txFrames.Load(),
		TxDone:      c.txDone.Load(),
		Dropped:     c.dropped.Load(),
		Invalid:     c.invalid.Load(),
		Unmatched:   c.unmatched.Load(),
		Spurious:    c.spurious.Load(),
		TxOverflows: c.txOverflows.Load(),
		TxRejected:  c.txRejected.Load(),
		SyncCleared: c.syncCleared.Load(),
	}
}
