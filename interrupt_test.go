package mocan

import (
	"errors"
	"strings"
	"testing"

	"github.com/roffe/mocan/pkg/frame"
	"github.com/roffe/mocan/pkg/sim"
	"github.com/roffe/mocan/pkg/slot"
)

type recorder struct {
	frames []frame.Frame
}

func (r *recorder) Handle(f frame.Frame) { r.frames = append(r.frames, f) }

// deliver latches f into the pool and raises the receive interrupt.
func deliver(t *testing.T, m *Module, pool *sim.Pool, f frame.Frame) int {
	t.Helper()
	i, ok := pool.Latch(f)
	if !ok {
		t.Fatalf("no receive object accepts 0x%03X", f.ID)
	}
	m.OnReceiveEvent(i)
	return i
}

func TestReceiveExactRouting(t *testing.T) {
	m, pool := newTestModule(t, WithNodeID(10))
	x, y := &recorder{}, &recorder{}
	if err := m.RxBufferInit(0, 0x60A, 0x7FF, x); err != nil {
		t.Fatal(err)
	}
	if err := m.RxBufferInit(1, 0x20A, 0x7FF, y); err != nil {
		t.Fatal(err)
	}
	deliver(t, m, pool, frame.New(0x60A, 0x40, 0x00, 0x10, 0x00))

	if len(x.frames) != 1 || len(y.frames) != 0 {
		t.Fatalf("x got %d, y got %d", len(x.frames), len(y.frames))
	}
	if got := x.frames[0]; got.ID != 0x60A || got.DLC != 4 || got.Data[0] != 0x40 {
		t.Fatalf("delivered %s", got)
	}
	if st := m.Stats(); st.RxFrames != 1 || st.Interrupts != 1 {
		t.Fatalf("stats = %s", st)
	}
}

func TestReceiveFirstMatchWins(t *testing.T) {
	m, pool := newTestModule(t)
	exact, all := &recorder{}, &recorder{}
	if err := m.RxBufferInit(0, 0x123, 0x7FF, exact); err != nil {
		t.Fatal(err)
	}
	if err := m.RxBufferInit(1, 0, 0, all); err != nil {
		t.Fatal(err)
	}
	deliver(t, m, pool, frame.New(0x123, 1))
	deliver(t, m, pool, frame.New(0x456, 2))

	if len(exact.frames) != 1 || exact.frames[0].ID != 0x123 {
		t.Fatalf("exact entry got %v", exact.frames)
	}
	if len(all.frames) != 1 || all.frames[0].ID != 0x456 {
		t.Fatalf("catch-all entry got %v", all.frames)
	}

	// the catch-all registered first shadows everything behind it
	if err := m.RxBufferInit(0, 0, 0, all); err != nil {
		t.Fatal(err)
	}
	if err := m.RxBufferInit(1, 0x123, 0x7FF, exact); err != nil {
		t.Fatal(err)
	}
	deliver(t, m, pool, frame.New(0x123, 3))
	if len(exact.frames) != 1 || len(all.frames) != 2 {
		t.Fatalf("exact %d, catch-all %d", len(exact.frames), len(all.frames))
	}
}

func TestReceiveNMTIdentifierZero(t *testing.T) {
	m, pool := newTestModule(t, WithNodeID(10))
	nmt, placeholder := &recorder{}, &recorder{}
	if err := m.RxBufferInit(0, 0, 0x7FF, nmt); err != nil {
		t.Fatal(err)
	}
	nmtSlot := m.rx[0].Slot()
	if nmtSlot < 0 {
		t.Fatal("NMT registration has no receive object")
	}
	if id := pool.Identifier(nmtSlot); id != 0 {
		t.Fatalf("NMT object carries 0x%03X", id)
	}
	programs := pool.Programs(nmtSlot)

	// a software-only placeholder must not steal or reprogram the object
	if err := m.RxBufferInit(1, 0, 0, placeholder, WithoutHardware()); err != nil {
		t.Fatal(err)
	}
	if m.rx[1].Slot() != -1 {
		t.Fatal("placeholder claimed an object")
	}
	if pool.Programs(nmtSlot) != programs || pool.Mask(nmtSlot) != 0x7FF {
		t.Fatal("NMT object reprogrammed by the placeholder")
	}

	deliver(t, m, pool, frame.New(0x000, 0x01, 0x0A))
	if len(nmt.frames) != 1 || len(placeholder.frames) != 0 {
		t.Fatalf("nmt %d, placeholder %d", len(nmt.frames), len(placeholder.frames))
	}
}

func TestReceiveSlotBinding(t *testing.T) {
	m, pool := newTestModule(t)
	h := &recorder{}
	// 0x600 already sits in the second receive object
	if err := m.RxBufferInit(0, 0x600, 0x7FF, h); err != nil {
		t.Fatal(err)
	}
	if got, want := m.rx[0].Slot(), m.Directory().Inbound()[1]; got != want {
		t.Fatalf("bound to %d, want %d", got, want)
	}
	// an unknown identifier takes the first unclaimed object
	if err := m.RxBufferInit(1, 0x7E5, 0x7FF, h); err != nil {
		t.Fatal(err)
	}
	first := m.Directory().Inbound()[0]
	if m.rx[1].Slot() != first || pool.Identifier(first) != 0x7E5 {
		t.Fatalf("bound to %d carrying 0x%03X", m.rx[1].Slot(), pool.Identifier(first))
	}
	// the next one must not overwrite it
	if err := m.RxBufferInit(2, 0x7E4, 0x7FF, h); err != nil {
		t.Fatal(err)
	}
	if m.rx[2].Slot() == first || pool.Identifier(first) != 0x7E5 {
		t.Fatal("claimed object was overwritten")
	}
}

func TestReceiveSharedSlotMask(t *testing.T) {
	m, pool := newTestModule(t)
	exact, wide := &recorder{}, &recorder{}
	if err := m.RxBufferInit(0, 0x180, 0x7FF, exact); err != nil {
		t.Fatal(err)
	}
	if err := m.RxBufferInit(1, 0x180, 0x780, wide); err != nil {
		t.Fatal(err)
	}
	i := m.rx[0].Slot()
	if m.rx[1].Slot() != i {
		t.Fatalf("entries bound to %d and %d, want one shared object", i, m.rx[1].Slot())
	}
	if got := pool.Mask(i); got != 0x780 {
		t.Fatalf("shared object mask = 0x%03X, want 0x780", got)
	}

	deliver(t, m, pool, frame.New(0x180, 1))
	deliver(t, m, pool, frame.New(0x185, 2))
	if len(exact.frames) != 1 || exact.frames[0].ID != 0x180 {
		t.Fatalf("exact entry got %v", exact.frames)
	}
	if len(wide.frames) != 1 || wide.frames[0].ID != 0x185 {
		t.Fatalf("wide entry got %v", wide.frames)
	}

	// the wide entry leaves, the object narrows back to the exact mask
	if err := m.RxBufferInit(1, 0x7E0, 0x7FF, wide); err != nil {
		t.Fatal(err)
	}
	if got := pool.Mask(i); got != 0x7FF || pool.Identifier(i) != 0x180 {
		t.Fatalf("object = 0x%03X/0x%03X after release", pool.Identifier(i), got)
	}
}

func TestReceiveReleaseKeepsSharer(t *testing.T) {
	m, pool := newTestModule(t)
	a, b := &recorder{}, &recorder{}
	if err := m.RxBufferInit(0, 0x181, 0x7FF, a); err != nil {
		t.Fatal(err)
	}
	if err := m.RxBufferInit(1, 0x181, 0x7FF, b); err != nil {
		t.Fatal(err)
	}
	shared := m.rx[1].Slot()

	if err := m.RxBufferInit(0, 0x182, 0x7FF, a); err != nil {
		t.Fatal(err)
	}
	if m.rx[1].Slot() != shared || pool.Identifier(shared) != 0x181 {
		t.Fatalf("remaining entry on %d carrying 0x%03X", m.rx[1].Slot(), pool.Identifier(shared))
	}
	if m.rx[0].Slot() == shared || pool.Identifier(m.rx[0].Slot()) != 0x182 {
		t.Fatalf("moved entry on %d carrying 0x%03X", m.rx[0].Slot(), pool.Identifier(m.rx[0].Slot()))
	}

	deliver(t, m, pool, frame.New(0x181, 1))
	deliver(t, m, pool, frame.New(0x182, 2))
	if len(a.frames) != 1 || a.frames[0].ID != 0x182 {
		t.Fatalf("a got %v", a.frames)
	}
	if len(b.frames) != 1 || b.frames[0].ID != 0x181 {
		t.Fatalf("b got %v", b.frames)
	}

	// the last sharer leaving frees the object for a new identifier
	if err := m.RxBufferInit(1, 0x183, 0x7FF, b); err != nil {
		t.Fatal(err)
	}
	if m.rx[1].Slot() != shared || pool.Identifier(shared) != 0x183 {
		t.Fatalf("freed object not reused: entry on %d, object carries 0x%03X", m.rx[1].Slot(), pool.Identifier(shared))
	}
}

func TestReceiveOverrun(t *testing.T) {
	m, pool := newTestModule(t)
	h := &recorder{}
	if err := m.RxBufferInit(0, 0x600, 0x7FF, h); err != nil {
		t.Fatal(err)
	}
	i, _ := pool.Latch(frame.New(0x600, 1))
	pool.Latch(frame.New(0x600, 2))
	if pool.Status(i)&slot.MsgLost == 0 {
		t.Fatal("pool did not flag the overrun")
	}
	m.OnReceiveEvent(i)

	if len(h.frames) != 1 || h.frames[0].Data[0] != 2 {
		t.Fatalf("handler got %v", h.frames)
	}
	if !m.ErrorStatus().Has(ErrorRxOverflow) {
		t.Fatalf("error status = %s", m.ErrorStatus())
	}
	if pool.Status(i)&slot.MsgLost != 0 {
		t.Fatal("overrun flag not cleared")
	}
	m.ResetErrorStatus()
	deliver(t, m, pool, frame.New(0x600, 3))
	if m.ErrorStatus() != 0 {
		t.Fatalf("error status = %s after a clean frame", m.ErrorStatus())
	}
}

func TestReceiveSlotsExhausted(t *testing.T) {
	m, _ := newTestModule(t)
	h := &recorder{}
	var err error
	for k := 0; k < 7; k++ {
		err = m.RxBufferInit(k, 0x700+uint32(k)+0x10, 0x7FF, h)
		if k < 6 && err != nil {
			t.Fatalf("RxBufferInit(%d) = %v", k, err)
		}
	}
	if !errors.Is(err, ErrRxSlotsExhausted) || !IsResourceExhausted(err) {
		t.Fatalf("seventh RxBufferInit = %v, want ErrRxSlotsExhausted", err)
	}
	if m.match(0x716) == nil {
		t.Fatal("software entry not kept")
	}

	// re-registering an index releases its object
	if err := m.RxBufferInit(0, 0x7A0, 0x7FF, h); err != nil {
		t.Fatalf("re-register = %v", err)
	}
}

func TestReceiveDropsAndInvalid(t *testing.T) {
	m, pool := newTestModule(t)
	h := &recorder{}
	if err := m.RxBufferInit(0, 0, 0, h); err != nil {
		t.Fatal(err)
	}
	m.OnReceiveEvent(-1)
	m.OnReceiveEvent(99)
	m.OnReceiveEvent(m.Directory().Outbound()[0])

	in := m.Directory().Inbound()[2]
	pool.Poke(in, 0x900, 1, [8]byte{})
	m.OnReceiveEvent(in)
	pool.Poke(in, 0x100, 9, [8]byte{})
	m.OnReceiveEvent(in)

	// no pending data on the object
	m.OnReceiveEvent(in)

	st := m.Stats()
	if st.Dropped != 3 || st.Invalid != 2 || st.Spurious != 1 {
		t.Fatalf("stats = %s", st)
	}
	if len(h.frames) != 0 {
		t.Fatalf("invalid frames forwarded: %v", h.frames)
	}
}

func TestReceiveUnmatched(t *testing.T) {
	m, pool := newTestModule(t)
	h := &recorder{}
	if err := m.RxBufferInit(0, 0x20A, 0x7FF, h); err != nil {
		t.Fatal(err)
	}
	deliver(t, m, pool, frame.New(0x600, 1))
	if st := m.Stats(); st.Unmatched != 1 || st.RxFrames != 0 {
		t.Fatalf("stats = %s", st)
	}
}

func TestCallbackMaySend(t *testing.T) {
	m, pool := newTestModule(t, WithNodeID(10))
	pool.AutoComplete(true)
	resp, err := m.TxBufferInit(0, 0x58A, 8, false)
	if err != nil {
		t.Fatal(err)
	}
	h := RxHandlerFunc(func(f frame.Frame) {
		resp.Data = f.Data
		if err := m.Send(resp); err != nil {
			t.Errorf("Send() from handler = %v", err)
		}
	})
	if err := m.RxBufferInit(0, 0x60A, 0x7FF, h); err != nil {
		t.Fatal(err)
	}
	deliver(t, m, pool, frame.New(0x60A, 0x40, 0x18, 0x10))
	sent := pool.Sent()
	if len(sent) != 1 || sent[0].ID != 0x58A || sent[0].Data[0] != 0x40 {
		t.Fatalf("sent %v", sent)
	}
}

func TestInterruptScan(t *testing.T) {
	m, pool := newTestModule(t, WithNodeID(10))
	h := &recorder{}
	if err := m.RxBufferInit(0, 0x000, 0x7FF, h); err != nil {
		t.Fatal(err)
	}
	tx := mustTx(t, m, 0, 0x70A, 1, false)
	if err := m.Send(tx); err != nil {
		t.Fatal(err)
	}
	pool.Complete(tx.Slot())
	pool.Latch(frame.New(0x000, 0x81, 0x00))

	m.Interrupt()
	if len(h.frames) != 1 {
		t.Fatalf("handler got %d frames", len(h.frames))
	}
	if m.TxCount() != 0 {
		t.Fatalf("TxCount() = %d", m.TxCount())
	}
	// nothing left pending
	m.Interrupt()
	if len(h.frames) != 1 {
		t.Fatal("frame dispatched twice")
	}
}

func TestDiagnosticsDrain(t *testing.T) {
	m, pool := newTestModule(t)
	if err := m.RxBufferInit(0, 0, 0, &recorder{}); err != nil {
		t.Fatal(err)
	}
	deliver(t, m, pool, frame.New(0x123))

	var lines []string
	m.Diagnostics().Drain(func(s string) { lines = append(lines, s) })
	if len(lines) != 1 || !strings.Contains(lines[0], "RX IRQ: LMO_") {
		t.Fatalf("lines = %q", lines)
	}
	if n := m.DrainDiagnostics(); n != 0 {
		t.Fatalf("DrainDiagnostics() = %d after drain", n)
	}
}
