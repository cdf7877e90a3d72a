package isrlog

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func collect(r *Ring) ([]string, int) {
	var lines []string
	n := r.Drain(func(s string) { lines = append(lines, s) })
	return lines, n
}

func TestPrintfDrain(t *testing.T) {
	r := New()
	r.Printf("RX IRQ: LMO_%02d (idx=%d)", 8, 7)
	r.Printf("TX done %d\r\n", 1)

	lines, n := collect(r)
	if n != len("RX IRQ: LMO_08 (idx=7)\n")+len("TX done 1\r\n") {
		t.Fatalf("drained %d bytes", n)
	}
	want := []string{"ISR: RX IRQ: LMO_08 (idx=7)", "ISR: TX done 1"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after drain", r.Len())
	}
}

func TestPrintfBounded(t *testing.T) {
	r := New()
	r.Printf("%s", strings.Repeat("x", 300))
	if r.Len() != MsgMax {
		t.Fatalf("Len() = %d, want %d", r.Len(), MsgMax)
	}
	lines, _ := collect(r)
	if len(lines) != 1 || len(lines[0]) != len(Prefix)+MsgMax-1 {
		t.Fatalf("lines = %q", lines)
	}
}

func TestOverflow(t *testing.T) {
	r := New()
	big := []byte(strings.Repeat("x", Size+10))
	n, err := r.Write(big)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("Write() err = %v, want ErrOverflow", err)
	}
	if n != Size-1 {
		t.Fatalf("Write() stored %d, want %d", n, Size-1)
	}
	if !r.Overflowed() {
		t.Fatal("overflow flag not set")
	}

	// unread data must survive further writes
	if _, err := r.Write([]byte("y")); err == nil {
		t.Fatal("write into full ring succeeded")
	}

	lines, drained := collect(r)
	if drained != Size-1 {
		t.Fatalf("drained %d, want %d", drained, Size-1)
	}
	if lines[0] != OverflowMessage {
		t.Fatalf("first line = %q, want overflow notice", lines[0])
	}
	for _, l := range lines[1:] {
		if strings.Contains(l, "y") {
			t.Fatalf("truncated byte leaked: %q", l)
		}
		if len(l) > len(Prefix)+LineMax {
			t.Fatalf("line too long: %d", len(l))
		}
	}
	if r.Overflowed() {
		t.Fatal("overflow flag survived drain")
	}

	// full capacity is back
	n, err = r.Write(big[:Size-1])
	if err != nil || n != Size-1 {
		t.Fatalf("Write() after drain = %d, %v", n, err)
	}
	lines, _ = collect(r)
	for _, l := range lines {
		if l == OverflowMessage {
			t.Fatal("overflow reported twice")
		}
	}
}

func TestNoOverflowNoFlag(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		r.Printf("msg %d", i)
	}
	if r.Overflowed() {
		t.Fatal("overflow without truncation")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r := New()
	const records = 5000
	var wg sync.WaitGroup
	wg.Add(1)
	written := 0
	go func() {
		defer wg.Done()
		for i := 0; i < records; i++ {
			n, _ := r.Write([]byte("abcdefg\n"))
			written += n
		}
	}()
	drained := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			_, n := collect(r)
			drained += n
			if drained != written {
				t.Fatalf("drained %d, written %d", drained, written)
			}
			return
		default:
			_, n := collect(r)
			drained += n
		}
	}
}
