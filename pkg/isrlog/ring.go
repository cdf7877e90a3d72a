// Package isrlog carries diagnostic text out of interrupt context.
//
// A Ring has exactly one producer (the interrupt side) and one consumer (the
// main loop). Each side advances only its own index and re-reads the other
// index on every byte, so no lock is needed. A full ring never overwrites
// unread text: the write stops and the overflow flag is raised instead.
package isrlog

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

const (
	// Size is the ring capacity in bytes. One byte is always left empty.
	Size = 1024
	// LineMax is the longest line Drain emits before splitting.
	LineMax = 256 - 10
	// MsgMax bounds one formatted Printf record.
	MsgMax = 128

	Prefix          = "ISR: "
	OverflowMessage = "ISR debug buffer overflow"
)

var ErrOverflow = errors.New("isr log overflow")

type Ring struct {
	buf      [Size]byte
	write    atomic.Uint32
	read     atomic.Uint32
	overflow atomic.Bool

	scratch [MsgMax]byte // producer only
	line    [256]byte    // consumer only
}

func New() *Ring {
	return &Ring{}
}

// Write copies p into the ring. It never blocks. When the ring fills up the
// remaining bytes are discarded, the overflow flag is set and ErrOverflow is
// returned together with the number of bytes stored.
func (r *Ring) Write(p []byte) (int, error) {
	for n, b := range p {
		w := r.write.Load()
		next := (w + 1) % Size
		if next == r.read.Load() {
			r.overflow.Store(true)
			return n, ErrOverflow
		}
		r.buf[w] = b
		r.write.Store(next)
	}
	return len(p), nil
}

// Printf formats one record into the fixed scratch buffer and terminates it
// with a newline. A record never exceeds MsgMax bytes including the newline,
// so a call stores a bounded amount and never blocks. Producer side only.
func (r *Ring) Printf(format string, args ...any) {
	b := fmt.Appendf(r.scratch[:0], format, args...)
	if len(b) > MsgMax-1 {
		b = b[:MsgMax-1]
	}
	if len(b) == 0 {
		return
	}
	if _, err := r.Write(b); err != nil {
		return
	}
	if b[len(b)-1] != '\n' {
		r.Write([]byte{'\n'})
	}
}

// Len returns the number of unread bytes.
func (r *Ring) Len() int {
	w, rd := r.write.Load(), r.read.Load()
	return int((w + Size - rd) % Size)
}

// Overflowed reports whether a write was truncated since the last Drain.
func (r *Ring) Overflowed() bool {
	return r.overflow.Load()
}

// Drain hands every complete or size-limited line to out, prefixed with
// Prefix, and reports a pending overflow once before the lines. It returns
// the number of ring bytes consumed. Consumer side only.
func (r *Ring) Drain(out func(line string)) int {
	if r.overflow.Swap(false) {
		out(OverflowMessage)
	}
	consumed := 0
	n := 0
	for {
		rd := r.read.Load()
		if rd == r.write.Load() {
			break
		}
		ch := r.buf[rd]
		r.read.Store((rd + 1) % Size)
		consumed++

		r.line[n] = ch
		n++
		if ch == '\n' || n >= LineMax {
			emit(out, r.line[:n])
			n = 0
		}
	}
	if n > 0 {
		emit(out, r.line[:n])
	}
	return consumed
}

func emit(out func(string), b []byte) {
	s := strings.TrimRight(string(b), "\r\n")
	if s == "" {
		return
	}
	out(Prefix + s)
}
