package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roffe/mocan/pkg/frame"
	"github.com/roffe/mocan/pkg/sim"
	"github.com/roffe/mocan/pkg/slot"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type txRequest struct {
	index int
	frame frame.Frame
}

// Bridge emulates a message-object pool on top of a frame transport. Frames
// triggered on transmit objects are written to the backend and complete with
// a transmit interrupt, received frames are latched into the first accepting
// receive object and raise a receive interrupt.
type Bridge struct {
	*sim.Pool
	b   Backend
	log *log.Entry
	txq chan txRequest

	mu sync.RWMutex
	h  slot.EventHandler

	filtered atomic.Uint64
}

// NewBridge builds the pool described by layout on b.
func NewBridge(b Backend, layout []slot.Config, l log.FieldLogger) *Bridge {
	if l == nil {
		l = log.StandardLogger()
	}
	br := &Bridge{
		Pool: sim.New(layout),
		b:    b,
		log:  l.WithField("backend", b.Name()),
		txq:  make(chan txRequest, len(layout)),
	}
	br.Pool.OnTransmit(br.enqueue)
	br.Pool.KeepSent(false)
	return br
}

// SetHandler installs the interrupt handler, usually the module.
func (br *Bridge) SetHandler(h slot.EventHandler) {
	br.mu.Lock()
	br.h = h
	br.mu.Unlock()
}

func (br *Bridge) handler() slot.EventHandler {
	br.mu.RLock()
	defer br.mu.RUnlock()
	return br.h
}

// Filtered returns the number of bus frames no receive object accepted.
func (br *Bridge) Filtered() uint64 {
	return br.filtered.Load()
}

func (br *Bridge) enqueue(i int, f frame.Frame) error {
	select {
	case br.txq <- txRequest{i, f}:
		return nil
	default:
		return ErrTxQueueFull
	}
}

// Run pumps frames until ctx is done or the backend fails.
func (br *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return br.txPump(gctx) })
	g.Go(func() error { return br.rxPump(gctx) })
	g.Go(func() error { return br.watch(gctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (br *Bridge) txPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-br.txq:
			select {
			case br.b.Send() <- req.frame:
			case <-ctx.Done():
				return ctx.Err()
			}
			br.Pool.Complete(req.index)
			if h := br.handler(); h != nil {
				h.OnTransmitCompleteEvent(req.index)
			}
		}
	}
}

func (br *Bridge) rxPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-br.b.Recv():
			if err := f.Validate(); err != nil {
				br.log.WithError(err).Debug("invalid frame from bus")
				continue
			}
			i, ok := br.Pool.Latch(f)
			if !ok {
				br.filtered.Add(1)
				continue
			}
			if h := br.handler(); h != nil {
				h.OnReceiveEvent(i)
			}
		}
	}
}

func (br *Bridge) watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-br.b.Err():
			if err == nil {
				return ErrClosed
			}
			return fmt.Errorf("%s: %w", br.b.Name(), err)
		case evt := <-br.b.Event():
			br.log.Log(evt.Type.Level(), evt.Details)
		}
	}
}
