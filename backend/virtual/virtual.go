// Package virtual is an in-process CAN bus. Every endpoint opened on a Hub
// sees the frames sent by all other endpoints.
package virtual

import (
	"context"
	"sync"

	"github.com/roffe/mocan/backend"
	"github.com/roffe/mocan/pkg/frame"
)

// DefaultHub backs endpoints created through the backend registry.
var DefaultHub = NewHub()

func init() {
	if err := backend.Register(&backend.Info{
		Name:        "virtual",
		Description: "in-process bus",
		New: func(cfg *backend.Config) (backend.Backend, error) {
			return DefaultHub.Endpoint(cfg), nil
		},
	}); err != nil {
		panic(err)
	}
}

type Hub struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
}

func NewHub() *Hub {
	return &Hub{endpoints: make(map[*Endpoint]struct{})}
}

// Endpoint creates a detached endpoint. It joins the hub on Open.
func (h *Hub) Endpoint(cfg *backend.Config) *Endpoint {
	if cfg == nil {
		cfg = &backend.Config{}
	}
	return &Endpoint{
		Base: backend.NewBase("virtual", cfg),
		hub:  h,
	}
}

func (h *Hub) join(e *Endpoint) {
	h.mu.Lock()
	h.endpoints[e] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) leave(e *Endpoint) {
	h.mu.Lock()
	delete(h.endpoints, e)
	h.mu.Unlock()
}

func (h *Hub) broadcast(from *Endpoint, f frame.Frame) {
	h.mu.RLock()
	targets := make([]*Endpoint, 0, len(h.endpoints))
	for e := range h.endpoints {
		if e != from {
			targets = append(targets, e)
		}
	}
	h.mu.RUnlock()
	for _, t := range targets {
		t.Deliver(f)
	}
}

type Endpoint struct {
	*backend.Base
	hub *Hub
}

func (e *Endpoint) Open(ctx context.Context) error {
	e.hub.join(e)
	go e.sendManager(ctx)
	return nil
}

func (e *Endpoint) Close() error {
	e.hub.leave(e)
	e.Base.Close()
	return nil
}

func (e *Endpoint) sendManager(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.Closed():
			return
		case f := <-e.Outgoing():
			if err := f.Validate(); err != nil {
				e.Error(err)
				continue
			}
			if e.Cfg.Debug {
				e.Debug(">> " + f.String())
			}
			e.hub.broadcast(e, f)
		}
	}
}
