package backend

import (
	"path/filepath"
	"runtime"
	"sync"

	"github.com/roffe/mocan/pkg/frame"
	log "github.com/sirupsen/logrus"
)

// Base carries the channels every backend shares.
type Base struct {
	name               string
	Cfg                *Config
	sendChan, recvChan chan frame.Frame

	errOnce sync.Once
	errChan chan error

	evtChan chan Event

	closeOnce sync.Once
	closeChan chan struct{}
}

func NewBase(name string, cfg *Config) *Base {
	return &Base{
		name:      name,
		Cfg:       cfg,
		sendChan:  make(chan frame.Frame, 40),
		recvChan:  make(chan frame.Frame, 1024),
		errChan:   make(chan error, 1),
		evtChan:   make(chan Event, 100),
		closeChan: make(chan struct{}),
	}
}

func (base *Base) Name() string {
	return base.name
}

func (base *Base) Send() chan<- frame.Frame {
	return base.sendChan
}

func (base *Base) Recv() <-chan frame.Frame {
	return base.recvChan
}

func (base *Base) Err() <-chan error {
	return base.errChan
}

func (base *Base) Event() <-chan Event {
	return base.evtChan
}

// Outgoing is the receive side of the send channel, for the backend itself.
func (base *Base) Outgoing() <-chan frame.Frame {
	return base.sendChan
}

// Closed is closed once Close was called.
func (base *Base) Closed() <-chan struct{} {
	return base.closeChan
}

// Deliver queues an incoming frame. A full queue drops the frame and raises
// an error event.
func (base *Base) Deliver(f frame.Frame) bool {
	select {
	case base.recvChan <- f:
		return true
	default:
		base.Error(ErrDroppedFrame)
		return false
	}
}

func (base *Base) Close() {
	base.closeOnce.Do(func() {
		close(base.closeChan)
		select {
		case base.errChan <- nil:
		default:
		}
	})
}

// Fatal reports that communication is broken and cannot continue.
func (base *Base) Fatal(err error) {
	base.errOnce.Do(func() {
		select {
		case base.errChan <- err:
		default:
			_, file, no, ok := runtime.Caller(1)
			if ok {
				log.Errorf("%s:%d error channel full: %v", filepath.Base(file), no, err)
			} else {
				log.Errorf("error channel full: %v", err)
			}
		}
	})
}

func (base *Base) sendEvent(eventType EventType, details string) {
	select {
	case base.evtChan <- Event{Type: eventType, Details: details}:
	default:
		_, file, no, ok := runtime.Caller(2)
		if ok {
			log.Warnf("%s#%d event channel full: %s", filepath.Base(file), no, details)
		} else {
			log.Warnf("event channel full: %s", details)
		}
	}
}

func (base *Base) Error(err error) {
	base.sendEvent(EventTypeError, err.Error())
}

func (base *Base) Warn(warn string) {
	base.sendEvent(EventTypeWarning, warn)
}

func (base *Base) Info(info string) {
	base.sendEvent(EventTypeInfo, info)
}

func (base *Base) Debug(debug string) {
	base.sendEvent(EventTypeDebug, debug)
}
