package mocan

import (
	"fmt"
	"sync"

	"github.com/roffe/mocan/pkg/cobid"
	"github.com/roffe/mocan/pkg/isrlog"
	"github.com/roffe/mocan/pkg/slot"
	log "github.com/sirupsen/logrus"
)

// MinOutbound is the smallest transmit pool that covers EMCY, heartbeat,
// SDO response and the four TPDOs.
var MinOutbound = len(cobid.Outbound())

// State is the module lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateNormal
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateNormal:
		return "normal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Module binds the software rx/tx arrays of a CANopen stack to a fixed pool
// of message objects.
type Module struct {
	p    slot.Peripheral
	dir  *slot.Directory
	log  log.FieldLogger
	diag *isrlog.Ring

	// isrMu serialises interrupt handlers, one event at a time.
	isrMu sync.Mutex
	// csMu is the interrupt-disabled critical section.
	csMu sync.Mutex
	// txMu serialises Send callers from main context and rx callbacks.
	txMu sync.Mutex

	state   State
	node    uint8
	bitrate uint

	rx      []RxBuffer
	tx      []TxBuffer
	rxOwner []int

	txCount   int
	firstTx   bool
	errStatus ErrorStatus
	lastErr   ErrorStatus

	counters counters
}

// New enumerates p and returns an uninitialized module.
func New(p slot.Peripheral, opts ...Opt) (*Module, error) {
	if p == nil {
		return nil, ErrNilPeripheral
	}
	m := &Module{
		p:    p,
		dir:  slot.NewDirectory(p),
		log:  log.StandardLogger().WithField("module", "mocan"),
		diag: isrlog.New(),
	}
	m.rxOwner = make([]int, m.dir.Count())
	for i := range m.rxOwner {
		m.rxOwner[i] = -1
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Directory returns the slot directory of the module.
func (m *Module) Directory() *slot.Directory { return m.dir }

// Diagnostics returns the interrupt-side log ring.
func (m *Module) Diagnostics() *isrlog.Ring { return m.diag }

func validBitrate(kbit uint) bool {
	switch kbit {
	case 10, 20, 50, 125, 250, 500, 800, 1000:
		return true
	}
	return false
}

// Init sizes the software arrays and puts the module in configuration mode.
// It is called once at startup and again on every communication reset.
func (m *Module) Init(rxCount, txCount int, bitrate uint) error {
	if rxCount < 1 || txCount < 1 {
		return fmt.Errorf("%w: rx %d tx %d", ErrIllegalArgument, rxCount, txCount)
	}
	if !validBitrate(bitrate) {
		return fmt.Errorf("%w: %d kbit", ErrIllegalBaudrate, bitrate)
	}
	if in, out := len(m.dir.Inbound()), len(m.dir.Outbound()); in < 1 || out < MinOutbound {
		return fmt.Errorf("%w: pool has %d rx and %d tx objects, need 1 and %d", ErrIllegalArgument, in, out, MinOutbound)
	}

	m.csMu.Lock()
	defer m.csMu.Unlock()
	if m.state == StateNormal {
		return fmt.Errorf("%w: init while %s", ErrInvalidState, m.state)
	}
	m.rx = make([]RxBuffer, rxCount)
	for i := range m.rx {
		m.rx[i].slot = -1
	}
	m.tx = make([]TxBuffer, txCount)
	for i := range m.tx {
		m.tx[i].slot = -1
	}
	for i := range m.rxOwner {
		m.rxOwner[i] = -1
	}
	m.bitrate = bitrate
	m.txCount = 0
	m.firstTx = true
	m.errStatus = 0
	m.lastErr = 0
	m.counters.reset()
	m.state = StateConfigured

	m.log.WithFields(log.Fields{
		"rx":      rxCount,
		"tx":      txCount,
		"bitrate": bitrate,
		"objects": m.dir.Count(),
	}).Info("can module initialized")
	return nil
}

func (m *Module) State() State {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	return m.state
}

// IsNormal reports whether the stack may rely on delivery.
func (m *Module) IsNormal() bool {
	return m.State() == StateNormal
}

// EnterConfigurationMode leaves normal operation. From Normal this is the
// communication reset transition.
func (m *Module) EnterConfigurationMode() error {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	switch m.state {
	case StateUninitialized:
		return fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	case StateNormal:
		m.log.Debug("communication reset")
	}
	m.state = StateConfigured
	return nil
}

// EnterNormalMode starts normal operation after Init.
func (m *Module) EnterNormalMode() error {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	if m.state == StateUninitialized {
		return fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}
	m.state = StateNormal
	return nil
}

// Disable drops the software arrays. Init has to be called again.
func (m *Module) Disable() {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	m.state = StateUninitialized
	m.rx = nil
	m.tx = nil
	m.txCount = 0
	for i := range m.rxOwner {
		m.rxOwner[i] = -1
	}
}

// FirstTransmission reports whether no transmission completed since Init.
func (m *Module) FirstTransmission() bool {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	return m.firstTx
}

// TxCount returns the frames owed to the bus: entries waiting for an object
// plus frames handed to hardware that did not complete yet.
func (m *Module) TxCount() int {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	return m.txCount
}

func (m *Module) ErrorStatus() ErrorStatus {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	return m.errStatus
}

func (m *Module) ResetErrorStatus() {
	m.csMu.Lock()
	m.errStatus = 0
	m.csMu.Unlock()
}

func (m *Module) NodeID() uint8 {
	m.csMu.Lock()
	defer m.csMu.Unlock()
	return m.node
}

// SetNodeID moves every object that carries a role base, or the identifier
// derived for the previous node, to the identifier for node. NMT and a SYNC
// receive object stay put. Registrations made before the call keep their
// identifiers, so the stack sets the node before registering.
func (m *Module) SetNodeID(node uint8) error {
	if err := cobid.ValidNode(node); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalArgument, err)
	}
	m.csMu.Lock()
	defer m.csMu.Unlock()
	old := m.node
	moved := 0
	for i := 0; i < m.dir.Count(); i++ {
		dir := m.dir.Direction(i)
		if dir == slot.Unused {
			continue
		}
		id := m.p.Identifier(i)
		if dir == slot.Inbound && id == cobid.Base(cobid.Sync) {
			continue
		}
		to, ok := cobid.Redirect(id, old, node)
		if !ok || to == id {
			continue
		}
		if err := m.dir.Rebind(i, to, m.p.Mask(i)); err != nil {
			return fmt.Errorf("rebind LMO_%02d: %w", i+1, err)
		}
		moved++
	}
	m.node = node
	m.log.WithFields(log.Fields{"node": node, "moved": moved}).Debug("node id configured")
	return nil
}
