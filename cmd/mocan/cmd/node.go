package cmd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/roffe/mocan"
	"github.com/roffe/mocan/pkg/cobid"
	"github.com/roffe/mocan/pkg/frame"
	log "github.com/sirupsen/logrus"
)

// NMT states as carried in the heartbeat.
const (
	nmtBootUp         = 0x00
	nmtStopped        = 0x04
	nmtOperational    = 0x05
	nmtPreOperational = 0x7F
)

// NMT commands.
const (
	nmtStart      = 0x01
	nmtStop       = 0x02
	nmtEnterPreOp = 0x80
	nmtResetNode  = 0x81
	nmtResetComm  = 0x82
)

const sdoAbortNoObject = 0x06020000

// node is the minimal CANopen slave used by the run command: NMT, heartbeat,
// an SDO server that answers every request with an abort, and RPDO logging.
type node struct {
	m    *mocan.Module
	id   uint8
	rate uint
	rxN  int
	txN  int

	hb  *mocan.TxBuffer
	sdo atomic.Pointer[mocan.TxBuffer]

	state  atomic.Uint32
	resets chan struct{}
	rpdos  atomic.Uint64
}

func newNode(m *mocan.Module, id uint8, bitrate uint, rxN, txN int) *node {
	return &node{
		m:      m,
		id:     id,
		rate:   bitrate,
		rxN:    rxN,
		txN:    txN,
		resets: make(chan struct{}, 1),
	}
}

// configure runs Init and all registrations and ends in normal mode with the
// boot-up message sent.
func (n *node) configure() error {
	if err := n.m.Init(n.rxN, n.txN, n.rate); err != nil {
		return err
	}
	var err error
	if n.hb, err = n.m.TxBufferInit(0, cobid.Derive(cobid.Heartbeat, n.id), 1, false); err != nil {
		return err
	}
	sdo, err := n.m.TxBufferInit(1, cobid.Derive(cobid.SDOResponse, n.id), 8, false)
	if err != nil {
		return err
	}
	n.sdo.Store(sdo)

	if err := n.m.RxBufferInit(0, cobid.Derive(cobid.NMT, n.id), frame.MaxStdID, mocan.RxHandlerFunc(n.onNMT)); err != nil {
		return err
	}
	if err := n.m.RxBufferInit(1, cobid.Derive(cobid.SDORequest, n.id), frame.MaxStdID, mocan.RxHandlerFunc(n.onSDO)); err != nil {
		return err
	}
	for i, r := range []cobid.Role{cobid.PDOIn1, cobid.PDOIn2, cobid.PDOIn3, cobid.PDOIn4} {
		err := n.m.RxBufferInit(2+i, cobid.Derive(r, n.id), frame.MaxStdID, mocan.RxHandlerFunc(n.onRPDO))
		if errors.Is(err, mocan.ErrRxSlotsExhausted) {
			log.WithField("role", r).Warn("no receive object left, served in software")
			continue
		}
		if err != nil {
			return err
		}
	}

	if err := n.m.EnterNormalMode(); err != nil {
		return err
	}
	n.state.Store(nmtBootUp)
	if err := n.heartbeat(); err != nil {
		return fmt.Errorf("boot-up: %w", err)
	}
	n.state.Store(nmtPreOperational)
	return nil
}

// reset is the communication reset.
func (n *node) reset() error {
	if err := n.m.EnterConfigurationMode(); err != nil {
		return err
	}
	return n.configure()
}

func (n *node) heartbeat() error {
	return n.m.SendData(n.hb, [8]byte{byte(n.state.Load())})
}

func (n *node) onNMT(f frame.Frame) {
	if f.DLC != 2 || (f.Data[1] != 0 && f.Data[1] != n.id) {
		return
	}
	switch f.Data[0] {
	case nmtStart:
		n.state.Store(nmtOperational)
	case nmtStop:
		n.state.Store(nmtStopped)
	case nmtEnterPreOp:
		n.state.Store(nmtPreOperational)
	case nmtResetNode, nmtResetComm:
		select {
		case n.resets <- struct{}{}:
		default:
		}
	}
}

func (n *node) onSDO(f frame.Frame) {
	if f.DLC != 8 || n.state.Load() == nmtStopped {
		return
	}
	data := [8]byte{0x80, f.Data[1], f.Data[2], f.Data[3]}
	binary.LittleEndian.PutUint32(data[4:], sdoAbortNoObject)
	if err := n.m.SendData(n.sdo.Load(), data); err != nil {
		log.WithError(err).Debug("sdo abort")
	}
}

func (n *node) onRPDO(f frame.Frame) {
	if n.state.Load() != nmtOperational {
		return
	}
	n.rpdos.Add(1)
	log.WithField("frame", f.String()).Debug("rpdo")
}
