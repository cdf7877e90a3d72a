package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/roffe/mocan"
	"github.com/roffe/mocan/backend"
	"github.com/roffe/mocan/backend/virtual"
	"github.com/roffe/mocan/pkg/config"
	"github.com/roffe/mocan/pkg/frame"
	log "github.com/sirupsen/logrus"
)

func recv(t *testing.T, b backend.Backend) frame.Frame {
	t.Helper()
	select {
	case f := <-b.Recv():
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
	return frame.Frame{}
}

func startNode(t *testing.T) (*node, *virtual.Endpoint) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l := log.New()
	l.SetOutput(io.Discard)

	hub := virtual.NewHub()
	ep, peer := hub.Endpoint(nil), hub.Endpoint(nil)
	for _, e := range []*virtual.Endpoint{ep, peer} {
		if err := e.Open(ctx); err != nil {
			t.Fatal(err)
		}
		e := e
		t.Cleanup(func() { e.Close() })
	}

	board := config.Default().Board
	br := backend.NewBridge(ep, board.Layout(), l)
	m, err := mocan.New(br, mocan.WithLogger(l), mocan.WithNodeID(board.NodeID))
	if err != nil {
		t.Fatal(err)
	}
	br.SetHandler(m)
	go br.Run(ctx)

	n := newNode(m, board.NodeID, board.Bitrate, 8, 8)
	if err := n.configure(); err != nil {
		t.Fatal(err)
	}
	return n, peer
}

func TestNodeBootUp(t *testing.T) {
	n, peer := startNode(t)
	f := recv(t, peer)
	if f.ID != 0x70A || f.DLC != 1 || f.Data[0] != nmtBootUp {
		t.Fatalf("boot-up = %s", f)
	}
	if n.state.Load() != nmtPreOperational {
		t.Fatalf("state = 0x%02X", n.state.Load())
	}
}

func TestNodeNMT(t *testing.T) {
	n, peer := startNode(t)
	recv(t, peer)

	tests := []struct {
		cmd, node byte
		want      uint32
	}{
		{nmtStart, 10, nmtOperational},
		{nmtStop, 11, nmtOperational}, // other node
		{nmtStop, 0, nmtStopped},
		{nmtEnterPreOp, 10, nmtPreOperational},
	}
	for _, tt := range tests {
		peer.Send() <- frame.New(0x000, tt.cmd, tt.node)
		deadline := time.Now().Add(time.Second)
		for n.state.Load() != tt.want && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if got := n.state.Load(); got != tt.want {
			t.Fatalf("after 0x%02X to %d state = 0x%02X, want 0x%02X", tt.cmd, tt.node, got, tt.want)
		}
	}

	peer.Send() <- frame.New(0x000, nmtResetComm, 10)
	select {
	case <-n.resets:
	case <-time.After(time.Second):
		t.Fatal("communication reset not requested")
	}
	if err := n.reset(); err != nil {
		t.Fatal(err)
	}
	if f := recv(t, peer); f.ID != 0x70A || f.Data[0] != nmtBootUp {
		t.Fatalf("boot-up after reset = %s", f)
	}
}

func TestNodeSDOAbort(t *testing.T) {
	_, peer := startNode(t)
	recv(t, peer)

	peer.Send() <- frame.New(0x60A, 0x40, 0x00, 0x10, 0x00, 0, 0, 0, 0)
	f := recv(t, peer)
	if f.ID != 0x58A || f.Data[0] != 0x80 || f.Data[2] != 0x10 {
		t.Fatalf("reply = %s", f)
	}
	if code := binary.LittleEndian.Uint32(f.Data[4:]); code != sdoAbortNoObject {
		t.Fatalf("abort code = 0x%08X", code)
	}
}

func TestDescribe(t *testing.T) {
	plain := func(format string, a ...interface{}) string { return fmt.Sprintf(format, a...) }
	tests := []struct {
		id   uint32
		want string
	}{
		{0x000, "NMT"},
		{0x080, "SYNC"},
		{0x70A, "HB node 10"},
		{0x58A, "SDO_TX node 10"},
		{0x7FF, ""},
	}
	for _, tt := range tests {
		if got := describe(frame.New(tt.id), plain); got != tt.want {
			t.Errorf("describe(0x%03X) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
