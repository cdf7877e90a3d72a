//go:build linux

package socketcan

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/roffe/mocan/backend"
	"github.com/roffe/mocan/pkg/frame"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/candevice"
	"go.einride.tech/can/pkg/socketcan"
)

func init() {
	if err := backend.Register(&backend.Info{
		Name:        "socketcan",
		Description: "Linux SocketCAN interface, port is the interface name",
		New:         New,
	}); err != nil {
		panic(err)
	}
}

type SocketCAN struct {
	*backend.Base
	d    *candevice.Device
	conn net.Conn
	tx   *socketcan.Transmitter
	rx   *socketcan.Receiver
}

func New(cfg *backend.Config) (backend.Backend, error) {
	if cfg.Port == "" || cfg.Port == "*" {
		devs := FindDevices()
		if len(devs) == 0 {
			return nil, fmt.Errorf("no can interfaces found")
		}
		cfg.Port = devs[0]
	}
	return &SocketCAN{
		Base: backend.NewBase("socketcan", cfg),
	}, nil
}

func (a *SocketCAN) Open(ctx context.Context) error {
	d, err := candevice.New(a.Cfg.Port)
	if err != nil {
		return err
	}
	a.d = d
	up, err := d.IsUp()
	if err != nil {
		return err
	}
	// an interface brought up by the system keeps its bitrate
	if !up {
		if err := d.SetBitrate(uint32(a.Cfg.Bitrate * 1000)); err != nil {
			return fmt.Errorf("set bitrate: %w", err)
		}
		if err := d.SetUp(); err != nil {
			return fmt.Errorf("set up: %w", err)
		}
	}

	conn, err := socketcan.DialContext(ctx, "can", a.Cfg.Port)
	if err != nil {
		return err
	}
	a.conn = conn
	a.tx = socketcan.NewTransmitter(conn)
	a.rx = socketcan.NewReceiver(conn)

	go a.recvManager()
	go a.sendManager(ctx)
	return nil
}

func (a *SocketCAN) Close() error {
	a.Base.Close()
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func (a *SocketCAN) recvManager() {
	for a.rx.Receive() {
		f := a.rx.Frame()
		if f.IsExtended {
			continue
		}
		out := frame.Frame{ID: f.ID, DLC: f.Length, RTR: f.IsRemote}
		copy(out.Data[:], f.Data[:])
		if a.Cfg.Debug {
			a.Debug("<< " + out.String())
		}
		a.Deliver(out)
	}
	select {
	case <-a.Closed():
	default:
		a.Fatal(fmt.Errorf("receive: %v", a.rx.Err()))
	}
}

func (a *SocketCAN) sendManager(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.Closed():
			return
		case f := <-a.Outgoing():
			cf := can.Frame{
				ID:       f.ID,
				Length:   f.DLC,
				IsRemote: f.RTR,
			}
			copy(cf.Data[:], f.Payload())
			if err := a.tx.TransmitFrame(ctx, cf); err != nil {
				a.Error(fmt.Errorf("send error: %w", err))
			}
		}
	}
}

// FindDevices lists network interfaces that look like CAN devices.
func FindDevices() (dev []string) {
	iFaces, _ := net.Interfaces()
	for _, i := range iFaces {
		if strings.Contains(i.Name, "can") {
			dev = append(dev, i.Name)
		}
	}
	return
}
