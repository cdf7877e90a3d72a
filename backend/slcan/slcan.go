// Package slcan drives Lawicel/CANable style serial-line CAN adapters.
package slcan

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/mocan/backend"
	"github.com/roffe/mocan/pkg/frame"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

func init() {
	if err := backend.Register(&backend.Info{
		Name:               "slcan",
		Description:        "Lawicel / CANable SLCAN adapter",
		RequiresSerialPort: true,
		New:                New,
	}); err != nil {
		panic(err)
	}
}

type SLCan struct {
	*backend.Base
	port   serial.Port
	closed bool
}

func New(cfg *backend.Config) (backend.Backend, error) {
	if cfg.PortBaudrate == 0 {
		cfg.PortBaudrate = 115200
	}
	return &SLCan{
		Base: backend.NewBase("slcan", cfg),
	}, nil
}

// rateCommand returns the Sn command for a bitrate in kbit/s.
func rateCommand(kbit uint) (string, error) {
	switch kbit {
	case 10:
		return "S0", nil
	case 20:
		return "S1", nil
	case 50:
		return "S2", nil
	case 100:
		return "S3", nil
	case 125:
		return "S4", nil
	case 250:
		return "S5", nil
	case 500:
		return "S6", nil
	case 800:
		return "S7", nil
	case 1000:
		return "S8", nil
	}
	return "", fmt.Errorf("unsupported rate: %d kbit", kbit)
}

func (sl *SLCan) Open(ctx context.Context) error {
	rate, err := rateCommand(sl.Cfg.Bitrate)
	if err != nil {
		return err
	}
	portName, err := FindPort(sl.Cfg.Port)
	if err != nil {
		return err
	}
	mode := &serial.Mode{
		BaudRate: sl.Cfg.PortBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	err = retry.Do(
		func() error {
			p, err := serial.Open(portName, mode)
			if err != nil {
				var perr *serial.PortError
				if errors.As(err, &perr) && perr.Code() == serial.PortNotFound {
					return backend.Unrecoverable(err)
				}
				return err
			}
			sl.port = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.RetryIf(backend.IsRecoverable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("attempt", n+1).Warn("open serial port")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to open com port %q: %w", portName, err)
	}
	if err := sl.port.SetReadTimeout(3 * time.Millisecond); err != nil {
		return err
	}
	sl.port.ResetOutputBuffer()
	sl.port.ResetInputBuffer()

	// close any open channel left from a previous session
	for _, cmd := range []string{"C", rate, "V", "O"} {
		if _, err := sl.port.Write([]byte(cmd + "\r")); err != nil {
			return fmt.Errorf("failed to write %s: %w", cmd, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	go sl.sendManager(ctx)
	go sl.recvManager(ctx)
	return nil
}

func (sl *SLCan) Close() error {
	sl.Base.Close()
	sl.closed = true
	if sl.port == nil {
		return nil
	}
	time.Sleep(10 * time.Millisecond)
	sl.port.Write([]byte("C\r"))
	time.Sleep(10 * time.Millisecond)
	return sl.port.Close()
}

// PollStatus asks the adapter for its status flags.
func (sl *SLCan) PollStatus() error {
	if sl.port == nil {
		return backend.ErrClosed
	}
	_, err := sl.port.Write([]byte("F\r"))
	return err
}

func (sl *SLCan) recvManager(ctx context.Context) {
	buf := make([]byte, 0, 64)
	readBuf := make([]byte, 32)
	for ctx.Err() == nil {
		n, err := sl.port.Read(readBuf)
		if err != nil {
			if !sl.closed {
				sl.Fatal(fmt.Errorf("failed to read com port: %w", err))
			}
			return
		}
		if n == 0 {
			continue
		}
		buf = sl.parse(buf, readBuf[:n])
	}
}

func (sl *SLCan) sendManager(ctx context.Context) {
	outBuf := make([]byte, 0, 32)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sl.Closed():
			return
		case f := <-sl.Outgoing():
			outBuf = encodeFrame(outBuf[:0], f)
			if _, err := sl.port.Write(outBuf); err != nil {
				sl.Error(fmt.Errorf("failed to write to com port: %w", err))
				continue
			}
			if sl.Cfg.Debug {
				sl.Debug(">> " + string(outBuf[:len(outBuf)-1]))
			}
		}
	}
}

// encodeFrame appends the SLCAN form of f to buf:
// 't' + 3 hex digit id + dlc digit + data as hex + '\r', or 'r' for RTR.
func encodeFrame(buf []byte, f frame.Frame) []byte {
	if f.RTR {
		buf = append(buf, 'r')
	} else {
		buf = append(buf, 't')
	}
	id := f.ID & frame.MaxStdID
	buf = append(buf, nybbleToHex(byte(id>>8)&0xF), nybbleToHex(byte(id>>4)&0xF), nybbleToHex(byte(id)&0xF))
	buf = append(buf, nybbleToHex(f.DLC&0xF))
	if !f.RTR {
		for _, b := range f.Payload() {
			buf = append(buf, nybbleToHex(b>>4), nybbleToHex(b&0xF))
		}
	}
	return append(buf, '\r')
}

func nybbleToHex(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}

// parse splits the byte stream at CR and returns any partial record.
func (sl *SLCan) parse(buf, readBuf []byte) []byte {
	for _, b := range readBuf {
		switch b {
		case '\r':
			if len(buf) > 0 {
				sl.handleRecord(buf)
			}
			buf = buf[:0]
		case '\a':
			sl.Warn("command rejected by adapter")
			buf = buf[:0]
		default:
			buf = append(buf, b)
		}
	}
	return buf
}

func (sl *SLCan) handleRecord(rec []byte) {
	switch rec[0] {
	case 't', 'r':
		if sl.Cfg.Debug {
			sl.Debug("<< " + string(rec))
		}
		f, err := decodeFrame(rec)
		if err != nil {
			sl.Cfg.OnMessage(fmt.Sprintf("%v: %X", err, rec))
			return
		}
		sl.Deliver(f)
	case 'T', 'R':
		sl.Warn("extended frame ignored: " + string(rec))
	case 'F':
		for _, err := range decodeStatus(rec) {
			sl.Warn(err.Error())
		}
	case 'V':
		hw, sw, err := decodeVersion(rec)
		if err != nil {
			sl.Warn(err.Error())
			return
		}
		sl.Info(fmt.Sprintf("adapter hardware %d software %d", hw, sw))
	case 'z', 'Z':
		// transmit ack
	default:
		sl.Warn("unknown: " + string(rec))
	}
}

func decodeFrame(rec []byte) (frame.Frame, error) {
	if len(rec) < 5 {
		return frame.Frame{}, fmt.Errorf("short frame record")
	}
	id, err := strconv.ParseUint(string(rec[1:4]), 16, 32)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("failed to decode identifier: %v", err)
	}
	dlc, err := strconv.ParseUint(string(rec[4]), 16, 8)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("failed to decode data length: %v", err)
	}
	if dlc > frame.MaxDLC {
		return frame.Frame{}, fmt.Errorf("invalid data length: %d", dlc)
	}
	f := frame.Frame{ID: uint32(id), DLC: uint8(dlc), RTR: rec[0] == 'r'}
	if f.RTR {
		return f, nil
	}
	if len(rec) < 5+int(dlc)*2 {
		return frame.Frame{}, fmt.Errorf("frame body too short")
	}
	if _, err := hex.Decode(f.Data[:], rec[5:5+dlc*2]); err != nil {
		return frame.Frame{}, fmt.Errorf("failed to decode frame body: %v", err)
	}
	return f, nil
}
