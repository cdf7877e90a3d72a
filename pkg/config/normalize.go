// pkg/config/normalize.go
package config

import "github.com/roffe/mocan/pkg/slot"

const (
	DefaultNodeID       = 10
	DefaultBitrate      = 500
	DefaultBackend      = "virtual"
	DefaultPortBaudrate = 115200
	DefaultHeartbeatMs  = 1000
	DefaultBuffers      = 16
)

// Normalize fills defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	b := &cfg.Board
	if b.NodeID == 0 {
		b.NodeID = DefaultNodeID
	}
	if b.Bitrate == 0 {
		b.Bitrate = DefaultBitrate
	}
	if b.Backend == "" {
		b.Backend = DefaultBackend
	}
	if b.PortBaudrate == 0 {
		b.PortBaudrate = DefaultPortBaudrate
	}
	if b.HeartbeatMs == 0 {
		b.HeartbeatMs = DefaultHeartbeatMs
	}
	if b.RxBuffers == 0 {
		b.RxBuffers = DefaultBuffers
	}
	if b.TxBuffers == 0 {
		b.TxBuffers = DefaultBuffers
	}
	if len(b.Slots) == 0 {
		b.Slots = Default().Board.Slots
	}
	for i := range b.Slots {
		if dir, _ := slot.ParseDirection(b.Slots[i].Dir); dir == slot.Outbound {
			b.Slots[i].Mask = 0x7FF
		}
	}
}
