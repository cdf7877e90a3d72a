// pkg/config/validate.go
package config

import (
	"fmt"

	"github.com/roffe/mocan/pkg/cobid"
	"github.com/roffe/mocan/pkg/slot"
)

var bitrates = map[uint]bool{10: true, 20: true, 50: true, 125: true, 250: true, 500: true, 800: true, 1000: true}

// minTx covers EMCY, heartbeat, SDO response and four TPDOs.
var minTx = len(cobid.Outbound())

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
// Zero values that Normalize fills in are accepted.
func Validate(cfg *Config) error {
	b := cfg.Board

	if b.NodeID != 0 {
		if err := cobid.ValidNode(b.NodeID); err != nil {
			return fmt.Errorf("board: %w", err)
		}
	}
	if b.Bitrate != 0 && !bitrates[b.Bitrate] {
		return fmt.Errorf("board: bitrate %d kbit not supported", b.Bitrate)
	}
	if b.RxBuffers < 0 || b.TxBuffers < 0 || b.HeartbeatMs < 0 || b.PortBaudrate < 0 {
		return fmt.Errorf("board: negative sizes are not allowed")
	}

	var rx, tx int
	for i, s := range b.Slots {
		dir, err := slot.ParseDirection(s.Dir)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		if s.ID > 0x7FF {
			return fmt.Errorf("slot %d: identifier 0x%X exceeds 11 bits", i, s.ID)
		}
		if s.Mask > 0x7FF {
			return fmt.Errorf("slot %d: mask 0x%X exceeds 11 bits", i, s.Mask)
		}
		switch dir {
		case slot.Inbound:
			rx++
		case slot.Outbound:
			if s.Mask != 0 && s.Mask != 0x7FF {
				return fmt.Errorf("slot %d: transmit objects take no mask", i)
			}
			tx++
		}
	}
	if len(b.Slots) > 0 && (rx < 1 || tx < minTx) {
		return fmt.Errorf("board: %d rx and %d tx objects, need at least 1 and %d", rx, tx, minTx)
	}
	return nil
}
