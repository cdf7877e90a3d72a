// pkg/config/config.go
package config

import (
	"fmt"
	"os"

	"github.com/roffe/mocan/pkg/slot"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Board BoardConfig `yaml:"board"`
}

// ---- BOARD ----

type BoardConfig struct {
	NodeID  uint8 `yaml:"node_id"`
	Bitrate uint  `yaml:"bitrate"` // kbit/s

	Backend      string `yaml:"backend"`
	Port         string `yaml:"port"`
	PortBaudrate int    `yaml:"port_baudrate"`

	RxBuffers   int `yaml:"rx_buffers"`
	TxBuffers   int `yaml:"tx_buffers"`
	HeartbeatMs int `yaml:"heartbeat_ms"`

	Slots []SlotConfig `yaml:"slots"`
}

// ---- MESSAGE OBJECTS ----

type SlotConfig struct {
	Dir  string `yaml:"dir"` // rx | tx
	ID   uint32 `yaml:"id"`
	Mask uint32 `yaml:"mask"` // rx only, 0 accepts all
}

// Default is the XMC4800 board: LMO_01..07 transmit, LMO_08..13 receive,
// all on role bases so the node id can be applied at startup.
func Default() *Config {
	cfg := &Config{Board: BoardConfig{
		NodeID:  10,
		Bitrate: 500,
		Backend: "virtual",
	}}
	for _, id := range []uint32{0x080, 0x180, 0x280, 0x380, 0x480, 0x580, 0x700} {
		cfg.Board.Slots = append(cfg.Board.Slots, SlotConfig{Dir: "tx", ID: id})
	}
	for _, id := range []uint32{0x000, 0x600, 0x200, 0x300, 0x400, 0x500} {
		cfg.Board.Slots = append(cfg.Board.Slots, SlotConfig{Dir: "rx", ID: id, Mask: 0x7FF})
	}
	Normalize(cfg)
	return cfg
}

// Parse decodes, validates and normalizes a board file.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode board config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Layout converts the slot list for the peripheral. Call after Validate.
func (b *BoardConfig) Layout() []slot.Config {
	out := make([]slot.Config, 0, len(b.Slots))
	for _, s := range b.Slots {
		dir, _ := slot.ParseDirection(s.Dir)
		out = append(out, slot.Config{Direction: dir, ID: s.ID, Mask: s.Mask})
	}
	return out
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
