// Package cobid derives the CANopen bus identifiers a node uses from its
// node id, and classifies received identifiers back into roles.
package cobid

import (
	"fmt"
)

const (
	MinNode = 1
	MaxNode = 127
)

// Role is a logical CANopen channel with a fixed identifier base.
type Role int

const (
	NMT Role = iota
	Sync
	Emergency
	PDOOut1
	PDOIn1
	PDOOut2
	PDOIn2
	PDOOut3
	PDOIn3
	PDOOut4
	PDOIn4
	SDOResponse
	SDORequest
	Heartbeat
	// Time is only produced by Classify.
	Time
)

type entry struct {
	name  string
	base  uint32
	fixed bool
}

var table = [...]entry{
	NMT:         {"NMT", 0x000, true},
	Sync:        {"SYNC", 0x080, true},
	Emergency:   {"EMCY", 0x080, false},
	PDOOut1:     {"TPDO1", 0x180, false},
	PDOIn1:      {"RPDO1", 0x200, false},
	PDOOut2:     {"TPDO2", 0x280, false},
	PDOIn2:      {"RPDO2", 0x300, false},
	PDOOut3:     {"TPDO3", 0x380, false},
	PDOIn3:      {"RPDO3", 0x400, false},
	PDOOut4:     {"TPDO4", 0x480, false},
	PDOIn4:      {"RPDO4", 0x500, false},
	SDOResponse: {"SDO_TX", 0x580, false},
	SDORequest:  {"SDO_RX", 0x600, false},
	Heartbeat:   {"HB", 0x700, false},
	Time:        {"TIME", 0x100, true},
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(table) {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return table[r].name
}

// Base returns the identifier base of r.
func Base(r Role) uint32 {
	return table[r].base
}

// IsFixed reports whether r ignores the node id.
func IsFixed(r Role) bool {
	return table[r].fixed
}

// Roles returns the derivable roles in table order.
func Roles() []Role {
	out := make([]Role, 0, len(table))
	for r := NMT; r <= Heartbeat; r++ {
		out = append(out, r)
	}
	return out
}

// Outbound returns the roles a node transmits on.
func Outbound() []Role {
	return []Role{Emergency, PDOOut1, PDOOut2, PDOOut3, PDOOut4, SDOResponse, Heartbeat}
}

// Inbound returns the roles a node listens on.
func Inbound() []Role {
	return []Role{NMT, SDORequest, PDOIn1, PDOIn2, PDOIn3, PDOIn4}
}

// ValidNode checks node against the CANopen node id range.
func ValidNode(node uint8) error {
	if node < MinNode || node > MaxNode {
		return fmt.Errorf("node id %d outside %d..%d", node, MinNode, MaxNode)
	}
	return nil
}

// Derive returns the identifier for role r on node. NMT and SYNC are fixed.
// Callers validate node with ValidNode.
func Derive(r Role, node uint8) uint32 {
	e := table[r]
	if e.fixed {
		return e.base
	}
	return e.base + uint32(node&0x7F)
}

// Classify maps a received identifier to a role and node. Broadcast roles
// report node 0. ok is false for identifiers outside the predefined set.
func Classify(id uint32) (r Role, node uint8, ok bool) {
	switch id {
	case 0x000:
		return NMT, 0, true
	case 0x080:
		return Sync, 0, true
	case 0x100:
		return Time, 0, true
	}
	node = uint8(id & 0x7F)
	if node == 0 || id > 0x77F {
		return 0, 0, false
	}
	base := id &^ 0x7F
	for _, r := range Roles() {
		if IsFixed(r) {
			continue
		}
		if table[r].base == base {
			return r, node, true
		}
	}
	return 0, 0, false
}

// Redirect moves id from oldNode to newNode when id is a role base or the
// identifier that role derives for oldNode. Fixed roles never move.
func Redirect(id uint32, oldNode, newNode uint8) (uint32, bool) {
	for _, r := range Roles() {
		if IsFixed(r) {
			continue
		}
		base := table[r].base
		if id == base || id == base+uint32(oldNode) {
			return Derive(r, newNode), true
		}
	}
	return id, false
}
