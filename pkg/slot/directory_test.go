package slot_test

import (
	"errors"
	"testing"

	"github.com/roffe/mocan/pkg/sim"
	"github.com/roffe/mocan/pkg/slot"
)

func layout() []slot.Config {
	return []slot.Config{
		{Direction: slot.Outbound, ID: 0x080},
		{Direction: slot.Inbound, ID: 0x000, Mask: 0x7FF},
		{Direction: slot.Outbound, ID: 0x180},
		{Direction: slot.Unused},
		{Direction: slot.Inbound, ID: 0x600, Mask: 0x7FF},
	}
}

func TestDirectoryClassifies(t *testing.T) {
	d := slot.NewDirectory(sim.New(layout()))
	if d.Count() != 5 {
		t.Fatalf("Count() = %d", d.Count())
	}
	if got := d.Inbound(); len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("Inbound() = %v", got)
	}
	if got := d.Outbound(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("Outbound() = %v", got)
	}
	if _, err := d.SlotAt(5); !errors.Is(err, slot.ErrIndex) {
		t.Fatalf("SlotAt(5) = %v", err)
	}
	s, err := d.SlotAt(4)
	if err != nil || s.ID != 0x600 || s.Direction != slot.Inbound {
		t.Fatalf("SlotAt(4) = %v, %v", s, err)
	}
	if len(d.Snapshot()) != 5 {
		t.Fatal("Snapshot() incomplete")
	}
}

func TestFind(t *testing.T) {
	d := slot.NewDirectory(sim.New(layout()))
	if i := d.FindInbound(func(s slot.Slot) bool { return s.ID == 0x600 }); i != 4 {
		t.Fatalf("FindInbound(0x600) = %d", i)
	}
	if i := d.FindInbound(func(s slot.Slot) bool { return s.ID == 0x180 }); i != -1 {
		t.Fatalf("FindInbound matched a transmit object: %d", i)
	}
	if i := d.FindOutbound(func(s slot.Slot) bool { return s.ID == 0x180 }); i != 2 {
		t.Fatalf("FindOutbound(0x180) = %d", i)
	}
}

func TestFirstFreeOutbound(t *testing.T) {
	p := sim.New(layout())
	d := slot.NewDirectory(p)
	if i := d.FirstFreeOutbound(); i != 0 {
		t.Fatalf("FirstFreeOutbound() = %d", i)
	}
	p.SetStatus(0, slot.TxPending)
	if i := d.FirstFreeOutbound(); i != 2 {
		t.Fatalf("FirstFreeOutbound() = %d, want 2", i)
	}
	p.SetStatus(2, slot.TxPending)
	if i := d.FirstFreeOutbound(); i != -1 {
		t.Fatalf("FirstFreeOutbound() = %d, want -1", i)
	}
	if d.IsFree(1) {
		t.Fatal("receive object reported free for transmit")
	}
}

func TestRebind(t *testing.T) {
	p := sim.New(layout())
	d := slot.NewDirectory(p)

	if err := d.Rebind(4, 0x60A, 0x7FF); err != nil {
		t.Fatal(err)
	}
	if p.Identifier(4) != 0x60A || p.Programs(4) != 1 {
		t.Fatalf("id 0x%03X after %d programs", p.Identifier(4), p.Programs(4))
	}

	// same values: nothing happens, pending data survives
	p.SetStatus(4, slot.NewData)
	if err := d.Rebind(4, 0x60A, 0x7FF); err != nil {
		t.Fatal(err)
	}
	if p.Programs(4) != 1 || p.Status(4)&slot.NewData == 0 {
		t.Fatal("idempotent rebind re-armed the object")
	}

	// a real change re-arms in the same step
	if err := d.Rebind(4, 0x605, 0x7FF); err != nil {
		t.Fatal(err)
	}
	if p.Status(4)&slot.NewData != 0 {
		t.Fatal("rebind did not re-arm")
	}

	if err := d.Rebind(3, 0x100, 0x7FF); !errors.Is(err, slot.ErrDirection) {
		t.Fatalf("Rebind(unused) = %v", err)
	}
	if err := d.Rebind(9, 0x100, 0x7FF); !errors.Is(err, slot.ErrIndex) {
		t.Fatalf("Rebind(9) = %v", err)
	}
	// transmit objects always match exactly
	if err := d.Rebind(0, 0x08A, 0); err != nil {
		t.Fatal(err)
	}
	if p.Mask(0) != 0x7FF {
		t.Fatalf("transmit mask = 0x%03X", p.Mask(0))
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]slot.Direction{"rx": slot.Inbound, "TX": slot.Outbound, "": slot.Unused} {
		got, err := slot.ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := slot.ParseDirection("both"); err == nil {
		t.Error("ParseDirection(both) = nil error")
	}
}
