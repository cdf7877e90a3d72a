package slot

import "fmt"

// Directory is the startup snapshot of a Peripheral. Directions are captured
// once; identifiers are read live so rebinds are always visible.
type Directory struct {
	p        Peripheral
	dirs     []Direction
	inbound  []int
	outbound []int
}

// NewDirectory enumerates p.
func NewDirectory(p Peripheral) *Directory {
	n := p.Count()
	d := &Directory{
		p:    p,
		dirs: make([]Direction, n),
	}
	for i := 0; i < n; i++ {
		dir := p.Direction(i)
		d.dirs[i] = dir
		switch dir {
		case Inbound:
			d.inbound = append(d.inbound, i)
		case Outbound:
			d.outbound = append(d.outbound, i)
		}
	}
	return d
}

func (d *Directory) Peripheral() Peripheral { return d.p }

func (d *Directory) Count() int { return len(d.dirs) }

// Inbound returns the indices of receive objects in pool order.
func (d *Directory) Inbound() []int { return d.inbound }

// Outbound returns the indices of transmit objects in pool order.
func (d *Directory) Outbound() []int { return d.outbound }

func (d *Directory) valid(i int) bool { return i >= 0 && i < len(d.dirs) }

// Direction returns the captured direction, Unused when i is out of range.
func (d *Directory) Direction(i int) Direction {
	if !d.valid(i) {
		return Unused
	}
	return d.dirs[i]
}

func (d *Directory) SlotAt(i int) (Slot, error) {
	if !d.valid(i) {
		return Slot{}, fmt.Errorf("%w: %d", ErrIndex, i)
	}
	return Slot{
		Index:     i,
		Direction: d.dirs[i],
		ID:        d.p.Identifier(i),
		Mask:      d.p.Mask(i),
		Status:    d.p.Status(i),
	}, nil
}

// Snapshot returns a view of every object.
func (d *Directory) Snapshot() []Slot {
	out := make([]Slot, 0, len(d.dirs))
	for i := range d.dirs {
		s, _ := d.SlotAt(i)
		out = append(out, s)
	}
	return out
}

// FindInbound returns the first receive object accepted by pred, or -1.
func (d *Directory) FindInbound(pred func(Slot) bool) int {
	return d.find(d.inbound, pred)
}

// FindOutbound returns the first transmit object accepted by pred, or -1.
func (d *Directory) FindOutbound(pred func(Slot) bool) int {
	return d.find(d.outbound, pred)
}

func (d *Directory) find(idx []int, pred func(Slot) bool) int {
	for _, i := range idx {
		s, _ := d.SlotAt(i)
		if pred == nil || pred(s) {
			return i
		}
	}
	return -1
}

// IsFree reports whether i is a transmit object with no transmission pending.
func (d *Directory) IsFree(i int) bool {
	if d.Direction(i) != Outbound {
		return false
	}
	return d.p.Status(i)&TxPending == 0
}

// FirstFreeOutbound returns the first idle transmit object, or -1.
func (d *Directory) FirstFreeOutbound() int {
	for _, i := range d.outbound {
		if d.IsFree(i) {
			return i
		}
	}
	return -1
}

// Rebind points object i at id/mask and re-arms it. Nothing is touched when
// the object already carries both values.
func (d *Directory) Rebind(i int, id, mask uint32) error {
	if !d.valid(i) {
		return fmt.Errorf("%w: %d", ErrIndex, i)
	}
	if d.dirs[i] == Unused {
		return fmt.Errorf("%w: object %d is unused", ErrDirection, i)
	}
	if d.dirs[i] == Outbound {
		mask = 0x7FF
	}
	if d.p.Identifier(i) == id && d.p.Mask(i) == mask {
		return nil
	}
	return d.p.Program(i, id, mask)
}
