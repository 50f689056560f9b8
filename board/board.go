// Package board holds the slots and things of one match and enforces the
// claim, preview and commit rules for moving things between slots.
package board

import (
	"fmt"

	"tabletop-sync-server/domain"
)

// None marks an absent slot, thing or seat reference.
const None = -1

// Rotation is an Euler triple in radians.
type Rotation [3]float64

type ThingType string

const (
	Tile   ThingType = "tile"
	Stick  ThingType = "stick"
	Marker ThingType = "marker"
)

// Slot is a fixed location that holds at most one thing.
type Slot struct {
	Name      string
	Position  [3]float64
	Rotations []Rotation

	occupant int
}

// Occupant returns the index of the thing in the slot, or None.
func (s *Slot) Occupant() int { return s.occupant }

type Thing struct {
	Index         int
	Type          ThingType
	TypeIndex     int
	RotationIndex int

	// ClaimedBy is the holding seat, or None when the thing is free.
	ClaimedBy int
	// HeldRotation is the pose captured by the latest hold.
	HeldRotation Rotation

	slot      int
	shiftSlot int
	dirty     bool
}

// Slot returns the index of the slot the thing occupies.
func (t *Thing) Slot() int { return t.slot }

// ShiftSlot returns the pending target slot while claimed, or None.
func (t *Thing) ShiftSlot() int { return t.shiftSlot }

func (t *Thing) Claimed() bool { return t.ClaimedBy != None }

func (t *Thing) Dirty() bool { return t.dirty }

// SortKey orders things of the same type for display.
func (t *Thing) SortKey() float64 { return SortKey(t.Type, t.TypeIndex) }

var (
	ErrUnknownThing = fmt.Errorf("%w: unknown thing", domain.ErrProtocol)
	ErrUnknownSlot  = fmt.Errorf("%w: unknown slot", domain.ErrProtocol)
	ErrClaimed      = fmt.Errorf("%w: thing claimed by another seat", domain.ErrConflict)
	ErrSlotOccupied = fmt.Errorf("%w: slot not empty", domain.ErrConflict)
)

// Board owns the slots and things of a session. Things and slots refer to
// each other by index only. Board is not safe for concurrent use; the
// owning session serializes access.
type Board struct {
	slots      []Slot
	slotByName map[string]int
	things     []Thing
}

func (b *Board) SlotCount() int  { return len(b.slots) }
func (b *Board) ThingCount() int { return len(b.things) }

// Slot returns the slot at index i. The pointer is only valid until the
// next mutation of the board.
func (b *Board) Slot(i int) *Slot { return &b.slots[i] }

func (b *Board) Thing(i int) *Thing { return &b.things[i] }

// SlotIndex resolves a slot name.
func (b *Board) SlotIndex(name string) (int, error) {
	i, ok := b.slotByName[name]
	if !ok {
		return None, fmt.Errorf("%w %q", ErrUnknownSlot, name)
	}
	return i, nil
}

func (b *Board) thing(index int) (*Thing, error) {
	if index < 0 || index >= len(b.things) {
		return nil, fmt.Errorf("%w %d", ErrUnknownThing, index)
	}
	return &b.things[index], nil
}

// owned fails when the thing is claimed by a seat other than seat.
func (t *Thing) owned(seat int) error {
	if t.ClaimedBy != None && t.ClaimedBy != seat {
		return fmt.Errorf("%w: thing %d held by seat %d", ErrClaimed, t.Index, t.ClaimedBy)
	}
	return nil
}

// Hold claims a thing for seat. Holding again from the same seat only
// re-captures the current pose.
func (b *Board) Hold(seat, index int) error {
	t, err := b.thing(index)
	if err != nil {
		return err
	}
	if err := t.owned(seat); err != nil {
		return err
	}
	t.ClaimedBy = seat
	t.HeldRotation = b.rotation(t)
	t.dirty = true
	return nil
}

// ShiftTo records a candidate destination for a claimed thing without
// touching slot occupancy. A free thing is claimed by seat first.
func (b *Board) ShiftTo(seat, index int, slotName string) error {
	t, err := b.thing(index)
	if err != nil {
		return err
	}
	target, err := b.SlotIndex(slotName)
	if err != nil {
		return err
	}
	if err := t.owned(seat); err != nil {
		return err
	}
	if t.ClaimedBy == None {
		t.HeldRotation = b.rotation(t)
	}
	t.ClaimedBy = seat
	t.shiftSlot = target
	t.dirty = true
	return nil
}

// Release puts a claimed thing back, discarding any pending target.
// Releasing a free thing is a no-op.
func (b *Board) Release(seat, index int) error {
	t, err := b.thing(index)
	if err != nil {
		return err
	}
	if err := t.owned(seat); err != nil {
		return err
	}
	if !t.Claimed() {
		return nil
	}
	t.ClaimedBy = None
	t.shiftSlot = None
	t.dirty = true
	return nil
}

// MoveTo commits a thing to slotName. The target must be empty or already
// hold this thing. rotationIndex defaults to 0 when nil.
func (b *Board) MoveTo(seat, index int, slotName string, rotationIndex *int) error {
	t, err := b.thing(index)
	if err != nil {
		return err
	}
	target, err := b.SlotIndex(slotName)
	if err != nil {
		return err
	}
	if err := t.owned(seat); err != nil {
		return err
	}
	if occ := b.slots[target].occupant; occ != None && occ != t.Index {
		return fmt.Errorf("%w: %q holds thing %d", ErrSlotOccupied, slotName, occ)
	}

	r := 0
	if rotationIndex != nil {
		r = wrap(*rotationIndex, len(b.slots[target].Rotations))
	}

	b.slots[t.slot].occupant = None
	t.slot = target
	b.slots[target].occupant = t.Index
	t.RotationIndex = r
	t.ClaimedBy = None
	t.shiftSlot = None
	t.dirty = true
	return nil
}

// Flip sets the rotation to rotationIndex, or advances it by one when nil,
// wrapping around the slot's rotations.
func (b *Board) Flip(seat, index int, rotationIndex *int) error {
	t, err := b.thing(index)
	if err != nil {
		return err
	}
	if err := t.owned(seat); err != nil {
		return err
	}
	r := t.RotationIndex + 1
	if rotationIndex != nil {
		r = *rotationIndex
	}
	t.RotationIndex = wrap(r, len(b.slots[t.slot].Rotations))
	t.dirty = true
	return nil
}

// ReleaseSeat frees every thing claimed by seat and reports how many.
func (b *Board) ReleaseSeat(seat int) int {
	n := 0
	for i := range b.things {
		t := &b.things[i]
		if t.ClaimedBy == seat {
			t.ClaimedBy = None
			t.shiftSlot = None
			t.dirty = true
			n++
		}
	}
	return n
}

// TakeDirty returns the things changed since the last call and clears
// their flags.
func (b *Board) TakeDirty() []*Thing {
	var out []*Thing
	for i := range b.things {
		t := &b.things[i]
		if t.dirty {
			out = append(out, t)
			t.dirty = false
		}
	}
	return out
}

// Things returns every thing in index order.
func (b *Board) Things() []*Thing {
	out := make([]*Thing, len(b.things))
	for i := range b.things {
		out[i] = &b.things[i]
	}
	return out
}

func (b *Board) rotation(t *Thing) Rotation {
	rots := b.slots[t.slot].Rotations
	if len(rots) == 0 {
		return Rotation{}
	}
	return rots[t.RotationIndex]
}

func wrap(r, n int) int {
	if n <= 0 {
		return 0
	}
	r %= n
	if r < 0 {
		r += n
	}
	return r
}
