package session

import "tabletop-sync-server/board"

const (
	EventJoined       = "JOINED"
	EventPlayerJoined = "PLAYER_JOINED"
	EventPlayerLeft   = "PLAYER_LEFT"
	EventUpdate       = "UPDATE"
)

// Event is the outbound envelope.
type Event struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	Seat      *int         `json:"seat,omitempty"`
	Players   []bool       `json:"players,omitempty"`
	Things    []ThingState `json:"things,omitempty"`
}

// ThingState carries every attribute of a thing as clients see it.
type ThingState struct {
	Index         int             `json:"index"`
	Type          board.ThingType `json:"type"`
	TypeIndex     int             `json:"typeIndex"`
	SortKey       float64         `json:"sortKey"`
	Slot          string          `json:"slot"`
	RotationIndex int             `json:"rotationIndex"`
	ClaimedBy     *int            `json:"claimedBy"`
	ShiftSlot     *string         `json:"shiftSlot"`
	HeldRotation  *board.Rotation `json:"heldRotation,omitempty"`
}

func thingState(b *board.Board, t *board.Thing) ThingState {
	ts := ThingState{
		Index:         t.Index,
		Type:          t.Type,
		TypeIndex:     t.TypeIndex,
		SortKey:       t.SortKey(),
		Slot:          b.Slot(t.Slot()).Name,
		RotationIndex: t.RotationIndex,
	}
	if t.Claimed() {
		seat := t.ClaimedBy
		held := t.HeldRotation
		ts.ClaimedBy = &seat
		ts.HeldRotation = &held
	}
	if t.ShiftSlot() != board.None {
		name := b.Slot(t.ShiftSlot()).Name
		ts.ShiftSlot = &name
	}
	return ts
}

func thingStates(b *board.Board, things []*board.Thing) []ThingState {
	out := make([]ThingState, len(things))
	for i, t := range things {
		out[i] = thingState(b, t)
	}
	return out
}
