// Package session implements one match: seat membership, routing of
// in-session actions to the board and broadcasting what changed.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tabletop-sync-server/board"
	"tabletop-sync-server/domain"
)

// Seats is the number of players a session can hold.
const Seats = 4

var (
	ErrFull          = fmt.Errorf("%w: session full", domain.ErrProtocol)
	ErrNotSeated     = fmt.Errorf("%w: connection not seated", domain.ErrProtocol)
	ErrUnexpected    = fmt.Errorf("%w: unexpected message", domain.ErrProtocol)
	ErrMissingThing  = fmt.Errorf("%w: missing thingIndex", domain.ErrProtocol)
	ErrMissingTarget = fmt.Errorf("%w: missing targetSlot", domain.ErrProtocol)
)

type Options struct {
	// GracePeriod is how long an empty session survives before it may be swept.
	GracePeriod time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

// Session is safe for concurrent use; every operation runs under its lock,
// so a claim or move is fully applied before the next one is observed.
type Session struct {
	id     string
	grace  time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	seats   [Seats]domain.Connection
	board   *board.Board
	expiry  time.Time
	expires bool
}

func New(id string, b *board.Board, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		id:     id,
		grace:  opts.GracePeriod,
		now:    opts.Now,
		logger: opts.Logger.With(zap.String("session", id)),
		board:  b,
	}
}

func (s *Session) ID() string { return s.id }

// Join seats conn in the lowest free seat, sends it the full board and
// announces it to the other members. The session stops expiring.
func (s *Session) Join(conn domain.Connection) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat := domain.NoSeat
	for i, c := range s.seats {
		if c == nil {
			seat = i
			break
		}
	}
	if seat == domain.NoSeat {
		return domain.NoSeat, fmt.Errorf("%w: %s", ErrFull, s.id)
	}

	s.seats[seat] = conn
	s.expires = false

	s.send(conn, Event{
		Type:      EventJoined,
		SessionID: s.id,
		Seat:      &seat,
		Players:   s.players(),
		Things:    thingStates(s.board, s.board.Things()),
	})
	s.broadcastExcept(conn, Event{Type: EventPlayerJoined, Seat: &seat})

	s.logger.Info("player joined", zap.Int("seat", seat), zap.String("conn", conn.ID()))
	return seat, nil
}

// Leave frees the seat held by conn and releases its claims. It reports
// whether conn was seated, so calling it twice is harmless. When the last
// seat empties the session expires after the grace period.
func (s *Session) Leave(conn domain.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat := s.seatOf(conn)
	if seat == domain.NoSeat {
		return false
	}
	s.seats[seat] = nil

	if s.board.ReleaseSeat(seat) > 0 {
		s.flush()
	}
	s.broadcast(Event{Type: EventPlayerLeft, Seat: &seat})

	if s.occupied() == 0 {
		s.expiry = s.now().Add(s.grace)
		s.expires = true
	}
	s.logger.Info("player left", zap.Int("seat", seat), zap.String("conn", conn.ID()))
	return true
}

// OnMessage applies one in-session action from c and broadcasts the
// things it changed.
func (s *Session) OnMessage(c *domain.Client, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Seat < 0 || c.Seat >= Seats || s.seats[c.Seat] != c.Conn {
		return fmt.Errorf("%w: %s seat %d", ErrNotSeated, s.id, c.Seat)
	}

	label := msg.Type
	if !routed(msg.Type) {
		label = "other"
	}
	err := s.route(c.Seat, msg)
	if err != nil {
		actions.WithLabelValues(label, domain.KindOf(err)).Inc()
		return err
	}
	actions.WithLabelValues(label, "ok").Inc()
	s.flush()
	return nil
}

func routed(typ string) bool {
	switch typ {
	case domain.TypeHold, domain.TypeShift, domain.TypeRelease, domain.TypeMove, domain.TypeFlip:
		return true
	}
	return false
}

func (s *Session) route(seat int, msg domain.Message) error {
	if !routed(msg.Type) {
		return fmt.Errorf("%w: %q", ErrUnexpected, msg.Type)
	}
	if msg.ThingIndex == nil {
		return fmt.Errorf("%w: %s", ErrMissingThing, msg.Type)
	}
	idx := *msg.ThingIndex

	switch msg.Type {
	case domain.TypeHold:
		return s.board.Hold(seat, idx)
	case domain.TypeRelease:
		return s.board.Release(seat, idx)
	case domain.TypeFlip:
		return s.board.Flip(seat, idx, msg.RotationIndex)
	}

	if msg.TargetSlot == "" {
		return fmt.Errorf("%w: %s", ErrMissingTarget, msg.Type)
	}
	if msg.Type == domain.TypeShift {
		return s.board.ShiftTo(seat, idx, msg.TargetSlot)
	}
	return s.board.MoveTo(seat, idx, msg.TargetSlot, msg.RotationIndex)
}

// Expired reports whether the session is empty and its grace period ended
// at or before now.
func (s *Session) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires && !s.expiry.After(now)
}

// ExpiresAt returns the expiry time, if one is set.
func (s *Session) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry, s.expires
}

// Players returns the number of occupied seats.
func (s *Session) Players() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied()
}

// Close disconnects every member.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.seats {
		if c != nil {
			c.Close()
		}
	}
}

// flush broadcasts the dirty things and clears their flags.
func (s *Session) flush() {
	dirty := s.board.TakeDirty()
	if len(dirty) == 0 {
		return
	}
	s.broadcast(Event{Type: EventUpdate, Things: thingStates(s.board, dirty)})
}

func (s *Session) broadcast(ev Event) { s.broadcastExcept(nil, ev) }

func (s *Session) broadcastExcept(skip domain.Connection, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	for _, c := range s.seats {
		if c == nil || c == skip {
			continue
		}
		s.deliver(c, data)
	}
}

func (s *Session) send(c domain.Connection, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	s.deliver(c, data)
}

// deliver never blocks. A member whose buffer is full is dropped; its
// disconnect path frees the seat.
func (s *Session) deliver(c domain.Connection, data []byte) {
	if err := c.Send(data); err != nil {
		droppedFrames.Inc()
		s.logger.Warn("send failed, closing connection", zap.String("conn", c.ID()), zap.Error(err))
		c.Close()
	}
}

func (s *Session) seatOf(conn domain.Connection) int {
	for i, c := range s.seats {
		if c != nil && c == conn {
			return i
		}
	}
	return domain.NoSeat
}

func (s *Session) occupied() int {
	n := 0
	for _, c := range s.seats {
		if c != nil {
			n++
		}
	}
	return n
}

func (s *Session) players() []bool {
	out := make([]bool, Seats)
	for i, c := range s.seats {
		out[i] = c != nil
	}
	return out
}
