// Package hub is the session registry: it issues session ids, looks
// sessions up and sweeps the ones whose grace period has run out.
package hub

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tabletop-sync-server/board"
	"tabletop-sync-server/domain"
	"tabletop-sync-server/session"
)

var ErrSessionNotFound = fmt.Errorf("%w: session", domain.ErrNotFound)

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	idLength   = 6
)

// RandomID returns a short lowercase alphanumeric id.
func RandomID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}

type Options struct {
	Layout      *board.Layout
	GracePeriod time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
	// NewID generates candidate session ids; RandomID when nil.
	NewID func() string
}

type Hub struct {
	layout *board.Layout
	grace  time.Duration
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	sessions map[string]*session.Session
	mu       sync.RWMutex
}

func New(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = RandomID
	}
	return &Hub{
		layout:   opts.Layout,
		grace:    opts.GracePeriod,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		sessions: make(map[string]*session.Session),
	}
}

// Create starts a new session under an id no active session uses and
// seats conn in it.
func (h *Hub) Create(conn domain.Connection) (*session.Session, int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.newID()
	for {
		if _, taken := h.sessions[id]; !taken {
			break
		}
		h.logger.Debug("session id collision, regenerating", zap.String("session", id))
		id = h.newID()
	}

	s := session.New(id, board.New(h.layout), session.Options{
		GracePeriod: h.grace,
		Now:         h.now,
		Logger:      h.logger,
	})
	h.sessions[id] = s
	sessionsCreated.Inc()
	sessionsActive.Set(float64(len(h.sessions)))

	seat, err := s.Join(conn)
	if err != nil {
		delete(h.sessions, id)
		sessionsActive.Set(float64(len(h.sessions)))
		return nil, domain.NoSeat, err
	}
	h.logger.Info("session created", zap.String("session", id), zap.String("conn", conn.ID()))
	return s, seat, nil
}

func (h *Hub) Lookup(id string) (*session.Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrSessionNotFound, id)
	}
	return s, nil
}

// Join seats conn in session id. The registry stays read-locked while
// joining so a concurrent sweep cannot remove the session underneath.
func (h *Hub) Join(id string, conn domain.Connection) (*session.Session, int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[id]
	if !ok {
		return nil, domain.NoSeat, fmt.Errorf("%w %q", ErrSessionNotFound, id)
	}
	seat, err := s.Join(conn)
	if err != nil {
		return nil, domain.NoSeat, err
	}
	return s, seat, nil
}

// Remove tears a session down immediately, disconnecting its members.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
		sessionsActive.Set(float64(len(h.sessions)))
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	h.logger.Info("session removed", zap.String("session", id))
	return true
}

// Sweep deletes every session whose expiry is at or before now and returns
// their ids.
func (h *Hub) Sweep(now time.Time) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []string
	for id, s := range h.sessions {
		if s.Expired(now) {
			delete(h.sessions, id)
			removed = append(removed, id)
			h.logger.Info("deleting expired session", zap.String("session", id))
		}
	}
	if len(removed) > 0 {
		sessionsExpired.Add(float64(len(removed)))
		sessionsActive.Set(float64(len(h.sessions)))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(h.now())
		}
	}
}

func (h *Hub) Stats() (sessions, players int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions = len(h.sessions)
	for _, s := range h.sessions {
		players += s.Players()
	}
	return sessions, players
}
