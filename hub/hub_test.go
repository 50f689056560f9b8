package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"tabletop-sync-server/board"
	"tabletop-sync-server/domain"
)

type mockConn struct {
	id       string
	received [][]byte
	closed   bool
	mu       sync.Mutex
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func testLayout(t require.TestingT) *board.Layout {
	l, err := board.DefaultLayout()
	require.NoError(t, err)
	return l
}

// sequence replays ids in order, repeating the last one.
func sequence(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i]
		if i < len(ids)-1 {
			i++
		}
		return id
	}
}

func TestRandomID(t *testing.T) {
	id := RandomID()
	assert.Len(t, id, idLength)
	for _, r := range id {
		assert.Contains(t, idAlphabet, string(r))
	}
}

func TestHub_CreateRegeneratesOnCollision(t *testing.T) {
	h := New(Options{Layout: testLayout(t), NewID: sequence("aaa", "aaa", "aaa", "bbb")})

	s1, seat, err := h.Create(&mockConn{id: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "aaa", s1.ID())
	assert.Equal(t, 0, seat)

	s2, _, err := h.Create(&mockConn{id: "c2"})
	require.NoError(t, err)
	assert.Equal(t, "bbb", s2.ID())

	sessions, players := h.Stats()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 2, players)
}

func TestHub_Lookup(t *testing.T) {
	h := New(Options{Layout: testLayout(t)})
	s, _, err := h.Create(&mockConn{id: "c1"})
	require.NoError(t, err)

	got, err := h.Lookup(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = h.Lookup("nonexistent")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHub_Join(t *testing.T) {
	h := New(Options{Layout: testLayout(t)})
	s, _, err := h.Create(&mockConn{id: "c1"})
	require.NoError(t, err)

	got, seat, err := h.Join(s.ID(), &mockConn{id: "c2"})
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, seat)

	_, _, err = h.Join("nope", &mockConn{id: "c3"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHub_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	h := New(Options{Layout: testLayout(t), GracePeriod: 30 * time.Second, Now: clock.Now})

	conn := &mockConn{id: "c1"}
	s, _, err := h.Create(conn)
	require.NoError(t, err)
	busy, _, err := h.Create(&mockConn{id: "c2"})
	require.NoError(t, err)

	assert.Empty(t, h.Sweep(clock.Now().Add(time.Hour)), "occupied sessions never expire")

	require.True(t, s.Leave(conn))
	clock.Advance(29 * time.Second)
	assert.Empty(t, h.Sweep(clock.Now()))

	before := testutil.ToFloat64(sessionsExpired)
	clock.Advance(time.Second)
	assert.Equal(t, []string{s.ID()}, h.Sweep(clock.Now()))
	assert.Empty(t, h.Sweep(clock.Now()), "repeated sweep is a no-op")
	assert.Equal(t, before+1, testutil.ToFloat64(sessionsExpired))

	_, err = h.Lookup(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.Lookup(busy.ID())
	assert.NoError(t, err)
}

func TestHub_Remove(t *testing.T) {
	h := New(Options{Layout: testLayout(t)})
	conn := &mockConn{id: "c1"}
	s, _, err := h.Create(conn)
	require.NoError(t, err)

	assert.True(t, h.Remove(s.ID()))
	assert.True(t, conn.isClosed())
	assert.False(t, h.Remove(s.ID()))

	sessions, _ := h.Stats()
	assert.Equal(t, 0, sessions)
}

func TestHub_Run(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	h := New(Options{Layout: testLayout(t), Now: clock.Now})
	conn := &mockConn{id: "c1"}
	s, _, err := h.Create(conn)
	require.NoError(t, err)
	s.Leave(conn)
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		sessions, _ := h.Stats()
		return sessions == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestProperty_SessionIDsUnique(t *testing.T) {
	layout := testLayout(t)
	rapid.Check(t, func(t *rapid.T) {
		// A two-letter alphabet forces frequent collisions.
		candidates := rapid.SliceOfN(rapid.StringMatching(`[ab]{3}`), 1, 32).Draw(t, "ids")
		next := 0
		gen := func() string {
			next++
			if next <= len(candidates) {
				return candidates[next-1]
			}
			return fmt.Sprintf("z%d", next)
		}
		h := New(Options{Layout: layout, NewID: gen})

		n := rapid.IntRange(1, 8).Draw(t, "sessions")
		seen := make(map[string]bool)
		for i := 0; i < n; i++ {
			s, _, err := h.Create(&mockConn{id: fmt.Sprintf("c%d", i)})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if seen[s.ID()] {
				t.Fatalf("duplicate session id %q", s.ID())
			}
			seen[s.ID()] = true
		}
	})
}
