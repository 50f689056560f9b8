package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: fmt.Errorf("%w: bad envelope", ErrProtocol), want: "protocol"},
		{err: fmt.Errorf("%w: session", ErrNotFound), want: "not_found"},
		{err: fmt.Errorf("wrapped: %w", fmt.Errorf("%w: slot", ErrConflict)), want: "conflict"},
		{err: errors.New("boom"), want: "internal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestClient(t *testing.T) {
	c := NewClient(nil)
	assert.False(t, c.Joined())
	assert.Equal(t, NoSeat, c.Seat)

	c.SessionID, c.Seat = "abc", 2
	assert.True(t, c.Joined())

	c.Detach()
	assert.False(t, c.Joined())
	assert.Equal(t, NoSeat, c.Seat)
}
