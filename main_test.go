package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tabletop-sync-server/board"
	"tabletop-sync-server/hub"
	"tabletop-sync-server/protocol"
)

type nopConn struct{ id string }

func (c nopConn) ID() string             { return c.id }
func (c nopConn) Send(data []byte) error { return nil }
func (c nopConn) Close() error           { return nil }

func newTestRouter(t *testing.T) (http.Handler, *hub.Hub) {
	l, err := board.DefaultLayout()
	require.NoError(t, err)
	registry := hub.New(hub.Options{Layout: l})
	handler := protocol.NewHandler(registry, zap.NewNop(), protocol.Options{})
	return newRouter(registry, handler, zap.NewNop()), registry
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_Stats(t *testing.T) {
	router, registry := newTestRouter(t)
	_, _, err := registry.Create(nopConn{id: "a"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body["sessions"])
	assert.Equal(t, 1, body["players"])
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessions_active")
}
