package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tabletop-sync-server/domain"
	"tabletop-sync-server/hub"
)

var ErrPreJoin = fmt.Errorf("%w: message not allowed before joining", domain.ErrProtocol)

type Options struct {
	// RejectConflicts keeps the connection open when an action fails with a
	// domain conflict; only the action is dropped.
	RejectConflicts bool
}

type Handler struct {
	hub    *hub.Hub
	logger *zap.Logger
	opts   Options
}

func NewHandler(h *hub.Hub, logger *zap.Logger, opts Options) *Handler {
	return &Handler{hub: h, logger: logger, opts: opts}
}

func (h *Handler) Accept(conn domain.Connection) *domain.Client {
	h.logger.Debug("connect", zap.String("conn", conn.ID()))
	return domain.NewClient(conn)
}

// Handle decodes and dispatches one inbound frame. Any failure closes the
// connection and runs the disconnect path.
func (h *Handler) Handle(c *domain.Client, data []byte) {
	if c.Joined() {
		h.logger.Debug("recv",
			zap.String("session", c.SessionID),
			zap.Int("seat", c.Seat),
			zap.ByteString("data", data))
	} else {
		h.logger.Debug("recv *", zap.String("conn", c.Conn.ID()), zap.ByteString("data", data))
	}

	err := h.dispatch(c, data)
	if err == nil {
		return
	}
	if h.opts.RejectConflicts && errors.Is(err, domain.ErrConflict) {
		h.logger.Info("action rejected",
			zap.String("conn", c.Conn.ID()),
			zap.String("session", c.SessionID),
			zap.Error(err))
		return
	}

	h.logger.Warn("closing connection",
		zap.String("conn", c.Conn.ID()),
		zap.String("session", c.SessionID),
		zap.String("kind", domain.KindOf(err)),
		zap.Error(err))
	c.Conn.Close()
	h.Disconnect(c)
}

func (h *Handler) dispatch(c *domain.Client, data []byte) error {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: decoding envelope: %v", domain.ErrProtocol, err)
	}

	if c.Joined() {
		s, err := h.hub.Lookup(c.SessionID)
		if err != nil {
			return err
		}
		return s.OnMessage(c, msg)
	}

	switch msg.Type {
	case domain.TypeNew:
		s, seat, err := h.hub.Create(c.Conn)
		if err != nil {
			return err
		}
		c.SessionID, c.Seat = s.ID(), seat
		return nil
	case domain.TypeJoin:
		s, seat, err := h.hub.Join(msg.SessionID, c.Conn)
		if err != nil {
			return err
		}
		c.SessionID, c.Seat = s.ID(), seat
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrPreJoin, msg.Type)
	}
}

// Disconnect leaves the client's session, if any. It is safe to call more
// than once.
func (h *Handler) Disconnect(c *domain.Client) {
	if !c.Joined() {
		return
	}
	id := c.SessionID
	c.Detach()

	s, err := h.hub.Lookup(id)
	if err != nil {
		return
	}
	if s.Leave(c.Conn) {
		h.logger.Debug("disconnect", zap.String("conn", c.Conn.ID()), zap.String("session", id))
	}
}
