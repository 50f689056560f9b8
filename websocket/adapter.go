package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tabletop-sync-server/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var ErrSendBufferFull = errors.New("send buffer full")

var openConns = prometheus.NewGauge(prometheus.GaugeOpts{
	Name:      "open",
	Subsystem: "connections",
	Help:      "Number of open websocket connections.",
})

func init() {
	prometheus.MustRegister(openConns)
}

// Conn owns one websocket. Frames are read and handled on a single
// goroutine, so messages from a connection are processed in receipt order.
// Outbound frames go through a buffered channel drained by the write pump.
type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	handler domain.MessageHandler
	logger  *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(id string, ws *websocket.Conn, h domain.MessageHandler, logger *zap.Logger) *Conn {
	return &Conn{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		handler: h,
		logger:  logger.With(zap.String("conn", id)),
		done:    make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues data without blocking.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down; the read pump then runs the
// disconnect path.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) Start() {
	openConns.Inc()
	client := c.handler.Accept(c)
	go c.writePump()
	go c.readPump(client)
}

func (c *Conn) readPump(client *domain.Client) {
	defer func() {
		c.handler.Disconnect(client)
		c.Close()
		openConns.Dec()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		c.handler.Handle(client, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
