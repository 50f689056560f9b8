package domain

// Message is the inbound envelope. Type selects which of the optional
// fields are meaningful.
type Message struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId,omitempty"`
	ThingIndex    *int   `json:"thingIndex,omitempty"`
	TargetSlot    string `json:"targetSlot,omitempty"`
	RotationIndex *int   `json:"rotationIndex,omitempty"`
}

const (
	TypeNew     = "NEW"
	TypeJoin    = "JOIN"
	TypeHold    = "HOLD"
	TypeShift   = "SHIFT"
	TypeRelease = "RELEASE"
	TypeMove    = "MOVE"
	TypeFlip    = "FLIP"
)

// NoSeat marks a connection that has not joined a session.
const NoSeat = -1

type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Client is the per-connection context created at accept time. It only
// refers to its session by id; the hub owns the session itself.
type Client struct {
	Conn      Connection
	SessionID string
	Seat      int
}

func NewClient(conn Connection) *Client {
	return &Client{Conn: conn, Seat: NoSeat}
}

func (c *Client) Joined() bool { return c.SessionID != "" }

func (c *Client) Detach() {
	c.SessionID = ""
	c.Seat = NoSeat
}

type MessageHandler interface {
	Accept(conn Connection) *Client
	Handle(c *Client, data []byte)
	Disconnect(c *Client)
}
