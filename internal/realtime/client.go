package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a server to client message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Conn is the write side of a live socket.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Pinger is implemented by connections that support keepalive pings.
type Pinger interface {
	Ping() error
}

// Client is one live connection. It is tagged with a room, an identity and
// a host flag once the participant sends join-room.
type Client struct {
	id   string
	conn Conn
	send chan Event
	done chan struct{}
	log  *zap.Logger

	mu       sync.RWMutex
	roomCode string
	identity string
	isHost   bool
	closed   bool
}

func NewClient(conn Conn, buffer int, log *zap.Logger) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Event, buffer),
		done: make(chan struct{}),
		log:  log,
	}
}

func (c *Client) ID() string { return c.id }

// Tags returns the room, identity and host flag the client registered with.
func (c *Client) Tags() (roomCode, identity string, isHost bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode, c.identity, c.isHost
}

func (c *Client) RoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) IsHost() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isHost
}

func (c *Client) tag(roomCode, identity string, isHost bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode, c.identity, c.isHost = roomCode, identity, isHost
}

func (c *Client) untag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode, c.isHost = "", false
}

// Send queues an event without blocking. It reports false when the client is
// closed or its buffer is full, in which case the event is dropped.
func (c *Client) Send(ev Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.log.Warn("send buffer full, dropping event",
			zap.String("client", c.id), zap.String("identity", c.identity), zap.String("type", ev.Type))
		return false
	}
}

// Close stops accepting events. Events already queued are still written
// before the underlying connection is closed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Done is closed once the writer has exited and the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump writes queued events to the connection until Close is called or
// a write fails. Pings are sent every pingPeriod when the connection
// supports them.
func (c *Client) WritePump(pingPeriod time.Duration) {
	defer close(c.done)
	defer c.conn.Close()

	var tick <-chan time.Time
	pinger, canPing := c.conn.(Pinger)
	if canPing && pingPeriod > 0 {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug("ws write error", zap.String("client", c.id), zap.Error(err))
				c.Close()
				c.drain()
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				c.log.Debug("ws ping error", zap.String("client", c.id), zap.Error(err))
				c.Close()
				c.drain()
				return
			}
		}
	}
}

func (c *Client) drain() {
	for range c.send {
	}
}
