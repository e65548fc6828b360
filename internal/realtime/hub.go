package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Server to client event types.
const (
	EventPlayerJoined = "player-joined"
	EventPlayerLeft   = "player-left"
	EventRoomClosed   = "room-closed"
	EventQuizStarted  = "quiz-started"
	EventNextQuestion = "next-question"
	EventQuizFinished = "quiz-finished"
)

// Hub fans events out to the live clients of a room. Delivery is best
// effort: nothing is buffered for clients that are not connected, and a
// reconnecting client resynchronizes through the REST queries.
type Hub struct {
	registry Registry
	log      *zap.Logger

	roomLocksMu sync.Mutex
	roomLocks   map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewHub(registry Registry, log *zap.Logger) *Hub {
	return &Hub{
		registry:  registry,
		log:       log,
		roomLocks: make(map[string]*roomLock),
	}
}

// Register tags c and indexes it by identity. A previous connection of the
// same identity is closed.
func (h *Hub) Register(c *Client, roomCode, identity string, isHost bool) {
	if old := c.Identity(); old != "" && old != identity {
		h.registry.Remove(old, c)
	}
	c.tag(roomCode, identity, isHost)
	if prev := h.registry.Put(c); prev != nil {
		h.log.Info("replacing connection of identity",
			zap.String("identity", identity), zap.String("old", prev.ID()), zap.String("new", c.ID()))
		prev.untag()
		prev.Close()
	}
	h.log.Debug("ws registered",
		zap.String("room", roomCode), zap.String("identity", identity),
		zap.Bool("host", isHost), zap.Int("total", h.registry.Len()))
}

// Unregister removes c from the registry; the socket itself stays open.
func (h *Hub) Unregister(c *Client) {
	identity := c.Identity()
	if identity == "" {
		return
	}
	if h.registry.Remove(identity, c) {
		h.log.Debug("ws unregistered", zap.String("identity", identity), zap.String("room", c.RoomCode()))
	}
	c.untag()
}

// Broadcast delivers ev to every client in roomCode except the one
// registered as exclude (may be empty). It returns the number of clients
// the event was queued for.
func (h *Hub) Broadcast(roomCode string, ev Event, exclude string) int {
	sent := 0
	for _, c := range h.registry.InRoom(roomCode) {
		if exclude != "" && c.Identity() == exclude {
			continue
		}
		if c.Send(ev) {
			sent++
		}
	}
	h.log.Debug("broadcast", zap.String("room", roomCode), zap.String("type", ev.Type), zap.Int("sent", sent))
	return sent
}

// CloseRoom sends ev to each client of the room individually, then closes
// and deregisters them. It returns the number of clients closed.
func (h *Hub) CloseRoom(roomCode string, ev Event) int {
	clients := h.registry.InRoom(roomCode)
	for _, c := range clients {
		c.Send(ev)
		h.registry.Remove(c.Identity(), c)
		c.Close()
	}
	h.log.Info("room connections closed", zap.String("room", roomCode), zap.Int("clients", len(clients)))
	return len(clients)
}

// Connected reports whether identity has a live registered connection.
func (h *Hub) Connected(identity string) bool {
	_, ok := h.registry.Get(identity)
	return ok
}

// Client returns the live connection registered for identity.
func (h *Hub) Client(identity string) (*Client, bool) {
	return h.registry.Get(identity)
}

// LockRoom serializes lifecycle transitions and their fan-out for one room,
// so every client observes them in the order they were applied.
func (h *Hub) LockRoom(roomCode string) func() {
	h.roomLocksMu.Lock()
	l, ok := h.roomLocks[roomCode]
	if !ok {
		l = &roomLock{}
		h.roomLocks[roomCode] = l
	}
	l.refs++
	h.roomLocksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.roomLocksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.roomLocks, roomCode)
		}
		h.roomLocksMu.Unlock()
	}
}
