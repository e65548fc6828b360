package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quizroom-service/internal/app"
	"quizroom-service/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32

	// Inbound socket messages per second per connection; excess is dropped.
	messageRate  = 20
	messageBurst = 40
)

// WSHandler speaks the room socket protocol. Malformed messages and
// host-only messages from non-hosts are dropped without a reply; clients
// recover authoritative state through the REST queries.
type WSHandler struct {
	lobby    *app.Lobby
	hub      *realtime.Hub
	validate *validator.Validate
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(lobby *app.Lobby, hub *realtime.Hub, log *zap.Logger) *WSHandler {
	return &WSHandler{
		lobby:    lobby,
		hub:      hub,
		validate: validator.New(),
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn adapts a gorilla connection to realtime.Conn with write deadlines.
type wsConn struct {
	conn *websocket.Conn
}

func (w wsConn) WriteJSON(v any) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w wsConn) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w wsConn) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return w.conn.Close()
}

// ServeWS upgrades the request and processes socket messages until the
// connection drops.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := realtime.NewClient(wsConn{conn: conn}, sendBuffer, h.log)
	go client.WritePump(pingPeriod)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(messageRate), messageBurst)
	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws read error", zap.String("client", client.ID()), zap.Error(err))
			}
			break
		}
		if !limiter.Allow() {
			h.log.Debug("dropping message over rate limit", zap.String("client", client.ID()))
			continue
		}
		msg, err := decodeClientMessage(data, h.validate)
		if err != nil {
			h.log.Debug("dropping malformed message", zap.String("client", client.ID()), zap.Error(err))
			continue
		}
		h.dispatch(ctx, client, msg)
	}

	h.hub.Unregister(client)
	client.Close()
	<-client.Done()
}

func (h *WSHandler) dispatch(ctx context.Context, c *realtime.Client, msg clientMessage) {
	switch m := msg.(type) {
	case joinRoomMessage:
		h.joinRoom(ctx, c, m)
	case leaveRoomMessage:
		h.leaveRoom(ctx, c, m.roomCommand)
	case cleanupRoomMessage:
		h.hostCommand(c, msgCleanupRoom, m.roomCommand, func(room, identity string) {
			h.cleanupRoom(ctx, room, identity)
		})
	case startQuizMessage:
		h.hostCommand(c, msgStartQuiz, m.roomCommand, func(room, identity string) {
			h.startQuiz(ctx, room, identity)
		})
	case nextQuestionMessage:
		h.hostCommand(c, msgNextQuestion, m.roomCommand, func(room, identity string) {
			h.nextQuestion(ctx, room, identity)
		})
	case finishQuizMessage:
		h.hostCommand(c, msgQuizFinished, m.roomCommand, func(room, identity string) {
			h.finishQuiz(ctx, room, identity)
		})
	default:
		h.log.Debug("dropping unhandled message", zap.String("client", c.ID()))
	}
}

func (h *WSHandler) drop(msgType, room, identity string, err error) {
	h.log.Debug("dropping socket command",
		zap.String("type", msgType), zap.String("room", room), zap.String("identity", identity), zap.Error(err))
}

// hostCommand runs fn under the room lock when the sender registered as host
// of the addressed room.
func (h *WSHandler) hostCommand(c *realtime.Client, msgType string, cmd roomCommand, fn func(room, identity string)) {
	room, identity, isHost := c.Tags()
	if room == "" || !isHost || !cmd.matches(room) {
		h.drop(msgType, room, identity, nil)
		return
	}
	unlock := h.hub.LockRoom(room)
	defer unlock()
	fn(room, identity)
}

func (h *WSHandler) joinRoom(ctx context.Context, c *realtime.Client, m joinRoomMessage) {
	unlock := h.hub.LockRoom(m.RoomCode)
	defer unlock()

	players, err := h.lobby.Players(ctx, m.RoomCode)
	if err != nil {
		h.drop(msgJoinRoom, m.RoomCode, m.PlayerID, err)
		return
	}
	h.hub.Register(c, m.RoomCode, m.PlayerID, m.IsHost)
	h.hub.Broadcast(m.RoomCode, realtime.Event{
		Type:    realtime.EventPlayerJoined,
		Payload: playersPayload{RoomCode: m.RoomCode, PlayerID: m.PlayerID, Players: players},
	}, m.PlayerID)
}

func (h *WSHandler) leaveRoom(ctx context.Context, c *realtime.Client, cmd roomCommand) {
	room, identity, _ := c.Tags()
	if room == "" || !cmd.matches(room) {
		h.drop(msgLeaveRoom, room, identity, nil)
		return
	}
	unlock := h.hub.LockRoom(room)
	defer unlock()

	_, removed, err := h.lobby.Leave(ctx, room, identity)
	h.hub.Unregister(c)
	if err != nil {
		h.drop(msgLeaveRoom, room, identity, err)
		return
	}
	if removed {
		notifyPlayerLeft(ctx, h.lobby, h.hub, room, identity)
	}
}

func notifyPlayerLeft(ctx context.Context, lobby *app.Lobby, hub *realtime.Hub, room, identity string) {
	players, err := lobby.Players(ctx, room)
	if err != nil {
		return
	}
	hub.Broadcast(room, realtime.Event{
		Type:    realtime.EventPlayerLeft,
		Payload: playersPayload{RoomCode: room, PlayerID: identity, Players: players},
	}, identity)
}

func (h *WSHandler) cleanupRoom(ctx context.Context, room, identity string) {
	if err := h.lobby.Cleanup(ctx, room, identity); err != nil {
		h.drop(msgCleanupRoom, room, identity, err)
		return
	}
	closeRoomConnections(h.hub, room)
}

func closeRoomConnections(hub *realtime.Hub, room string) {
	hub.CloseRoom(room, realtime.Event{
		Type:    realtime.EventRoomClosed,
		Payload: roomClosedPayload{RoomCode: room, Message: "The host has closed this room."},
	})
}

func (h *WSHandler) startQuiz(ctx context.Context, room, identity string) {
	tr, err := h.lobby.Start(ctx, room, identity)
	if err != nil {
		h.drop(msgStartQuiz, room, identity, err)
		return
	}
	h.hub.Broadcast(room, realtime.Event{Type: realtime.EventQuizStarted, Payload: newQuestionPayload(tr)}, "")
}

func (h *WSHandler) nextQuestion(ctx context.Context, room, identity string) {
	tr, err := h.lobby.Advance(ctx, room, identity)
	if err != nil {
		h.drop(msgNextQuestion, room, identity, err)
		return
	}
	if tr.Finished() {
		h.hub.Broadcast(room, realtime.Event{Type: realtime.EventQuizFinished, Payload: newLeaderboardPayload(tr)}, "")
		return
	}
	h.hub.Broadcast(room, realtime.Event{Type: realtime.EventNextQuestion, Payload: newQuestionPayload(tr)}, "")
}

func (h *WSHandler) finishQuiz(ctx context.Context, room, identity string) {
	tr, err := h.lobby.Finish(ctx, room, identity)
	if err != nil {
		h.drop(msgQuizFinished, room, identity, err)
		return
	}
	h.hub.Broadcast(room, realtime.Event{Type: realtime.EventQuizFinished, Payload: newLeaderboardPayload(tr)}, "")
}
