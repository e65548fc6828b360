package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// Client to server message types.
const (
	msgJoinRoom     = "join-room"
	msgLeaveRoom    = "leave-room"
	msgCleanupRoom  = "cleanup-room"
	msgStartQuiz    = "start-quiz"
	msgNextQuestion = "next-question"
	msgQuizFinished = "quiz-finished"
)

var errUnknownMessage = errors.New("unknown message type")

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// clientMessage is the closed set of messages a socket may send; dispatch
// switches over the concrete types.
type clientMessage interface {
	clientMessage()
}

type joinRoomMessage struct {
	RoomCode string `json:"roomCode" validate:"required,alphanum"`
	PlayerID string `json:"playerId" validate:"required,max=128"`
	IsHost   bool   `json:"isHost"`
}

// roomCommand is the payload of every message acting on the sender's
// registered room. The room code is optional; when present it must match.
type roomCommand struct {
	RoomCode string `json:"roomCode" validate:"omitempty,alphanum"`
}

type leaveRoomMessage struct{ roomCommand }
type cleanupRoomMessage struct{ roomCommand }
type startQuizMessage struct{ roomCommand }
type nextQuestionMessage struct{ roomCommand }
type finishQuizMessage struct{ roomCommand }

func (joinRoomMessage) clientMessage()     {}
func (leaveRoomMessage) clientMessage()    {}
func (cleanupRoomMessage) clientMessage()  {}
func (startQuizMessage) clientMessage()    {}
func (nextQuestionMessage) clientMessage() {}
func (finishQuizMessage) clientMessage()   {}

// normalizer is implemented by payloads that clean up user input before
// validation.
type normalizer interface {
	normalize()
}

func (m *joinRoomMessage) normalize() {
	m.RoomCode = app.NormalizeCode(m.RoomCode)
	m.PlayerID = strings.TrimSpace(m.PlayerID)
}

func (c *roomCommand) normalize() {
	c.RoomCode = app.NormalizeCode(c.RoomCode)
}

func (c roomCommand) matches(roomCode string) bool {
	return c.RoomCode == "" || app.NormalizeCode(c.RoomCode) == roomCode
}

// decodeClientMessage parses and shape-checks one socket frame.
func decodeClientMessage(data []byte, validate *validator.Validate) (clientMessage, error) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}

	var msg clientMessage
	var err error
	switch in.Type {
	case msgJoinRoom:
		var m joinRoomMessage
		err = decodePayload(in.Payload, &m, validate)
		msg = m
	case msgLeaveRoom:
		var m leaveRoomMessage
		err = decodePayload(in.Payload, &m, validate)
		msg = m
	case msgCleanupRoom:
		var m cleanupRoomMessage
		err = decodePayload(in.Payload, &m, validate)
		msg = m
	case msgStartQuiz:
		var m startQuizMessage
		err = decodePayload(in.Payload, &m, validate)
		msg = m
	case msgNextQuestion:
		var m nextQuestionMessage
		err = decodePayload(in.Payload, &m, validate)
		msg = m
	case msgQuizFinished:
		var m finishQuizMessage
		err = decodePayload(in.Payload, &m, validate)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessage, in.Type)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodePayload(raw json.RawMessage, v any, validate *validator.Validate) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
	}
	if n, ok := v.(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// Server to client payloads.

type playersPayload struct {
	RoomCode string          `json:"roomCode"`
	PlayerID string          `json:"playerId,omitempty"`
	Players  []domain.Player `json:"players"`
}

type questionPayload struct {
	RoomCode        string                `json:"roomCode"`
	Question        domain.PublicQuestion `json:"question"`
	QuestionIndex   int                   `json:"questionIndex"`
	TotalQuestions  int                   `json:"totalQuestions"`
	TimePerQuestion int                   `json:"timePerQuestion"`
}

type leaderboardPayload struct {
	RoomCode    string                    `json:"roomCode"`
	Room        domain.Room               `json:"room"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

type roomClosedPayload struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

func newQuestionPayload(tr app.Transition) questionPayload {
	return questionPayload{
		RoomCode:        tr.Room.Code,
		Question:        tr.Question.Public(),
		QuestionIndex:   tr.Room.CurrentQuestionIndex,
		TotalQuestions:  tr.Room.QuestionCount,
		TimePerQuestion: tr.Room.TimePerQuestion,
	}
}

func newLeaderboardPayload(tr app.Transition) leaderboardPayload {
	return leaderboardPayload{RoomCode: tr.Room.Code, Room: tr.Room, Leaderboard: tr.Leaderboard}
}
