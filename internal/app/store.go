package app

import (
	"context"

	"quizroom-service/internal/domain"
)

// Store abstracts how rooms, players, questions and answers are kept
// (in-memory, Redis-mirrored, etc). Every method is atomic on its own;
// compound operations are sequenced by the Lobby.
type Store interface {
	// CreateRoom fails with domain.ErrRoomCodeTaken if the code is in use.
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, code string) (domain.Room, error)
	UpdateRoom(ctx context.Context, room domain.Room) error
	// DeleteRoom removes the room with its questions, players and answers.
	DeleteRoom(ctx context.Context, code string) error

	CreateQuestions(ctx context.Context, questions []domain.Question) error
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	// ListQuestions returns a room's questions ordered by position.
	ListQuestions(ctx context.Context, roomCode string) ([]domain.Question, error)

	// CreatePlayer fails with domain.ErrPlayerExists if the identity is taken.
	CreatePlayer(ctx context.Context, player domain.Player) error
	GetPlayer(ctx context.Context, id string) (domain.Player, error)
	// ListPlayers returns a room's players by descending score, then join time.
	ListPlayers(ctx context.Context, roomCode string) ([]domain.Player, error)
	// DeletePlayer removes the player and its answers.
	DeletePlayer(ctx context.Context, id string) error

	// RecordAnswer stores the answer and adds points to the player's score in
	// one step. It fails with domain.ErrAlreadyAnswered without changing
	// anything if the player already answered the question.
	RecordAnswer(ctx context.Context, answer domain.Answer, points int) (domain.Player, error)
	HasAnswered(ctx context.Context, playerID, questionID string) (bool, error)
	ListAnswers(ctx context.Context, playerID string) ([]domain.Answer, error)
	ClearAnswers(ctx context.Context, playerID string) error
}
