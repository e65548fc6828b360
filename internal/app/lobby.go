package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizroom-service/internal/domain"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator is the question generation collaborator. It never fails; see
// QuestionGenerator.
type Generator interface {
	Generate(ctx context.Context, topic string, count int) []domain.GeneratedQuestion
}

// Limits bounds room creation parameters.
type Limits struct {
	MinQuestions       int
	MaxQuestions       int
	MinTimePerQuestion int
	MaxTimePerQuestion int
	CodeLength         int
	CodeAttempts       int
}

// DefaultLimits mirrors the documented configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MinQuestions:       5,
		MaxQuestions:       20,
		MinTimePerQuestion: 10,
		MaxTimePerQuestion: 60,
		CodeLength:         6,
		CodeAttempts:       10,
	}
}

// CreateRoomParams describes a new room.
type CreateRoomParams struct {
	Topic           string `validate:"required,max=200"`
	QuestionCount   int
	TimePerQuestion int
	HostID          string `validate:"required,max=128"`
	HostName        string `validate:"max=50"`
}

// JoinParams describes a join request.
type JoinParams struct {
	RoomCode string `validate:"required,alphanum"`
	Name     string `validate:"required,max=50"`
	PlayerID string `validate:"required,max=128"`
}

// AnswerParams describes an answer submission.
type AnswerParams struct {
	PlayerID       string  `validate:"required"`
	QuestionID     string  `validate:"required"`
	SelectedAnswer int     `validate:"min=0,max=3"`
	TimeToAnswer   float64 `validate:"gte=0"`
}

// CreateResult is returned by Create.
type CreateResult struct {
	Room domain.Room
	Host domain.Player
}

// JoinResult is returned by Join.
type JoinResult struct {
	Room    domain.Room
	Player  domain.Player
	Players []domain.Player
}

// Transition is the outcome of Start, Advance and Finish: either the question
// to deliver next, or the final leaderboard once the room is finished.
type Transition struct {
	Room        domain.Room
	Question    *domain.Question
	Leaderboard []domain.LeaderboardEntry
}

// Finished reports whether the transition ended the quiz.
func (t Transition) Finished() bool {
	return t.Room.Status == domain.StatusFinished
}

// Option customizes a Lobby.
type Option func(*Lobby)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Lobby) { l.now = now }
}

// WithCodeGenerator overrides room code generation (tests).
func WithCodeGenerator(gen func(length int) (string, error)) Option {
	return func(l *Lobby) { l.newCode = gen }
}

// Lobby is the room lifecycle controller. All compound mutations are
// serialized through mu so the store never exposes a half-applied operation.
type Lobby struct {
	store     Store
	generator Generator
	limits    Limits
	validate  *validator.Validate
	log       *zap.Logger
	now       func() time.Time
	newCode   func(length int) (string, error)

	mu sync.Mutex
}

func NewLobby(store Store, generator Generator, limits Limits, log *zap.Logger, opts ...Option) *Lobby {
	l := &Lobby{
		store:     store,
		generator: generator,
		limits:    limits,
		validate:  validator.New(),
		log:       log,
		now:       time.Now,
		newCode:   RandomCode,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RandomCode returns an uppercase alphanumeric code of the given length.
func RandomCode(length int) (string, error) {
	var sb strings.Builder
	base := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeCode makes user supplied room codes comparable.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (l *Lobby) invalid(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

func (l *Lobby) validateCreate(p CreateRoomParams) error {
	if err := l.validate.Struct(p); err != nil {
		return l.invalid(err)
	}
	countRule := fmt.Sprintf("min=%d,max=%d", l.limits.MinQuestions, l.limits.MaxQuestions)
	if err := l.validate.Var(p.QuestionCount, countRule); err != nil {
		return l.invalid(fmt.Errorf("questionCount must be between %d and %d", l.limits.MinQuestions, l.limits.MaxQuestions))
	}
	timeRule := fmt.Sprintf("min=%d,max=%d", l.limits.MinTimePerQuestion, l.limits.MaxTimePerQuestion)
	if err := l.validate.Var(p.TimePerQuestion, timeRule); err != nil {
		return l.invalid(fmt.Errorf("timePerQuestion must be between %d and %d", l.limits.MinTimePerQuestion, l.limits.MaxTimePerQuestion))
	}
	return nil
}

// Create allocates a room code, stores the room with its generated questions
// and registers the host as the first player.
func (l *Lobby) Create(ctx context.Context, p CreateRoomParams) (CreateResult, error) {
	p.Topic = strings.TrimSpace(p.Topic)
	p.HostName = strings.TrimSpace(p.HostName)
	if err := l.validateCreate(p); err != nil {
		return CreateResult{}, err
	}
	if p.HostName == "" {
		p.HostName = "Host"
	}

	// Generation may take seconds; it must not hold the lobby lock.
	generated := l.generator.Generate(ctx, p.Topic, p.QuestionCount)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	room := domain.Room{
		HostID:          p.HostID,
		Topic:           p.Topic,
		QuestionCount:   p.QuestionCount,
		TimePerQuestion: p.TimePerQuestion,
		Status:          domain.StatusWaiting,
		CreatedAt:       now,
	}
	code, err := l.allocateLocked(ctx, room)
	if err != nil {
		return CreateResult{}, err
	}
	room.Code = code

	questions := make([]domain.Question, 0, len(generated))
	for i, g := range generated {
		q := domain.Question{
			ID:            uuid.NewString(),
			RoomCode:      code,
			Text:          g.Question,
			CorrectAnswer: g.CorrectAnswer,
			Position:      i,
		}
		copy(q.Options[:], g.Options)
		questions = append(questions, q)
	}
	if err := l.store.CreateQuestions(ctx, questions); err != nil {
		l.rollbackLocked(ctx, code)
		return CreateResult{}, err
	}

	// The host leaves any previous room only once the new one is in place.
	if err := l.evictLocked(ctx, p.HostID); err != nil {
		l.rollbackLocked(ctx, code)
		return CreateResult{}, err
	}
	host := domain.Player{
		ID:       p.HostID,
		RoomCode: code,
		Name:     p.HostName,
		IsHost:   true,
		JoinedAt: now,
	}
	if err := l.store.CreatePlayer(ctx, host); err != nil {
		l.rollbackLocked(ctx, code)
		return CreateResult{}, err
	}

	l.log.Info("room created",
		zap.String("room", code), zap.String("topic", p.Topic),
		zap.Int("questions", len(questions)), zap.String("host", p.HostID))
	return CreateResult{Room: room, Host: host}, nil
}

func (l *Lobby) allocateLocked(ctx context.Context, room domain.Room) (string, error) {
	for attempt := 0; attempt < l.limits.CodeAttempts; attempt++ {
		code, err := l.newCode(l.limits.CodeLength)
		if err != nil {
			return "", err
		}
		room.Code = code
		err = l.store.CreateRoom(ctx, room)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrRoomCodeTaken) {
			return "", err
		}
		l.log.Debug("room code collision", zap.String("code", code), zap.Int("attempt", attempt+1))
	}
	return "", domain.ErrCodeExhausted
}

func (l *Lobby) rollbackLocked(ctx context.Context, code string) {
	if err := l.store.DeleteRoom(ctx, code); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		l.log.Error("rollback of partially created room failed", zap.String("room", code), zap.Error(err))
	}
}

// evictLocked removes an identity's membership in whatever room holds it.
func (l *Lobby) evictLocked(ctx context.Context, playerID string) error {
	existing, err := l.store.GetPlayer(ctx, playerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := l.store.DeletePlayer(ctx, playerID); err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
		return err
	}
	l.log.Info("removed stale membership", zap.String("player", playerID), zap.String("room", existing.RoomCode))
	return nil
}

// Join adds a player to a waiting room.
func (l *Lobby) Join(ctx context.Context, p JoinParams) (JoinResult, error) {
	p.RoomCode = NormalizeCode(p.RoomCode)
	p.Name = strings.TrimSpace(p.Name)
	if err := l.validate.Struct(p); err != nil {
		return JoinResult{}, l.invalid(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	room, err := l.store.GetRoom(ctx, p.RoomCode)
	if err != nil {
		return JoinResult{}, err
	}
	if room.Status != domain.StatusWaiting {
		return JoinResult{}, domain.ErrRoomNotJoinable
	}

	existing, err := l.store.GetPlayer(ctx, p.PlayerID)
	switch {
	case err == nil && existing.RoomCode == room.Code:
		return JoinResult{}, domain.ErrAlreadyJoined
	case err == nil:
		if err := l.evictLocked(ctx, p.PlayerID); err != nil {
			return JoinResult{}, err
		}
	case !errors.Is(err, domain.ErrPlayerNotFound):
		return JoinResult{}, err
	}

	player := domain.Player{
		ID:       p.PlayerID,
		RoomCode: room.Code,
		Name:     p.Name,
		JoinedAt: l.now(),
	}
	if err := l.store.CreatePlayer(ctx, player); err != nil {
		return JoinResult{}, err
	}
	players, err := l.store.ListPlayers(ctx, room.Code)
	if err != nil {
		return JoinResult{}, err
	}

	l.log.Info("player joined", zap.String("room", room.Code), zap.String("player", p.PlayerID))
	return JoinResult{Room: room, Player: player, Players: players}, nil
}

// hostRoomLocked loads a room and checks the caller is its host.
func (l *Lobby) hostRoomLocked(ctx context.Context, code, identity string) (domain.Room, error) {
	room, err := l.store.GetRoom(ctx, NormalizeCode(code))
	if err != nil {
		return domain.Room{}, err
	}
	if identity == "" || room.HostID != identity {
		return domain.Room{}, domain.ErrNotHost
	}
	return room, nil
}

func (l *Lobby) setStatusLocked(room *domain.Room, status domain.RoomStatus) error {
	if !room.Status.CanTransition(status) {
		return domain.ErrInvalidState
	}
	room.Status = status
	return nil
}

// Start moves a waiting room to active and returns its first question.
func (l *Lobby) Start(ctx context.Context, code, identity string) (Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, err := l.hostRoomLocked(ctx, code, identity)
	if err != nil {
		return Transition{}, err
	}
	if room.Status != domain.StatusWaiting {
		return Transition{}, domain.ErrInvalidState
	}
	if err := l.setStatusLocked(&room, domain.StatusActive); err != nil {
		return Transition{}, err
	}
	room.CurrentQuestionIndex = 0
	if err := l.store.UpdateRoom(ctx, room); err != nil {
		return Transition{}, err
	}

	question, err := l.questionAtLocked(ctx, room.Code, 0)
	if err != nil {
		return Transition{}, err
	}
	l.log.Info("quiz started", zap.String("room", room.Code))
	return Transition{Room: room, Question: &question}, nil
}

// Advance moves an active room to its next question, or finishes it when the
// last question has been served.
func (l *Lobby) Advance(ctx context.Context, code, identity string) (Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, err := l.hostRoomLocked(ctx, code, identity)
	if err != nil {
		return Transition{}, err
	}
	if room.Status != domain.StatusActive {
		return Transition{}, domain.ErrInvalidState
	}

	next := room.CurrentQuestionIndex + 1
	if next >= room.QuestionCount {
		return l.finishLocked(ctx, room)
	}
	room.CurrentQuestionIndex = next
	if err := l.store.UpdateRoom(ctx, room); err != nil {
		return Transition{}, err
	}
	question, err := l.questionAtLocked(ctx, room.Code, next)
	if err != nil {
		return Transition{}, err
	}
	l.log.Info("next question", zap.String("room", room.Code), zap.Int("index", next))
	return Transition{Room: room, Question: &question}, nil
}

// Finish ends the quiz regardless of the current question index.
func (l *Lobby) Finish(ctx context.Context, code, identity string) (Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, err := l.hostRoomLocked(ctx, code, identity)
	if err != nil {
		return Transition{}, err
	}
	return l.finishLocked(ctx, room)
}

func (l *Lobby) finishLocked(ctx context.Context, room domain.Room) (Transition, error) {
	if room.Status != domain.StatusFinished {
		if err := l.setStatusLocked(&room, domain.StatusFinished); err != nil {
			return Transition{}, err
		}
		if err := l.store.UpdateRoom(ctx, room); err != nil {
			return Transition{}, err
		}
		l.log.Info("quiz finished", zap.String("room", room.Code))
	}
	board, err := l.leaderboardLocked(ctx, room)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Room: room, Leaderboard: board}, nil
}

// Cleanup deletes a room with everything it owns. Only the host may do this.
func (l *Lobby) Cleanup(ctx context.Context, code, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, err := l.hostRoomLocked(ctx, code, identity)
	if err != nil {
		return err
	}
	if err := l.store.DeleteRoom(ctx, room.Code); err != nil {
		return err
	}
	l.log.Info("room cleaned up", zap.String("room", room.Code))
	return nil
}

// Leave removes a player and its answers. Removing an absent player, or one
// that now belongs to a different room than roomCode, succeeds without
// effect. The returned bool reports whether a player was removed.
func (l *Lobby) Leave(ctx context.Context, roomCode, playerID string) (domain.Player, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	player, err := l.store.GetPlayer(ctx, playerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.Player{}, false, nil
	}
	if err != nil {
		return domain.Player{}, false, err
	}
	if roomCode != "" && player.RoomCode != NormalizeCode(roomCode) {
		return domain.Player{}, false, nil
	}
	if err := l.store.DeletePlayer(ctx, playerID); err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return domain.Player{}, false, nil
		}
		return domain.Player{}, false, err
	}
	l.log.Info("player left", zap.String("room", player.RoomCode), zap.String("player", playerID))
	return player, true, nil
}

// SubmitAnswer records a player's single answer to a question and credits
// the points to the player's score.
func (l *Lobby) SubmitAnswer(ctx context.Context, p AnswerParams) (domain.AnswerResult, error) {
	if err := l.validate.Struct(p); err != nil {
		return domain.AnswerResult{}, l.invalid(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	player, err := l.store.GetPlayer(ctx, p.PlayerID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	answered, err := l.store.HasAnswered(ctx, p.PlayerID, p.QuestionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if answered {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}
	question, err := l.store.GetQuestion(ctx, p.QuestionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if question.RoomCode != player.RoomCode {
		return domain.AnswerResult{}, domain.ErrQuestionMismatch
	}
	room, err := l.store.GetRoom(ctx, player.RoomCode)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	correct := p.SelectedAnswer == question.CorrectAnswer
	points := Score(correct, p.TimeToAnswer, room.TimePerQuestion)
	updated, err := l.store.RecordAnswer(ctx, domain.Answer{
		PlayerID:       p.PlayerID,
		QuestionID:     p.QuestionID,
		SelectedAnswer: p.SelectedAnswer,
		IsCorrect:      correct,
		TimeToAnswer:   p.TimeToAnswer,
		SubmittedAt:    l.now(),
	}, points)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	return domain.AnswerResult{
		IsCorrect:     correct,
		Points:        points,
		TotalScore:    updated.Score,
		CorrectAnswer: question.CorrectAnswer,
	}, nil
}

// ClearAnswers drops a player's answer history so questions can be answered
// again. Scores already earned are kept.
func (l *Lobby) ClearAnswers(ctx context.Context, playerID string) error {
	if playerID == "" {
		return fmt.Errorf("%w: playerId is required", domain.ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.ClearAnswers(ctx, playerID)
}

// State returns the room with its roster.
func (l *Lobby) State(ctx context.Context, code string) (domain.RoomState, error) {
	room, err := l.store.GetRoom(ctx, NormalizeCode(code))
	if err != nil {
		return domain.RoomState{}, err
	}
	players, err := l.store.ListPlayers(ctx, room.Code)
	if err != nil {
		return domain.RoomState{}, err
	}
	return domain.RoomState{Room: room, Players: players, QuestionCount: room.QuestionCount}, nil
}

// Players returns a room's roster ordered by descending score.
func (l *Lobby) Players(ctx context.Context, code string) ([]domain.Player, error) {
	code = NormalizeCode(code)
	if _, err := l.store.GetRoom(ctx, code); err != nil {
		return nil, err
	}
	return l.store.ListPlayers(ctx, code)
}

// Questions returns a room's questions in order.
func (l *Lobby) Questions(ctx context.Context, code string) ([]domain.Question, error) {
	code = NormalizeCode(code)
	if _, err := l.store.GetRoom(ctx, code); err != nil {
		return nil, err
	}
	return l.store.ListQuestions(ctx, code)
}

// Leaderboard returns the room and its players ranked by score.
func (l *Lobby) Leaderboard(ctx context.Context, code string) (domain.Room, []domain.LeaderboardEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, err := l.store.GetRoom(ctx, NormalizeCode(code))
	if err != nil {
		return domain.Room{}, nil, err
	}
	board, err := l.leaderboardLocked(ctx, room)
	return room, board, err
}

func (l *Lobby) leaderboardLocked(ctx context.Context, room domain.Room) ([]domain.LeaderboardEntry, error) {
	players, err := l.store.ListPlayers(ctx, room.Code)
	if err != nil {
		return nil, err
	}
	board := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		answers, err := l.store.ListAnswers(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		correct := 0
		for _, a := range answers {
			if a.IsCorrect {
				correct++
			}
		}
		accuracy := 0
		if room.QuestionCount > 0 {
			accuracy = int(math.Round(100 * float64(correct) / float64(room.QuestionCount)))
		}
		board = append(board, domain.LeaderboardEntry{
			PlayerID:       p.ID,
			Name:           p.Name,
			Score:          p.Score,
			IsHost:         p.IsHost,
			CorrectAnswers: correct,
			Answered:       len(answers),
			Accuracy:       accuracy,
		})
	}
	return board, nil
}

func (l *Lobby) questionAtLocked(ctx context.Context, code string, position int) (domain.Question, error) {
	questions, err := l.store.ListQuestions(ctx, code)
	if err != nil {
		return domain.Question{}, err
	}
	if position < 0 || position >= len(questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questions[position], nil
}
