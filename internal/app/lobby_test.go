package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

type failingSource struct{}

func (failingSource) Questions(context.Context, string, int) ([]domain.GeneratedQuestion, error) {
	return nil, errors.New("upstream unavailable")
}

func newTestLobby(t *testing.T, opts ...app.Option) (*app.Lobby, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	generator := app.NewQuestionGenerator(failingSource{}, time.Second, zap.NewNop())
	return app.NewLobby(store, generator, app.DefaultLimits(), zap.NewNop(), opts...), store
}

func createSpaceRoom(t *testing.T, lobby *app.Lobby) app.CreateResult {
	t.Helper()
	res, err := lobby.Create(context.Background(), app.CreateRoomParams{
		Topic:           "Space",
		QuestionCount:   5,
		TimePerQuestion: 15,
		HostID:          "h1",
	})
	require.NoError(t, err)
	return res
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()
	lobby, store := newTestLobby(t)

	res := createSpaceRoom(t, lobby)
	assert.Len(t, res.Room.Code, 6)
	assert.Equal(t, domain.StatusWaiting, res.Room.Status)
	assert.Equal(t, 0, res.Room.CurrentQuestionIndex)

	questions, err := store.ListQuestions(ctx, res.Room.Code)
	require.NoError(t, err)
	require.Len(t, questions, 5)
	for i, q := range questions {
		assert.Equal(t, i, q.Position)
		assert.NotEmpty(t, q.ID)
	}

	players, err := store.ListPlayers(ctx, res.Room.Code)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.True(t, players[0].IsHost)
	assert.Equal(t, "h1", players[0].ID)
	assert.Equal(t, 0, players[0].Score)
}

func TestCreateRoomValidatesBounds(t *testing.T) {
	lobby, _ := newTestLobby(t)
	cases := []app.CreateRoomParams{
		{Topic: "Space", QuestionCount: 4, TimePerQuestion: 15, HostID: "h1"},
		{Topic: "Space", QuestionCount: 21, TimePerQuestion: 15, HostID: "h1"},
		{Topic: "Space", QuestionCount: 5, TimePerQuestion: 9, HostID: "h1"},
		{Topic: "Space", QuestionCount: 5, TimePerQuestion: 61, HostID: "h1"},
		{Topic: "  ", QuestionCount: 5, TimePerQuestion: 15, HostID: "h1"},
		{Topic: "Space", QuestionCount: 5, TimePerQuestion: 15},
	}
	for i, p := range cases {
		_, err := lobby.Create(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "case %d", i)
	}
}

func TestCreateRoomRetriesCodeCollisions(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	next := 0
	gen := func(int) (string, error) {
		code := codes[next%len(codes)]
		next++
		return code, nil
	}
	lobby, _ := newTestLobby(t, app.WithCodeGenerator(gen))

	first := createSpaceRoom(t, lobby)
	second, err := lobby.Create(context.Background(), app.CreateRoomParams{
		Topic: "Space", QuestionCount: 5, TimePerQuestion: 15, HostID: "h2",
	})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Room.Code)
	assert.Equal(t, "BBBBBB", second.Room.Code)
}

func TestCreateRoomCodeExhausted(t *testing.T) {
	lobby, _ := newTestLobby(t, app.WithCodeGenerator(func(int) (string, error) { return "SAME00", nil }))
	createSpaceRoom(t, lobby)

	_, err := lobby.Create(context.Background(), app.CreateRoomParams{
		Topic: "Space", QuestionCount: 5, TimePerQuestion: 15, HostID: "h2",
	})
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)
}

func TestFailedCreateKeepsExistingMembership(t *testing.T) {
	ctx := context.Background()
	lobby, store := newTestLobby(t, app.WithCodeGenerator(func(int) (string, error) { return "AAAAAA", nil }))
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)

	_, err = lobby.Create(ctx, app.CreateRoomParams{
		Topic: "Art", QuestionCount: 5, TimePerQuestion: 15, HostID: "p1",
	})
	require.ErrorIs(t, err, domain.ErrCodeExhausted)

	player, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, room.Code, player.RoomCode)
}

func TestCreateMovesHostOutOfPreviousRoom(t *testing.T) {
	ctx := context.Background()
	lobby, store := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)

	created, err := lobby.Create(ctx, app.CreateRoomParams{
		Topic: "Art", QuestionCount: 5, TimePerQuestion: 15, HostID: "p1",
	})
	require.NoError(t, err)

	player, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, created.Room.Code, player.RoomCode)
	assert.True(t, player.IsHost)

	players, err := store.ListPlayers(ctx, room.Code)
	require.NoError(t, err)
	assert.Len(t, players, 1)
}

func TestLeaderboardConsistentUnderConcurrentAnswers(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)
	questions, err := lobby.Questions(ctx, room.Code)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, q := range questions {
			// Answering at the deadline earns exactly the base award.
			_, _ = lobby.SubmitAnswer(ctx, app.AnswerParams{
				PlayerID: "p1", QuestionID: q.ID, SelectedAnswer: q.CorrectAnswer, TimeToAnswer: 15,
			})
		}
	}()

	for i := 0; i < 200; i++ {
		_, board, err := lobby.Leaderboard(ctx, room.Code)
		require.NoError(t, err)
		for _, entry := range board {
			assert.Equal(t, entry.CorrectAnswers*app.BasePoints, entry.Score, "entry %s", entry.PlayerID)
		}
	}
	wg.Wait()
}

func TestJoinRules(t *testing.T) {
	ctx := context.Background()
	lobby, store := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room

	res, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, room.Code, res.Player.RoomCode)
	assert.False(t, res.Player.IsHost)
	assert.Len(t, res.Players, 2)

	_, err = lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)

	_, err = lobby.Join(ctx, app.JoinParams{RoomCode: "ZZZZZZ", Name: "Bob", PlayerID: "p2"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	// Joining another room moves the membership.
	other, err := lobby.Create(ctx, app.CreateRoomParams{Topic: "History", QuestionCount: 5, TimePerQuestion: 15, HostID: "h2"})
	require.NoError(t, err)
	_, err = lobby.Join(ctx, app.JoinParams{RoomCode: other.Room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)

	p, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, other.Room.Code, p.RoomCode)
	players, _ := store.ListPlayers(ctx, room.Code)
	assert.Len(t, players, 1)

	// Lower-case codes are accepted.
	_, err = lobby.Join(ctx, app.JoinParams{RoomCode: " " + strings.ToLower(room.Code) + " ", Name: "Carol", PlayerID: "p3"})
	require.NoError(t, err)

	_, err = lobby.Start(ctx, room.Code, "h1")
	require.NoError(t, err)
	_, err = lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Dave", PlayerID: "p4"})
	assert.ErrorIs(t, err, domain.ErrRoomNotJoinable)
}

func TestLifecycleAdvanceToFinish(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room

	_, err := lobby.Advance(ctx, room.Code, "h1")
	assert.ErrorIs(t, err, domain.ErrInvalidState, "advance before start")

	_, err = lobby.Start(ctx, room.Code, "p-other")
	assert.ErrorIs(t, err, domain.ErrNotHost)

	tr, err := lobby.Start(ctx, room.Code, "h1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, tr.Room.Status)
	require.NotNil(t, tr.Question)
	assert.Equal(t, 0, tr.Question.Position)

	_, err = lobby.Start(ctx, room.Code, "h1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	for want := 1; want <= 4; want++ {
		tr, err = lobby.Advance(ctx, room.Code, "h1")
		require.NoError(t, err)
		require.False(t, tr.Finished())
		assert.Equal(t, want, tr.Room.CurrentQuestionIndex)
		assert.Equal(t, want, tr.Question.Position)
	}

	tr, err = lobby.Advance(ctx, room.Code, "h1")
	require.NoError(t, err)
	assert.True(t, tr.Finished())
	assert.Nil(t, tr.Question)
	assert.Len(t, tr.Leaderboard, 1)

	state, err := lobby.State(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, state.Room.Status)

	_, err = lobby.Start(ctx, room.Code, "h1")
	assert.ErrorIs(t, err, domain.ErrInvalidState, "finished rooms cannot restart")
}

func TestFinishEarly(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)
	_, err = lobby.Start(ctx, room.Code, "h1")
	require.NoError(t, err)

	_, err = lobby.Finish(ctx, room.Code, "p1")
	assert.ErrorIs(t, err, domain.ErrNotHost)

	tr, err := lobby.Finish(ctx, room.Code, "h1")
	require.NoError(t, err)
	assert.True(t, tr.Finished())
	assert.Equal(t, 0, tr.Room.CurrentQuestionIndex)
	assert.Len(t, tr.Leaderboard, 2)
}

func TestSubmitAnswerScoring(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)

	questions, err := lobby.Questions(ctx, room.Code)
	require.NoError(t, err)
	q0 := questions[0]

	res, err := lobby.SubmitAnswer(ctx, app.AnswerParams{
		PlayerID: "p1", QuestionID: q0.ID, SelectedAnswer: q0.CorrectAnswer, TimeToAnswer: 3,
	})
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, 220, res.Points)
	assert.Equal(t, 220, res.TotalScore)
	assert.Equal(t, q0.CorrectAnswer, res.CorrectAnswer)

	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{
		PlayerID: "p1", QuestionID: q0.ID, SelectedAnswer: q0.CorrectAnswer, TimeToAnswer: 1,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyAnswered)

	q1 := questions[1]
	wrong := (q1.CorrectAnswer + 1) % 4
	res, err = lobby.SubmitAnswer(ctx, app.AnswerParams{
		PlayerID: "p1", QuestionID: q1.ID, SelectedAnswer: wrong, TimeToAnswer: 1,
	})
	require.NoError(t, err)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, 0, res.Points)
	assert.Equal(t, 220, res.TotalScore)

	_, board, err := lobby.Leaderboard(ctx, room.Code)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "p1", board[0].PlayerID)
	assert.Equal(t, 1, board[0].CorrectAnswers)
	assert.Equal(t, 2, board[0].Answered)
	assert.Equal(t, 20, board[0].Accuracy)
}

func TestSubmitAnswerFailures(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	roomA := createSpaceRoom(t, lobby).Room
	roomB, err := lobby.Create(ctx, app.CreateRoomParams{Topic: "Art", QuestionCount: 5, TimePerQuestion: 20, HostID: "h2"})
	require.NoError(t, err)
	_, err = lobby.Join(ctx, app.JoinParams{RoomCode: roomA.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)
	questionsB, err := lobby.Questions(ctx, roomB.Room.Code)
	require.NoError(t, err)

	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "ghost", QuestionID: questionsB[0].ID})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "p1", QuestionID: "missing"})
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)

	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "p1", QuestionID: questionsB[0].ID})
	assert.ErrorIs(t, err, domain.ErrQuestionMismatch)

	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "p1", QuestionID: questionsB[0].ID, SelectedAnswer: 4})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "p1", QuestionID: questionsB[0].ID, TimeToAnswer: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClearAnswersAllowsReanswer(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)
	questions, _ := lobby.Questions(ctx, room.Code)
	q := questions[0]

	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "p1", QuestionID: q.ID, SelectedAnswer: q.CorrectAnswer, TimeToAnswer: 15})
	require.NoError(t, err)
	require.NoError(t, lobby.ClearAnswers(ctx, "p1"))

	res, err := lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "p1", QuestionID: q.ID, SelectedAnswer: q.CorrectAnswer, TimeToAnswer: 15})
	require.NoError(t, err)
	assert.Equal(t, 200, res.TotalScore)
}

func TestCleanupCascadesAndRequiresHost(t *testing.T) {
	ctx := context.Background()
	lobby, store := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)
	questions, _ := lobby.Questions(ctx, room.Code)
	_, err = lobby.SubmitAnswer(ctx, app.AnswerParams{PlayerID: "p1", QuestionID: questions[0].ID, TimeToAnswer: 2})
	require.NoError(t, err)

	err = lobby.Cleanup(ctx, room.Code, "p1")
	assert.ErrorIs(t, err, domain.ErrNotHost)
	_, err = lobby.State(ctx, room.Code)
	require.NoError(t, err, "room must survive a rejected cleanup")
	qs, _ := store.ListQuestions(ctx, room.Code)
	assert.Len(t, qs, 5)

	require.NoError(t, lobby.Cleanup(ctx, room.Code, "h1"))
	_, err = lobby.State(ctx, room.Code)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = store.GetPlayer(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
	_, err = store.GetQuestion(ctx, questions[0].ID)
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
	answers, _ := store.ListAnswers(ctx, "p1")
	assert.Empty(t, answers)

	err = lobby.Cleanup(ctx, room.Code, "h1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestLeaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)

	player, removed, err := lobby.Leave(ctx, room.Code, "p1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, room.Code, player.RoomCode)

	_, removed, err = lobby.Leave(ctx, room.Code, "p1")
	require.NoError(t, err)
	assert.False(t, removed)
	_, removed, err = lobby.Leave(ctx, room.Code, "p1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLeaveIgnoresStaleRoom(t *testing.T) {
	ctx := context.Background()
	lobby, _ := newTestLobby(t)
	room := createSpaceRoom(t, lobby).Room
	_, err := lobby.Join(ctx, app.JoinParams{RoomCode: room.Code, Name: "Alice", PlayerID: "p1"})
	require.NoError(t, err)

	_, removed, err := lobby.Leave(ctx, "OTHER1", "p1")
	require.NoError(t, err)
	assert.False(t, removed)
	players, err := lobby.Players(ctx, room.Code)
	require.NoError(t, err)
	assert.Len(t, players, 2)
}

func TestRandomCode(t *testing.T) {
	code, err := app.RandomCode(6)
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
}
