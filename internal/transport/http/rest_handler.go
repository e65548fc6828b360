package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/realtime"
)

// RESTHandler exposes the room controller over JSON endpoints. It is the
// authoritative surface; socket events only hint that state changed.
type RESTHandler struct {
	lobby *app.Lobby
	hub   *realtime.Hub
	log   *zap.Logger
}

func NewRESTHandler(lobby *app.Lobby, hub *realtime.Hub, log *zap.Logger) *RESTHandler {
	return &RESTHandler{lobby: lobby, hub: hub, log: log}
}

type createRoomRequest struct {
	Topic           string `json:"topic" binding:"required"`
	QuestionCount   int    `json:"questionCount" binding:"required"`
	TimePerQuestion int    `json:"timePerQuestion" binding:"required"`
	HostID          string `json:"hostId" binding:"required"`
	HostName        string `json:"hostName"`
}

type createRoomResponse struct {
	RoomCode string        `json:"roomCode"`
	Room     domain.Room   `json:"room"`
	Host     domain.Player `json:"host"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode" binding:"required"`
	Name     string `json:"name" binding:"required"`
	PlayerID string `json:"playerId" binding:"required"`
}

type joinRoomResponse struct {
	Player  domain.Player   `json:"player"`
	Room    domain.Room     `json:"room"`
	Players []domain.Player `json:"players"`
}

type answerRequest struct {
	PlayerID       string   `json:"playerId" binding:"required"`
	QuestionID     string   `json:"questionId" binding:"required"`
	SelectedAnswer *int     `json:"selectedAnswer" binding:"required"`
	TimeToAnswer   *float64 `json:"timeToAnswer" binding:"required"`
}

type roomStateResponse struct {
	Room          domain.Room     `json:"room"`
	Players       []domain.Player `json:"players"`
	QuestionCount int             `json:"questionCount"`
}

type leaderboardResponse struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	Room        domain.Room               `json:"room"`
}

type cleanupRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	IsHost   bool   `json:"isHost"`
}

type leaveRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	RoomCode string `json:"roomCode"`
}

type playerRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

type okResponse struct {
	Success bool `json:"success"`
}

// Register mounts the quiz routes on r.
func (h *RESTHandler) Register(r gin.IRouter) {
	quiz := r.Group("/quiz")
	quiz.POST("/create", h.createRoom)
	quiz.POST("/join", h.joinRoom)
	quiz.POST("/answer", h.submitAnswer)
	quiz.POST("/clear-answers", h.clearAnswers)
	quiz.POST("/player/leave", h.leaveRoom)
	quiz.GET("/:roomCode", h.roomState)
	quiz.GET("/:roomCode/questions", h.questions)
	quiz.GET("/:roomCode/leaderboard", h.leaderboard)
	quiz.POST("/:roomCode/cleanup", h.cleanupRoom)
}

func (h *RESTHandler) createRoom(c *gin.Context) {
	var req createRoomRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.lobby.Create(c.Request.Context(), app.CreateRoomParams{
		Topic:           req.Topic,
		QuestionCount:   req.QuestionCount,
		TimePerQuestion: req.TimePerQuestion,
		HostID:          req.HostID,
		HostName:        req.HostName,
	})
	if err != nil {
		h.fail(c, "create room", err)
		return
	}
	c.JSON(http.StatusOK, createRoomResponse{RoomCode: res.Room.Code, Room: res.Room, Host: res.Host})
}

func (h *RESTHandler) joinRoom(c *gin.Context) {
	var req joinRoomRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.lobby.Join(c.Request.Context(), app.JoinParams{
		RoomCode: req.RoomCode,
		Name:     req.Name,
		PlayerID: req.PlayerID,
	})
	if err != nil {
		h.fail(c, "join room", err)
		return
	}
	c.JSON(http.StatusOK, joinRoomResponse{Player: res.Player, Room: res.Room, Players: res.Players})
}

func (h *RESTHandler) submitAnswer(c *gin.Context) {
	var req answerRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.lobby.SubmitAnswer(c.Request.Context(), app.AnswerParams{
		PlayerID:       req.PlayerID,
		QuestionID:     req.QuestionID,
		SelectedAnswer: *req.SelectedAnswer,
		TimeToAnswer:   *req.TimeToAnswer,
	})
	if err != nil {
		h.fail(c, "submit answer", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RESTHandler) clearAnswers(c *gin.Context) {
	var req playerRequest
	if !bind(c, &req) {
		return
	}
	if err := h.lobby.ClearAnswers(c.Request.Context(), req.PlayerID); err != nil {
		h.fail(c, "clear answers", err)
		return
	}
	c.JSON(http.StatusOK, okResponse{Success: true})
}

func (h *RESTHandler) leaveRoom(c *gin.Context) {
	var req leaveRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	player, removed, err := h.lobby.Leave(ctx, req.RoomCode, req.PlayerID)
	if err != nil {
		h.fail(c, "leave room", err)
		return
	}
	if removed {
		unlock := h.hub.LockRoom(player.RoomCode)
		if cl, ok := h.hub.Client(player.ID); ok && cl.RoomCode() == player.RoomCode {
			h.hub.Unregister(cl)
		}
		notifyPlayerLeft(ctx, h.lobby, h.hub, player.RoomCode, player.ID)
		unlock()
	}
	c.JSON(http.StatusOK, okResponse{Success: true})
}

func (h *RESTHandler) roomState(c *gin.Context) {
	state, err := h.lobby.State(c.Request.Context(), c.Param("roomCode"))
	if err != nil {
		h.fail(c, "room state", err)
		return
	}
	c.JSON(http.StatusOK, roomStateResponse{Room: state.Room, Players: state.Players, QuestionCount: state.QuestionCount})
}

func (h *RESTHandler) questions(c *gin.Context) {
	questions, err := h.lobby.Questions(c.Request.Context(), c.Param("roomCode"))
	if err != nil {
		h.fail(c, "list questions", err)
		return
	}
	views := make([]domain.PublicQuestion, 0, len(questions))
	for _, q := range questions {
		views = append(views, q.Public())
	}
	c.JSON(http.StatusOK, views)
}

func (h *RESTHandler) leaderboard(c *gin.Context) {
	room, board, err := h.lobby.Leaderboard(c.Request.Context(), c.Param("roomCode"))
	if err != nil {
		h.fail(c, "leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, leaderboardResponse{Leaderboard: board, Room: room})
}

func (h *RESTHandler) cleanupRoom(c *gin.Context) {
	var req cleanupRequest
	if !bind(c, &req) {
		return
	}
	code := app.NormalizeCode(c.Param("roomCode"))
	unlock := h.hub.LockRoom(code)
	defer unlock()
	identity := req.PlayerID
	if !req.IsHost {
		// An empty identity never matches the host; a missing room still wins.
		identity = ""
	}
	if err := h.lobby.Cleanup(c.Request.Context(), code, identity); err != nil {
		h.fail(c, "cleanup room", err)
		return
	}
	closeRoomConnections(h.hub, code)
	c.JSON(http.StatusOK, okResponse{Success: true})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (h *RESTHandler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(op+" failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrRoomNotJoinable),
		errors.Is(err, domain.ErrQuestionMismatch),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrPlayerExists):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
