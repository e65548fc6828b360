package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/infra/memory"
	"quizroom-service/internal/infra/openai"
	"quizroom-service/internal/infra/postgres"
	infraredis "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/realtime"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	source := buildQuestionSource(cfg, redisClient, pool, log)
	generator := app.NewQuestionGenerator(source, config.TTLDuration(cfg.AI.Timeout, 30*time.Second), log)

	var store app.Store = memory.NewStore()
	if redisClient != nil {
		store = infraredis.NewStore(store, redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour), log)
	}

	lobby := app.NewLobby(store, generator, app.Limits{
		MinQuestions:       cfg.Quiz.MinQuestions,
		MaxQuestions:       cfg.Quiz.MaxQuestions,
		MinTimePerQuestion: cfg.Quiz.MinTimePerQuestion,
		MaxTimePerQuestion: cfg.Quiz.MaxTimePerQuestion,
		CodeLength:         cfg.Quiz.CodeLength,
		CodeAttempts:       cfg.Quiz.CodeAttempts,
	}, log)
	hub := realtime.NewHub(realtime.NewMemoryRegistry(), log)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(
		transport.NewRESTHandler(lobby, hub, log),
		transport.NewWSHandler(lobby, hub, log),
		log,
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz room service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildQuestionSource chains the content pipeline:
// cache -> question bank -> chat completions API.
func buildQuestionSource(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool, log *zap.Logger) app.QuestionSource {
	var source app.QuestionSource
	ai := openai.NewClient(cfg.AI.APIKey, cfg.AI.URL, cfg.AI.Model, nil)
	if ai.Available() {
		source = ai
	} else {
		log.Warn("ai api key not configured, rooms use the built-in question set unless the bank has the topic")
	}

	if pool != nil {
		source = postgres.NewQuestionBank(pool, source, log)
	}
	if source == nil {
		return nil
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	if cacheTTL <= 0 {
		return source
	}
	if redisClient != nil {
		return infraredis.NewQuestionCache(redisClient, source, cacheTTL, log)
	}
	return memory.NewQuestionCache(source, cacheTTL)
}
