// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/blufftrivia/internal/auth"
	"github.com/jason-s-yu/blufftrivia/internal/config"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/handlers"
	"github.com/jason-s-yu/blufftrivia/internal/history"
	"github.com/jason-s-yu/blufftrivia/internal/session"
	"github.com/jason-s-yu/blufftrivia/internal/trivia"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfg config.Server
	cmd := config.NewServerCommand(&cfg, version, run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.Server) error {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issuer, err := newIssuer(cfg, logger)
	if err != nil {
		return err
	}

	questions, judge, err := newTrivia(ctx, cfg, logger)
	if err != nil {
		return err
	}

	recorder, closeRecorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRecorder()

	hub := handlers.NewHub(logger)
	svc := session.NewService(session.Options{
		Store:           game.NewLobbyStore(),
		Issuer:          issuer,
		Questions:       questions,
		Judge:           judge,
		Recorder:        recorder,
		Dispatcher:      hub,
		Logger:          logger,
		DisconnectGrace: cfg.DisconnectGrace,
		JudgeTimeout:    cfg.JudgeTimeout,
	})
	defer svc.Close()

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: handlers.NewRouter(handlers.RouterConfig{
			Service:        svc,
			Hub:            hub,
			Logger:         logger,
			AllowedOrigins: cfg.AllowedOrigins,
			JoinURL:        cfg.JoinURL,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newIssuer loads the signing keypair, or makes an ephemeral one. Tokens
// from an ephemeral key die with the process.
func newIssuer(cfg *config.Server, logger *logrus.Logger) (*auth.Issuer, error) {
	if cfg.PrivateKeyPath != "" {
		return auth.NewIssuerFromFiles(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenTTL)
	}
	logger.Warn("no signing keys configured, using an ephemeral keypair")
	return auth.NewIssuer(cfg.TokenTTL)
}

func newTrivia(ctx context.Context, cfg *config.Server, logger *logrus.Logger) (trivia.QuestionGenerator, trivia.AnswerJudge, error) {
	if cfg.GeminiAPIKey == "" {
		logger.Info("no Gemini key configured, using the built-in question bank")
		return trivia.DefaultBank(), trivia.NormalizedJudge{}, nil
	}
	g, err := trivia.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		return nil, nil, err
	}
	return g, g, nil
}

// newRecorder picks where finished games go: the Redis queue drained by the
// historian, Postgres directly, or nowhere.
func newRecorder(ctx context.Context, cfg *config.Server, logger *logrus.Logger) (history.Recorder, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		rdb, err := history.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("queue", cfg.HistoryQueue).Info("publishing finished games to redis")
		return history.NewPublisher(rdb, cfg.HistoryQueue), func() { _ = rdb.Close() }, nil
	case cfg.DatabaseURL != "":
		pool, err := history.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := history.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("recording finished games to postgres")
		return store, pool.Close, nil
	default:
		return history.Discard{}, func() {}, nil
	}
}
