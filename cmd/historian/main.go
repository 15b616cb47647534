// cmd/historian/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/blufftrivia/internal/config"
	"github.com/jason-s-yu/blufftrivia/internal/history"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfg config.Historian
	cmd := config.NewHistorianCommand(&cfg, version, run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.Historian) error {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := history.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := history.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	rdb, err := history.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	logger.WithFields(logrus.Fields{"queue": cfg.HistoryQueue, "batch": cfg.BatchSize}).Info("historian started")
	h := history.NewHistorian(history.NewRedisQueue(rdb, cfg.HistoryQueue), store, cfg.BatchSize, cfg.FlushDelay, logger)
	return h.Run(ctx)
}
