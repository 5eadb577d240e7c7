// Command historian pops match events from the Redis queue and archives them in PostgreSQL.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/musicquiz/internal/cache"
	"github.com/jason-s-yu/musicquiz/internal/config"
	"github.com/jason-s-yu/musicquiz/internal/database"
	"github.com/jason-s-yu/musicquiz/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	cfg.RedisAddr = "localhost:6379"

	cmd := &cobra.Command{
		Use:           "historian",
		Short:         "Archive match events from Redis into PostgreSQL.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Bind(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &cfg)
		},
	}
	config.RegisterStorageFlags(cmd.Flags(), &cfg)
	config.RegisterHistorianFlags(cmd.Flags(), &cfg)

	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.RedisAddr == "" || cfg.DatabaseURL == "" {
		return errors.New("--redis-addr and --database-url are required")
	}

	logger := logrus.New()
	logger.SetLevel(cfg.Level())

	pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	svc := historian.New(rdb, historian.PostgresSink{Pool: pool}, historian.Options{
		Queue:      cfg.HistoryQueue,
		BatchSize:  cfg.HistorianBatchSize,
		FlushEvery: cfg.HistorianFlush,
		Inactivity: cfg.HistorianInactivity,
	}, logger)

	logger.Infof("Historian reading %s from %s", cfg.HistoryQueue, cfg.RedisAddr)
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Historian stopped")
	return nil
}
