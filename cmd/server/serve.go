package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/musicquiz/internal/auth"
	"github.com/jason-s-yu/musicquiz/internal/cache"
	"github.com/jason-s-yu/musicquiz/internal/catalog"
	"github.com/jason-s-yu/musicquiz/internal/config"
	"github.com/jason-s-yu/musicquiz/internal/database"
	"github.com/jason-s-yu/musicquiz/internal/handlers"
	"github.com/jason-s-yu/musicquiz/internal/lobby"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logrus.New()
	logger.SetLevel(cfg.Level())
	logger.Infof("START: quizd v%s", releaseVersion)

	cat, pool, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	var rec lobby.Recorder
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		pub := cache.NewPublisher(rdb, cfg.HistoryQueue, 256, logger)
		defer pub.Close()
		rec = pub
		logger.Infof("Publishing match history to redis %s (%s)", cfg.RedisAddr, cfg.HistoryQueue)
	}

	hub := handlers.NewHub(cfg.OutboxSize, logger)
	store := lobby.NewStore(lobby.Deps{
		Loader:      cat,
		Broadcaster: hub,
		Recorder:    rec,
		Logger:      logger,
		Options:     cfg.LobbyOptions(),
	})

	api := &handlers.Server{
		Store:     store,
		Hub:       hub,
		Catalog:   cat,
		Issuer:    auth.NewIssuer(cfg.AdminSecret, cfg.AdminTokenTTL),
		PublicURL: cfg.PublicURL,
		Logger:    logger,
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Infof("SERVE: Listening on http://%s/", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		return fmt.Errorf("server exited: %w", err)
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// srv.Shutdown does not track hijacked websocket connections.
	store.Shutdown()
	hub.Shutdown()
	return err
}

// openCatalog returns the clue source selected by --catalog. The pool is non-nil only for postgres.
func openCatalog(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (catalog.Catalog, *pgxpool.Pool, error) {
	switch cfg.Catalog {
	case config.CatalogDir:
		logger.Infof("Serving clues from %s", cfg.CatalogDir)
		return catalog.Dir(cfg.CatalogDir), nil, nil
	case config.CatalogPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewPostgresCatalog(pool), pool, nil
	default:
		return catalog.Embedded(), nil, nil
	}
}
