package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"padlink/api/internal/app"
	"padlink/api/internal/cleanup"
	"padlink/api/internal/etherpad"
	"padlink/api/internal/pad"
	"padlink/api/internal/padsession"
	"padlink/api/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	client := etherpad.New(etherpad.Options{
		BaseURL:           cfg.Etherpad.URL,
		APIKey:            cfg.Etherpad.APIKey,
		APIVersion:        cfg.Etherpad.APIVersion,
		HTTPClient:        &http.Client{Timeout: cfg.Etherpad.Timeout},
		RequestsPerSecond: cfg.Etherpad.RequestsPerSecond,
		UserAgent:         "padlink",
	})

	var queue cleanup.Queue
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for the cleanup queue")
		redisQueue, err := cleanup.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			return err
		}
		queue = redisQueue
	} else {
		logger.Info("using an in-process cleanup queue", zap.Int("size", cfg.CleanupQueueSize))
		queue = cleanup.NewChannelQueue(cfg.CleanupQueueSize)
	}
	dispatcher := cleanup.NewDispatcher(queue, client, cleanup.Options{
		Workers: cfg.CleanupWorkers,
		Timeout: cfg.CleanupTimeout,
		Logger:  logger,
	})

	service := app.New(cfg, app.Dependencies{
		Store: store.NewPostgresStore(db),
		Pads:  pad.NewManager(client),
		Sessions: padsession.NewReconciler(client, dispatcher, padsession.Options{
			CookieDomain: cfg.Etherpad.CookieDomain,
			CookieSecure: cfg.Etherpad.CookieSecure,
			Logger:       logger,
		}),
		Etherpad: client,
		Cleanup:  dispatcher,
		Logger:   logger,
	})

	if err := service.PingEtherpad(ctx); err != nil {
		logger.Warn("etherpad is not reachable yet", zap.Error(err))
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("padlink listening", zap.String("addr", cfg.Addr), zap.String("etherpad", cfg.Etherpad.URL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			_ = dispatcher.Close(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("cleanup workers did not drain", zap.Error(err))
	}
	return nil
}
