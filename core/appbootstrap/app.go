// Package appbootstrap wires configuration, storage, the participant engine
// and the HTTP server into a runnable application.
package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"warroom/api"
	"warroom/config"
	"warroom/core/metrics"
	"warroom/core/notify"
	"warroom/core/store"
	"warroom/core/utils"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	cfg      *config.AppConfig
	db       *store.DB
	logger   *utils.Logger
	server   *api.Server
	notifier *notify.Notifier
	workers  []api.BackgroundWorker
}

// New opens the database, applies migrations and composes the runtime.
func New(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rt, err := composeRuntime(cfg, db, logger, metrics.New())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &App{
		cfg:      cfg,
		db:       db,
		logger:   logger,
		server:   api.NewServer(cfg, rt.serverDeps, logger),
		notifier: rt.notifier,
		workers:  rt.workers,
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests,
// stops the background workers and waits for pending notifications.
func (a *App) Run(ctx context.Context) error {
	for _, w := range a.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Printf("listening on %s", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnf("http shutdown: %v", err)
	}
	for _, w := range a.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			a.logger.Warnf("stop worker: %v", err)
		}
	}
	if err := a.notifier.Wait(shutdownCtx); err != nil {
		a.logger.Warnf("pending notifications dropped: %v", err)
	}
	return serveErr
}

func (a *App) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
