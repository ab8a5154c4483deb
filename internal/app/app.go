package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/collabtask/authcore/internal/config"
	"github.com/collabtask/authcore/internal/observability"
	"github.com/collabtask/authcore/internal/schedule"
)

// App bundles the long-running pieces of the service: the HTTP server, the
// cleanup scheduler and the observability runtime.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Cleanup       *schedule.CleanupJob
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, cleanup *schedule.CleanupJob) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		Cleanup:       cleanup,
	}
}

// Run serves until ctx is canceled, then drains the server and flushes the
// observability pipeline within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.Cleanup != nil {
		g.Go(func() error {
			a.Cleanup.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("http server shutdown failed", "error", err)
		}
		if err := a.Observability.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("observability shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
