package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AlphaPull/internal/domain/models"
	"AlphaPull/internal/usecase"
	"AlphaPull/pkg/config"
	xhttp "AlphaPull/pkg/http"
	applogger "AlphaPull/pkg/logger"
)

// Closer is anything the app must release on shutdown.
type Closer interface {
	Close() error
}

// App encapsulates the entire application lifecycle: the HTTP surface,
// the cycle scheduler and the optional live collector.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	pipeline    *usecase.Pipeline
	instruments []models.Instrument
	collector   *usecase.LiveCollector
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closers     []Closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, pipeline *usecase.Pipeline, instruments []models.Instrument) *App {
	return &App{cfg: cfg, l: l, pipeline: pipeline, instruments: instruments}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetLiveCollector attaches the optional websocket collector.
func (a *App) SetLiveCollector(c *usecase.LiveCollector) { a.collector = c }

// AddCloser registers a resource to release on shutdown.
func (a *App) AddCloser(c Closer) { a.closers = append(a.closers, c) }

// RunOnce executes a single cycle and returns its report; used by the
// -once flag for cron-style operation.
func (a *App) RunOnce(ctx context.Context) *models.CycleReport {
	report := a.pipeline.RunCycle(ctx, a.instruments, time.Time{})
	a.closeAll()
	return report
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.l.Error("live collector start error", applogger.Error(err))
		} else {
			a.l.Info("live collector started")
		}
	}

	if interval := a.cfg.Ingestion.ScheduleInterval; interval > 0 {
		go a.schedule(ctx, interval)
		a.l.Info("scheduler started", applogger.Duration("interval_ms", interval))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// schedule runs cycles on a fixed ticker. A cycle that overruns the
// interval simply delays the next tick's work; per-pair leases keep the
// overlap safe.
func (a *App) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := a.pipeline.RunCycle(ctx, a.instruments, time.Time{})
			if report.Failed() > 0 {
				a.l.Warn("scheduled cycle had failures",
					applogger.Int("failed", report.Failed()),
					applogger.Int("succeeded", report.Succeeded()),
				)
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	if a.collector != nil {
		if err := a.collector.Close(); err != nil {
			a.l.Warn("live collector close error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	a.closeAll()
	a.l.Info("shutdown complete")
	return nil
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.Error(err))
		}
	}
	a.closers = nil
}
