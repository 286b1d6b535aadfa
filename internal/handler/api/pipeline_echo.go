package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	"AlphaPull/internal/usecase"
	xhttp "AlphaPull/pkg/http"
	xlogger "AlphaPull/pkg/logger"
)

// PipelineHandler exposes the pipeline over HTTP: trigger a cycle, query
// the signal log and the materialized features, and report health.
type PipelineHandler struct {
	logger      *xlogger.Logger
	pipeline    *usecase.Pipeline
	signals     drepo.SignalLog
	processed   drepo.ProcessedStore
	raw         drepo.RawStore
	instruments []models.Instrument
}

func NewPipelineHandler(logger *xlogger.Logger, pipeline *usecase.Pipeline, signals drepo.SignalLog, processed drepo.ProcessedStore, raw drepo.RawStore, instruments []models.Instrument) *PipelineHandler {
	return &PipelineHandler{
		logger:      logger,
		pipeline:    pipeline,
		signals:     signals,
		processed:   processed,
		raw:         raw,
		instruments: instruments,
	}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/cycles", h.RunCycle)
	g.GET("/signals", h.Signals)
	g.GET("/features", h.Features)
	e.GET("/healthz", h.Health)
}

// RunCycle triggers one synchronous cycle and returns its report. The
// cycle is idempotent, so a retried request is harmless.
func (h *PipelineHandler) RunCycle(c echo.Context) error {
	req := &models.RunCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	asOf, err := parseTime(req.AsOf)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}

	instruments := h.instruments
	if len(req.Symbols) > 0 {
		want := make(map[string]bool, len(req.Symbols))
		for _, s := range req.Symbols {
			want[s] = true
		}
		instruments = nil
		for _, inst := range h.instruments {
			if want[inst.Symbol] {
				instruments = append(instruments, inst)
			}
		}
		if len(instruments) == 0 {
			return xhttp.BadRequestResponse(c, "no configured instrument matches the requested symbols")
		}
	}

	report := h.pipeline.RunCycle(c.Request().Context(), instruments, asOf)
	if h.logger != nil {
		h.logger.Info("cycle triggered via api",
			xlogger.Int("pairs", len(report.Pairs)),
			xlogger.Int("succeeded", report.Succeeded()),
			xlogger.Int("failed", report.Failed()),
		)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *PipelineHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	r, err := parseRange(req.From, req.To)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}

	sigs, err := h.signals.List(c.Request().Context(), req.Symbol, r, req.Limit)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("signals query failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, sigs)
}

func (h *PipelineHandler) Features(c echo.Context) error {
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	r, err := parseRange(req.From, req.To)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}

	recs, err := h.processed.Read(c.Request().Context(), req.Symbol, r, req.Version)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("features query failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, recs)
}

func (h *PipelineHandler) Health(c echo.Context) error {
	if err := h.raw.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// parseTime accepts RFC3339 or unix seconds; empty means zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := xhttp.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or unix seconds", s)
	}
	return t.UTC(), nil
}

func parseRange(from, to string) (models.TimeRange, error) {
	f, err := parseTime(from)
	if err != nil {
		return models.TimeRange{}, err
	}
	t, err := parseTime(to)
	if err != nil {
		return models.TimeRange{}, err
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return models.TimeRange{From: f, To: t}, nil
}
