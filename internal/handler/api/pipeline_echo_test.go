package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	"AlphaPull/internal/repository"
	"AlphaPull/internal/services/features"
	"AlphaPull/internal/services/model"
	"AlphaPull/internal/usecase"
)

var (
	apiBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	apiInst = models.Instrument{Symbol: "BTC/USDT", Class: models.ClassCrypto, Source: "test"}
)

type apiMetrics struct{}

func (apiMetrics) RecordCycle(string, string)          {}
func (apiMetrics) RecordRows(string, string, int, int) {}
func (apiMetrics) RecordError(string)                  {}
func (apiMetrics) RecordLatency(string, float64)       {}
func (apiMetrics) RecordLastClose(string, float64)     {}

type apiAdapter struct{ data []models.Observation }

func (a *apiAdapter) Name() string                     { return "test" }
func (a *apiAdapter) Capabilities() drepo.Capabilities { return drepo.Capabilities{} }
func (a *apiAdapter) Fetch(_ context.Context, _ models.Instrument, cur models.Cursor) ([]models.Observation, models.Cursor, error) {
	var out []models.Observation
	for _, o := range a.data {
		if cur.Watermark.IsZero() || o.Timestamp.After(cur.Watermark) {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nil, cur, nil
	}
	return out, models.Cursor{Watermark: out[len(out)-1].Timestamp}, nil
}

func newTestHandler(t *testing.T) (*PipelineHandler, *echo.Echo) {
	t.Helper()
	data := make([]models.Observation, 0, 25)
	for i := 0; i < 25; i++ {
		data = append(data, models.Observation{
			Symbol:    apiInst.Symbol,
			Timestamp: apiBase.Add(time.Duration(i) * time.Minute),
			Close:     100 + float64(i),
			Volume:    10,
			Source:    apiInst.Source,
		})
	}

	raw := repository.NewMemoryRawStore()
	cursors := repository.NewMemoryCursorStore()
	processed := repository.NewMemoryProcessedStore()
	signals := repository.NewMemorySignalLog()
	coord := usecase.NewCoordinator([]drepo.SourceAdapter{&apiAdapter{data: data}}, raw, cursors, apiMetrics{}, nil)
	engine := features.NewEngine(raw, nil)
	gen := usecase.NewSignalGenerator(model.NewStubPredictor(0.02), 0.01, nil)
	pipeline := usecase.NewPipeline(coord, engine, processed, signals, gen, apiMetrics{}, nil,
		usecase.WithFeatureSet("v1", time.Minute))

	h := NewPipelineHandler(nil, pipeline, signals, processed, raw, []models.Instrument{apiInst})
	e := echo.New()
	h.RegisterRoutes(e)
	return h, e
}

func TestRunCycleEndpoint(t *testing.T) {
	_, e := newTestHandler(t)

	body := `{"as_of":"` + apiBase.Add(24*time.Minute).Format(time.RFC3339) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/cycles", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data models.CycleReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Pairs, 1)
	assert.Equal(t, models.OutcomeOK, resp.Data.Pairs[0].Outcome)
	assert.Equal(t, 25, resp.Data.Pairs[0].RowsAppended)
	require.NotNil(t, resp.Data.Pairs[0].Signal)
	assert.Equal(t, models.DecisionBuy, resp.Data.Pairs[0].Signal.Decision)
}

func TestRunCycleEndpointUnknownSymbol(t *testing.T) {
	_, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cycles", strings.NewReader(`{"symbols":["DOGE/USDT"]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, envelopeStatus(t, rec))
}

// envelopeStatus digs the application status out of the response body;
// the envelope always ships with HTTP 200.
func envelopeStatus(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Status
}

func TestSignalsEndpointRequiresSymbol(t *testing.T) {
	_, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/signals", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, envelopeStatus(t, rec))
}

func TestSignalsEndpointReturnsLoggedSignals(t *testing.T) {
	_, e := newTestHandler(t)

	// Run one cycle so a signal exists.
	asOf := apiBase.Add(24 * time.Minute).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/api/cycles", strings.NewReader(`{"as_of":"`+asOf+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/signals?symbol=BTC%2FUSDT&from=2024-01-01T00:00:00Z", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data []models.Signal `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, models.DecisionBuy, resp.Data[0].Decision)
}

func TestFeaturesEndpoint(t *testing.T) {
	_, e := newTestHandler(t)

	asOf := apiBase.Add(24 * time.Minute).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/api/cycles", strings.NewReader(`{"as_of":"`+asOf+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/features?symbol=BTC%2FUSDT&from=2024-01-01T00:24:00Z&to="+asOf, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data []models.FeatureRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.InDelta(t, 122.0, resp.Data[0].Values["sma_5"], 1e-9)
}

func TestHealthEndpoint(t *testing.T) {
	_, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}