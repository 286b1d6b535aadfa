package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaPull/internal/domain/models"
)

func testRecord() models.FeatureRecord {
	return models.FeatureRecord{
		Symbol:    "BTC/USDT",
		Timestamp: time.Date(2024, 1, 1, 0, 25, 0, 0, time.UTC),
		Version:   "v1",
		Values:    map[string]float64{"sma_5": 122.0, "mom_5": 5.0},
	}
}

func TestPredictDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTC/USDT", req.Symbol)
		assert.Equal(t, "v1", req.Version)
		assert.InDelta(t, 122.0, req.Features["sma_5"], 1e-9)

		json.NewEncoder(w).Encode(models.Prediction{ExpectedReturn: 0.02, Confidence: 0.8})
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL, "m1")
	pred, err := p.Predict(context.Background(), testRecord())
	require.NoError(t, err)
	assert.InDelta(t, 0.02, pred.ExpectedReturn, 1e-9)
	assert.InDelta(t, 0.8, pred.Confidence, 1e-9)
	assert.Equal(t, "m1", p.ModelVersion())
}

func TestPredictUnreachableIsModelUnavailable(t *testing.T) {
	p := NewHTTPPredictor("http://127.0.0.1:1", "m1", WithTimeout(200*time.Millisecond))
	_, err := p.Predict(context.Background(), testRecord())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrModelUnavailable))
}

func TestPredictServerErrorIsModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL, "m1")
	_, err := p.Predict(context.Background(), testRecord())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrModelUnavailable))
}

func TestPredictRejectionIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown feature set", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL, "m1")
	_, err := p.Predict(context.Background(), testRecord())
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrModelUnavailable))
}
