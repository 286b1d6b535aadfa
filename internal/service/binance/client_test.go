package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaPull/internal/domain/models"
)

func kline(openMs int64, open, high, low, close, vol float64, closeMs int64) []any {
	f := func(v float64) string { return fmt.Sprintf("%.8f", v) }
	return []any{openMs, f(open), f(high), f(low), f(close), f(vol), closeMs,
		"0", 0, "0", "0", "0"}
}

func TestFetchParsesKlines(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		rows := [][]any{
			kline(base.UnixMilli(), 100, 101, 99, 100.5, 10, base.Add(time.Minute).UnixMilli()-1),
			kline(base.Add(time.Minute).UnixMilli(), 100.5, 102, 100, 101, 12, base.Add(2*time.Minute).UnixMilli()-1),
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL), WithInterval("1m"))
	inst := models.Instrument{Symbol: "BTCUSDT", Class: models.ClassCrypto, Source: "binance"}

	obs, next, err := c.Fetch(context.Background(), inst, models.Cursor{})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "BTCUSDT", obs[0].Symbol)
	assert.Equal(t, base, obs[0].Timestamp)
	assert.Equal(t, 100.5, obs[0].Close)
	assert.Equal(t, "binance", obs[0].Source)
	assert.Equal(t, base.Add(2*time.Minute).Add(-time.Millisecond), next.Watermark)
}

func TestFetchResumesPastWatermark(t *testing.T) {
	var gotStart string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("startTime")
		json.NewEncoder(w).Encode([][]any{})
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	wm := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	inst := models.Instrument{Symbol: "ETHUSDT", Source: "binance"}

	obs, next, err := c.Fetch(context.Background(), inst, models.Cursor{Watermark: wm})
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, wm, next.Watermark)
	assert.Equal(t, fmt.Sprintf("%d", wm.UnixMilli()+1), gotStart)
}

func TestFetchClassifiesThrottleAsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	_, _, err := c.Fetch(context.Background(), models.Instrument{Symbol: "BTCUSDT"}, models.Cursor{})
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestFetchClassifiesBadSymbolAsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL))
	_, _, err := c.Fetch(context.Background(), models.Instrument{Symbol: "NOPE"}, models.Cursor{})
	require.Error(t, err)
	assert.False(t, models.IsTransient(err))
}
