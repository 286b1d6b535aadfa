package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	xhttp "AlphaPull/pkg/http"
)

const (
	// DefaultBaseURL is the Binance spot REST endpoint.
	DefaultBaseURL = "https://api.binance.com"
	// DefaultLimit is the maximum klines per request.
	DefaultLimit = 1000
	// defaultBackfillStart matches the earliest data worth backfilling.
	defaultBackfillStart = "2017-08-01T00:00:00Z"
)

// Client pulls OHLCV klines from the Binance REST API. Pagination is by
// time windows: each page resumes from the last candle's close time.
type Client struct {
	baseURL  string
	interval string
	limit    int
	start    time.Time
	hint     drepo.RateLimitHint
	http     *xhttp.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests point this at a local server).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithInterval sets the kline interval, e.g. "1m" or "1d".
func WithInterval(iv string) Option {
	return func(c *Client) {
		if iv != "" {
			c.interval = iv
		}
	}
}

// WithLimit sets the page size.
func WithLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithBackfillStart sets the epoch-zero fetch start for first runs.
func WithBackfillStart(t time.Time) Option {
	return func(c *Client) {
		if !t.IsZero() {
			c.start = t
		}
	}
}

// WithRateLimit sets the advertised request budget.
func WithRateLimit(capacity, refillPerSec float64) Option {
	return func(c *Client) {
		c.hint = drepo.RateLimitHint{Capacity: capacity, RefillPerSec: refillPerSec}
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = xhttp.NewClient(xhttp.WithTimeout(d))
	}
}

// New creates a Binance source adapter.
func New(opts ...Option) *Client {
	start, _ := time.Parse(time.RFC3339, defaultBackfillStart)
	c := &Client{
		baseURL:  DefaultBaseURL,
		interval: "1d",
		limit:    DefaultLimit,
		start:    start,
		hint:     drepo.RateLimitHint{Capacity: 10, RefillPerSec: 5},
		http:     xhttp.NewClient(xhttp.WithTimeout(30 * time.Second)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "binance" }

func (c *Client) Capabilities() drepo.Capabilities {
	return drepo.Capabilities{Paginates: true, SupportsBackfill: true, RateLimit: c.hint}
}

// Fetch pulls one page of klines starting just past the cursor watermark.
// The next cursor's watermark is the last candle's close time, so an
// overlapping re-fetch after a crash lands on already-committed keys.
func (c *Client) Fetch(ctx context.Context, inst models.Instrument, cur models.Cursor) ([]models.Observation, models.Cursor, error) {
	startMs := c.start.UnixMilli()
	if !cur.Watermark.IsZero() {
		startMs = cur.Watermark.UnixMilli() + 1
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":    {inst.Symbol},
			"interval":  {c.interval},
			"limit":     {strconv.Itoa(c.limit)},
			"startTime": {strconv.FormatInt(startMs, 10)},
		},
	})
	if err != nil {
		return nil, cur, models.TransientSource(c.Name(), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(c.Name(), resp); err != nil {
		return nil, cur, err
	}

	var klines [][]any
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, cur, models.PermanentSource(c.Name(), fmt.Errorf("decode klines: %w", err))
	}
	if len(klines) == 0 {
		return nil, cur, nil
	}

	obs := make([]models.Observation, 0, len(klines))
	var lastClose int64
	for _, k := range klines {
		o, closeMs, err := parseKline(inst.Symbol, k)
		if err != nil {
			return nil, cur, models.PermanentSource(c.Name(), err)
		}
		obs = append(obs, o)
		lastClose = closeMs
	}

	next := models.Cursor{Watermark: time.UnixMilli(lastClose).UTC()}
	return obs, next, nil
}

// parseKline converts one Binance kline array:
// [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(symbol string, k []any) (models.Observation, int64, error) {
	if len(k) < 7 {
		return models.Observation{}, 0, fmt.Errorf("kline too short: %d fields", len(k))
	}
	openMs, ok := asInt64(k[0])
	if !ok {
		return models.Observation{}, 0, fmt.Errorf("bad open time %v", k[0])
	}
	closeMs, ok := asInt64(k[6])
	if !ok {
		return models.Observation{}, 0, fmt.Errorf("bad close time %v", k[6])
	}
	vals := make([]float64, 5)
	for i, idx := range []int{1, 2, 3, 4, 5} {
		f, ok := asFloat(k[idx])
		if !ok {
			return models.Observation{}, 0, fmt.Errorf("bad kline field %d: %v", idx, k[idx])
		}
		vals[i] = f
	}
	return models.Observation{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(openMs).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Source:    "binance",
	}, closeMs, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}

// classifyStatus maps HTTP status to the retry taxonomy: 429 and 5xx are
// transient, remaining non-2xx are permanent (bad symbol, auth).
func classifyStatus(source string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, body)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return models.TransientSource(source, err)
	}
	return models.PermanentSource(source, err)
}
