package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	xhttp "AlphaPull/pkg/http"
)

const (
	// DefaultBaseURL is the Alpha Vantage query endpoint.
	DefaultBaseURL = "https://www.alphavantage.co/query"

	seriesKey  = "Time Series (Daily)"
	dateLayout = "2006-01-02"
)

// Client pulls daily OHLCV series from Alpha Vantage. The provider has
// no pagination: it returns a dated snapshot, so the cursor watermark is
// used to filter already-ingested dates and "outputsize=compact" keeps
// incremental pulls cheap after the first backfill.
type Client struct {
	baseURL string
	apiKey  string
	hint    drepo.RateLimitHint
	http    *xhttp.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithRateLimit sets the advertised request budget. The free tier allows
// five requests per minute.
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

// New creates an Alpha Vantage source adapter.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		hint:    drepo.RateLimitHint{Capacity: 5, RefillPerSec: 5.0 / 60.0},
		http:    xhttp.NewClient(xhttp.WithTimeout(30 * time.Second)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "alphavantage" }

func (c *Client) Capabilities() drepo.Capabilities {
	return drepo.Capabilities{Paginates: false, SupportsBackfill: true, RateLimit: c.hint}
}

type seriesBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"6. volume"`
}

type seriesResponse struct {
	Series  map[string]seriesBar `json:"Time Series (Daily)"`
	Note    string               `json:"Note"`
	Info    string               `json:"Information"`
	Message string               `json:"Error Message"`
}

// Fetch pulls the daily snapshot for the instrument and returns the rows
// strictly after the cursor watermark, ascending. The next watermark is
// the newest returned date.
func (c *Client) Fetch(ctx context.Context, inst models.Instrument, cur models.Cursor) ([]models.Observation, models.Cursor, error) {
	outputSize := "full"
	if !cur.IsZero() {
		outputSize = "compact"
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL,
		QueryParams: map[string][]string{
			"function":   {"TIME_SERIES_DAILY_ADJUSTED"},
			"symbol":     {inst.Symbol},
			"outputsize": {outputSize},
			"datatype":   {"json"},
			"apikey":     {c.apiKey},
		},
	})
	if err != nil {
		return nil, cur, models.TransientSource(c.Name(), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(c.Name(), resp.StatusCode); err != nil {
		return nil, cur, err
	}

	var body seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, cur, models.PermanentSource(c.Name(), fmt.Errorf("decode response: %w", err))
	}

	// Alpha Vantage signals throttling and misuse inside a 200 body.
	if body.Message != "" {
		return nil, cur, models.PermanentSource(c.Name(), fmt.Errorf("provider error: %s", body.Message))
	}
	if note := firstNonEmpty(body.Note, body.Info); note != "" {
		return nil, cur, models.TransientSource(c.Name(), fmt.Errorf("throttled: %s", note))
	}
	if len(body.Series) == 0 {
		return nil, cur, models.PermanentSource(c.Name(), fmt.Errorf("no %q in response for %s", seriesKey, inst.Symbol))
	}

	dates := make([]string, 0, len(body.Series))
	for d := range body.Series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	obs := make([]models.Observation, 0, len(dates))
	last := cur.Watermark
	for _, d := range dates {
		ts, err := time.ParseInLocation(dateLayout, d, time.UTC)
		if err != nil {
			return nil, cur, models.PermanentSource(c.Name(), fmt.Errorf("bad date %q: %w", d, err))
		}
		if !cur.Watermark.IsZero() && !ts.After(cur.Watermark) {
			continue
		}
		o, err := parseBar(inst.Symbol, ts, body.Series[d])
		if err != nil {
			return nil, cur, models.PermanentSource(c.Name(), err)
		}
		obs = append(obs, o)
		last = ts
	}

	return obs, models.Cursor{Watermark: last}, nil
}

func parseBar(symbol string, ts time.Time, b seriesBar) (models.Observation, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume},
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64)
		if err != nil {
			return models.Observation{}, fmt.Errorf("bad %s %q at %s: %w", f.name, f.value, ts.Format(dateLayout), err)
		}
		vals[i] = v
	}
	return models.Observation{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Source:    "alphavantage",
	}, nil
}

func classifyStatus(source string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	err := fmt.Errorf("status %d", status)
	if status == 429 || status >= 500 {
		return models.TransientSource(source, err)
	}
	return models.PermanentSource(source, err)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
