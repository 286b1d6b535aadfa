package model

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"context"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	xhttp "AlphaPull/pkg/http"
)

const defaultTimeout = 5 * time.Second

// HTTPPredictor calls an external model service over HTTP. The model is
// a black box: it takes one feature record and answers with an expected
// return and a confidence. Transport and 5xx failures surface as
// ErrModelUnavailable; 4xx answers are per-record inference failures.
type HTTPPredictor struct {
	baseURL string
	version string
	client  *xhttp.Client
}

type Option func(*HTTPPredictor)

func WithTimeout(d time.Duration) Option {
	return func(p *HTTPPredictor) {
		p.client = xhttp.NewClient(xhttp.WithTimeout(d))
	}
}

func NewHTTPPredictor(baseURL, version string, opts ...Option) *HTTPPredictor {
	p := &HTTPPredictor{
		baseURL: baseURL,
		version: version,
		client:  xhttp.NewClient(xhttp.WithTimeout(defaultTimeout)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *HTTPPredictor) ModelVersion() string { return p.version }

type predictRequest struct {
	Symbol       string             `json:"symbol"`
	Timestamp    time.Time          `json:"ts"`
	Version      string             `json:"feature_version"`
	Features     map[string]float64 `json:"features"`
	ModelVersion string             `json:"model_version"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, rec models.FeatureRecord) (models.Prediction, error) {
	req := predictRequest{
		Symbol:       rec.Symbol,
		Timestamp:    rec.Timestamp,
		Version:      rec.Version,
		Features:     rec.Values,
		ModelVersion: p.version,
	}

	resp, err := p.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     p.baseURL + "/predict",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    req,
	})
	if err != nil {
		return models.Prediction{}, fmt.Errorf("%w: %v", models.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return models.Prediction{}, fmt.Errorf("%w: status %d", models.ErrModelUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Prediction{}, fmt.Errorf("predict rejected: status %d: %s", resp.StatusCode, body)
	}

	var pred models.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return models.Prediction{}, fmt.Errorf("decode prediction: %w", err)
	}
	return pred, nil
}

var _ drepo.Predictor = (*HTTPPredictor)(nil)
