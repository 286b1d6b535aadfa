package models

import "time"

// Decision is the discrete trading-style outcome of the signal policy.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// Prediction is the external model's output for one feature record.
type Prediction struct {
	ExpectedReturn float64 `json:"expected_return"`
	Confidence     float64 `json:"confidence"`
}

// Signal is one immutable audit-log entry: the decision taken for an
// instrument at a timestamp, together with everything needed to
// reproduce it (feature-set version and model version).
type Signal struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"ts"`
	Decision       Decision  `json:"decision"`
	Confidence     float64   `json:"confidence"`
	ExpectedReturn float64   `json:"expected_return"`
	FeatureVersion string    `json:"feature_version"`
	ModelVersion   string    `json:"model_version"`
}
