package models

import (
	"sort"
	"time"
)

// FeatureRecord holds the named feature values derived for one instrument
// at one timestamp under one feature-set version. Keyed by
// (Symbol, Timestamp, Version); a pure, causal function of observations
// with timestamp <= Timestamp.
type FeatureRecord struct {
	Symbol    string             `json:"symbol"`
	Timestamp time.Time          `json:"ts"`
	Version   string             `json:"version"`
	Values    map[string]float64 `json:"values"`
}

// FeatureNames returns the record's feature names in sorted order, so
// serialization and comparison are deterministic.
func (r FeatureRecord) FeatureNames() []string {
	names := make([]string, 0, len(r.Values))
	for k := range r.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Value returns the named feature and whether it was computed at this
// timestamp. A missing feature means "not yet computable" (warm-up or
// gap), which callers must treat as distinct from zero.
func (r FeatureRecord) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// FailedPoint records a per-timestamp feature computation failure. The
// engine returns these alongside the partial result instead of aborting
// the batch.
type FailedPoint struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"ts"`
	Feature   string    `json:"feature"`
	Reason    string    `json:"reason"`
}
