package models

import "time"

// AssetClass distinguishes instrument kinds across providers.
type AssetClass string

const (
	ClassEquity AssetClass = "equity"
	ClassCrypto AssetClass = "crypto"
)

// Instrument identifies one tradable symbol at a venue, bound to the
// upstream source it is ingested from. Immutable once configured.
type Instrument struct {
	Symbol string     `yaml:"symbol" json:"symbol"`
	Class  AssetClass `yaml:"class" json:"class"`
	Venue  string     `yaml:"venue" json:"venue"`
	Source string     `yaml:"source" json:"source"`
}

// PairKey returns the (instrument, source) identity used for cursors,
// leases and failure isolation.
func (i Instrument) PairKey() string {
	return i.Source + ":" + i.Symbol
}

// Observation is one raw OHLCV record exactly as received from a source.
// Uniquely keyed by (Symbol, Timestamp, Source); values are never edited
// or deleted. A correction flags the stale row Superseded and lands as a
// new row under the same key.
type Observation struct {
	Symbol      string    `json:"symbol"`
	Timestamp   time.Time `json:"ts"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	Source      string    `json:"source"`
	IngestionID string    `json:"ingestion_id"`
	Superseded  bool      `json:"superseded,omitempty"`
}

// Key returns the dedup identity of the observation.
func (o Observation) Key() ObservationKey {
	return ObservationKey{Symbol: o.Symbol, Unix: o.Timestamp.Unix(), Source: o.Source}
}

// ObservationKey is the unique raw-store key (instrument, timestamp, source).
type ObservationKey struct {
	Symbol string
	Unix   int64
	Source string
}

// Cursor is the per-(instrument, source) ingestion watermark. Watermark
// marks the last durably committed point; PageToken carries provider
// pagination state for sources that use opaque tokens.
type Cursor struct {
	Watermark time.Time `json:"watermark"`
	PageToken string    `json:"page_token,omitempty"`
}

// IsZero reports whether the cursor is the epoch-zero first-run cursor.
func (c Cursor) IsZero() bool {
	return c.Watermark.IsZero() && c.PageToken == ""
}

// TimeRange is a half-open-free inclusive [From, To] window.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}
