package repository

import (
	"context"
	"time"

	"AlphaPull/internal/domain/models"
)

// RateLimitHint is the adapter's advertised request budget, used to
// configure the per-source token bucket.
type RateLimitHint struct {
	Capacity     float64
	RefillPerSec float64
}

// Capabilities declares what a source adapter supports. Variants differ
// in pagination scheme but expose the identical fetch contract; callers
// branch on capabilities, never on concrete types.
type Capabilities struct {
	Paginates        bool
	SupportsBackfill bool
	RateLimit        RateLimitHint
}

// SourceAdapter is the uniform pull contract over heterogeneous market
// data providers. Fetch returns observations in ascending timestamp
// order together with the cursor to resume from; violations are detected
// by the coordinator. Errors are classified via models.SourceError.
type SourceAdapter interface {
	Name() string
	Capabilities() Capabilities
	Fetch(ctx context.Context, inst models.Instrument, cur models.Cursor) ([]models.Observation, models.Cursor, error)
}

// RawStore is the immutable, append-only store of exactly-as-received
// observations. Append is atomic and idempotent by (symbol, timestamp,
// source): re-appending a present key is a no-op, and the returned count
// covers only rows actually written. Durability is guaranteed before
// Append returns nil.
//
// Corrections never edit rows in place. Supersede flags the live row of
// a key; a subsequent Append of the same key then lands as a new row, so
// the store keeps both the stale flagged row and its replacement. Reads
// return every row, flags included; consumers decide what to skip.
//
// First reports the oldest observation held for a (symbol, source)
// pair, superseded rows included, so callers can tell "history starts
// here" apart from "history has a hole here".
type RawStore interface {
	Append(ctx context.Context, obs []models.Observation) (int, error)
	Read(ctx context.Context, symbol string, r models.TimeRange, source string) ([]models.Observation, error)
	First(ctx context.Context, symbol, source string) (time.Time, error)
	Supersede(ctx context.Context, key models.ObservationKey) error
	Health(ctx context.Context) error
	Close() error
}

// CursorStore owns the per-(instrument, source) ingestion watermarks.
// Advance must only be called after the corresponding batch is durably
// committed; Lease serializes writers for one pair.
type CursorStore interface {
	Get(ctx context.Context, inst models.Instrument) (models.Cursor, error)
	Advance(ctx context.Context, inst models.Instrument, cur models.Cursor) error
	Lease(ctx context.Context, inst models.Instrument, ttl time.Duration) (release func(), err error)
}

// ProcessedStore materializes feature tables. Write is an idempotent
// upsert keyed by (symbol, timestamp, version); versions are retained
// side by side.
type ProcessedStore interface {
	Write(ctx context.Context, recs []models.FeatureRecord) error
	Read(ctx context.Context, symbol string, r models.TimeRange, version string) ([]models.FeatureRecord, error)
	Close() error
}

// SignalLog is the append-only signal audit trail keyed by (symbol,
// timestamp). Re-appending an existing key is a no-op so cycles stay
// idempotent. List returns the most recent rows within the range, up to
// limit, in ascending timestamp order on every backend.
type SignalLog interface {
	Append(ctx context.Context, s models.Signal) error
	List(ctx context.Context, symbol string, r models.TimeRange, limit int) ([]models.Signal, error)
	Close() error
}

// Predictor is the external black-box model boundary.
type Predictor interface {
	ModelVersion() string
	Predict(ctx context.Context, rec models.FeatureRecord) (models.Prediction, error)
}

// ObservationStream is a push-style supplement to the pull adapters:
// a live feed emitting interval-bucketed observations.
type ObservationStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Observation, <-chan error)
	Close() error
	IsConnected() bool
}

// Metrics records pipeline telemetry.
type Metrics interface {
	RecordCycle(source, outcome string)
	RecordRows(source, symbol string, fetched, appended int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordLastClose(symbol string, price float64)
}
