package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	pkgch "AlphaPull/pkg/clickhouse"
	applogger "AlphaPull/pkg/logger"
)

// rawTable is ordered by the dedup key and partitioned by
// (symbol, month) for cheap per-instrument range reads.
const rawTable = "alphapull.observations"

// CHRawStore implements RawStore backed by ClickHouse. Append dedupes
// against existing live (symbol, ts, source) keys before inserting, so
// overlapping re-fetches are no-ops; the per-pair lease keeps two
// writers from racing on the same keys.
type CHRawStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHRawStore(ch *pkgch.Client) *CHRawStore {
	return &CHRawStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHRawStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHRawStore) Append(ctx context.Context, obs []models.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	start := time.Now()

	existing, err := s.existingKeys(ctx, obs)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	values := make([]string, 0, len(obs))
	args := make([]interface{}, 0, len(obs)*10)
	for _, o := range obs {
		if _, dup := existing[o.Key()]; dup {
			continue
		}
		existing[o.Key()] = struct{}{}
		superseded := uint8(0)
		if o.Superseded {
			superseded = 1
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			o.Symbol, o.Timestamp.UTC(), o.Open, o.High, o.Low, o.Close, o.Volume,
			o.Source, o.IngestionID, superseded,
		)
	}
	if len(values) == 0 {
		return 0, nil
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (symbol, ts, open, high, low, close, volume, source, ingestion_id, superseded) VALUES %s",
		rawTable, strings.Join(values, ","),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse raw append error",
				applogger.String("symbol", obs[0].Symbol),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
		}
		return 0, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	appended := len(values)
	if s.l != nil {
		s.l.Debug("clickhouse raw append ok",
			applogger.String("symbol", obs[0].Symbol),
			applogger.Int("fetched", len(obs)),
			applogger.Int("appended", appended),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return appended, nil
}

// existingKeys loads the live dedup keys covering the batch's time span,
// per (symbol, source). Superseded rows do not count: once a key is
// flagged, its replacement may land under the same key.
func (s *CHRawStore) existingKeys(ctx context.Context, obs []models.Observation) (map[models.ObservationKey]struct{}, error) {
	lo, hi := obs[0].Timestamp, obs[0].Timestamp
	for _, o := range obs[1:] {
		if o.Timestamp.Before(lo) {
			lo = o.Timestamp
		}
		if o.Timestamp.After(hi) {
			hi = o.Timestamp
		}
	}

	const q = `
        SELECT DISTINCT symbol, ts, source
        FROM ` + rawTable + `
        WHERE symbol = ? AND source = ? AND ts >= ? AND ts <= ? AND superseded = 0
    `
	rows, err := s.db.QueryContext(ctx, q, obs[0].Symbol, obs[0].Source, lo.UTC(), hi.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[models.ObservationKey]struct{}, len(obs))
	for rows.Next() {
		var symbol, source string
		var ts time.Time
		if err := rows.Scan(&symbol, &ts, &source); err != nil {
			return nil, err
		}
		keys[models.ObservationKey{Symbol: symbol, Unix: ts.Unix(), Source: source}] = struct{}{}
	}
	return keys, rows.Err()
}

func (s *CHRawStore) Read(ctx context.Context, symbol string, r models.TimeRange, source string) ([]models.Observation, error) {
	q := `
        SELECT symbol, ts, open, high, low, close, volume, source, ingestion_id, superseded
        FROM ` + rawTable + `
        WHERE symbol = ? AND ts >= ? AND ts <= ?
    `
	args := []interface{}{symbol, r.From.UTC(), r.To.UTC()}
	if source != "" {
		q += " AND source = ?"
		args = append(args, source)
	}
	q += " ORDER BY ts ASC, source ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse raw read error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 1024)
	for rows.Next() {
		var o models.Observation
		var ts time.Time
		var superseded uint8
		if err := rows.Scan(&o.Symbol, &ts, &o.Open, &o.High, &o.Low, &o.Close, &o.Volume, &o.Source, &o.IngestionID, &superseded); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Timestamp = ts.UTC()
		o.Superseded = superseded != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *CHRawStore) First(ctx context.Context, symbol, source string) (time.Time, error) {
	q := `SELECT ts FROM ` + rawTable + ` WHERE symbol = ?`
	args := []interface{}{symbol}
	if source != "" {
		q += " AND source = ?"
		args = append(args, source)
	}
	q += " ORDER BY ts ASC LIMIT 1"

	var ts time.Time
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return ts.UTC(), nil
}

// Supersede flags the live row of a key. ClickHouse mutations are
// asynchronous; corrections are rare and administrative, so the eventual
// flag flip is acceptable here.
func (s *CHRawStore) Supersede(ctx context.Context, key models.ObservationKey) error {
	q := `ALTER TABLE ` + rawTable + ` UPDATE superseded = 1 WHERE symbol = ? AND source = ? AND ts = ? AND superseded = 0`
	if _, err := s.db.ExecContext(ctx, q, key.Symbol, key.Source, time.Unix(key.Unix, 0).UTC()); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *CHRawStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHRawStore) Close() error { return nil } // pool owned by pkg client

var _ drepo.RawStore = (*CHRawStore)(nil)
