package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	pkgch "AlphaPull/pkg/clickhouse"
	applogger "AlphaPull/pkg/logger"
)

const processedTable = "alphapull.features"

// CHProcessedStore materializes feature records in ClickHouse. The table
// uses ReplacingMergeTree ordered by (symbol, version, ts): rewriting
// the same key is an idempotent upsert, and versions live side by side
// for reproducible backtests. Values are stored as JSON with sorted
// keys, so identical records are byte-identical.
type CHProcessedStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHProcessedStore(ch *pkgch.Client) *CHProcessedStore {
	return &CHProcessedStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHProcessedStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHProcessedStore) Write(ctx context.Context, recs []models.FeatureRecord) error {
	if len(recs) == 0 {
		return nil
	}
	start := time.Now()

	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*4)
	for _, r := range recs {
		payload, err := json.Marshal(r.Values) // map keys marshal sorted
		if err != nil {
			return fmt.Errorf("marshal feature values: %w", err)
		}
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, r.Symbol, r.Timestamp.UTC(), r.Version, string(payload))
	}

	q := fmt.Sprintf("INSERT INTO %s (symbol, ts, version, values_json) VALUES %s",
		processedTable, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse features write error",
				applogger.Int("rows", len(recs)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse features write ok",
			applogger.Int("rows", len(recs)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHProcessedStore) Read(ctx context.Context, symbol string, r models.TimeRange, version string) ([]models.FeatureRecord, error) {
	const q = `
        SELECT symbol, ts, version, values_json
        FROM ` + processedTable + ` FINAL
        WHERE symbol = ? AND version = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, version, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	out := make([]models.FeatureRecord, 0, 256)
	for rows.Next() {
		var rec models.FeatureRecord
		var ts time.Time
		var payload string
		if err := rows.Scan(&rec.Symbol, &ts, &rec.Version, &payload); err != nil {
			return nil, fmt.Errorf("scan feature record: %w", err)
		}
		rec.Timestamp = ts.UTC()
		if err := json.Unmarshal([]byte(payload), &rec.Values); err != nil {
			return nil, fmt.Errorf("unmarshal feature values: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *CHProcessedStore) Close() error { return nil }

var _ drepo.ProcessedStore = (*CHProcessedStore)(nil)
