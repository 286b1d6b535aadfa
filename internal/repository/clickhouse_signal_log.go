package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	pkgch "AlphaPull/pkg/clickhouse"
	applogger "AlphaPull/pkg/logger"
)

const signalTable = "alphapull.signals"

// CHSignalLog is the append-only signal audit trail in ClickHouse.
// Append checks for the (symbol, ts) key first so re-running an
// idempotent cycle never duplicates audit rows.
type CHSignalLog struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSignalLog(ch *pkgch.Client) *CHSignalLog {
	return &CHSignalLog{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHSignalLog) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSignalLog) Append(ctx context.Context, sig models.Signal) error {
	const check = `SELECT count() FROM ` + signalTable + ` WHERE symbol = ? AND ts = ?`
	var n uint64
	if err := s.db.QueryRowContext(ctx, check, sig.Symbol, sig.Timestamp.UTC()).Scan(&n); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if n > 0 {
		return nil // immutable log; the key already carries this decision
	}

	const q = `
        INSERT INTO ` + signalTable + `
        (symbol, ts, decision, confidence, expected_return, feature_version, model_version)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, q,
		sig.Symbol, sig.Timestamp.UTC(), string(sig.Decision), sig.Confidence,
		sig.ExpectedReturn, sig.FeatureVersion, sig.ModelVersion,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse signal append error",
				applogger.String("symbol", sig.Symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *CHSignalLog) List(ctx context.Context, symbol string, r models.TimeRange, limit int) ([]models.Signal, error) {
	q := `
        SELECT symbol, ts, decision, confidence, expected_return, feature_version, model_version
        FROM ` + signalTable + `
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts DESC
    `
	args := []interface{}{symbol, r.From.UTC(), r.To.UTC()}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	tmp := make([]models.Signal, 0, 64)
	for rows.Next() {
		var sig models.Signal
		var ts time.Time
		var decision string
		if err := rows.Scan(&sig.Symbol, &ts, &decision, &sig.Confidence, &sig.ExpectedReturn, &sig.FeatureVersion, &sig.ModelVersion); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Timestamp = ts.UTC()
		sig.Decision = models.Decision(decision)
		tmp = append(tmp, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHSignalLog) Close() error { return nil }

var _ drepo.SignalLog = (*CHSignalLog)(nil)
