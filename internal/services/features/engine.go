package features

import (
	"context"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	applogger "AlphaPull/pkg/logger"
)

// Engine derives feature records from the raw store. Computation is
// strictly causal: the record at t is built only from observations with
// timestamp <= t, and recomputing an unchanged range yields identical
// records (no wall clock, no randomness).
type Engine struct {
	raw drepo.RawStore
	l   *applogger.Logger
}

// Result is the partial outcome of one computation batch: per-record
// failures are collected, never aborting sibling timestamps.
type Result struct {
	Records []models.FeatureRecord
	Failed  []models.FailedPoint
}

func NewEngine(raw drepo.RawStore, l *applogger.Logger) *Engine {
	return &Engine{raw: raw, l: l}
}

// Compute produces feature records for every observed timestamp of the
// instrument inside [r.From, r.To]. Timestamps with insufficient trailing
// history for a given feature produce no value for it — and no record at
// all when nothing is computable — so "not yet computable" stays distinct
// from "computed as zero".
func (e *Engine) Compute(ctx context.Context, inst models.Instrument, r models.TimeRange, set Set) (Result, error) {
	start := time.Now()
	lookback := time.Duration(set.MaxWindow()-1) * set.Interval
	raw, err := e.raw.Read(ctx, inst.Symbol, models.TimeRange{From: r.From.Add(-lookback), To: r.To}, inst.Source)
	if err != nil {
		return Result{}, err
	}

	// Warm-up is judged against the store's true first observation, not
	// the lookback-bounded slice: a hole right before the range is a gap
	// and must still let gap-tolerant features compute.
	first, err := e.raw.First(ctx, inst.Symbol, inst.Source)
	if err != nil {
		return Result{}, err
	}
	var earliest time.Time
	if !first.IsZero() {
		earliest = first.UTC().Truncate(set.Interval)
	}

	// Index by interval-aligned timestamp; superseded rows are skipped,
	// their replacement rows carry the corrected values.
	byTime := make(map[int64]models.Observation, len(raw))
	ordered := make([]time.Time, 0, len(raw))
	for _, o := range raw {
		if o.Superseded {
			continue
		}
		ts := o.Timestamp.UTC().Truncate(set.Interval)
		if _, dup := byTime[ts.Unix()]; !dup {
			byTime[ts.Unix()] = o
			if r.Contains(ts) {
				ordered = append(ordered, ts)
			}
		}
	}

	var res Result
	for _, ts := range ordered {
		values := make(map[string]float64, len(set.Defs))
		for _, def := range set.Defs {
			win, ok := window(byTime, earliest, ts, def, set.Interval)
			if !ok {
				continue // warm-up or gap: withheld, not zeroed
			}
			v, err := def.Compute(win)
			if err != nil {
				res.Failed = append(res.Failed, models.FailedPoint{
					Symbol:    inst.Symbol,
					Timestamp: ts,
					Feature:   def.Name,
					Reason:    err.Error(),
				})
				continue
			}
			values[def.Name] = v
		}
		if len(values) == 0 {
			continue
		}
		res.Records = append(res.Records, models.FeatureRecord{
			Symbol:    inst.Symbol,
			Timestamp: ts,
			Version:   set.Version,
			Values:    values,
		})
	}

	if e.l != nil {
		e.l.Debug("feature batch computed",
			applogger.String("symbol", inst.Symbol),
			applogger.String("version", set.Version),
			applogger.Int("records", len(res.Records)),
			applogger.Int("failed", len(res.Failed)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return res, nil
}

// window assembles the trailing window ending at ts. Gap-sensitive
// features need every period present; gap-tolerant features take the
// points that exist, as long as there is at least one.
func window(byTime map[int64]models.Observation, earliest, ts time.Time, def Definition, interval time.Duration) ([]models.Observation, bool) {
	start := ts.Add(-time.Duration(def.Window-1) * interval)
	// A window reaching before the first known observation is warm-up,
	// not a gap: the value is withheld regardless of policy.
	if start.Before(earliest) {
		return nil, false
	}
	win := make([]models.Observation, 0, def.Window)
	for i := def.Window - 1; i >= 0; i-- {
		at := ts.Add(-time.Duration(i) * interval)
		o, present := byTime[at.Unix()]
		if !present {
			if def.Policy == GapSensitive {
				return nil, false
			}
			continue
		}
		win = append(win, o)
	}
	if len(win) == 0 {
		return nil, false
	}
	return win, true
}
