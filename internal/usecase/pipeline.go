package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	"AlphaPull/internal/services/features"
	applogger "AlphaPull/pkg/logger"
)

// SignalPublisher pushes generated signals to downstream consumers, in
// addition to the durable signal log. Optional.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig models.Signal) error
}

// Pipeline runs the full cycle per (instrument, source) pair: ingest,
// derive features, generate and log a signal. Pairs are isolated — one
// pair's failure never aborts its siblings — and the whole cycle is
// idempotent: re-running against unchanged upstream data changes no
// store.
type Pipeline struct {
	coord     *Coordinator
	engine    *features.Engine
	processed drepo.ProcessedStore
	signals   drepo.SignalLog
	gen       *SignalGenerator
	publisher SignalPublisher
	metrics   drepo.Metrics
	l         *applogger.Logger

	workers     int
	pairTimeout time.Duration
	featVersion string
	barInterval time.Duration
}

type PipelineOption func(*Pipeline)

func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithPairTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.pairTimeout = d }
}

func WithFeatureSet(version string, interval time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.featVersion = version
		p.barInterval = interval
	}
}

func WithSignalPublisher(pub SignalPublisher) PipelineOption {
	return func(p *Pipeline) { p.publisher = pub }
}

func NewPipeline(coord *Coordinator, engine *features.Engine, processed drepo.ProcessedStore, signals drepo.SignalLog, gen *SignalGenerator, metrics drepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		coord:       coord,
		engine:      engine,
		processed:   processed,
		signals:     signals,
		gen:         gen,
		metrics:     metrics,
		l:           l,
		workers:     4,
		pairTimeout: 5 * time.Minute,
		featVersion: "v1",
		barInterval: time.Minute,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RunCycle executes one cycle across all pairs with bounded concurrency
// and returns the structured report. It never returns an error: partial
// success is the expected, reported state.
func (p *Pipeline) RunCycle(ctx context.Context, instruments []models.Instrument, asOf time.Time) *models.CycleReport {
	started := time.Now().UTC()
	if asOf.IsZero() {
		asOf = started
	}
	report := &models.CycleReport{AsOf: asOf, Started: started, Pairs: make([]models.PairOutcome, len(instruments))}

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for i, inst := range instruments {
		wg.Add(1)
		go func(i int, inst models.Instrument) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				report.Pairs[i] = models.PairOutcome{Symbol: inst.Symbol, Source: inst.Source, Outcome: models.OutcomeFailed, Error: ctx.Err().Error()}
				return
			}

			report.Pairs[i] = p.runPair(ctx, inst, asOf)
		}(i, inst)
	}
	wg.Wait()

	report.Duration = time.Since(started)
	if p.l != nil {
		p.l.Info("cycle complete",
			applogger.Int("pairs", len(instruments)),
			applogger.Int("succeeded", report.Succeeded()),
			applogger.Int("failed", report.Failed()),
			applogger.Duration("duration_ms", report.Duration),
		)
	}
	return report
}

func (p *Pipeline) runPair(ctx context.Context, inst models.Instrument, asOf time.Time) models.PairOutcome {
	start := time.Now()
	out := models.PairOutcome{Symbol: inst.Symbol, Source: inst.Source, Outcome: models.OutcomeOK}
	defer func() {
		out.Duration = time.Since(start)
		p.metrics.RecordCycle(inst.Source, string(out.Outcome))
		p.metrics.RecordLatency("pair_cycle", out.Duration.Seconds())
	}()

	pctx := ctx
	if p.pairTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, p.pairTimeout)
		defer cancel()
	}

	ing, err := p.coord.Ingest(pctx, inst, asOf)
	out.RowsFetched = ing.Fetched
	out.RowsAppended = ing.Appended
	if err != nil {
		return classify(out, err)
	}
	if ing.Watermark.IsZero() {
		// Nothing ingested yet for this pair; nothing to derive.
		return out
	}

	set, err := features.ByVersion(p.featVersion, p.barInterval)
	if err != nil {
		out.Outcome = models.OutcomeFailed
		out.Error = err.Error()
		return out
	}

	// Recompute from the resume point so a bar completed by this batch
	// gets its features exactly once, and a re-run rewrites identical
	// rows.
	res, err := p.engine.Compute(pctx, inst, models.TimeRange{From: ing.Resumed, To: ing.Watermark}, set)
	if err != nil {
		return classify(out, err)
	}
	out.FeatureRows = len(res.Records)
	out.FailedPoints = res.Failed

	if len(res.Records) > 0 {
		if err := p.processed.Write(pctx, res.Records); err != nil {
			return classify(out, err)
		}
		latest := latestRecord(res.Records)
		sig, err := p.gen.Generate(pctx, latest)
		if err != nil {
			var infErr *models.InferenceError
			if errors.As(err, &infErr) {
				// Per-record model rejection: features stand, the
				// signal for this timestamp is skipped.
				out.Error = err.Error()
				p.metrics.RecordError("inference")
				return out
			}
			return classify(out, err)
		}
		if err := p.signals.Append(pctx, sig); err != nil {
			return classify(out, err)
		}
		if p.publisher != nil {
			if err := p.publisher.PublishSignal(pctx, sig); err != nil {
				// The durable log already has the signal; publication
				// is best effort.
				p.metrics.RecordError("publish")
				if p.l != nil {
					p.l.Warn("signal publish failed", applogger.String("symbol", sig.Symbol), applogger.Error(err))
				}
			}
		}
		out.Signal = &sig
	}
	return out
}

// classify maps an error to the pair outcome without discarding the
// partial progress already recorded on out.
func classify(out models.PairOutcome, err error) models.PairOutcome {
	switch {
	case errors.Is(err, models.ErrLeaseHeld):
		out.Outcome = models.OutcomeSkipped
	case errors.Is(err, context.DeadlineExceeded):
		out.Outcome = models.OutcomeTimeout
	default:
		out.Outcome = models.OutcomeFailed
	}
	out.Error = err.Error()
	return out
}

func latestRecord(recs []models.FeatureRecord) models.FeatureRecord {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	return recs[len(recs)-1]
}
