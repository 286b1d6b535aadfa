package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	"AlphaPull/internal/service/ratelimit"
	"AlphaPull/internal/service/retry"
	applogger "AlphaPull/pkg/logger"
)

// maxPagesPerCycle bounds a single pair's pagination so a provider bug
// can never pin a worker forever.
const maxPagesPerCycle = 1000

// Coordinator drives ingestion for one (instrument, source) pair at a
// time: lease, resume from the cursor, fetch pages under the source's
// rate budget with retry, commit to the raw store, then advance the
// cursor. The commit-then-advance order makes delivery at-least-once;
// the raw store's keyed idempotence turns that into exactly-once effect.
type Coordinator struct {
	adapters map[string]drepo.SourceAdapter
	raw      drepo.RawStore
	cursors  drepo.CursorStore
	limiter  *ratelimit.Limiter
	policy   retry.Policy
	leaseTTL time.Duration
	metrics  drepo.Metrics
	l        *applogger.Logger
}

type CoordinatorOption func(*Coordinator)

func WithRetryPolicy(p retry.Policy) CoordinatorOption {
	return func(c *Coordinator) { c.policy = p }
}

func WithLeaseTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.leaseTTL = ttl }
}

func NewCoordinator(adapters []drepo.SourceAdapter, raw drepo.RawStore, cursors drepo.CursorStore, metrics drepo.Metrics, l *applogger.Logger, opts ...CoordinatorOption) *Coordinator {
	byName := make(map[string]drepo.SourceAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	c := &Coordinator{
		adapters: byName,
		raw:      raw,
		cursors:  cursors,
		limiter:  ratelimit.New(),
		policy:   retry.DefaultPolicy(),
		leaseTTL: 2 * time.Minute,
		metrics:  metrics,
		l:        l,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IngestResult summarizes one pair's ingestion pass. Resumed is the
// watermark the pass started from; Watermark where it ended.
type IngestResult struct {
	Fetched   int
	Appended  int
	Resumed   time.Time
	Watermark time.Time
	Pages     int
}

// Ingest pulls everything new for the pair up to asOf. It returns
// models.ErrLeaseHeld when another worker owns the pair, and the last
// fetch error when retries exhaust. Progress committed before a failure
// stays committed; the cursor never moves past it.
func (c *Coordinator) Ingest(ctx context.Context, inst models.Instrument, asOf time.Time) (IngestResult, error) {
	adapter, ok := c.adapters[inst.Source]
	if !ok {
		return IngestResult{}, models.ErrUnknownSource
	}

	release, err := c.cursors.Lease(ctx, inst, c.leaseTTL)
	if err != nil {
		return IngestResult{}, err
	}
	defer release()

	cur, err := c.cursors.Get(ctx, inst)
	if err != nil {
		return IngestResult{}, err
	}

	caps := adapter.Capabilities()
	var res IngestResult
	res.Resumed = cur.Watermark
	res.Watermark = cur.Watermark

	for page := 0; page < maxPagesPerCycle; page++ {
		if hint := caps.RateLimit; hint.RefillPerSec > 0 {
			if err := c.limiter.Wait(ctx, adapter.Name(), hint.Capacity, hint.RefillPerSec); err != nil {
				return res, err
			}
		}

		var (
			obs  []models.Observation
			next models.Cursor
		)
		fetchStart := time.Now()
		err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
			var ferr error
			obs, next, ferr = adapter.Fetch(ctx, inst, cur)
			return ferr
		}, func(step retry.Step, err error) {
			c.metrics.RecordError("source")
			if c.l != nil {
				c.l.Warn("fetch retry",
					applogger.String("source", inst.Source),
					applogger.String("symbol", inst.Symbol),
					applogger.Int("attempt", step.Attempt),
					applogger.Duration("backoff_ms", step.Delay),
					applogger.Error(err),
				)
			}
		})
		c.metrics.RecordLatency("fetch", time.Since(fetchStart).Seconds())
		if err != nil {
			return res, err
		}
		res.Pages++

		if len(obs) == 0 {
			return res, nil
		}
		if err := validateBatch(inst, cur, obs); err != nil {
			return res, err
		}

		kept := obs
		truncated := false
		if !asOf.IsZero() {
			for len(kept) > 0 && kept[len(kept)-1].Timestamp.After(asOf) {
				kept = kept[:len(kept)-1]
				truncated = true
			}
		}
		if len(kept) == 0 {
			return res, nil
		}

		// Every row of a committed batch shares one ingestion id, so a
		// stored observation traces back to the exact fetch that produced
		// it.
		batchID := uuid.NewString()
		for i := range kept {
			kept[i].IngestionID = batchID
		}

		appended, err := c.raw.Append(ctx, kept)
		if err != nil {
			return res, err
		}
		res.Fetched += len(kept)
		res.Appended += appended
		c.metrics.RecordRows(inst.Source, inst.Symbol, len(kept), appended)
		c.metrics.RecordLastClose(inst.Symbol, kept[len(kept)-1].Close)

		commit := next
		if truncated {
			// The cut rows are refetched next cycle; the store dedupes
			// the overlap.
			commit = models.Cursor{Watermark: kept[len(kept)-1].Timestamp}
		}
		if err := c.cursors.Advance(ctx, inst, commit); err != nil {
			return res, err
		}
		res.Watermark = commit.Watermark

		if truncated || !caps.Paginates || cursorsEqual(cur, commit) {
			return res, nil
		}
		cur = commit
	}
	return res, nil
}

// ApplyCorrection restates one committed bar: the live row under the
// corrected bar's key is flagged superseded and the corrected values are
// appended as a new row under the same key. Corrections target history
// at or below the watermark, so they deliberately skip the monotonicity
// check and never move the cursor; the pair lease still serializes them
// against running ingest cycles.
func (c *Coordinator) ApplyCorrection(ctx context.Context, inst models.Instrument, corrected models.Observation) error {
	release, err := c.cursors.Lease(ctx, inst, c.leaseTTL)
	if err != nil {
		return err
	}
	defer release()

	if err := c.raw.Supersede(ctx, corrected.Key()); err != nil {
		return err
	}
	corrected.Superseded = false
	corrected.IngestionID = uuid.NewString()
	if _, err := c.raw.Append(ctx, []models.Observation{corrected}); err != nil {
		return err
	}
	if c.l != nil {
		c.l.Info("correction applied",
			applogger.String("source", inst.Source),
			applogger.String("symbol", inst.Symbol),
			applogger.String("ts", corrected.Timestamp.UTC().Format(time.RFC3339)),
		)
	}
	return nil
}

// validateBatch enforces the adapter contract: strictly ascending
// timestamps, strictly after the committed watermark.
func validateBatch(inst models.Instrument, cur models.Cursor, obs []models.Observation) error {
	prev := cur.Watermark
	for _, o := range obs {
		if !prev.IsZero() && !o.Timestamp.After(prev) {
			return &models.OutOfOrderError{Symbol: inst.Symbol, Prev: prev, Next: o.Timestamp}
		}
		prev = o.Timestamp
	}
	return nil
}

func cursorsEqual(a, b models.Cursor) bool {
	return a.Watermark.Equal(b.Watermark) && a.PageToken == b.PageToken
}
