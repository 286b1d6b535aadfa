package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	"AlphaPull/internal/repository"
	"AlphaPull/internal/services/features"
	"AlphaPull/internal/services/model"
)

type pipelineFixture struct {
	raw       *repository.MemoryRawStore
	cursors   *repository.MemoryCursorStore
	processed *repository.MemoryProcessedStore
	signals   *repository.MemorySignalLog
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, adapters []drepo.SourceAdapter, pred drepo.Predictor) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		raw:       repository.NewMemoryRawStore(),
		cursors:   repository.NewMemoryCursorStore(),
		processed: repository.NewMemoryProcessedStore(),
		signals:   repository.NewMemorySignalLog(),
	}
	coord := NewCoordinator(adapters, f.raw, f.cursors, nopMetrics{}, nil, WithRetryPolicy(fastPolicy()))
	engine := features.NewEngine(f.raw, nil)
	gen := NewSignalGenerator(pred, 0.01, nil)
	f.pipeline = NewPipeline(coord, engine, f.processed, f.signals, gen, nopMetrics{}, nil,
		WithWorkers(2), WithFeatureSet("v1", time.Minute))
	return f
}

func servingAdapter(name string, data []models.Observation) *fakeAdapter {
	return &fakeAdapter{name: name, fetch: func(cur models.Cursor) ([]models.Observation, models.Cursor, error) {
		out, next := barsAfter(data, cur)
		return out, next, nil
	}}
}

func TestRunCycleEndToEnd(t *testing.T) {
	data := bars(0, 24) // closes 100..124
	f := newPipelineFixture(t, []drepo.SourceAdapter{servingAdapter("fake", data)}, model.NewStubPredictor(0.02))

	asOf := testBase.Add(24 * time.Minute)
	report := f.pipeline.RunCycle(context.Background(), []models.Instrument{btc}, asOf)
	require.Len(t, report.Pairs, 1)

	pair := report.Pairs[0]
	require.Equal(t, models.OutcomeOK, pair.Outcome, pair.Error)
	assert.Equal(t, 25, pair.RowsFetched)
	assert.Equal(t, 25, pair.RowsAppended)
	assert.Equal(t, 24, pair.FeatureRows, "first bar has no trailing history")
	assert.Empty(t, pair.FailedPoints)

	require.NotNil(t, pair.Signal)
	assert.Equal(t, models.DecisionBuy, pair.Signal.Decision)
	assert.True(t, pair.Signal.Timestamp.Equal(asOf))
	assert.Equal(t, "v1", pair.Signal.FeatureVersion)
	assert.Equal(t, "stub", pair.Signal.ModelVersion)

	recs, err := f.processed.Read(context.Background(), btc.Symbol, models.TimeRange{From: asOf, To: asOf}, "v1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	v, ok := recs[0].Value("sma_5")
	require.True(t, ok)
	assert.InDelta(t, 122.0, v, 1e-9)
	v, ok = recs[0].Value("mom_5")
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9)

	sigs, err := f.signals.List(context.Background(), btc.Symbol, models.TimeRange{From: testBase, To: asOf}, 10)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, models.DecisionBuy, sigs[0].Decision)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	data := bars(0, 24)
	f := newPipelineFixture(t, []drepo.SourceAdapter{servingAdapter("fake", data)}, model.NewStubPredictor(0.02))

	asOf := testBase.Add(24 * time.Minute)
	first := f.pipeline.RunCycle(context.Background(), []models.Instrument{btc}, asOf)
	require.Equal(t, models.OutcomeOK, first.Pairs[0].Outcome, first.Pairs[0].Error)

	firstRecs, err := f.processed.Read(context.Background(), btc.Symbol, models.TimeRange{From: testBase, To: asOf}, "v1")
	require.NoError(t, err)
	rawLen, processedLen := f.raw.Len(), f.processed.Len()

	// Upstream unchanged: the second cycle appends nothing and rewrites
	// identical feature rows.
	second := f.pipeline.RunCycle(context.Background(), []models.Instrument{btc}, asOf)
	require.Equal(t, models.OutcomeOK, second.Pairs[0].Outcome, second.Pairs[0].Error)
	assert.Equal(t, 0, second.Pairs[0].RowsAppended)

	assert.Equal(t, rawLen, f.raw.Len())
	assert.Equal(t, processedLen, f.processed.Len())

	secondRecs, err := f.processed.Read(context.Background(), btc.Symbol, models.TimeRange{From: testBase, To: asOf}, "v1")
	require.NoError(t, err)
	assert.Equal(t, firstRecs, secondRecs)

	sigs, err := f.signals.List(context.Background(), btc.Symbol, models.TimeRange{From: testBase, To: asOf}, 10)
	require.NoError(t, err)
	assert.Len(t, sigs, 1, "re-logging the same (symbol, ts) is a no-op")
}

func withSource(obs []models.Observation, source string) []models.Observation {
	out := make([]models.Observation, len(obs))
	for i, o := range obs {
		o.Source = source
		out[i] = o
	}
	return out
}

func TestRunCycleIsolatesPairFailures(t *testing.T) {
	good := servingAdapter("good", withSource(bars(0, 24), "good"))
	bad := &fakeAdapter{name: "bad", fetch: func(cur models.Cursor) ([]models.Observation, models.Cursor, error) {
		return nil, cur, models.PermanentSource("bad", errors.New("invalid api key"))
	}}
	f := newPipelineFixture(t, []drepo.SourceAdapter{good, bad}, model.NewStubPredictor(0.02))

	goodInst := models.Instrument{Symbol: "BTC/USDT", Class: models.ClassCrypto, Source: "good"}
	badInst := models.Instrument{Symbol: "AAPL", Class: models.ClassEquity, Source: "bad"}

	report := f.pipeline.RunCycle(context.Background(), []models.Instrument{goodInst, badInst}, testBase.Add(24*time.Minute))
	require.Len(t, report.Pairs, 2)

	bySource := map[string]models.PairOutcome{}
	for _, p := range report.Pairs {
		bySource[p.Source] = p
	}
	assert.Equal(t, models.OutcomeOK, bySource["good"].Outcome, bySource["good"].Error)
	assert.Equal(t, models.OutcomeFailed, bySource["bad"].Outcome)
	assert.NotEmpty(t, bySource["bad"].Error)
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Failed())
}

func TestRunCycleSkipsLeasedPair(t *testing.T) {
	f := newPipelineFixture(t, []drepo.SourceAdapter{servingAdapter("fake", bars(0, 9))}, model.NewStubPredictor(0.02))
	release, err := f.cursors.Lease(context.Background(), btc, time.Minute)
	require.NoError(t, err)
	defer release()

	report := f.pipeline.RunCycle(context.Background(), []models.Instrument{btc}, testBase.Add(9*time.Minute))
	require.Len(t, report.Pairs, 1)
	assert.Equal(t, models.OutcomeSkipped, report.Pairs[0].Outcome)
	assert.Equal(t, 0, f.raw.Len())
}

func TestRunCycleModelOutageFailsPairButKeepsFeatures(t *testing.T) {
	pred := &failingPredictor{err: models.ErrModelUnavailable}
	f := newPipelineFixture(t, []drepo.SourceAdapter{servingAdapter("fake", bars(0, 24))}, pred)

	asOf := testBase.Add(24 * time.Minute)
	report := f.pipeline.RunCycle(context.Background(), []models.Instrument{btc}, asOf)
	require.Len(t, report.Pairs, 1)
	assert.Equal(t, models.OutcomeFailed, report.Pairs[0].Outcome)
	assert.Nil(t, report.Pairs[0].Signal)

	// Ingest and features survive the signal step's failure.
	assert.Equal(t, 25, f.raw.Len())
	assert.Greater(t, f.processed.Len(), 0)

	sigs, err := f.signals.List(context.Background(), btc.Symbol, models.TimeRange{From: testBase, To: asOf}, 10)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestRunCycleInferenceRejectionKeepsPairOK(t *testing.T) {
	pred := &failingPredictor{err: errors.New("nan in features")}
	f := newPipelineFixture(t, []drepo.SourceAdapter{servingAdapter("fake", bars(0, 24))}, pred)

	report := f.pipeline.RunCycle(context.Background(), []models.Instrument{btc}, testBase.Add(24*time.Minute))
	require.Len(t, report.Pairs, 1)
	assert.Equal(t, models.OutcomeOK, report.Pairs[0].Outcome)
	assert.Nil(t, report.Pairs[0].Signal)
	assert.NotEmpty(t, report.Pairs[0].Error)
	assert.Greater(t, f.processed.Len(), 0)
}
