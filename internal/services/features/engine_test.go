package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaPull/internal/domain/models"
	"AlphaPull/internal/repository"
)

var testInst = models.Instrument{Symbol: "BTC/USDT", Class: models.ClassCrypto, Venue: "binance", Source: "binance"}

func seedLinearCloses(t *testing.T, raw *repository.MemoryRawStore, base time.Time, n int) {
	t.Helper()
	obs := make([]models.Observation, 0, n)
	for i := 0; i < n; i++ {
		obs = append(obs, models.Observation{
			Symbol:    testInst.Symbol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      100 + float64(i),
			High:      100.5 + float64(i),
			Low:       99.5 + float64(i),
			Close:     100 + float64(i),
			Volume:    10,
			Source:    testInst.Source,
		})
	}
	_, err := raw.Append(context.Background(), obs)
	require.NoError(t, err)
}

func TestComputeKnownValues(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLinearCloses(t, raw, base, 25)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	last := base.Add(24 * time.Minute)
	res, err := eng.Compute(context.Background(), testInst, models.TimeRange{From: last, To: last}, set)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Failed)

	rec := res.Records[0]
	assert.Equal(t, "v1", rec.Version)
	assert.True(t, rec.Timestamp.Equal(last))

	v, ok := rec.Value("sma_5")
	require.True(t, ok)
	assert.InDelta(t, 122.0, v, 1e-9) // mean of closes 120..124

	v, ok = rec.Value("mom_5")
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9) // 124 - 119

	v, ok = rec.Value("mom_20")
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9)

	v, ok = rec.Value("sma_20")
	require.True(t, ok)
	assert.InDelta(t, 114.5, v, 1e-9) // mean of closes 105..124

	v, ok = rec.Value("ret_1")
	require.True(t, ok)
	assert.InDelta(t, 124.0/123.0-1, v, 1e-12)

	v, ok = rec.Value("vol_sum_5")
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-9)

	// 25 bars cannot satisfy a 50-period mean.
	_, ok = rec.Value("sma_50")
	assert.False(t, ok)
}

func TestComputeWarmUpWithholdsValues(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLinearCloses(t, raw, base, 5)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	res, err := eng.Compute(context.Background(), testInst, models.TimeRange{From: base, To: base.Add(4 * time.Minute)}, set)
	require.NoError(t, err)

	// The very first bar has no trailing history at all, so even the
	// gap-tolerant volume sum is withheld and no record is emitted.
	for _, rec := range res.Records {
		assert.False(t, rec.Timestamp.Equal(base), "first timestamp must produce no record")
	}
	require.NotEmpty(t, res.Records)

	// Second bar: only the 2-period features are computable.
	second := res.Records[0]
	assert.True(t, second.Timestamp.Equal(base.Add(time.Minute)))
	_, ok := second.Value("ret_1")
	assert.True(t, ok)
	_, ok = second.Value("sma_5")
	assert.False(t, ok)
	_, ok = second.Value("sma_20")
	assert.False(t, ok)
}

func TestComputeGapPolicies(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]models.Observation, 0, 9)
	for i := 0; i < 10; i++ {
		if i == 7 { // one missing minute inside the trailing windows
			continue
		}
		obs = append(obs, models.Observation{
			Symbol:    testInst.Symbol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Close:     100 + float64(i),
			Volume:    10,
			Source:    testInst.Source,
		})
	}
	_, err := raw.Append(context.Background(), obs)
	require.NoError(t, err)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	at := base.Add(9 * time.Minute)
	res, err := eng.Compute(context.Background(), testInst, models.TimeRange{From: at, To: at}, set)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]

	// sma_5 spans minutes 5..9, which includes the hole at 7.
	_, ok := rec.Value("sma_5")
	assert.False(t, ok, "gap-sensitive feature must be withheld over a gap")

	// vol_sum_5 tolerates the hole and sums the four present bars.
	v, ok := rec.Value("vol_sum_5")
	require.True(t, ok)
	assert.InDelta(t, 40.0, v, 1e-9)

	// ret_1 spans minutes 8..9, both present.
	_, ok = rec.Value("ret_1")
	assert.True(t, ok)
}

func TestComputeGapBeforeRangeIsNotWarmUp(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]models.Observation, 0, 14)
	for _, i := range []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 58, 59, 60} {
		obs = append(obs, models.Observation{
			Symbol:    testInst.Symbol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Close:     100 + float64(i),
			Volume:    10,
			Source:    testInst.Source,
		})
	}
	_, err := raw.Append(context.Background(), obs)
	require.NoError(t, err)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	at := base.Add(60 * time.Minute)
	res, err := eng.Compute(context.Background(), testInst, models.TimeRange{From: at, To: at}, set)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]

	// History starts at minute 0, so the outage across minutes 11..57 is
	// a gap, not warm-up: the gap-tolerant volume sum covers the three
	// bars that exist at 58..60.
	v, ok := rec.Value("vol_sum_5")
	require.True(t, ok, "gap-tolerant feature must compute over available points")
	assert.InDelta(t, 30.0, v, 1e-9)

	// Gap-sensitive features over the same window stay withheld.
	_, ok = rec.Value("sma_5")
	assert.False(t, ok)

	// ret_1 spans minutes 59..60, both present.
	_, ok = rec.Value("ret_1")
	assert.True(t, ok)
}

func TestComputeIsCausal(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLinearCloses(t, raw, base, 10)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	r := models.TimeRange{From: base, To: base.Add(9 * time.Minute)}
	before, err := eng.Compute(context.Background(), testInst, r, set)
	require.NoError(t, err)

	// A later observation, even a wild one, must not move any value at
	// or before the range end.
	_, err = raw.Append(context.Background(), []models.Observation{{
		Symbol:    testInst.Symbol,
		Timestamp: base.Add(10 * time.Minute),
		Close:     1e6,
		Volume:    1e6,
		Source:    testInst.Source,
	}})
	require.NoError(t, err)

	after, err := eng.Compute(context.Background(), testInst, r, set)
	require.NoError(t, err)
	assert.Equal(t, before.Records, after.Records)
}

func TestComputeIsDeterministic(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLinearCloses(t, raw, base, 30)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	r := models.TimeRange{From: base, To: base.Add(29 * time.Minute)}
	first, err := eng.Compute(context.Background(), testInst, r, set)
	require.NoError(t, err)
	second, err := eng.Compute(context.Background(), testInst, r, set)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeCollectsFailedPoints(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := raw.Append(context.Background(), []models.Observation{
		{Symbol: testInst.Symbol, Timestamp: base, Close: 100, Volume: 10, Source: testInst.Source},
		{Symbol: testInst.Symbol, Timestamp: base.Add(time.Minute), Close: -1, Volume: 10, Source: testInst.Source},
	})
	require.NoError(t, err)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	at := base.Add(time.Minute)
	res, err := eng.Compute(context.Background(), testInst, models.TimeRange{From: at, To: at}, set)
	require.NoError(t, err)

	require.NotEmpty(t, res.Failed)
	var sawLogRet bool
	for _, f := range res.Failed {
		assert.Equal(t, testInst.Symbol, f.Symbol)
		if f.Feature == "log_ret_1" {
			sawLogRet = true
		}
	}
	assert.True(t, sawLogRet)

	// The failed feature does not poison its siblings: ret_1 still
	// computes on the same bar.
	require.Len(t, res.Records, 1)
	_, ok := res.Records[0].Value("ret_1")
	assert.True(t, ok)
}

func TestComputeSkipsSuperseded(t *testing.T) {
	raw := repository.NewMemoryRawStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := raw.Append(context.Background(), []models.Observation{
		{Symbol: testInst.Symbol, Timestamp: base, Close: 100, Source: testInst.Source},
		{Symbol: testInst.Symbol, Timestamp: base.Add(time.Minute), Close: 999, Source: testInst.Source, Superseded: true},
		{Symbol: testInst.Symbol, Timestamp: base.Add(2 * time.Minute), Close: 102, Source: testInst.Source},
	})
	require.NoError(t, err)

	eng := NewEngine(raw, nil)
	set := V1(time.Minute)
	at := base.Add(2 * time.Minute)
	res, err := eng.Compute(context.Background(), testInst, models.TimeRange{From: at, To: at}, set)
	require.NoError(t, err)

	// The superseded bar at minute 1 is invisible; to ret_1 the window
	// simply has a missing period and the value is withheld.
	for _, rec := range res.Records {
		_, ok := rec.Value("ret_1")
		assert.False(t, ok)
	}
}
