package features

import (
	"fmt"
	"math"
	"time"

	"AlphaPull/internal/domain/models"
)

// GapPolicy declares how a feature behaves when the trailing window
// spans a missing period (exchange outage, market holiday).
type GapPolicy int

const (
	// GapSensitive features require exactly Window consecutive periods;
	// they are withheld entirely when any period is missing.
	GapSensitive GapPolicy = iota
	// GapTolerant features compute over the actually-available points
	// inside the window span.
	GapTolerant
)

// Definition is one named feature: a pure function over a bounded
// trailing window of observations ending at t. Window counts periods
// including t itself.
type Definition struct {
	Name    string
	Window  int
	Policy  GapPolicy
	Compute func(win []models.Observation) (float64, error)
}

// Set binds a fixed group of feature definitions and window lengths to a
// version identifier, making recomputation reproducible.
type Set struct {
	Version  string
	Interval time.Duration
	Defs     []Definition
}

// MaxWindow returns the longest window in the set, which bounds the
// lookback the engine needs before the requested range.
func (s Set) MaxWindow() int {
	max := 1
	for _, d := range s.Defs {
		if d.Window > max {
			max = d.Window
		}
	}
	return max
}

// ByVersion resolves a versioned feature set for the given bar interval.
func ByVersion(version string, interval time.Duration) (Set, error) {
	switch version {
	case "v1":
		return V1(interval), nil
	default:
		return Set{}, fmt.Errorf("unknown feature set version %q", version)
	}
}

// V1 is the initial feature set: simple and log returns, rolling means,
// realized volatility, momentum and a gap-tolerant volume sum.
func V1(interval time.Duration) Set {
	return Set{
		Version:  "v1",
		Interval: interval,
		Defs: []Definition{
			{Name: "ret_1", Window: 2, Policy: GapSensitive, Compute: simpleReturn},
			{Name: "log_ret_1", Window: 2, Policy: GapSensitive, Compute: logReturn},
			{Name: "sma_5", Window: 5, Policy: GapSensitive, Compute: meanClose},
			{Name: "sma_20", Window: 20, Policy: GapSensitive, Compute: meanClose},
			{Name: "sma_50", Window: 50, Policy: GapSensitive, Compute: meanClose},
			{Name: "vol_20", Window: 21, Policy: GapSensitive, Compute: realizedVol},
			{Name: "mom_5", Window: 6, Policy: GapSensitive, Compute: momentum},
			{Name: "mom_20", Window: 21, Policy: GapSensitive, Compute: momentum},
			{Name: "vol_sum_5", Window: 5, Policy: GapTolerant, Compute: volumeSum},
		},
	}
}

func simpleReturn(win []models.Observation) (float64, error) {
	prev, cur := win[0].Close, win[len(win)-1].Close
	if prev == 0 {
		return 0, fmt.Errorf("zero previous close")
	}
	return cur/prev - 1, nil
}

func logReturn(win []models.Observation) (float64, error) {
	prev, cur := win[0].Close, win[len(win)-1].Close
	if prev <= 0 || cur <= 0 {
		return 0, fmt.Errorf("non-positive close")
	}
	return math.Log(cur / prev), nil
}

func meanClose(win []models.Observation) (float64, error) {
	sum := 0.0
	for _, o := range win {
		sum += o.Close
	}
	return sum / float64(len(win)), nil
}

// realizedVol is the sample stdev of consecutive log returns inside the
// window (N closes yield N-1 returns).
func realizedVol(win []models.Observation) (float64, error) {
	rets := make([]float64, 0, len(win)-1)
	for i := 1; i < len(win); i++ {
		prev, cur := win[i-1].Close, win[i].Close
		if prev <= 0 || cur <= 0 {
			return 0, fmt.Errorf("non-positive close")
		}
		rets = append(rets, math.Log(cur/prev))
	}
	if len(rets) < 2 {
		return 0, fmt.Errorf("window too short for volatility")
	}
	sum, sum2 := 0.0, 0.0
	for _, r := range rets {
		sum += r
		sum2 += r * r
	}
	n := float64(len(rets))
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance), nil
}

// momentum is close(t) - close(t-N); the window spans N+1 points.
func momentum(win []models.Observation) (float64, error) {
	return win[len(win)-1].Close - win[0].Close, nil
}

func volumeSum(win []models.Observation) (float64, error) {
	sum := 0.0
	for _, o := range win {
		sum += o.Volume
	}
	return sum, nil
}
