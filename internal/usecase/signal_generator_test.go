package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaPull/internal/domain/models"
	"AlphaPull/internal/services/model"
)

func featureRecord() models.FeatureRecord {
	return models.FeatureRecord{
		Symbol:    "BTC/USDT",
		Timestamp: time.Date(2024, 1, 1, 0, 25, 0, 0, time.UTC),
		Version:   "v1",
		Values:    map[string]float64{"sma_5": 122.0},
	}
}

func TestGenerateThresholdBands(t *testing.T) {
	cases := []struct {
		name     string
		ret      float64
		decision models.Decision
	}{
		{"above threshold", 0.02, models.DecisionBuy},
		{"below negative threshold", -0.02, models.DecisionSell},
		{"inside band", 0.005, models.DecisionHold},
		{"exactly threshold", 0.01, models.DecisionHold},
		{"exactly negative threshold", -0.01, models.DecisionHold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := NewSignalGenerator(model.NewStubPredictor(tc.ret), 0.01, nil)
			sig, err := gen.Generate(context.Background(), featureRecord())
			require.NoError(t, err)
			assert.Equal(t, tc.decision, sig.Decision)
			assert.InDelta(t, tc.ret, sig.ExpectedReturn, 1e-12)
			assert.Equal(t, "v1", sig.FeatureVersion)
			assert.Equal(t, "stub", sig.ModelVersion)
			assert.Equal(t, "BTC/USDT", sig.Symbol)
		})
	}
}

type failingPredictor struct{ err error }

func (f *failingPredictor) ModelVersion() string { return "m1" }
func (f *failingPredictor) Predict(context.Context, models.FeatureRecord) (models.Prediction, error) {
	return models.Prediction{}, f.err
}

func TestGenerateModelUnavailablePassesThrough(t *testing.T) {
	gen := NewSignalGenerator(&failingPredictor{err: fmt.Errorf("%w: connection refused", models.ErrModelUnavailable)}, 0.01, nil)
	_, err := gen.Generate(context.Background(), featureRecord())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrModelUnavailable))

	var infErr *models.InferenceError
	assert.False(t, errors.As(err, &infErr))
}

func TestGenerateWrapsInferenceFailure(t *testing.T) {
	gen := NewSignalGenerator(&failingPredictor{err: errors.New("nan in features")}, 0.01, nil)
	_, err := gen.Generate(context.Background(), featureRecord())
	require.Error(t, err)

	var infErr *models.InferenceError
	require.True(t, errors.As(err, &infErr))
	assert.Equal(t, "BTC/USDT", infErr.Symbol)
}
