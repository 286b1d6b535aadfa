package usecase

import (
	"context"
	"errors"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	applogger "AlphaPull/pkg/logger"
)

// SignalGenerator turns the latest feature record of an instrument into
// a discrete BUY/SELL/HOLD decision via the external model. The mapping
// is a pure threshold policy over the predicted expected return, so the
// same record against the same model version always yields the same
// signal.
type SignalGenerator struct {
	model     drepo.Predictor
	threshold float64
	l         *applogger.Logger
}

func NewSignalGenerator(model drepo.Predictor, threshold float64, l *applogger.Logger) *SignalGenerator {
	return &SignalGenerator{model: model, threshold: threshold, l: l}
}

// Generate calls the model for one feature record and applies the
// threshold policy. A model transport failure surfaces as
// ErrModelUnavailable so the caller can retry the whole step; a
// per-record inference failure is wrapped in InferenceError and skips
// only this record.
func (g *SignalGenerator) Generate(ctx context.Context, rec models.FeatureRecord) (models.Signal, error) {
	pred, err := g.model.Predict(ctx, rec)
	if err != nil {
		if errors.Is(err, models.ErrModelUnavailable) {
			return models.Signal{}, err
		}
		return models.Signal{}, &models.InferenceError{Symbol: rec.Symbol, Timestamp: rec.Timestamp, Err: err}
	}

	sig := models.Signal{
		Symbol:         rec.Symbol,
		Timestamp:      rec.Timestamp,
		Decision:       g.decide(pred.ExpectedReturn),
		Confidence:     pred.Confidence,
		ExpectedReturn: pred.ExpectedReturn,
		FeatureVersion: rec.Version,
		ModelVersion:   g.model.ModelVersion(),
	}
	if g.l != nil {
		g.l.Debug("signal generated",
			applogger.String("symbol", sig.Symbol),
			applogger.String("decision", string(sig.Decision)),
			applogger.Float64("expected_return", sig.ExpectedReturn),
			applogger.Float64("confidence", sig.Confidence),
		)
	}
	return sig, nil
}

func (g *SignalGenerator) decide(expectedReturn float64) models.Decision {
	switch {
	case expectedReturn > g.threshold:
		return models.DecisionBuy
	case expectedReturn < -g.threshold:
		return models.DecisionSell
	default:
		return models.DecisionHold
	}
}
