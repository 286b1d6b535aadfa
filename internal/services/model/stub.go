package model

import (
	"context"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
)

// StubPredictor answers every record with a fixed prediction. It stands
// in for the external model in development and in tests, where a
// deterministic answer matters more than a meaningful one.
type StubPredictor struct {
	Return     float64
	Confidence float64
	Version    string
}

func NewStubPredictor(expectedReturn float64) *StubPredictor {
	return &StubPredictor{Return: expectedReturn, Confidence: 0.5, Version: "stub"}
}

func (s *StubPredictor) ModelVersion() string {
	if s.Version == "" {
		return "stub"
	}
	return s.Version
}

func (s *StubPredictor) Predict(_ context.Context, _ models.FeatureRecord) (models.Prediction, error) {
	return models.Prediction{ExpectedReturn: s.Return, Confidence: s.Confidence}, nil
}

var _ drepo.Predictor = (*StubPredictor)(nil)
