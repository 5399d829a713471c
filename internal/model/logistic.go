package model

import (
	"context"
	"math"

	"github.com/opensource-finance/quantra/internal/domain"
)

// Logistic is a binary logistic-regression classifier. Its per-slot log-odds
// terms double as feature attributions.
type Logistic struct {
	a *Artifact
}

// NewLogistic wraps a validated logistic artifact.
func NewLogistic(a *Artifact) *Logistic {
	return &Logistic{a: a}
}

// Dimension returns the trained vector length.
func (m *Logistic) Dimension() int {
	return len(m.a.Weights)
}

// PredictProbability returns the positive-class probability.
func (m *Logistic) PredictProbability(ctx context.Context, v domain.FeatureVector) (float64, error) {
	if len(v) != m.Dimension() {
		return 0, &domain.FeatureMismatchError{Expected: m.Dimension(), Got: len(v)}
	}
	z := m.a.Bias
	for i, x := range v {
		z += m.a.Weights[i] * m.a.standardize(i, x)
	}
	return sigmoid(z), nil
}

// Attribute returns each slot's signed contribution to the log-odds.
func (m *Logistic) Attribute(ctx context.Context, v domain.FeatureVector) ([]float64, error) {
	if len(v) != m.Dimension() {
		return nil, &domain.FeatureMismatchError{Expected: m.Dimension(), Got: len(v)}
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = m.a.Weights[i] * m.a.standardize(i, x)
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
