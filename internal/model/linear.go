package model

import (
	"context"

	"github.com/opensource-finance/quantra/internal/domain"
)

// Linear is a linear regressor.
type Linear struct {
	a *Artifact
}

// NewLinear wraps a validated linear artifact.
func NewLinear(a *Artifact) *Linear {
	return &Linear{a: a}
}

func (m *Linear) Dimension() int { return len(m.a.Weights) }

func (m *Linear) Accuracy() float64 { return m.a.Accuracy }

// Name returns the artifact name and version, e.g. "spending-forecast-v2".
func (m *Linear) Name() string {
	if m.a.Version == "" {
		return m.a.Name
	}
	return m.a.Name + "-" + m.a.Version
}

func (m *Linear) Predict(ctx context.Context, v domain.FeatureVector) (float64, error) {
	if len(v) != m.Dimension() {
		return 0, &domain.FeatureMismatchError{Expected: m.Dimension(), Got: len(v)}
	}
	y := m.a.Bias
	for i, x := range v {
		y += m.a.Weights[i] * m.a.standardize(i, x)
	}
	return y, nil
}
