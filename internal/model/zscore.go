package model

import (
	"context"
	"math"

	"github.com/opensource-finance/quantra/internal/domain"
)

// ZScore flags vectors whose largest standardized slot exceeds a threshold.
type ZScore struct {
	a *Artifact
}

// NewZScore wraps a validated z-score artifact.
func NewZScore(a *Artifact) *ZScore {
	return &ZScore{a: a}
}

// Dimension returns the trained vector length.
func (m *ZScore) Dimension() int {
	return len(m.a.Means)
}

// DecisionFunction is 1 at the training mean, 0 at the threshold and
// negative beyond it.
func (m *ZScore) DecisionFunction(ctx context.Context, v domain.FeatureVector) (float64, error) {
	if len(v) != m.Dimension() {
		return 0, &domain.FeatureMismatchError{Expected: m.Dimension(), Got: len(v)}
	}
	var worst float64
	for i, x := range v {
		worst = math.Max(worst, math.Abs(m.a.standardize(i, x)))
	}
	return (m.a.Threshold - worst) / m.a.Threshold, nil
}

// PredictOutlier reports whether the decision function is negative.
func (m *ZScore) PredictOutlier(ctx context.Context, v domain.FeatureVector) (bool, error) {
	d, err := m.DecisionFunction(ctx, v)
	if err != nil {
		return false, err
	}
	return d < 0, nil
}
