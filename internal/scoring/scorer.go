// Package scoring provides the scorer abstraction: a CEL rule scorer, a
// model scorer over a trained classifier, and the fallback between them.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/quantra/internal/decision"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
)

// Scorer turns a feature vector into a score in [0,100].
type Scorer interface {
	Score(ctx context.Context, fv domain.FeatureVector) (float64, error)
	Name() string
}

// ModelScorer scores with a trained probabilistic classifier.
type ModelScorer struct {
	name string
	clf  domain.Classifier
}

// NewModelScorer wraps a classifier under a capability name.
func NewModelScorer(name string, clf domain.Classifier) *ModelScorer {
	return &ModelScorer{name: name, clf: clf}
}

// Name returns the capability name.
func (s *ModelScorer) Name() string {
	return s.name
}

// Score returns the positive-class probability scaled to [0,100]. A vector of
// the wrong length yields *domain.FeatureMismatchError; a classifier failure or
// a probability outside [0,1] yields *domain.InferenceError.
func (s *ModelScorer) Score(ctx context.Context, fv domain.FeatureVector) (float64, error) {
	if want := s.clf.Dimension(); len(fv) != want {
		return 0, &domain.FeatureMismatchError{Expected: want, Got: len(fv)}
	}

	start := time.Now()
	p, err := s.clf.PredictProbability(ctx, fv)
	metrics.InferenceDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, &domain.InferenceError{Capability: s.name, Err: err}
	}
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
		return 0, &domain.InferenceError{Capability: s.name, Err: fmt.Errorf("probability %v outside [0,1]", p)}
	}

	return decision.Clamp(p * 100), nil
}

// FromClassifier lifts a resolved classifier into a scorer capability.
func FromClassifier(name string, c domain.Capability[domain.Classifier]) domain.Capability[Scorer] {
	clf, ok := c.Get()
	if !ok {
		return domain.Absent[Scorer]()
	}
	return domain.Present[Scorer](NewModelScorer(name, clf))
}
