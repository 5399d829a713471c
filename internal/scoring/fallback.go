package scoring

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
)

// Fallback reasons reported in logs and metrics.
const (
	ReasonAbsent          = "absent"
	ReasonFeatureMismatch = "feature_mismatch"
	ReasonInferenceError  = "inference_error"
)

// Outcome is the score of one call together with the scorer that produced it.
// Err holds the primary failure that caused a fallback, for diagnostics only.
type Outcome struct {
	Score  float64
	Source domain.ScoreSource
	Err    error
}

// Fallback prefers the primary scorer and routes to the rule scorer when the
// primary is absent or fails. A failure affects only the call it happened in.
type Fallback struct {
	Capability string
	Primary    domain.Capability[Scorer]
	Rules      *RuleScorer
}

// NewFallback builds the selection between a resolved primary and the rules.
func NewFallback(capability string, primary domain.Capability[Scorer], rules *RuleScorer) *Fallback {
	return &Fallback{Capability: capability, Primary: primary, Rules: rules}
}

// Score never fails: every branch ends in a usable score.
func (f *Fallback) Score(ctx context.Context, fv domain.FeatureVector) Outcome {
	primary, ok := f.Primary.Get()
	if !ok {
		slog.DebugContext(ctx, "capability absent, using rules",
			"capability", f.Capability,
		)
		metrics.Fallback(f.Capability, ReasonAbsent)
		return f.rules(ctx, fv, nil)
	}

	score, err := primary.Score(ctx, fv)
	if err == nil {
		return Outcome{Score: score, Source: domain.SourceModel}
	}

	reason := ReasonInferenceError
	if errors.Is(err, domain.ErrFeatureMismatch) {
		reason = ReasonFeatureMismatch
	}
	slog.WarnContext(ctx, "scorer failed, using rules",
		"capability", f.Capability,
		"reason", reason,
		"error", err,
	)
	metrics.Fallback(f.Capability, reason)

	return f.rules(ctx, fv, err)
}

func (f *Fallback) rules(ctx context.Context, fv domain.FeatureVector, cause error) Outcome {
	score, _ := f.Rules.Score(ctx, fv)
	return Outcome{Score: score, Source: domain.SourceRules, Err: cause}
}
