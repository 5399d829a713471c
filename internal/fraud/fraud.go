// Package fraud scores transactions for fraud and flags anomalies.
package fraud

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/quantra/internal/decision"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/features"
	"github.com/opensource-finance/quantra/internal/metrics"
	"github.com/opensource-finance/quantra/internal/scoring"
)

var tracer = otel.Tracer("quantra-fraud")

var errNonFinite = errors.New("decision function is not finite")

// Engine combines the fraud scorer with the shared decision thresholds.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	extractor *features.Extractor
	scorer    *scoring.Fallback
	anomaly   domain.Capability[domain.OutlierDetector]
}

// NewEngine creates a fraud engine from resolved capabilities.
func NewEngine(extractor *features.Extractor, scorer *scoring.Fallback, anomaly domain.Capability[domain.OutlierDetector]) *Engine {
	return &Engine{
		extractor: extractor,
		scorer:    scorer,
		anomaly:   anomaly,
	}
}

// Extractor returns the engine's feature extractor.
func (e *Engine) Extractor() *features.Extractor {
	return e.extractor
}

// Rules returns the rule scorer behind the fallback.
func (e *Engine) Rules() *scoring.RuleScorer {
	return e.scorer.Rules
}

// DetectFraud scores a transaction. It always returns a well-formed result.
func (e *Engine) DetectFraud(ctx context.Context, tx domain.TransactionRecord, history domain.UserHistory) domain.ScoreResult {
	ctx, span := tracer.Start(ctx, "fraud.detect")
	defer span.End()

	fv := e.extractor.Extract(tx, history)
	result := e.score(ctx, fv)

	span.SetAttributes(
		attribute.String("score.source", string(result.Source)),
		attribute.String("risk.level", string(result.Level)),
		attribute.Float64("risk.score", result.Score),
	)
	metrics.Decision(string(domain.KindFraud), string(result.Level))

	return result
}

func (e *Engine) score(ctx context.Context, fv domain.FeatureVector) domain.ScoreResult {
	out := e.scorer.Score(ctx, fv)
	return decision.Fraud(out.Score, out.Source)
}

// DetectAnomaly prefers the outlier detector; when it is absent or fails the
// anomaly is derived from the fraud result.
func (e *Engine) DetectAnomaly(ctx context.Context, tx domain.TransactionRecord, history domain.UserHistory) domain.AnomalyResult {
	ctx, span := tracer.Start(ctx, "fraud.anomaly")
	defer span.End()

	fv := e.extractor.Extract(tx, history)

	result, ok := e.detectOutlier(ctx, span, fv)
	if !ok {
		fr := e.score(ctx, fv)
		result = domain.AnomalyResult{
			IsAnomaly:    fr.Flagged,
			AnomalyScore: fr.Score / 100,
			Source:       fr.Source,
		}
	}
	result.NormalizedScore = decision.Clamp(result.AnomalyScore * 100)

	span.SetAttributes(
		attribute.String("score.source", string(result.Source)),
		attribute.Bool("anomaly", result.IsAnomaly),
	)
	return result
}

func (e *Engine) detectOutlier(ctx context.Context, span trace.Span, fv domain.FeatureVector) (domain.AnomalyResult, bool) {
	detector, ok := e.anomaly.Get()
	if !ok {
		metrics.Fallback("anomaly_detector", scoring.ReasonAbsent)
		return domain.AnomalyResult{}, false
	}

	fail := func(reason string, err error) (domain.AnomalyResult, bool) {
		slog.WarnContext(ctx, "anomaly detector failed, deriving from fraud score",
			"reason", reason,
			"error", err,
		)
		span.RecordError(err)
		metrics.Fallback("anomaly_detector", reason)
		return domain.AnomalyResult{}, false
	}

	if want := detector.Dimension(); len(fv) != want {
		return fail(scoring.ReasonFeatureMismatch, &domain.FeatureMismatchError{Expected: want, Got: len(fv)})
	}

	d, err := detector.DecisionFunction(ctx, fv)
	if err != nil {
		return fail(scoring.ReasonInferenceError, &domain.InferenceError{Capability: "anomaly_detector", Err: err})
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return fail(scoring.ReasonInferenceError, &domain.InferenceError{Capability: "anomaly_detector", Err: errNonFinite})
	}
	outlier, err := detector.PredictOutlier(ctx, fv)
	if err != nil {
		return fail(scoring.ReasonInferenceError, &domain.InferenceError{Capability: "anomaly_detector", Err: err})
	}

	return domain.AnomalyResult{
		IsAnomaly:    outlier,
		AnomalyScore: d,
		Source:       domain.SourceModel,
	}, true
}
