// Package explain builds the human-readable account of a fraud decision.
package explain

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/features"
	"github.com/opensource-finance/quantra/internal/fraud"
	"github.com/opensource-finance/quantra/internal/metrics"
	"github.com/opensource-finance/quantra/internal/scoring"
)

var tracer = otel.Tracer("quantra-explain")

// MaxItems is the number of factors reported per explanation.
const MaxItems = 5

// NoFactor is the feature name of the item reported when no rule fired.
const NoFactor = "No Significant Factor"

// Engine explains fraud decisions. The score and flag always come from the
// fraud engine; factors are re-derived from the same rule set.
type Engine struct {
	fraud       *fraud.Engine
	attribution domain.Capability[domain.Attributor]
}

// NewEngine creates an explainability engine.
func NewEngine(fe *fraud.Engine, attribution domain.Capability[domain.Attributor]) *Engine {
	return &Engine{fraud: fe, attribution: attribution}
}

// Explain scores the transaction and lists the factors behind the score,
// strongest first. The list is never empty.
func (e *Engine) Explain(ctx context.Context, tx domain.TransactionRecord, history domain.UserHistory) domain.Explanation {
	ctx, span := tracer.Start(ctx, "fraud.explain")
	defer span.End()

	result := e.fraud.DetectFraud(ctx, tx, history)
	fv := e.fraud.Extractor().Extract(tx, history)

	eval := e.fraud.Rules().Evaluate(ctx, fv)

	data := features.Facts(fv)
	data["location"] = tx.Region()

	contributions := e.refine(ctx, fv, eval.Hits)

	items := make([]domain.ExplanationItem, 0, len(eval.Hits))
	for i, hit := range eval.Hits {
		items = append(items, domain.ExplanationItem{
			Feature:      hit.Reason,
			Contribution: contributions[i],
			Description:  hit.Describe(data),
			Impact:       hit.Impact,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Contribution > items[j].Contribution
	})
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}

	summary := strings.Join(result.Recommendations, "; ")
	if len(items) == 0 {
		items = append(items, domain.ExplanationItem{
			Feature:      NoFactor,
			Contribution: 0,
			Description:  summary,
			Impact:       domain.LevelLow,
		})
	}

	span.SetAttributes(
		attribute.Int("explain.items", len(items)),
		attribute.Bool("explain.attributed", e.attribution.Available()),
	)

	return domain.Explanation{
		TransactionID:   tx.ID,
		FraudScore:      result.Score,
		IsFlagged:       result.Flagged,
		TopFeatures:     items,
		Explanation:     summary,
		Recommendations: result.Recommendations,
	}
}

// refine returns one contribution per hit. Without attribution the
// contribution is the rule's points. With attribution the total points are
// redistributed by each hit's share of absolute attribution over its slots.
func (e *Engine) refine(ctx context.Context, fv domain.FeatureVector, hits []scoring.Hit) []float64 {
	out := make([]float64, len(hits))
	var total float64
	for i, h := range hits {
		out[i] = h.Points
		total += h.Points
	}
	if len(hits) == 0 {
		return out
	}

	attributor, ok := e.attribution.Get()
	if !ok {
		return out
	}

	attr, err := attributor.Attribute(ctx, fv)
	if err != nil || len(attr) != len(fv) {
		slog.WarnContext(ctx, "attribution failed, using rule points",
			"error", err,
			"attributions", len(attr),
		)
		metrics.Fallback("fraud_attribution", scoring.ReasonInferenceError)
		return out
	}

	mass := make([]float64, len(hits))
	var sum float64
	for i, h := range hits {
		for _, name := range h.Features {
			idx := features.Index(name)
			if idx < 0 {
				continue
			}
			v := math.Abs(attr[idx])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			mass[i] += v
		}
		sum += mass[i]
	}
	if sum == 0 {
		return out
	}

	for i := range hits {
		out[i] = math.Round(total*mass[i]/sum*100) / 100
	}
	return out
}
