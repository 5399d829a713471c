package api

import (
	"github.com/opensource-finance/quantra/internal/assistant"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/explain"
	"github.com/opensource-finance/quantra/internal/features"
	"github.com/opensource-finance/quantra/internal/forecast"
	"github.com/opensource-finance/quantra/internal/fraud"
	"github.com/opensource-finance/quantra/internal/kyc"
	"github.com/opensource-finance/quantra/internal/model"
	"github.com/opensource-finance/quantra/internal/scoring"
	"github.com/opensource-finance/quantra/internal/velocity"
)

// NewServices wires the scoring engines over a resolved capability set.
// Absent capabilities fall back to the built-in rules.
func NewServices(cfg *domain.Config, set *model.Set, vel *velocity.Service) Services {
	if set == nil {
		set = &model.Set{}
	}

	fraudScorer := scoring.NewFallback(model.CapFraud,
		scoring.FromClassifier(model.CapFraud, set.Fraud),
		scoring.MustRuleScorer(scoring.FraudRules()),
	)
	fraudEngine := fraud.NewEngine(features.New(cfg.Scoring.HomeMarker), fraudScorer, set.Anomaly)

	riskScorer := scoring.NewFallback(model.CapDefaultRisk,
		scoring.FromClassifier(model.CapDefaultRisk, set.DefaultRisk),
		scoring.MustRuleScorer(scoring.DefaultRiskRules()),
	)

	return Services{
		Fraud:     fraudEngine,
		Explain:   explain.NewEngine(fraudEngine, set.Attribution),
		Forecast:  forecast.NewEngine(riskScorer, set.Spending, set.Income),
		KYC:       kyc.NewFromSet(set),
		Assistant: assistant.NewFromConfig(cfg.Assistant, cfg.Breaker),
		Velocity:  vel,
		Models:    set,
	}
}
