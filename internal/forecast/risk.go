// Package forecast estimates default risk and projects spending or income.
package forecast

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/quantra/internal/decision"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
)

var tracer = otel.Tracer("quantra-forecast")

const (
	// RecentWindow is the trailing window of the recent-activity count.
	RecentWindow = 30 * 24 * time.Hour

	// NoHistoryFactor is the only factor of an empty history.
	NoHistoryFactor = "No transaction history"

	// NoRiskFactor is reported when no rule fired.
	NoRiskFactor = "No significant risk factors identified"
)

var (
	largeAmount  = decimal.NewFromInt(10000)
	daysPerMonth = decimal.NewFromInt(30)
)

// Aggregates are the statistics of a transaction history used to score
// default risk.
type Aggregates struct {
	TotalDebits        decimal.Decimal
	TotalCredits       decimal.Decimal
	AvgMonthlySpending decimal.Decimal
	DebtToIncome       float64
	RecentCount        int
	LargeCount         int
}

// Vector returns the aggregates in default-risk slot order.
func (a Aggregates) Vector() domain.FeatureVector {
	return domain.FeatureVector{
		a.DebtToIncome,
		float64(a.RecentCount),
		float64(a.LargeCount),
		a.AvgMonthlySpending.InexactFloat64(),
	}
}

// Aggregate computes the default-risk statistics of txs as of now.
func Aggregate(txs []domain.TransactionRecord, averageIncome float64, now time.Time) Aggregates {
	var agg Aggregates

	for _, tx := range txs {
		abs := tx.Amount.Abs()
		switch domain.NormalizeType(string(tx.Type)) {
		case domain.TxDebit:
			agg.TotalDebits = agg.TotalDebits.Add(abs)
		case domain.TxCredit:
			agg.TotalCredits = agg.TotalCredits.Add(abs)
		}
		if abs.GreaterThan(largeAmount) {
			agg.LargeCount++
		}
	}

	months := decimal.NewFromInt(int64(len(txs))).Div(daysPerMonth)
	if months.LessThan(decimal.NewFromInt(1)) {
		months = decimal.NewFromInt(1)
	}
	agg.AvgMonthlySpending = agg.TotalDebits.Div(months)

	if averageIncome > 0 {
		agg.DebtToIncome = agg.AvgMonthlySpending.InexactFloat64() / averageIncome
	}

	agg.RecentCount = countRecent(txs, now)
	return agg
}

// countRecent counts records inside the trailing window. Records are timed by
// their primary timestamp, else the alternate one; when no record carries a
// time, every record counts as recent.
func countRecent(txs []domain.TransactionRecord, now time.Time) int {
	cutoff := now.Add(-RecentWindow)
	timed, recent := 0, 0
	for _, tx := range txs {
		at := tx.EventTime()
		if at == nil {
			continue
		}
		timed++
		if !at.Before(cutoff) {
			recent++
		}
	}
	if timed == 0 {
		return len(txs)
	}
	return recent
}

// CalculateDefaultRisk scores the default risk of a user's history. It never
// fails: an empty history short-circuits and a failing classifier falls back
// to the rule table.
func (e *Engine) CalculateDefaultRisk(ctx context.Context, txs []domain.TransactionRecord, averageIncome float64) domain.RiskAssessment {
	ctx, span := tracer.Start(ctx, "forecast.default_risk")
	defer span.End()

	if len(txs) == 0 {
		return domain.RiskAssessment{
			Score:       0,
			Level:       domain.LevelLow,
			Factors:     []string{NoHistoryFactor},
			Probability: 0,
			Source:      domain.SourceRules,
		}
	}

	agg := Aggregate(txs, averageIncome, e.now())
	fv := agg.Vector()

	factors := make([]string, 0, 3)
	for _, hit := range e.risk.Rules.Evaluate(ctx, fv).Hits {
		factors = append(factors, hit.Reason)
	}
	if len(factors) == 0 {
		factors = append(factors, NoRiskFactor)
	}

	out := e.risk.Score(ctx, fv)
	score := decision.Clamp(out.Score)
	level := decision.LevelFor(score)

	span.SetAttributes(
		attribute.String("score.source", string(out.Source)),
		attribute.String("risk.level", string(level)),
		attribute.Float64("risk.score", score),
	)
	metrics.Decision(string(domain.KindDefaultRisk), string(level))

	return domain.RiskAssessment{
		Score:       score,
		Level:       level,
		Factors:     factors,
		Probability: decision.Probability(score),
		Source:      out.Source,
	}
}
