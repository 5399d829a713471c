package explain

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quantra/internal/decision"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/features"
	"github.com/opensource-finance/quantra/internal/fraud"
	"github.com/opensource-finance/quantra/internal/scoring"
)

type constAttributor struct {
	values []float64
	err    error
}

func (a constAttributor) Attribute(context.Context, domain.FeatureVector) ([]float64, error) {
	return a.values, a.err
}

func ones() []float64 {
	v := make([]float64, domain.FeatureDimension)
	for i := range v {
		v[i] = 1
	}
	return v
}

func newEngine(attr domain.Capability[domain.Attributor]) *Engine {
	rules := scoring.MustRuleScorer(scoring.FraudRules())
	fe := fraud.NewEngine(
		features.New(""),
		scoring.NewFallback("fraud_classifier", domain.Absent[scoring.Scorer](), rules),
		domain.Absent[domain.OutlierDetector](),
	)
	return NewEngine(fe, attr)
}

func risky() domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:        "tx-1",
		Amount:    decimal.NewFromInt(60000),
		Location:  "foreign",
		Frequency: 12,
		Type:      domain.TxWithdrawal,
	}
}

func assertSorted(t *testing.T, items []domain.ExplanationItem) {
	t.Helper()
	require.NotEmpty(t, items)
	assert.LessOrEqual(t, len(items), MaxItems)
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Contribution, items[i].Contribution)
	}
}

func TestExplainRules(t *testing.T) {
	e := newEngine(domain.Absent[domain.Attributor]())
	exp := e.Explain(context.Background(), risky(), nil)

	assert.Equal(t, "tx-1", exp.TransactionID)
	assert.Equal(t, 100.0, exp.FraudScore)
	assert.True(t, exp.IsFlagged)
	assert.Equal(t, "Block transaction; Notify user; Require additional verification", exp.Explanation)
	assertSorted(t, exp.TopFeatures)

	require.Len(t, exp.TopFeatures, 4)
	top := exp.TopFeatures[0]
	assert.Equal(t, "High Transaction Amount", top.Feature)
	assert.Equal(t, 60.0, top.Contribution)
	assert.Equal(t, domain.LevelHigh, top.Impact)
	assert.Equal(t, "Transaction amount of $60000.00 exceeds high-risk threshold", top.Description)

	assert.Equal(t, "International Transaction", exp.TopFeatures[1].Feature)
	assert.Equal(t, "Transaction from country: foreign", exp.TopFeatures[1].Description)
	assert.Equal(t, "High Transaction Frequency", exp.TopFeatures[2].Feature)
	assert.Equal(t, "User has made 12 transactions in the last 24 hours", exp.TopFeatures[2].Description)
	assert.Equal(t, "Large Withdrawal", exp.TopFeatures[3].Feature)
}

func TestExplainNoFactor(t *testing.T) {
	e := newEngine(domain.Absent[domain.Attributor]())
	exp := e.Explain(context.Background(), domain.TransactionRecord{Amount: decimal.NewFromInt(100)}, nil)

	require.Len(t, exp.TopFeatures, 1)
	item := exp.TopFeatures[0]
	assert.Equal(t, NoFactor, item.Feature)
	assert.Equal(t, 0.0, item.Contribution)
	assert.Equal(t, domain.LevelLow, item.Impact)
	assert.Equal(t, decision.RecAllow, item.Description)
	assert.Equal(t, decision.RecAllow, exp.Explanation)
	assert.False(t, exp.IsFlagged)
}

func TestExplainAttribution(t *testing.T) {
	ctx := context.Background()
	plain := newEngine(domain.Absent[domain.Attributor]()).Explain(ctx, risky(), nil)

	t.Run("Redistributes", func(t *testing.T) {
		e := newEngine(domain.Present[domain.Attributor](constAttributor{values: ones()}))
		exp := e.Explain(ctx, risky(), nil)

		assert.Equal(t, plain.FraudScore, exp.FraudScore)
		assert.Equal(t, plain.IsFlagged, exp.IsFlagged)
		assertSorted(t, exp.TopFeatures)

		got := map[string]float64{}
		for _, item := range exp.TopFeatures {
			got[item.Feature] = item.Contribution
		}
		assert.Equal(t, map[string]float64{
			"High Transaction Amount":    56,
			"High Transaction Frequency": 42,
			"Large Withdrawal":           28,
			"International Transaction":  14,
		}, got)
	})

	t.Run("FailureKeepsPoints", func(t *testing.T) {
		e := newEngine(domain.Present[domain.Attributor](constAttributor{err: errors.New("boom")}))
		exp := e.Explain(ctx, risky(), nil)
		assert.Equal(t, plain, exp)
	})

	t.Run("WrongLengthKeepsPoints", func(t *testing.T) {
		e := newEngine(domain.Present[domain.Attributor](constAttributor{values: []float64{1, 2}}))
		exp := e.Explain(ctx, risky(), nil)
		assert.Equal(t, plain.TopFeatures, exp.TopFeatures)
	})
}

func TestExplainCapsFactors(t *testing.T) {
	set := scoring.FraudRules()
	set.Rules = append(set.Rules,
		scoring.Rule{
			ID:         "fraud-any-amount",
			Name:       "Non-zero Amount",
			Expression: `amount > 0.0 ? 10.0 : 0.0`,
			Features:   []string{domain.FeatAmount},
		},
		scoring.Rule{
			ID:         "fraud-any-frequency",
			Name:       "Repeat Activity",
			Expression: `frequency > 0.0 ? 5.0 : 0.0`,
			Features:   []string{domain.FeatFrequency},
		},
	)
	require.Len(t, set.Rules, 6)

	fe := fraud.NewEngine(
		features.New(""),
		scoring.NewFallback("fraud_classifier", domain.Absent[scoring.Scorer](), scoring.MustRuleScorer(set)),
		domain.Absent[domain.OutlierDetector](),
	)
	e := NewEngine(fe, domain.Absent[domain.Attributor]())

	require.Len(t, fe.Rules().Evaluate(context.Background(), fe.Extractor().Extract(risky(), nil)).Hits, 6)

	exp := e.Explain(context.Background(), risky(), nil)
	require.Len(t, exp.TopFeatures, MaxItems)
	assertSorted(t, exp.TopFeatures)

	var contributions []float64
	for _, item := range exp.TopFeatures {
		contributions = append(contributions, item.Contribution)
		assert.NotEqual(t, "Repeat Activity", item.Feature)
	}
	assert.Equal(t, []float64{60, 30, 30, 20, 10}, contributions)
	assert.Equal(t, "Non-zero Amount", exp.TopFeatures[4].Feature)
}
