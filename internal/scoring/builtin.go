package scoring

import (
	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/features"
)

// Default-risk aggregate slots, in vector order.
const (
	RiskDebtToIncome       = "debt_to_income"
	RiskRecentCount        = "recent_count"
	RiskLargeCount         = "large_count"
	RiskAvgMonthlySpending = "avg_monthly_spending"
)

// RiskFeatureNames lists the slots of a default-risk vector in order.
var RiskFeatureNames = []string{
	RiskDebtToIncome,
	RiskRecentCount,
	RiskLargeCount,
	RiskAvgMonthlySpending,
}

// Fraud rule IDs.
const (
	RuleAmountTier     = "fraud-amount-tier"
	RuleForeign        = "fraud-foreign-location"
	RuleFrequencyTier  = "fraud-frequency-tier"
	RuleLargeWithdraw  = "fraud-large-withdrawal"
	RuleDebtToIncome   = "risk-debt-to-income"
	RuleRecentActivity = "risk-recent-activity"
	RuleLargeCount     = "risk-large-transactions"
)

// FraudRules is the fraud point table. Amount and frequency tiers are
// mutually exclusive within their rule; the raw sum may exceed 100.
func FraudRules() RuleSet {
	vars := make([]Variable, 0, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		typ := cel.DoubleType
		if features.IsIndicator(name) {
			typ = cel.BoolType
		}
		vars = append(vars, Variable{Name: name, Type: typ})
	}

	return RuleSet{
		Name:      "fraud-rules",
		Variables: vars,
		Facts:     features.Facts,
		Rules: []Rule{
			{
				ID:   RuleAmountTier,
				Name: "Transaction Amount",
				Expression: `amount_over_50k ? 60.0 :
					amount_over_10k ? 40.0 :
					amount_over_5k ? 20.0 : 0.0`,
				Features: []string{
					domain.FeatAmount,
					domain.FeatAmountOver50k,
					domain.FeatAmountOver10k,
					domain.FeatAmountOver5k,
				},
				Bands: []Band{
					{
						LowerLimit:  limit(60),
						Reason:      "High Transaction Amount",
						Impact:      domain.LevelHigh,
						Description: `Transaction amount of ${{printf "%.2f" .amount}} exceeds high-risk threshold`,
					},
					{
						LowerLimit:  limit(40),
						UpperLimit:  limit(60),
						Reason:      "Large Transaction Amount",
						Impact:      domain.LevelMedium,
						Description: `Transaction amount of ${{printf "%.2f" .amount}} is significantly above average`,
					},
					{
						UpperLimit:  limit(40),
						Reason:      "Elevated Transaction Amount",
						Impact:      domain.LevelLow,
						Description: `Transaction amount of ${{printf "%.2f" .amount}} is above the review threshold`,
					},
				},
			},
			{
				ID:         RuleForeign,
				Name:       "International Transaction",
				Expression: `location_foreign ? 30.0 : 0.0`,
				Features:   []string{domain.FeatLocationForeign},
				Bands: []Band{
					{
						Reason:      "International Transaction",
						Impact:      domain.LevelMedium,
						Description: `Transaction from country: {{.location}}`,
					},
				},
			},
			{
				ID:         RuleFrequencyTier,
				Name:       "Transaction Frequency",
				Expression: `frequency_over_10 ? 30.0 : frequency_over_5 ? 15.0 : 0.0`,
				Features: []string{
					domain.FeatFrequency,
					domain.FeatFrequencyOver10,
					domain.FeatFrequencyOver5,
				},
				Bands: []Band{
					{
						LowerLimit:  limit(30),
						Reason:      "High Transaction Frequency",
						Impact:      domain.LevelMedium,
						Description: `User has made {{printf "%.0f" .frequency}} transactions in the last 24 hours`,
					},
					{
						UpperLimit:  limit(30),
						Reason:      "Elevated Transaction Frequency",
						Impact:      domain.LevelLow,
						Description: `User has made {{printf "%.0f" .frequency}} recent transactions`,
					},
				},
			},
			{
				ID:         RuleLargeWithdraw,
				Name:       "Large Withdrawal",
				Expression: `type_withdrawal && amount_over_5k ? 20.0 : 0.0`,
				Features: []string{
					domain.FeatTypeWithdrawal,
					domain.FeatAmountOver5k,
				},
				Bands: []Band{
					{
						Reason:      "Large Withdrawal",
						Impact:      domain.LevelMedium,
						Description: `Withdrawal of ${{printf "%.2f" .amount}} exceeds the withdrawal threshold`,
					},
				},
			},
		},
	}
}

// DefaultRiskRules is the default-risk point table over the four aggregate
// slots. Band reasons are the factor strings reported to callers.
func DefaultRiskRules() RuleSet {
	vars := make([]Variable, 0, len(RiskFeatureNames))
	for _, name := range RiskFeatureNames {
		vars = append(vars, Variable{Name: name, Type: cel.DoubleType})
	}

	return RuleSet{
		Name:      "default-risk-rules",
		Variables: vars,
		Facts:     riskFacts,
		Rules: []Rule{
			{
				ID:         RuleDebtToIncome,
				Name:       "Debt-to-income ratio",
				Expression: `debt_to_income > 0.5 ? 40.0 : debt_to_income > 0.3 ? 20.0 : 0.0`,
				Features:   []string{RiskDebtToIncome},
				Bands: []Band{
					{LowerLimit: limit(40), Reason: "High debt-to-income ratio", Impact: domain.LevelHigh},
					{UpperLimit: limit(40), Reason: "Moderate debt-to-income ratio", Impact: domain.LevelMedium},
				},
			},
			{
				ID:         RuleRecentActivity,
				Name:       "Recent activity",
				Expression: `recent_count > 50.0 ? 25.0 : 0.0`,
				Features:   []string{RiskRecentCount},
				Bands: []Band{
					{Reason: "High transaction frequency", Impact: domain.LevelMedium},
				},
			},
			{
				ID:         RuleLargeCount,
				Name:       "Large transactions",
				Expression: `large_count > 5.0 ? 20.0 : 0.0`,
				Features:   []string{RiskLargeCount},
				Bands: []Band{
					{Reason: "Multiple large transactions", Impact: domain.LevelMedium},
				},
			},
		},
	}
}

func riskFacts(fv domain.FeatureVector) map[string]any {
	facts := make(map[string]any, len(RiskFeatureNames))
	for i, name := range RiskFeatureNames {
		var v float64
		if i < len(fv) {
			v = fv[i]
		}
		facts[name] = v
	}
	return facts
}
