package domain

// Level is the shared risk vocabulary derived from a score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ScoreSource records which scorer produced a value.
type ScoreSource string

const (
	SourceModel ScoreSource = "model"
	SourceRules ScoreSource = "rules"
)

// FeatureVector is the fixed-shape numeric input of a scorer. Positions are significant.
type FeatureVector []float64

// FeatureDimension is the length of every vector produced by the feature extractor.
const FeatureDimension = 12

// Feature slot names, in vector order.
const (
	FeatAmount            = "amount"
	FeatAmountOver50k     = "amount_over_50k"
	FeatAmountOver10k     = "amount_over_10k"
	FeatAmountOver5k      = "amount_over_5k"
	FeatLocationForeign   = "location_foreign"
	FeatFrequency         = "frequency"
	FeatFrequencyOver10   = "frequency_over_10"
	FeatFrequencyOver5    = "frequency_over_5"
	FeatTypeWithdrawal    = "type_withdrawal"
	FeatTypeCredit        = "type_credit"
	FeatHistoryMeanAmount = "history_mean_amount"
	FeatAmountOver3xMean  = "amount_over_3x_mean"
)

// FeatureNames lists the slots of a FeatureVector in order.
var FeatureNames = []string{
	FeatAmount,
	FeatAmountOver50k,
	FeatAmountOver10k,
	FeatAmountOver5k,
	FeatLocationForeign,
	FeatFrequency,
	FeatFrequencyOver10,
	FeatFrequencyOver5,
	FeatTypeWithdrawal,
	FeatTypeCredit,
	FeatHistoryMeanAmount,
	FeatAmountOver3xMean,
}

// ScoreResult is the outcome of fraud scoring.
type ScoreResult struct {
	Score           float64     `json:"score"`
	Flagged         bool        `json:"fraudulent"`
	Level           Level       `json:"riskLevel"`
	Recommendations []string    `json:"recommendations"`
	Source          ScoreSource `json:"source"`
}

// AnomalyResult is the outcome of anomaly detection.
type AnomalyResult struct {
	IsAnomaly       bool        `json:"isAnomaly"`
	AnomalyScore    float64     `json:"anomalyScore"`
	NormalizedScore float64     `json:"normalizedScore"`
	Source          ScoreSource `json:"source"`
}

// ExplanationItem is one ranked factor behind a fraud score.
type ExplanationItem struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Description  string  `json:"description"`
	Impact       Level   `json:"impact"`
}

// Explanation is the human-readable account of a fraud decision.
type Explanation struct {
	TransactionID   string            `json:"transactionId,omitempty"`
	FraudScore      float64           `json:"fraudScore"`
	IsFlagged       bool              `json:"isFlagged"`
	TopFeatures     []ExplanationItem `json:"topFeatures"`
	Explanation     string            `json:"explanation"`
	Recommendations []string          `json:"recommendations"`
}

// RiskAssessment is the default-risk estimate for a user.
type RiskAssessment struct {
	Score       float64     `json:"score"`
	Level       Level       `json:"level"`
	Factors     []string    `json:"factors"`
	Probability float64     `json:"probability"`
	Source      ScoreSource `json:"source"`
}

// ForecastPoint is one day of a forecast.
type ForecastPoint struct {
	Date            string  `json:"date"`
	PredictedAmount float64 `json:"predictedAmount"`
	Confidence      float64 `json:"confidence"`
}

// Forecast is a day-by-day projection. Model is "mock-model" when the
// predictions are placeholder output rather than model inference.
type Forecast struct {
	Predictions []ForecastPoint `json:"predictions"`
	Accuracy    float64         `json:"accuracy"`
	Model       string          `json:"model"`
}

// MockModelLabel marks forecasts produced by the placeholder policy.
const MockModelLabel = "mock-model"
