package forecast

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
	"github.com/opensource-finance/quantra/internal/model"
	"github.com/opensource-finance/quantra/internal/scoring"
)

const (
	// PeriodMonthly selects the spending regressor; any other period selects income.
	PeriodMonthly = "monthly"

	// MaxMonths caps the forecast horizon.
	MaxMonths = 24

	// PlaceholderAccuracy is reported with placeholder forecasts.
	PlaceholderAccuracy = 0.85

	dateLayout = "2006-01-02"

	// confidenceHalfLife is the horizon, in days, at which model confidence halves.
	confidenceHalfLife = 180.0
)

// Request describes a forecast.
type Request struct {
	UserID  string
	Period  string
	Months  int
	History domain.UserHistory
}

// Engine holds the default-risk scorer and the forecast regressors. It is
// immutable after construction.
type Engine struct {
	risk     *scoring.Fallback
	spending domain.Capability[domain.Regressor]
	income   domain.Capability[domain.Regressor]
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for windows and forecast dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a forecast engine.
func NewEngine(risk *scoring.Fallback, spending, income domain.Capability[domain.Regressor], opts ...Option) *Engine {
	e := &Engine{
		risk:     risk,
		spending: spending,
		income:   income,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateForecast projects one value per day for months*30 days starting
// today. Without a regressor or history, or when the regressor fails, the
// values are placeholder output labelled domain.MockModelLabel.
func (e *Engine) GenerateForecast(ctx context.Context, req Request) domain.Forecast {
	ctx, span := tracer.Start(ctx, "forecast.generate")
	defer span.End()

	months := req.Months
	if months <= 0 {
		months = 1
	}
	if months > MaxMonths {
		months = MaxMonths
	}
	days := months * 30
	start := e.now().UTC()

	capability, regressorCap := model.CapIncome, e.income
	if req.Period == PeriodMonthly {
		capability, regressorCap = model.CapSpending, e.spending
	}

	var result domain.Forecast
	regressor, ok := regressorCap.Get()
	switch {
	case !ok:
		metrics.Fallback(capability, scoring.ReasonAbsent)
		result = placeholder(req, start, days)
	case len(req.History) == 0:
		metrics.Fallback(capability, "no_history")
		result = placeholder(req, start, days)
	default:
		var err error
		result, err = predict(ctx, regressor, req.History, start, days)
		if err != nil {
			slog.WarnContext(ctx, "forecast regressor failed, using placeholder",
				"capability", capability,
				"error", err,
			)
			span.RecordError(err)
			metrics.Fallback(capability, scoring.ReasonInferenceError)
			result = placeholder(req, start, days)
		}
	}

	span.SetAttributes(
		attribute.String("forecast.model", result.Model),
		attribute.Int("forecast.days", days),
	)
	return result
}

func predict(ctx context.Context, r domain.Regressor, history domain.UserHistory, start time.Time, days int) (domain.Forecast, error) {
	if r.Dimension() != model.ForecastDimension {
		return domain.Forecast{}, &domain.FeatureMismatchError{Expected: r.Dimension(), Got: model.ForecastDimension}
	}

	mean, std := dailyStats(history)
	points := make([]domain.ForecastPoint, 0, days)
	for i := 0; i < days; i++ {
		v, err := r.Predict(ctx, domain.FeatureVector{float64(i), mean, std})
		if err != nil {
			return domain.Forecast{}, &domain.InferenceError{Capability: r.Name(), Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Forecast{}, &domain.InferenceError{Capability: r.Name(), Err: fmt.Errorf("prediction %v is not finite", v)}
		}
		points = append(points, domain.ForecastPoint{
			Date:            start.AddDate(0, 0, i).Format(dateLayout),
			PredictedAmount: round(math.Max(0, v), 2),
			Confidence:      round(confidence(r.Accuracy(), i), 4),
		})
	}

	return domain.Forecast{
		Predictions: points,
		Accuracy:    r.Accuracy(),
		Model:       r.Name(),
	}, nil
}

// dailyStats returns the mean and population standard deviation of the
// absolute amounts of the history.
func dailyStats(history domain.UserHistory) (float64, float64) {
	if len(history) == 0 {
		return 0, 0
	}
	var sum float64
	for _, h := range history {
		sum += math.Abs(h.AmountFloat())
	}
	n := float64(len(history))
	mean := sum / n

	var sq float64
	for _, h := range history {
		d := math.Abs(h.AmountFloat()) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

// confidence decays the regressor accuracy with the forecast horizon.
func confidence(accuracy float64, day int) float64 {
	c := accuracy * math.Pow(0.5, float64(day)/confidenceHalfLife)
	return math.Min(1, math.Max(0, c))
}

// placeholder produces bounded filler seeded from the user and period, so the
// same request yields the same values. It is not a forecast.
func placeholder(req Request, start time.Time, days int) domain.Forecast {
	h := fnv.New64a()
	h.Write([]byte(req.UserID))
	h.Write([]byte{0})
	h.Write([]byte(req.Period))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(days)))

	points := make([]domain.ForecastPoint, 0, days)
	for i := 0; i < days; i++ {
		points = append(points, domain.ForecastPoint{
			Date:            start.AddDate(0, 0, i).Format(dateLayout),
			PredictedAmount: round(1000+rng.Float64()*4000, 2),
			Confidence:      round(0.7+rng.Float64()*0.3, 4),
		})
	}

	return domain.Forecast{
		Predictions: points,
		Accuracy:    PlaceholderAccuracy,
		Model:       domain.MockModelLabel,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
