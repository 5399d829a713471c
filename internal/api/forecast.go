package api

import (
	"net/http"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/forecast"
)

// ForecastRequest is the body of POST /forecast/generate.
type ForecastRequest struct {
	UserID         string             `json:"userId"`
	Period         string             `json:"period" validate:"required,oneof=daily weekly monthly"`
	Months         int                `json:"months"`
	HistoricalData domain.UserHistory `json:"historical_data,omitempty"`
}

// DefaultRiskRequest is the body of POST /forecast/default-risk.
type DefaultRiskRequest struct {
	UserID string `json:"userId"`

	// Transactions is filled from stored history only when omitted; an
	// explicit empty list scores as no history.
	Transactions  []domain.TransactionRecord `json:"transactions"`
	AverageIncome float64                    `json:"averageIncome"`
}

// GenerateForecast handles POST /forecast/generate.
func (h *Handler) GenerateForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	history := h.svc.Velocity.FillHistory(ctx, GetTenantID(ctx), req.UserID, req.HistoricalData)

	result := h.svc.Forecast.GenerateForecast(ctx, forecast.Request{
		UserID:  req.UserID,
		Period:  req.Period,
		Months:  req.Months,
		History: history,
	})

	writeJSON(w, http.StatusOK, result)
}

// DefaultRisk handles POST /forecast/default-risk.
func (h *Handler) DefaultRisk(w http.ResponseWriter, r *http.Request) {
	var req DefaultRiskRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	txs := req.Transactions
	if txs == nil {
		txs = h.svc.Velocity.FillHistory(ctx, GetTenantID(ctx), req.UserID, nil)
	}

	result := h.svc.Forecast.CalculateDefaultRisk(ctx, txs, req.AverageIncome)

	h.record(w, r, &domain.Assessment{
		Kind:      domain.KindDefaultRisk,
		SubjectID: req.UserID,
		Score:     result.Score,
		Level:     result.Level,
		Flagged:   result.Level == domain.LevelHigh,
		Source:    result.Source,
	}, result)

	writeJSON(w, http.StatusOK, result)
}
