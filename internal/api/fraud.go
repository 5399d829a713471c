package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/worker"
)

// FraudRequest is the body of every /fraud route.
type FraudRequest struct {
	Transaction *domain.TransactionRecord `json:"transaction" validate:"required"`
	UserHistory domain.UserHistory        `json:"user_history,omitempty"`
}

// SubmitResponse acknowledges an asynchronously scored transaction.
type SubmitResponse struct {
	RequestID    string `json:"requestId"`
	AssessmentID string `json:"assessmentId"`
	Status       string `json:"status"`
}

// DetectFraud handles POST /fraud/detect.
func (h *Handler) DetectFraud(w http.ResponseWriter, r *http.Request) {
	var req FraudRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	tx := *req.Transaction
	history := h.svc.Velocity.Enrich(ctx, tenantID, &tx, req.UserHistory)

	result := h.svc.Fraud.DetectFraud(ctx, tx, history)

	h.storeTransaction(r, &tx)
	h.record(w, r, &domain.Assessment{
		Kind:      domain.KindFraud,
		SubjectID: tx.ID,
		Score:     result.Score,
		Level:     result.Level,
		Flagged:   result.Flagged,
		Source:    result.Source,
	}, result)

	writeJSON(w, http.StatusOK, result)
}

// ExplainFraud handles POST /fraud/explain.
func (h *Handler) ExplainFraud(w http.ResponseWriter, r *http.Request) {
	var req FraudRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	tx := *req.Transaction
	history := h.svc.Velocity.FillHistory(ctx, GetTenantID(ctx), tx.UserID, req.UserHistory)

	exp := h.svc.Explain.Explain(ctx, tx, history)

	h.record(w, r, &domain.Assessment{
		Kind:      domain.KindExplanation,
		SubjectID: tx.ID,
		Score:     exp.FraudScore,
		Flagged:   exp.IsFlagged,
	}, exp)

	writeJSON(w, http.StatusOK, exp)
}

// DetectAnomaly handles POST /fraud/anomaly.
func (h *Handler) DetectAnomaly(w http.ResponseWriter, r *http.Request) {
	var req FraudRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	tx := *req.Transaction
	history := h.svc.Velocity.FillHistory(ctx, GetTenantID(ctx), tx.UserID, req.UserHistory)

	result := h.svc.Fraud.DetectAnomaly(ctx, tx, history)

	h.record(w, r, &domain.Assessment{
		Kind:      domain.KindAnomaly,
		SubjectID: tx.ID,
		Score:     result.NormalizedScore,
		Flagged:   result.IsAnomaly,
		Source:    result.Source,
	}, result)

	writeJSON(w, http.StatusOK, result)
}

// SubmitTransaction handles POST /fraud/submit: the transaction is queued on
// the event bus and scored by the worker. The decision is published on the
// decision topic and stored under the returned assessment ID.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req FraudRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	ctx := r.Context()

	msg := worker.SubmitMessage{
		RequestID:    GetRequestID(ctx),
		AssessmentID: uuid.New().String(),
		Transaction:  *req.Transaction,
		History:      req.UserHistory,
	}
	if msg.RequestID == "" {
		msg.RequestID = uuid.New().String()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.bus.Publish(ctx, GetTenantID(ctx), domain.TopicTransactionIngested, payload); err != nil {
		slog.ErrorContext(ctx, "failed to queue transaction", "request_id", msg.RequestID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue transaction")
		return
	}

	w.Header().Set(AssessmentIDHeader, msg.AssessmentID)
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		RequestID:    msg.RequestID,
		AssessmentID: msg.AssessmentID,
		Status:       "queued",
	})
}

// storeTransaction keeps a scored transaction as history for later requests.
func (h *Handler) storeTransaction(r *http.Request, tx *domain.TransactionRecord) {
	if h.repo == nil || tx.UserID == "" || !h.svc.Velocity.Enabled() {
		return
	}
	ctx := r.Context()
	if err := h.repo.SaveTransaction(ctx, GetTenantID(ctx), tx); err != nil {
		slog.WarnContext(ctx, "failed to store transaction", "error", err)
	}
}
