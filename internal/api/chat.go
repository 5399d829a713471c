package api

import (
	"net/http"

	"github.com/opensource-finance/quantra/internal/assistant"
)

// ChatRequest is the body of the /chat routes.
type ChatRequest struct {
	Message string         `json:"message" validate:"required"`
	UserID  string         `json:"userId,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ChatMessage handles POST /chat/message.
func (h *Handler) ChatMessage(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Assistant.Reply(r.Context(), req.Message, req.UserID, req.Context))
}

// ChatComplete handles POST /chat/complete. It fails with 503 when no LLM
// endpoint is configured.
func (h *Handler) ChatComplete(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	text, err := h.svc.Assistant.Complete(r.Context(), req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": text})
}

// ChatSentiment handles POST /chat/sentiment.
func (h *Handler) ChatSentiment(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, assistant.AnalyzeSentiment(req.Message))
}
