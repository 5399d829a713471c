package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opensource-finance/quantra/internal/assistant"
	"github.com/opensource-finance/quantra/internal/cache"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/explain"
	"github.com/opensource-finance/quantra/internal/forecast"
	"github.com/opensource-finance/quantra/internal/fraud"
	"github.com/opensource-finance/quantra/internal/kyc"
	"github.com/opensource-finance/quantra/internal/model"
	"github.com/opensource-finance/quantra/internal/velocity"
)

// maxBodyBytes bounds request bodies; KYC requests carry base64 images.
const maxBodyBytes = 16 << 20

const assessmentKeyPrefix = "assessment:"

// Services are the scoring engines behind the routes.
type Services struct {
	Fraud     *fraud.Engine
	Explain   *explain.Engine
	Forecast  *forecast.Engine
	KYC       *kyc.Orchestrator
	Assistant *assistant.Assistant
	Velocity  *velocity.Service
	Models    *model.Set
}

// Deps are the optional infrastructure backends. Any of them may be nil.
type Deps struct {
	Repo  domain.Repository
	Cache domain.Cache
	Bus   domain.EventBus
}

// Handler holds dependencies for API handlers.
type Handler struct {
	svc      Services
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	validate *validator.Validate

	assessmentTTL time.Duration
	version       string
}

// NewHandler creates a new API handler.
func NewHandler(cfg *domain.Config, svc Services, deps Deps, version string) *Handler {
	return &Handler{
		svc:           svc,
		repo:          deps.Repo,
		cache:         deps.Cache,
		bus:           deps.Bus,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		assessmentTTL: time.Duration(cfg.Enrichment.AssessmentTTL) * time.Second,
		version:       version,
	}
}

// Health reports liveness and which capabilities are loaded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	resp := map[string]any{
		"status":  status,
		"version": h.version,
	}
	if h.svc.Models != nil {
		resp["models"] = h.svc.Models.Summary()
	}
	if h.svc.Assistant != nil {
		resp["llm"] = h.svc.Assistant.Available()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether every configured backend answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

// GetAssessment returns an audit record, reading through the cache.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if h.cache != nil {
		var a domain.Assessment
		found, err := cache.GetJSON(ctx, h.cache, tenantID, assessmentKeyPrefix+id, &a)
		if err != nil {
			slog.WarnContext(ctx, "assessment cache read failed", "id", id, "error", err)
		}
		if found {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	a, err := h.repo.GetAssessment(ctx, tenantID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.cacheAssessment(ctx, tenantID, a)

	writeJSON(w, http.StatusOK, a)
}

// record stores the audit row of a successful response and exposes its ID in
// a header. It is best effort: failures are logged and the response proceeds.
func (h *Handler) record(w http.ResponseWriter, r *http.Request, a *domain.Assessment, payload any) {
	if h.repo == nil {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	body, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode assessment payload", "kind", a.Kind, "error", err)
		return
	}
	a.Payload = body
	a.ID = uuid.New().String()

	if err := h.repo.SaveAssessment(ctx, tenantID, a); err != nil {
		slog.ErrorContext(ctx, "failed to save assessment",
			"kind", a.Kind,
			"tenant_id", tenantID,
			"error", err,
		)
		return
	}
	h.cacheAssessment(ctx, tenantID, a)
	w.Header().Set(AssessmentIDHeader, a.ID)
}

func (h *Handler) cacheAssessment(ctx context.Context, tenantID string, a *domain.Assessment) {
	if h.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, h.cache, tenantID, assessmentKeyPrefix+a.ID, a, h.assessmentTTL); err != nil {
		slog.WarnContext(ctx, "assessment cache write failed", "id", a.ID, "error", err)
	}
}

// decode reads and validates a JSON request body. It writes the 400 itself
// and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
		}
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// fail maps an error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrCapabilityUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrInference):
		slog.ErrorContext(r.Context(), "inference failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream inference failed")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
