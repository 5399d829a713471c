// Package worker scores transactions submitted through the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/fraud"
	"github.com/opensource-finance/quantra/internal/metrics"
	"github.com/opensource-finance/quantra/internal/velocity"
)

// Result labels of metrics.WorkerMessagesTotal.
const (
	ResultProcessed = "processed"
	ResultInvalid   = "invalid"
	ResultFailed    = "failed"
)

var errStopped = errors.New("worker is stopped")

// SubmitMessage is the payload published on domain.TopicTransactionIngested.
type SubmitMessage struct {
	RequestID    string                   `json:"requestId"`
	AssessmentID string                   `json:"assessmentId,omitempty"`
	Transaction  domain.TransactionRecord `json:"transaction"`
	History      domain.UserHistory       `json:"history,omitempty"`
}

// Decision is the payload published on domain.TopicDecision, and on
// domain.TopicAlert when the transaction is flagged.
type Decision struct {
	AssessmentID  string             `json:"assessmentId"`
	RequestID     string             `json:"requestId,omitempty"`
	TenantID      string             `json:"tenantId"`
	TransactionID string             `json:"transactionId,omitempty"`
	UserID        string             `json:"userId,omitempty"`
	Result        domain.ScoreResult `json:"result"`
	ProcessedAt   time.Time          `json:"processedAt"`
}

// Worker consumes submitted transactions, scores them, stores the outcome
// and publishes the decision.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	fraud    *fraud.Engine
	velocity *velocity.Service

	mu            sync.RWMutex
	stopped       bool
	pool          *pool.Pool
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a worker. repo and vel may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *fraud.Engine, vel *velocity.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		fraud:    engine,
		velocity: vel,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the configured tenants, or to every tenant when none
// are listed.
func (w *Worker) Start(cfg domain.WorkerConfig) error {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errStopped
	}
	w.pool = pool.New().WithMaxGoroutines(concurrency)

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.GlobalTenant}
	}

	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, w.handleMessage)
		if err != nil {
			return fmt.Errorf("failed to subscribe for tenant %s: %w", tenantID, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started",
		"tenants", tenants,
		"topic", domain.TopicTransactionIngested,
		"concurrency", concurrency,
	)
	return nil
}

// handleMessage hands the message to the pool, blocking while every slot is busy.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return errStopped
	}

	// In-flight messages outlive their subscription during Stop, so only the
	// publisher's span crosses over; cancellation stays with the worker.
	pctx := trace.ContextWithSpanContext(w.ctx, trace.SpanContextFromContext(ctx))

	w.pool.Go(func() {
		var pc panics.Catcher
		pc.Try(func() { w.Process(pctx, msg) })
		if r := pc.Recovered(); r != nil {
			metrics.WorkerMessagesTotal.WithLabelValues(ResultFailed).Inc()
			slog.Error("worker panic recovered",
				"message_id", msg.ID,
				"tenant_id", msg.TenantID,
				"error", r.AsError(),
			)
		}
	})
	return nil
}

// Process scores one submitted transaction and returns the published
// decision, or nil when the message could not be handled.
func (w *Worker) Process(ctx context.Context, msg *domain.Message) *Decision {
	start := time.Now()
	tenantID := msg.TenantID

	var in SubmitMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		metrics.WorkerMessagesTotal.WithLabelValues(ResultInvalid).Inc()
		slog.ErrorContext(ctx, "failed to parse submitted transaction",
			"message_id", msg.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return nil
	}

	tx := in.Transaction
	history := in.History
	if w.velocity.Enabled() {
		history = w.velocity.Enrich(ctx, tenantID, &tx, history)
	}

	result := w.fraud.DetectFraud(ctx, tx, history)

	d := &Decision{
		AssessmentID:  in.AssessmentID,
		RequestID:     in.RequestID,
		TenantID:      tenantID,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Result:        result,
		ProcessedAt:   time.Now().UTC(),
	}
	if d.AssessmentID == "" {
		d.AssessmentID = uuid.New().String()
	}
	if d.RequestID == "" {
		d.RequestID = msg.ID
	}

	w.persist(ctx, tenantID, &tx, d)

	payload, err := json.Marshal(d)
	if err != nil {
		metrics.WorkerMessagesTotal.WithLabelValues(ResultFailed).Inc()
		slog.ErrorContext(ctx, "failed to encode decision",
			"request_id", d.RequestID,
			"error", err,
		)
		return nil
	}

	if err := w.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish decision",
			"request_id", d.RequestID,
			"error", err,
		)
	}
	if result.Flagged {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.ErrorContext(ctx, "failed to publish alert",
				"request_id", d.RequestID,
				"error", err,
			)
		}
	}

	metrics.WorkerMessagesTotal.WithLabelValues(ResultProcessed).Inc()
	slog.InfoContext(ctx, "transaction scored",
		"request_id", d.RequestID,
		"tenant_id", tenantID,
		"transaction_id", d.TransactionID,
		"score", result.Score,
		"risk_level", result.Level,
		"flagged", result.Flagged,
		"source", result.Source,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d
}

// persist stores the transaction as history and the decision as an
// assessment. Failures are logged; the decision is still published.
func (w *Worker) persist(ctx context.Context, tenantID string, tx *domain.TransactionRecord, d *Decision) {
	if w.repo == nil {
		return
	}

	if tx.UserID != "" {
		if err := w.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			slog.ErrorContext(ctx, "failed to save transaction",
				"request_id", d.RequestID,
				"error", err,
			)
		}
		d.TransactionID = tx.ID
	}

	payload, err := json.Marshal(d.Result)
	if err != nil {
		return
	}
	a := &domain.Assessment{
		ID:        d.AssessmentID,
		Kind:      domain.KindFraud,
		SubjectID: d.TransactionID,
		Score:     d.Result.Score,
		Level:     d.Result.Level,
		Flagged:   d.Result.Flagged,
		Source:    d.Result.Source,
		Payload:   payload,
		CreatedAt: d.ProcessedAt,
	}
	if err := w.repo.SaveAssessment(ctx, tenantID, a); err != nil {
		slog.ErrorContext(ctx, "failed to save assessment",
			"request_id", d.RequestID,
			"assessment_id", d.AssessmentID,
			"error", err,
		)
	}
}

// Stop unsubscribes and waits for in-flight messages.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	p := w.pool
	w.mu.Unlock()

	if p != nil {
		p.Wait()
	}
	w.cancel()

	slog.Info("worker stopped")
	return nil
}

// Stats reports the worker's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
