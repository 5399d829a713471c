// Package velocity enriches scoring requests with server-side context: the
// user's recent transaction frequency and their stored history.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/quantra/internal/domain"
)

const counterPrefix = "velocity:"

var errUserRequired = errors.New("userId is required")

// Service fills in what a request leaves out. The cache counter is the
// primary frequency source; the repository backs it when the cache fails.
type Service struct {
	cfg   domain.EnrichmentConfig
	cache domain.Cache
	repo  domain.Repository
	now   func() time.Time
}

// NewService creates a velocity service. Either store may be nil.
func NewService(cfg domain.EnrichmentConfig, cache domain.Cache, repo domain.Repository) *Service {
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = 24
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 30
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	return &Service{
		cfg:   cfg,
		cache: cache,
		repo:  repo,
		now:   time.Now,
	}
}

// Enabled reports whether requests should be enriched.
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

func (s *Service) window() time.Duration {
	return time.Duration(s.cfg.WindowHours) * time.Hour
}

// RecordTransaction counts the transaction in the user's window and returns
// the count including it.
func (s *Service) RecordTransaction(ctx context.Context, tenantID, userID string) (int64, error) {
	if tenantID == "" || userID == "" {
		return 0, fmt.Errorf("tenantID and userId are required")
	}

	if s.cache != nil {
		n, err := s.cache.IncrementCounter(ctx, tenantID, counterPrefix+userID, s.window())
		if err == nil {
			return n, nil
		}
		slog.WarnContext(ctx, "velocity counter unavailable, counting stored transactions",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	if s.repo == nil {
		return 0, fmt.Errorf("no velocity source available")
	}
	n, err := s.repo.CountTransactions(ctx, tenantID, userID, s.now().Add(-s.window()))
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n + 1, nil
}

// History returns the user's stored transactions within the history window,
// oldest first.
func (s *Service) History(ctx context.Context, tenantID, userID string) (domain.UserHistory, error) {
	if userID == "" {
		return nil, errUserRequired
	}
	if s.repo == nil {
		return nil, nil
	}

	since := s.now().AddDate(0, 0, -s.cfg.HistoryDays)
	records, err := s.repo.ListTransactions(ctx, tenantID, userID, since, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return domain.UserHistory(records), nil
}

// Enrich counts the transaction in the user's window, then fills a missing
// frequency and a missing history for a request that names a user. Lookups are best effort: failures are logged and the request
// proceeds with what the caller sent.
func (s *Service) Enrich(ctx context.Context, tenantID string, tx *domain.TransactionRecord, history domain.UserHistory) domain.UserHistory {
	if !s.Enabled() || tx == nil || tx.UserID == "" {
		return history
	}

	count, err := s.RecordTransaction(ctx, tenantID, tx.UserID)
	if err != nil {
		slog.WarnContext(ctx, "velocity lookup failed",
			"tenant_id", tenantID,
			"error", err,
		)
	} else if tx.Frequency == 0 {
		tx.Frequency = int(count)
	}

	return s.FillHistory(ctx, tenantID, tx.UserID, history)
}

// FillHistory loads the stored history when the caller sent none. It does
// not count a transaction.
func (s *Service) FillHistory(ctx context.Context, tenantID, userID string, history domain.UserHistory) domain.UserHistory {
	if !s.Enabled() || userID == "" || len(history) > 0 {
		return history
	}
	stored, err := s.History(ctx, tenantID, userID)
	if err != nil {
		slog.WarnContext(ctx, "history lookup failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return history
	}
	return stored
}
