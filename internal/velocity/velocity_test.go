package velocity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quantra/internal/cache"
	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/repository"
)

type failingCache struct {
	domain.Cache
}

func (failingCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "velocity-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func enabled() domain.EnrichmentConfig {
	return domain.EnrichmentConfig{Enabled: true}
}

func TestVelocityService(t *testing.T) {
	repo := newRepo(t)
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	svc := NewService(enabled(), lru, repo)
	ctx := context.Background()
	tenantID := "tenant-001"

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ts := now.Add(-time.Duration(i+1) * 24 * time.Hour)
		err := repo.SaveTransaction(ctx, tenantID, &domain.TransactionRecord{
			ID:        fmt.Sprintf("tx-%d", i),
			UserID:    "user-001",
			Amount:    decimal.NewFromInt(int64(100 * (i + 1))),
			Type:      domain.TxDebit,
			Timestamp: &ts,
		})
		if err != nil {
			t.Fatalf("failed to save transaction: %v", err)
		}
	}

	t.Run("FillsMissingFrequency", func(t *testing.T) {
		tx := &domain.TransactionRecord{UserID: "user-002", Amount: decimal.NewFromInt(10)}
		svc.Enrich(ctx, tenantID, tx, nil)
		if tx.Frequency != 1 {
			t.Errorf("expected frequency 1, got %d", tx.Frequency)
		}

		tx = &domain.TransactionRecord{UserID: "user-002", Amount: decimal.NewFromInt(10)}
		svc.Enrich(ctx, tenantID, tx, nil)
		if tx.Frequency != 2 {
			t.Errorf("expected frequency 2, got %d", tx.Frequency)
		}
	})

	t.Run("KeepsCallerFrequency", func(t *testing.T) {
		tx := &domain.TransactionRecord{UserID: "user-003", Frequency: 7}
		svc.Enrich(ctx, tenantID, tx, nil)
		if tx.Frequency != 7 {
			t.Errorf("expected caller frequency 7, got %d", tx.Frequency)
		}
	})

	t.Run("FillsMissingHistory", func(t *testing.T) {
		tx := &domain.TransactionRecord{UserID: "user-001", Amount: decimal.NewFromInt(10)}
		history := svc.Enrich(ctx, tenantID, tx, nil)
		if len(history) != 3 {
			t.Fatalf("expected 3 stored transactions, got %d", len(history))
		}
		if history[0].ID != "tx-2" || history[2].ID != "tx-0" {
			t.Errorf("expected oldest first, got %s..%s", history[0].ID, history[2].ID)
		}
	})

	t.Run("KeepsCallerHistory", func(t *testing.T) {
		given := domain.UserHistory{{Amount: decimal.NewFromInt(1)}}
		got := svc.FillHistory(ctx, tenantID, "user-001", given)
		if len(got) != 1 {
			t.Errorf("expected caller history, got %d records", len(got))
		}
	})

	t.Run("HistoryWindow", func(t *testing.T) {
		short := NewService(domain.EnrichmentConfig{Enabled: true, HistoryDays: 2, HistoryLimit: 1}, lru, repo)
		got, err := short.History(ctx, tenantID, "user-001")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "tx-0" {
			t.Errorf("expected only the most recent record, got %+v", got)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		got := svc.FillHistory(ctx, "tenant-002", "user-001", nil)
		if len(got) != 0 {
			t.Errorf("expected no history for other tenant, got %d", len(got))
		}
	})

	t.Run("RequiresTenantAndUser", func(t *testing.T) {
		if _, err := svc.RecordTransaction(ctx, "", "user-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := svc.RecordTransaction(ctx, tenantID, ""); err == nil {
			t.Error("expected error for empty userId")
		}
	})

	t.Run("AnonymousRequestUntouched", func(t *testing.T) {
		tx := &domain.TransactionRecord{Amount: decimal.NewFromInt(10)}
		if got := svc.Enrich(ctx, tenantID, tx, nil); got != nil || tx.Frequency != 0 {
			t.Errorf("expected no enrichment without userId, got %d / %v", tx.Frequency, got)
		}
	})
}

func TestCacheFailureFallsBackToRepository(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	ts := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		repo.SaveTransaction(ctx, "t", &domain.TransactionRecord{
			ID: fmt.Sprintf("tx-%d", i), UserID: "u", Amount: decimal.NewFromInt(1), Timestamp: &ts,
		})
	}

	svc := NewService(enabled(), failingCache{}, repo)
	tx := &domain.TransactionRecord{UserID: "u"}
	svc.Enrich(ctx, "t", tx, nil)
	if tx.Frequency != 5 {
		t.Errorf("expected 4 stored plus the current one, got %d", tx.Frequency)
	}
}

func TestDisabled(t *testing.T) {
	lru := cache.NewLRUCache(10)
	defer lru.Close()

	svc := NewService(domain.EnrichmentConfig{}, lru, nil)
	tx := &domain.TransactionRecord{UserID: "u"}
	svc.Enrich(context.Background(), "t", tx, nil)
	if tx.Frequency != 0 {
		t.Errorf("disabled service should not enrich, got %d", tx.Frequency)
	}

	var none *Service
	if none.Enabled() {
		t.Error("nil service should be disabled")
	}
}

func TestNoDataSource(t *testing.T) {
	svc := NewService(enabled(), nil, nil)
	if _, err := svc.RecordTransaction(context.Background(), "t", "u"); err == nil {
		t.Error("expected error with no data source")
	}
	if got, err := svc.History(context.Background(), "t", "u"); err != nil || got != nil {
		t.Errorf("expected empty history without a repository, got %v, %v", got, err)
	}
}
