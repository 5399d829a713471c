// Package repository persists scored transactions and assessment audit
// records on SQLite or PostgreSQL through database/sql.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quantra/internal/domain"
)

// ErrNotFound is returned when a tenant has no record with the requested ID.
var ErrNotFound = domain.ErrNotFound

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New opens the configured database and runs migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var driverName, dsn string

	switch cfg.Driver {
	case "sqlite":
		var err error
		if dsn, err = sqliteDSN(cfg); err != nil {
			return nil, err
		}
		driverName = "sqlite"
	case "postgres":
		dsn = postgresDSN(cfg)
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	// Every connection to :memory: would see its own empty database.
	if cfg.Driver == "sqlite" && cfg.SQLitePath == memoryPath {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		now:    time.Now,
	}

	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for _, schema := range AllSchemas() {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	return nil
}

// SaveTransaction stores a scored transaction. A missing ID is generated and
// a missing event time becomes the save time; re-saving an ID is a no-op.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.TransactionRecord) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if tx.UserID == "" {
		return fmt.Errorf("%w: userId is required to store a transaction", domain.ErrInvalidInput)
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := r.now().UTC()
	occurred := now
	if t := tx.EventTime(); t != nil {
		occurred = t.UTC()
	}

	var metadata []byte
	if len(tx.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(tx.Metadata); err != nil {
			return fmt.Errorf("failed to encode transaction metadata: %w", err)
		}
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, user_id, amount, location, country,
			frequency, type, occurred_at, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.UserID, tx.Amount.String(),
		tx.Location, tx.Country, tx.Frequency,
		string(domain.NormalizeType(string(tx.Type))),
		occurred.UnixMilli(), now.UnixMilli(),
		nullString(metadata),
	)
	return err
}

// ListTransactions returns the user's most recent transactions since the
// given time, oldest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, amount, location, country, frequency,
			   type, occurred_at, created_at, metadata
		FROM transactions
		WHERE tenant_id = ? AND user_id = ? AND occurred_at >= ?
		ORDER BY occurred_at DESC, created_at DESC
	`
	args := []any{tenantID, userID, since.UnixMilli()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		var (
			tx                domain.TransactionRecord
			amount, txType    string
			occurred, created int64
			metadata          sql.NullString
		)
		if err := rows.Scan(
			&tx.ID, &tx.UserID, &amount, &tx.Location, &tx.Country, &tx.Frequency,
			&txType, &occurred, &created, &metadata,
		); err != nil {
			return nil, err
		}

		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s: invalid stored amount %q: %w", tx.ID, amount, err)
		}
		tx.Type = domain.TransactionType(txType)
		ts := time.UnixMilli(occurred).UTC()
		tx.Timestamp = &ts
		ct := time.UnixMilli(created).UTC()
		tx.CreatedAt = &ct
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &tx.Metadata); err != nil {
				return nil, fmt.Errorf("transaction %s: invalid metadata: %w", tx.ID, err)
			}
		}
		records = append(records, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(records)
	return records, nil
}

// CountTransactions counts the user's transactions since the given time.
func (r *SQLRepository) CountTransactions(ctx context.Context, tenantID string, userID string, since time.Time) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ? AND user_id = ? AND occurred_at >= ?
	`

	var n int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, userID, since.UnixMilli()).Scan(&n)
	return n, err
}

// SaveAssessment stores an audit record. A missing ID or creation time is filled in.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	a.TenantID = tenantID
	payload := a.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	flagged := 0
	if a.Flagged {
		flagged = 1
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, kind, subject_id, score, level,
			flagged, source, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, string(a.Kind), a.SubjectID, a.Score, string(a.Level),
		flagged, string(a.Source), string(payload), a.CreatedAt.UnixMilli(),
	)
	return err
}

// GetAssessment retrieves an audit record by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, id string) (*domain.Assessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, kind, subject_id, score, level,
			   flagged, source, payload, created_at
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	var (
		a                   domain.Assessment
		kind, level, source string
		payload             string
		flagged             int
		created             int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&a.ID, &a.TenantID, &kind, &a.SubjectID, &a.Score, &level,
		&flagged, &source, &payload, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Kind = domain.AssessmentKind(kind)
	a.Level = domain.Level(level)
	a.Source = domain.ScoreSource(source)
	a.Flagged = flagged == 1
	a.Payload = json.RawMessage(payload)
	a.CreatedAt = time.UnixMilli(created).UTC()
	return &a, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
