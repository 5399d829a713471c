// Package domain defines the shared vocabulary and interfaces of Quantra.
package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Repository persists scored transactions and the audit trail of assessments.
// Every call is scoped to a tenant.
type Repository interface {
	// SaveTransaction stores a scored transaction so it can serve as history.
	SaveTransaction(ctx context.Context, tenantID string, tx *TransactionRecord) error

	// ListTransactions returns the user's transactions since the given time,
	// oldest first, capped at limit rows (0 means no cap).
	ListTransactions(ctx context.Context, tenantID string, userID string, since time.Time, limit int) ([]TransactionRecord, error)

	// CountTransactions counts the user's transactions since the given time.
	CountTransactions(ctx context.Context, tenantID string, userID string, since time.Time) (int64, error)

	SaveAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, id string) (*Assessment, error)

	Ping(ctx context.Context) error
	Close() error
}

// AssessmentKind names the operation that produced an assessment.
type AssessmentKind string

const (
	KindFraud        AssessmentKind = "fraud"
	KindAnomaly      AssessmentKind = "anomaly"
	KindExplanation  AssessmentKind = "explanation"
	KindDefaultRisk  AssessmentKind = "default_risk"
	KindVerification AssessmentKind = "verification"
)

// Assessment is the audit record of one scoring decision.
type Assessment struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	Kind      AssessmentKind  `json:"kind"`
	SubjectID string          `json:"subjectId,omitempty"`
	Score     float64         `json:"score"`
	Level     Level           `json:"level,omitempty"`
	Flagged   bool            `json:"flagged"`
	Source    ScoreSource     `json:"source,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitepath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgreshost"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgresport"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgresuser"`
	PostgresPassword string `json:"postgresPassword" mapstructure:"postgrespassword"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgresdb"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgressslmode"`

	// Connection pool settings
	MaxOpenConns    int `json:"maxOpenConns" mapstructure:"maxopenconns"`
	MaxIdleConns    int `json:"maxIdleConns" mapstructure:"maxidleconns"`
	ConnMaxLifetime int `json:"connMaxLifetime" mapstructure:"connmaxlifetime"` // seconds
}
