package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction for feature extraction and risk aggregation.
type TransactionType string

const (
	TxCredit     TransactionType = "credit"
	TxDebit      TransactionType = "debit"
	TxWithdrawal TransactionType = "withdrawal"
	TxOther      TransactionType = "other"
)

// NormalizeType maps free-form input onto the known transaction types.
// Unknown or empty values become TxOther.
func NormalizeType(s string) TransactionType {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case TxCredit:
		return TxCredit
	case TxDebit:
		return TxDebit
	case TxWithdrawal:
		return TxWithdrawal
	default:
		return TxOther
	}
}

// TransactionRecord is a single transaction submitted for scoring.
// Engines treat it as immutable input.
type TransactionRecord struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId,omitempty"`

	Amount decimal.Decimal `json:"amount"`

	// Location and Country are interchangeable; Location wins when both are set.
	Location string `json:"location,omitempty"`
	Country  string `json:"country,omitempty"`

	// Frequency is the caller-reported count of recent transactions.
	Frequency int `json:"frequency,omitempty"`

	Type TransactionType `json:"type,omitempty"`

	// Timestamp is the primary event time; CreatedAt is the alternate field
	// used when Timestamp is absent.
	Timestamp *time.Time `json:"timestamp,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Region returns the location of the transaction, falling back to the country.
func (t TransactionRecord) Region() string {
	if loc := strings.TrimSpace(t.Location); loc != "" {
		return loc
	}
	return strings.TrimSpace(t.Country)
}

// AmountFloat returns the amount as a float64 for numeric feature slots.
func (t TransactionRecord) AmountFloat() float64 {
	return t.Amount.InexactFloat64()
}

// EventTime returns the primary timestamp, the alternate one, or nil.
func (t TransactionRecord) EventTime() *time.Time {
	if t.Timestamp != nil {
		return t.Timestamp
	}
	return t.CreatedAt
}

// UserHistory is the ordered list of past transactions of one user.
type UserHistory []TransactionRecord
