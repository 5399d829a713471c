// Package features turns transaction records into fixed-shape feature vectors.
package features

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quantra/internal/domain"
)

// DefaultHomeMarker is the location value treated as domestic.
const DefaultHomeMarker = "userCountry"

var (
	threshold50k = decimal.NewFromInt(50000)
	threshold10k = decimal.NewFromInt(10000)
	threshold5k  = decimal.NewFromInt(5000)
)

// Extractor builds feature vectors. The zero value uses DefaultHomeMarker.
type Extractor struct {
	HomeMarker string
}

// New creates an extractor for the given home marker.
func New(homeMarker string) *Extractor {
	return &Extractor{HomeMarker: homeMarker}
}

// Extract returns the feature vector of tx. It never fails: missing fields
// contribute neutral values and an empty history zeroes the history slots.
func (e *Extractor) Extract(tx domain.TransactionRecord, history domain.UserHistory) domain.FeatureVector {
	fv := make(domain.FeatureVector, domain.FeatureDimension)

	amount := tx.Amount
	fv[0] = amount.InexactFloat64()
	fv[1] = indicator(amount.GreaterThan(threshold50k))
	fv[2] = indicator(amount.GreaterThan(threshold10k))
	fv[3] = indicator(amount.GreaterThan(threshold5k))

	fv[4] = indicator(e.IsForeign(tx))

	freq := tx.Frequency
	if freq < 0 {
		freq = 0
	}
	fv[5] = float64(freq)
	fv[6] = indicator(freq > 10)
	fv[7] = indicator(freq > 5)

	txType := domain.NormalizeType(string(tx.Type))
	fv[8] = indicator(txType == domain.TxWithdrawal)
	fv[9] = indicator(txType == domain.TxCredit)

	if len(history) > 0 {
		mean := MeanAmount(history)
		fv[10] = mean.InexactFloat64()
		fv[11] = indicator(amount.GreaterThan(mean.Mul(decimal.NewFromInt(3))))
	}

	return fv
}

// IsForeign reports whether the transaction carries a location that differs
// from the home marker.
func (e *Extractor) IsForeign(tx domain.TransactionRecord) bool {
	region := tx.Region()
	return region != "" && region != e.homeMarker()
}

func (e *Extractor) homeMarker() string {
	if e == nil || strings.TrimSpace(e.HomeMarker) == "" {
		return DefaultHomeMarker
	}
	return e.HomeMarker
}

// MeanAmount returns the mean amount of the history, or zero when it is empty.
func MeanAmount(history domain.UserHistory) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, h := range history {
		total = total.Add(h.Amount)
	}
	return total.Div(decimal.NewFromInt(int64(len(history))))
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
