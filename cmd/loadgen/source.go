package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quantra/internal/domain"
)

// Row is one labelled transaction to replay.
type Row struct {
	Transaction domain.TransactionRecord
	IsFraud     bool
}

// paySimTypes maps PaySim transaction types onto the scoring vocabulary.
var paySimTypes = map[string]domain.TransactionType{
	"CASH_OUT": domain.TxWithdrawal,
	"TRANSFER": domain.TxWithdrawal,
	"PAYMENT":  domain.TxDebit,
	"DEBIT":    domain.TxDebit,
	"CASH_IN":  domain.TxCredit,
}

// ReadPaySim reads a PaySim export. Malformed rows are skipped.
func ReadPaySim(path string, limit int, fraudOnly bool) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parsePaySim(f, limit, fraudOnly)
}

func parsePaySim(r io.Reader, limit int, fraudOnly bool) ([]Row, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"step", "type", "amount", "nameorig", "isfraud"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil || len(record) < len(header) {
			continue
		}

		isFraud := record[col["isfraud"]] == "1"
		if fraudOnly && !isFraud {
			continue
		}

		amount, err := decimal.NewFromString(record[col["amount"]])
		if err != nil {
			continue
		}
		step, _ := strconv.Atoi(record[col["step"]])

		typ, ok := paySimTypes[strings.ToUpper(record[col["type"]])]
		if !ok {
			typ = domain.TxOther
		}

		rows = append(rows, Row{
			Transaction: domain.TransactionRecord{
				ID:     fmt.Sprintf("paysim-%d", len(rows)+1),
				UserID: record[col["nameorig"]],
				Amount: amount,
				Type:   typ,
				Metadata: map[string]any{
					"step": step,
				},
			},
			IsFraud: isFraud,
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

// Synthetic generates n labelled transactions. Roughly one in ten is a
// fraud pattern: a large foreign withdrawal in a burst of activity.
func Synthetic(n int, seed int64) []Row {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("user-%04d", rng.Intn(500))
		tx := domain.TransactionRecord{
			ID:     fmt.Sprintf("synthetic-%d", i+1),
			UserID: user,
		}

		fraud := rng.Float64() < 0.1
		if fraud {
			tx.Amount = decimal.NewFromInt(int64(10000 + rng.Intn(90000)))
			tx.Location = "foreign"
			tx.Frequency = 6 + rng.Intn(10)
			tx.Type = domain.TxWithdrawal
		} else {
			tx.Amount = decimal.NewFromInt(int64(5 + rng.Intn(3000)))
			tx.Frequency = rng.Intn(5)
			tx.Type = []domain.TransactionType{domain.TxDebit, domain.TxCredit, domain.TxDebit}[rng.Intn(3)]
		}

		rows = append(rows, Row{Transaction: tx, IsFraud: fraud})
	}
	return rows
}
