package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quantra/internal/domain"
)

const paySimSample = `step,type,amount,nameOrig,oldbalanceOrg,newbalanceOrig,nameDest,oldbalanceDest,newbalanceDest,isFraud,isFlaggedFraud
1,PAYMENT,9839.64,C1231006815,170136.0,160296.36,M1979787155,0.0,0.0,0,0
1,TRANSFER,181.0,C1305486145,181.0,0.0,C553264065,0.0,0.0,1,0
1,CASH_OUT,not-a-number,C840083671,181.0,0.0,C38997010,21182.0,0.0,1,0
1,CASH_IN,500.0,C1666544295,41554.0,42054.0,C2048537720,0.0,0.0,0,0
`

func TestParsePaySim(t *testing.T) {
	t.Run("AllRows", func(t *testing.T) {
		rows, err := parsePaySim(strings.NewReader(paySimSample), 0, false)
		if err != nil {
			t.Fatalf("parsePaySim failed: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows (one malformed), got %d", len(rows))
		}

		first := rows[0].Transaction
		if first.UserID != "C1231006815" || first.Type != domain.TxDebit {
			t.Errorf("unexpected first row: %+v", first)
		}
		if !first.Amount.Equal(decimal.RequireFromString("9839.64")) {
			t.Errorf("expected amount 9839.64, got %s", first.Amount)
		}
		if !rows[1].IsFraud || rows[1].Transaction.Type != domain.TxWithdrawal {
			t.Errorf("expected fraud withdrawal, got %+v", rows[1])
		}
		if rows[2].Transaction.Type != domain.TxCredit {
			t.Errorf("expected credit, got %s", rows[2].Transaction.Type)
		}
	})

	t.Run("FraudOnlyWithLimit", func(t *testing.T) {
		rows, err := parsePaySim(strings.NewReader(paySimSample), 1, true)
		if err != nil {
			t.Fatalf("parsePaySim failed: %v", err)
		}
		if len(rows) != 1 || !rows[0].IsFraud {
			t.Errorf("expected one fraud row, got %+v", rows)
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		if _, err := parsePaySim(strings.NewReader("step,type\n1,PAYMENT\n"), 0, false); err == nil {
			t.Error("expected error for missing columns")
		}
	})
}

func TestSynthetic(t *testing.T) {
	a := Synthetic(200, 7)
	b := Synthetic(200, 7)
	if len(a) != 200 {
		t.Fatalf("expected 200 rows, got %d", len(a))
	}
	for i := range a {
		if a[i].IsFraud != b[i].IsFraud || !a[i].Transaction.Amount.Equal(b[i].Transaction.Amount) {
			t.Fatalf("expected deterministic output for a fixed seed at row %d", i)
		}
	}
}

type stubDetector struct {
	calls atomic.Int64
}

func (d *stubDetector) Detect(_ context.Context, tx domain.TransactionRecord) (*domain.ScoreResult, error) {
	d.calls.Add(1)
	if tx.ID == "broken" {
		return nil, errors.New("boom")
	}
	flagged := tx.Amount.GreaterThan(decimal.NewFromInt(1000))
	return &domain.ScoreResult{Flagged: flagged, Source: domain.SourceRules}, nil
}

func TestRun(t *testing.T) {
	row := func(id string, amount int64, fraud bool) Row {
		return Row{
			Transaction: domain.TransactionRecord{ID: id, Amount: decimal.NewFromInt(amount)},
			IsFraud:     fraud,
		}
	}
	rows := []Row{
		row("tp", 5000, true),
		row("fp", 5000, false),
		row("tn", 10, false),
		row("fn", 10, true),
		row("broken", 10, false),
	}

	d := &stubDetector{}
	stats := Run(context.Background(), d, rows, RunOptions{Workers: 3})

	if d.calls.Load() != 5 || stats.Processed.Load() != 5 {
		t.Fatalf("expected 5 calls, got %d", d.calls.Load())
	}
	if stats.Errors.Load() != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors.Load())
	}
	if stats.TruePositives.Load() != 1 || stats.FalsePositives.Load() != 1 ||
		stats.TrueNegatives.Load() != 1 || stats.FalseNegatives.Load() != 1 {
		t.Errorf("unexpected confusion matrix")
	}
	if stats.Precision() != 0.5 || stats.Recall() != 0.5 || stats.F1() != 0.5 {
		t.Errorf("expected 0.5 precision, recall and F1")
	}

	var out bytes.Buffer
	stats.Print(&out, 0)
	if !strings.Contains(out.String(), "Precision:") {
		t.Error("expected report output")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &stubDetector{}
	Run(ctx, d, Synthetic(10, 1), RunOptions{Workers: 2, RPS: 1})
	if d.calls.Load() != 0 {
		t.Errorf("expected no calls after cancellation, got %d", d.calls.Load())
	}
}
