package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/opensource-finance/quantra/internal/domain"
)

// Detector scores one transaction.
type Detector interface {
	Detect(ctx context.Context, tx domain.TransactionRecord) (*domain.ScoreResult, error)
}

// RunOptions tunes a replay.
type RunOptions struct {
	Workers int
	RPS     float64
	Verbose bool
}

// Stats is the confusion matrix and latency of a replay.
type Stats struct {
	TruePositives  atomic.Int64
	FalsePositives atomic.Int64
	TrueNegatives  atomic.Int64
	FalseNegatives atomic.Int64

	Errors    atomic.Int64
	Processed atomic.Int64
	LatencyMs atomic.Int64

	ModelScored atomic.Int64
}

// Run replays rows through the detector until done or ctx is cancelled.
func Run(ctx context.Context, d Detector, rows []Row, opts RunOptions) *Stats {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	stats := &Stats{}
	p := pool.New().WithMaxGoroutines(workers)

	for _, row := range rows {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		p.Go(func() {
			start := time.Now()
			res, err := d.Detect(ctx, row.Transaction)
			stats.LatencyMs.Add(time.Since(start).Milliseconds())
			stats.Processed.Add(1)

			if err != nil {
				stats.Errors.Add(1)
				if opts.Verbose {
					fmt.Printf("ERROR %s: %v\n", row.Transaction.ID, err)
				}
				return
			}
			stats.record(row.IsFraud, res)

			if opts.Verbose {
				fmt.Printf("%-16s amount=%-12s fraud=%-5v flagged=%-5v score=%6.2f source=%s\n",
					row.Transaction.ID,
					row.Transaction.Amount.StringFixed(2),
					row.IsFraud,
					res.Flagged,
					res.Score,
					res.Source,
				)
			}
		})
	}
	p.Wait()

	return stats
}

func (s *Stats) record(actual bool, res *domain.ScoreResult) {
	if res.Source == domain.SourceModel {
		s.ModelScored.Add(1)
	}
	switch predicted := res.Flagged; {
	case predicted && actual:
		s.TruePositives.Add(1)
	case predicted && !actual:
		s.FalsePositives.Add(1)
	case !predicted && !actual:
		s.TrueNegatives.Add(1)
	default:
		s.FalseNegatives.Add(1)
	}
}

// Precision is the share of flagged rows that were fraud.
func (s *Stats) Precision() float64 {
	return ratio(s.TruePositives.Load(), s.TruePositives.Load()+s.FalsePositives.Load())
}

// Recall is the share of fraud rows that were flagged.
func (s *Stats) Recall() float64 {
	return ratio(s.TruePositives.Load(), s.TruePositives.Load()+s.FalseNegatives.Load())
}

// F1 is the harmonic mean of precision and recall.
func (s *Stats) F1() float64 {
	p, r := s.Precision(), s.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Print writes the report.
func (s *Stats) Print(w io.Writer, elapsed time.Duration) {
	processed := s.Processed.Load()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "RESULTS")
	fmt.Fprintf(w, "  Processed:     %d\n", processed)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors.Load())
	fmt.Fprintf(w, "  Model scored:  %d\n", s.ModelScored.Load())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Confusion matrix   flagged   passed")
	fmt.Fprintf(w, "    fraud           %7d  %7d\n", s.TruePositives.Load(), s.FalseNegatives.Load())
	fmt.Fprintf(w, "    legitimate      %7d  %7d\n", s.FalsePositives.Load(), s.TrueNegatives.Load())
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Precision:     %.4f\n", s.Precision())
	fmt.Fprintf(w, "  Recall:        %.4f\n", s.Recall())
	fmt.Fprintf(w, "  F1:            %.4f\n", s.F1())
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Duration:      %v\n", elapsed.Round(time.Millisecond))
	if processed > 0 {
		fmt.Fprintf(w, "  Avg latency:   %.2f ms\n", float64(s.LatencyMs.Load())/float64(processed))
		fmt.Fprintf(w, "  Throughput:    %.2f tx/sec\n", float64(processed)/elapsed.Seconds())
	}
}
