// Loadgen replays labelled transactions against a running Quantra and
// reports detection quality and latency.
//
// Usage:
//
//	go run ./cmd/loadgen -csv /path/to/paysim.csv -url http://localhost:8080
//	go run ./cmd/loadgen -synthetic 5000 -rps 200
//
// Rows come from a PaySim export when -csv is set, otherwise from a seeded
// synthetic generator. Each row is posted to /fraud/detect and the
// "fraudulent" verdict is compared with the row's label.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	csvPath := flag.String("csv", "", "Path to a PaySim CSV file")
	synthetic := flag.Int("synthetic", 1000, "Synthetic transactions to generate when -csv is empty")
	seed := flag.Int64("seed", 1, "Seed of the synthetic generator")
	baseURL := flag.String("url", "http://localhost:8080", "Quantra base URL")
	tenantID := flag.String("tenant", "loadgen", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum CSV rows to replay (0 = all)")
	workers := flag.Int("workers", 10, "Concurrent requests in flight")
	rps := flag.Float64("rps", 0, "Request rate limit (0 = unlimited)")
	fraudOnly := flag.Bool("fraud-only", false, "Only replay fraud rows")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		rows []Row
		err  error
	)
	if *csvPath != "" {
		rows, err = ReadPaySim(*csvPath, *limit, *fraudOnly)
		if err != nil {
			fmt.Printf("ERROR: failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		rows = Synthetic(*synthetic, *seed)
	}
	if len(rows) == 0 {
		fmt.Println("ERROR: no transactions to replay")
		os.Exit(1)
	}

	client := NewClient(*baseURL, *tenantID, 10*time.Second)
	if err := client.Health(ctx); err != nil {
		fmt.Printf("ERROR: Quantra not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	fraud := 0
	for _, r := range rows {
		if r.IsFraud {
			fraud++
		}
	}
	fmt.Printf("Replaying %d transactions (%d fraud) against %s with %d workers\n",
		len(rows), fraud, *baseURL, *workers)

	start := time.Now()
	stats := Run(ctx, client, rows, RunOptions{
		Workers: *workers,
		RPS:     *rps,
		Verbose: *verbose,
	})
	stats.Print(os.Stdout, time.Since(start))
}
