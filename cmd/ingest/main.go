// Package main backfills the candle archive from the exchange REST API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"signal-lab/internal/config"
	"signal-lab/internal/domain"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/observability"
	"signal-lab/internal/storage/stores"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	// Parse flags
	symbols := flag.String("symbols", config.Env("SIGNAL_SYMBOLS", "BTCUSDT"), "Comma-separated symbols")
	intervals := flag.String("intervals", "1h", "Comma-separated candle intervals")
	fromTime := flag.String("from", time.Now().UTC().AddDate(0, 0, -30).Format(time.DateOnly), "Start (YYYY-MM-DD or RFC3339)")
	toTime := flag.String("to", "", "End, exclusive (default: now)")
	binanceURL := flag.String("binance-url", config.Env("BINANCE_BASE_URL", marketdata.DefaultBaseURL), "Binance REST base URL")
	batchDelay := flag.Duration("batch-delay", config.EnvDuration("BINANCE_BATCH_DELAY", marketdata.DefaultBatchDelay), "Pause between REST batches")
	concurrency := flag.Int("concurrency", 2, "Series fetched in parallel")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (dry run)")
	metricsAddr := flag.String("metrics-addr", config.Env("METRICS_ADDR", ""), "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags)

	from, err := config.ParseTime(*fromTime)
	if err != nil {
		logger.Fatalf("parse --from: %v", err)
	}
	to, err := config.ParseTime(*toTime)
	if err != nil {
		logger.Fatalf("parse --to: %v", err)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if !from.Before(to) {
		logger.Fatalf("--from %s must be before --to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	symbolList := config.SplitList(*symbols)
	var ivList []domain.Interval
	for _, s := range config.SplitList(*intervals) {
		iv := domain.Interval(s)
		if !iv.IsValid() {
			logger.Fatalf("invalid interval %q", s)
		}
		ivList = append(ivList, iv)
	}
	if len(symbolList) == 0 || len(ivList) == 0 {
		logger.Fatal("--symbols and --intervals are required")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Metrics server listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create stores
	set, cleanup, err := stores.Open(ctx, stores.Options{
		PostgresDSN:   *postgresDSN,
		ClickhouseDSN: *clickhouseDSN,
		UseMemory:     *useMemory,
		Migrate:       true,
	})
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	fetcher := marketdata.NewFetcher(marketdata.NewBinanceClient(*binanceURL), marketdata.FetcherOptions{
		BatchDelay: *batchDelay,
		Archive:    set.Candles,
		Logger:     logger,
	})

	logger.Printf("Backfilling %d symbols × %d intervals from %s to %s (%s storage)",
		len(symbolList), len(ivList), from.Format(time.RFC3339), to.Format(time.RFC3339), set.Backend)

	var (
		mu       sync.Mutex
		total    int
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, *concurrency))
	for _, symbol := range symbolList {
		for _, iv := range ivList {
			g.Go(func() error {
				res, err := fetcher.Fetch(gctx, symbol, iv, from, to)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					logger.Printf("%s %s: backfill failed: %v", symbol, iv, err)
					mu.Lock()
					failures++
					mu.Unlock()
					return nil
				}
				logger.Printf("%s %s: archived %d candles in %d batches (dropped %d, truncated %v)",
					symbol, iv, len(res.Candles), res.Batches, res.Dropped, res.Truncated)
				mu.Lock()
				total += len(res.Candles)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		logger.Fatalf("backfill cancelled: %v", err)
	}

	logger.Printf("Backfill complete: %d candles archived, %d series failed", total, failures)
	if failures > 0 {
		os.Exit(1)
	}
}
