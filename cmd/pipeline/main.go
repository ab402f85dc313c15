// Package main provides the end-to-end pipeline entry point.
// Executes: fixture candles → backtest matrix → metrics → report bundle
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"signal-lab/internal/backtest"
	"signal-lab/internal/config"
	"signal-lab/internal/domain"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/metrics"
	"signal-lab/internal/orchestrator"
	"signal-lab/internal/pipeline"
	"signal-lab/internal/storage/stores"
	"signal-lab/internal/strategy"
)

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	interval := flag.String("interval", string(domain.Interval1h), "Fixture candle interval")
	engineConfig := flag.String("engine-config", os.Getenv("ENGINE_CONFIG"), "Engine YAML config (defaults when empty)")
	concurrency := flag.Int("concurrency", orchestrator.DefaultConcurrency, "Parallel backtests")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	iv := domain.Interval(*interval)
	if !iv.IsValid() {
		fmt.Fprintf(os.Stderr, "Error: invalid interval %q\n", *interval)
		os.Exit(1)
	}
	cfg, err := config.LoadEngineConfig(*engineConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading engine config: %v\n", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling pipeline...\n", sig)
		cancel()
	}()

	set, cleanup, err := stores.Open(ctx, stores.Options{UseMemory: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating stores: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := pipeline.LoadFixtureCandles(ctx, set.Candles, iv); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading fixtures: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "[pipeline] ", log.LstdFlags)
	}

	// Fixed clock for deterministic output
	fixedTime := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixedTime }

	tracker := learning.NewTracker(set.Records, learning.TrackerOptions{Logger: logger})
	runner, err := backtest.NewRunner(backtest.RunnerOptions{
		Source: marketdata.NewFetcher(marketdata.NewStoreProvider(set.Candles), marketdata.FetcherOptions{
			BatchDelay: -1,
			Logger:     logger,
		}),
		Config:  &cfg,
		Results: set.Results,
		Tracker: tracker,
		Clock:   clock,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating runner: %v\n", err)
		os.Exit(1)
	}

	// Phase 1-2: backtests and aggregates
	fmt.Println("=== E2E Pipeline ===")
	orch := orchestrator.New(orchestrator.Options{
		Runner:      runner,
		Aggregator:  metrics.NewAggregator(set.Results),
		Concurrency: *concurrency,
		Verbose:     *verbose,
	})
	base := backtest.Request{Interval: iv, From: pipeline.FixtureStart, To: pipeline.FixtureEnd(iv)}
	result, err := orch.Run(ctx, orchestrator.Matrix(base, pipeline.FixtureSymbols, strategy.Default.IDs()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Orchestrator error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Orchestrator completed:\n")
	fmt.Printf("  Runs: %d succeeded, %d failed\n", result.Succeeded, result.Failed)
	fmt.Printf("  Trades: %d\n", result.TradesCreated)
	fmt.Printf("  Aggregates: %d\n", len(result.Aggregates))
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	// Phase 3: report bundle
	fmt.Println("\n=== Reporting ===")
	manifest, err := pipeline.NewPipeline(set.Results, tracker, *outputDir).
		WithClock(clock).
		WithDataSource("fixtures").
		Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nE2E Pipeline completed successfully (data version %s):\n", manifest.DataVersion)
	printFiles(*outputDir, manifest)
}

func printFiles(dir string, m *pipeline.Manifest) {
	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  - %s/%s\n", dir, name)
	}
	fmt.Printf("  - %s/%s\n", dir, pipeline.ManifestFile)

	ids := make([]string, 0, len(m.Decisions))
	for id := range m.Decisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %s: %s\n", id, m.Decisions[id])
	}
}
