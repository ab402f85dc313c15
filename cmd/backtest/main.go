// Package main runs backtests from the command line: one run, or a
// symbol × strategy matrix executed concurrently.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/backtest"
	"signal-lab/internal/config"
	"signal-lab/internal/domain"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/metrics"
	"signal-lab/internal/orchestrator"
	"signal-lab/internal/reporting"
	"signal-lab/internal/storage/stores"
	"signal-lab/internal/strategy"
)

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	// Run parameters
	symbols := flag.String("symbols", "BTCUSDT", "Comma-separated symbols")
	strategies := flag.String("strategies", "", "Comma-separated strategy ids, or \"all\" (default: engine config's active strategy)")
	interval := flag.String("interval", string(backtest.DefaultInterval), "Candle interval: 1m, 5m, 15m, 1h, 4h, 1d")
	from := flag.String("from", backtest.DefaultFrom.Format("2006-01-02"), "Start (YYYY-MM-DD or RFC3339)")
	to := flag.String("to", "", "End, exclusive (default: now)")
	initialBalance := flag.String("initial-balance", backtest.DefaultInitialBalance.String(), "Initial balance in quote units")
	engineConfig := flag.String("engine-config", os.Getenv("ENGINE_CONFIG"), "Engine YAML config (defaults when empty)")
	concurrency := flag.Int("concurrency", orchestrator.DefaultConcurrency, "Parallel runs for a matrix")

	// Market data and storage
	binanceURL := flag.String("binance-url", config.Env("BINANCE_BASE_URL", marketdata.DefaultBaseURL), "Binance REST base URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	record := flag.Bool("record-signals", true, "Record every signal in the learning log (mode backtest)")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")
	csvDir := flag.String("csv-dir", "", "Write summary and trade CSVs to this directory")
	verbose := flag.Bool("verbose", false, "Verbose orchestrator logging")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	cfg, err := config.LoadEngineConfig(*engineConfig)
	if err != nil {
		logger.Fatalf("load engine config: %v", err)
	}
	base, err := buildRequest(*interval, *from, *to, *initialBalance)
	if err != nil {
		logger.Fatal(err)
	}
	symbolList := config.SplitList(*symbols)
	if len(symbolList) == 0 {
		logger.Fatal("--symbols is required")
	}
	strategyList := resolveStrategies(*strategies, cfg.ActiveStrategy)

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

	opts := backtest.RunnerOptions{
		Source: marketdata.NewFetcher(marketdata.NewBinanceClient(*binanceURL), marketdata.FetcherOptions{
			Archive: set.Candles,
			Logger:  logger,
		}),
		Config:  &cfg,
		Results: set.Results,
		Logger:  logger,
	}
	if *record {
		opts.Tracker = learning.NewTracker(set.Records, learning.TrackerOptions{Logger: logger})
	}
	runner, err := backtest.NewRunner(opts)
	if err != nil {
		logger.Fatalf("create runner: %v", err)
	}

	requests := orchestrator.Matrix(base, symbolList, strategyList)

	// Single run
	if len(requests) == 1 {
		logger.Printf("Running backtest: symbol=%s strategy=%s interval=%s", requests[0].Symbol, requests[0].StrategyID, base.Interval)
		result, err := runner.Run(ctx, requests[0])
		if err != nil {
			logger.Fatalf("backtest failed: %v", err)
		}
		output([]*domain.BacktestResult{result}, nil, *outputJSON)
		writeCSVs(logger, *csvDir, []*domain.BacktestResult{result})
		return
	}

	// Matrix
	orch := orchestrator.New(orchestrator.Options{
		Runner:      runner,
		Aggregator:  metrics.NewAggregator(set.Results),
		Concurrency: *concurrency,
		Verbose:     *verbose,
	})
	logger.Printf("Running %d backtests (%d symbols × %d strategies)", len(requests), len(symbolList), len(strategyList))
	res, err := orch.Run(ctx, requests)
	if err != nil {
		logger.Fatalf("batch failed: %v", err)
	}
	for _, e := range res.Errors {
		logger.Printf("run failed: %s", e)
	}

	var results []*domain.BacktestResult
	for _, run := range res.Runs {
		if run.Result != nil {
			results = append(results, run.Result)
		}
	}
	output(results, res.Aggregates, *outputJSON)
	writeCSVs(logger, *csvDir, results)

	if res.Failed > 0 {
		logger.Printf("%d of %d runs failed", res.Failed, len(requests))
		os.Exit(1)
	}
}

// buildRequest parses the shared request fields.
func buildRequest(interval, from, to, balance string) (backtest.Request, error) {
	req := backtest.Request{Interval: domain.Interval(interval)}
	if !req.Interval.IsValid() {
		return req, fmt.Errorf("invalid interval %q", interval)
	}

	var err error
	if req.From, err = config.ParseTime(from); err != nil {
		return req, err
	}
	if req.To, err = config.ParseTime(to); err != nil {
		return req, err
	}
	if req.InitialBalance, err = decimal.NewFromString(balance); err != nil {
		return req, fmt.Errorf("invalid initial balance %q: %w", balance, err)
	}
	return req, nil
}

// resolveStrategies expands "all" to every registered strategy.
func resolveStrategies(list, active string) []string {
	switch list {
	case "":
		return []string{active}
	case "all":
		return strategy.Default.IDs()
	default:
		return config.SplitList(list)
	}
}

func output(results []*domain.BacktestResult, aggregates []*metrics.StrategyAggregate, asJSON bool) {
	if asJSON {
		out, _ := json.MarshalIndent(struct {
			Results    []*domain.BacktestResult     `json:"results"`
			Aggregates []*metrics.StrategyAggregate `json:"aggregates,omitempty"`
		}{results, aggregates}, "", "  ")
		fmt.Println(string(out))
		return
	}

	for _, r := range results {
		fmt.Println(reporting.RenderResultMarkdown(r))
	}
	if len(aggregates) > 0 {
		fmt.Println(reporting.RenderMarkdown(&reporting.Report{
			GeneratedAt: time.Now().UTC(),
			Results:     reporting.ResultRows(results),
			Leaderboard: aggregates,
		}))
	}
}

func writeCSVs(logger *log.Logger, dir string, results []*domain.BacktestResult) {
	if dir == "" || len(results) == 0 {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Fatalf("create %s: %v", dir, err)
	}

	files := map[string]string{
		"backtest_summary.csv": reporting.RenderSummaryCSV(reporting.ResultRows(results)),
	}
	for _, r := range results {
		files[fmt.Sprintf("trades_%s_%s_%s.csv", r.Symbol, r.StrategyID, r.Interval)] = reporting.RenderTradesCSV(r)
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			logger.Fatalf("write %s: %v", path, err)
		}
		logger.Printf("Wrote %s", path)
	}
}
