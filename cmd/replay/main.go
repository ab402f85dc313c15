// Package main replays archived candles through the live signal loop:
// same ordering guard, strategy and outcome monitor as the signals command,
// fed from the candle archive instead of the websocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-lab/internal/config"
	"signal-lab/internal/domain"
	"signal-lab/internal/ingestion"
	"signal-lab/internal/learning"
	"signal-lab/internal/notify"
	"signal-lab/internal/replay"
	"signal-lab/internal/storage/stores"
	"signal-lab/internal/strategy"
)

// ReplayStats holds replay statistics.
type ReplayStats struct {
	Symbols    []string  `json:"symbols"`
	Interval   string    `json:"interval"`
	StrategyID string    `json:"strategy_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Loaded     int       `json:"loaded"`
	Candles    int       `json:"candles"`
	Duplicates int       `json:"duplicates"`
	Invalid    int       `json:"invalid"`
	Signals    int       `json:"signals"`
	Resolved   int       `json:"resolved"`
	Pending    int       `json:"pending"`
}

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	// Parse flags
	symbols := flag.String("symbols", config.Env("SIGNAL_SYMBOLS", "BTCUSDT"), "Comma-separated symbols")
	interval := flag.String("interval", "1h", "Candle interval")
	fromTime := flag.String("from", "", "Start (YYYY-MM-DD or RFC3339, required)")
	toTime := flag.String("to", "", "End, exclusive (YYYY-MM-DD or RFC3339, required)")
	strategyID := flag.String("strategy", "", "Strategy id (default: engine config's active strategy)")
	mode := flag.String("mode", string(domain.ModePaper), "Learning mode outcomes are recorded under: signal, paper, live")
	record := flag.Bool("record", false, "Record resolved signals in the learning log")
	maxCandles := flag.Int("max-candles", learning.DefaultMaxCandles, "Candles before a pending signal resolves Neutral")
	engineConfig := flag.String("engine-config", os.Getenv("ENGINE_CONFIG"), "Engine YAML config (defaults when empty)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	// Both bounds are required for a deterministic replay
	if *fromTime == "" || *toTime == "" {
		logger.Fatal("Both --from and --to must be specified for deterministic replay")
	}
	from, err := config.ParseTime(*fromTime)
	if err != nil {
		logger.Fatalf("parse --from: %v", err)
	}
	to, err := config.ParseTime(*toTime)
	if err != nil {
		logger.Fatalf("parse --to: %v", err)
	}
	iv := domain.Interval(*interval)
	if !iv.IsValid() {
		logger.Fatalf("invalid interval %q", *interval)
	}
	learningMode := domain.Mode(*mode)
	if !learningMode.IsValid() || learningMode == domain.ModeBacktest {
		logger.Fatalf("invalid mode %q: must be signal, paper or live", *mode)
	}
	symbolList := config.SplitList(*symbols)
	if len(symbolList) == 0 {
		logger.Fatal("--symbols is required")
	}

	cfg, err := config.LoadEngineConfig(*engineConfig)
	if err != nil {
		logger.Fatalf("load engine config: %v", err)
	}
	if *strategyID != "" {
		cfg.ActiveStrategy = *strategyID
	}
	strat, err := strategy.FromConfig(cfg)
	if err != nil {
		logger.Fatalf("create strategy: %v", err)
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
	})
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	candles, err := replay.NewLoader(set.Candles).Load(ctx, symbolList, iv, from, to)
	if err != nil {
		logger.Fatalf("load candles: %v", err)
	}
	logger.Printf("Replaying %d candles for %v from %s to %s", len(candles), symbolList,
		from.Format(time.RFC3339), to.Format(time.RFC3339))

	// Signals go to stdout unless the summary is JSON
	signalOut := io.Writer(os.Stdout)
	if *outputJSON {
		signalOut = io.Discard
	}
	opts := ingestion.RunnerOptions{
		Streams:    []ingestion.Stream{replay.NewStream(ctx, candles)},
		Strategy:   strat,
		WindowSize: cfg.WindowSize,
		Monitor:    learning.NewMonitor(*maxCandles),
		Mode:       learningMode,
		Notifier:   notify.NewLogNotifier(log.New(signalOut, "[signal] ", 0)),
		Logger:     log.New(io.Discard, "", 0),
	}
	if *record {
		opts.Tracker = learning.NewTracker(set.Records, learning.TrackerOptions{Logger: logger})
	}
	runner := ingestion.NewRunner(opts)

	if err := runner.Run(ctx); err != nil {
		logger.Fatalf("replay failed: %v", err)
	}

	// Output summary
	s := runner.Stats()
	stats := ReplayStats{
		Symbols:    symbolList,
		Interval:   iv.String(),
		StrategyID: strat.ID(),
		From:       from,
		To:         to,
		Loaded:     len(candles),
		Candles:    s.Candles,
		Duplicates: s.Duplicates,
		Invalid:    s.Invalid,
		Signals:    s.Signals,
		Resolved:   s.Resolved,
		Pending:    runner.Pending(),
	}
	if *outputJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return
	}
	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Strategy:          %s\n", stats.StrategyID)
	fmt.Printf("Loaded Candles:    %d\n", stats.Loaded)
	fmt.Printf("Accepted Candles:  %d\n", stats.Candles)
	fmt.Printf("Duplicates:        %d\n", stats.Duplicates)
	fmt.Printf("Invalid:           %d\n", stats.Invalid)
	fmt.Printf("Signals:           %d\n", stats.Signals)
	fmt.Printf("Resolved:          %d\n", stats.Resolved)
	fmt.Printf("Pending:           %d\n", stats.Pending)
}
