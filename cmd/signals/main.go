// Package main runs the live signal generator: closed klines from the
// exchange websocket feed the active strategy, signals are sent to the log
// and Telegram, and their outcomes are recorded in the learning log.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-lab/internal/config"
	"signal-lab/internal/domain"
	"signal-lab/internal/ingestion"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/notify"
	"signal-lab/internal/storage/stores"
	"signal-lab/internal/strategy"
)

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	// Parse flags (env vars as defaults)
	symbols := flag.String("symbols", config.Env("SIGNAL_SYMBOLS", "BTCUSDT"), "Comma-separated symbols")
	interval := flag.String("interval", config.Env("SIGNAL_INTERVAL", "1h"), "Kline interval")
	strategyID := flag.String("strategy", "", "Strategy id (default: engine config's active strategy)")
	mode := flag.String("mode", string(domain.ModeSignal), "Learning mode: signal, paper, live")
	maxCandles := flag.Int("max-candles", learning.DefaultMaxCandles, "Candles before a pending signal resolves Neutral")
	binanceURL := flag.String("binance-url", config.Env("BINANCE_BASE_URL", marketdata.DefaultBaseURL), "Binance REST base URL (window warm-up)")
	wsURL := flag.String("ws-url", config.Env("BINANCE_WS_URL", marketdata.DefaultStreamURL), "Binance kline websocket base URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	engineConfig := flag.String("engine-config", os.Getenv("ENGINE_CONFIG"), "Engine YAML config (defaults when empty)")
	telegramToken := flag.String("telegram-token", os.Getenv("TELEGRAM_BOT_TOKEN"), "Telegram bot token (optional)")
	telegramChat := flag.Int64("telegram-chat", config.EnvInt64("TELEGRAM_CHAT_ID", 0), "Telegram chat id")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[signals] ", log.LstdFlags)

	cfg, err := config.LoadEngineConfig(*engineConfig)
	if err != nil {
		logger.Fatalf("load engine config: %v", err)
	}
	if *strategyID != "" {
		cfg.ActiveStrategy = *strategyID
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

		// Wait for second signal for immediate shutdown
		<-sigCh
		logger.Println("Received second signal, forcing immediate shutdown")
		os.Exit(1)
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

	notifiers := notify.Multi{notify.NewLogNotifier(log.New(os.Stdout, "[signal] ", log.LstdFlags))}
	if *telegramToken != "" {
		tg, err := notify.NewTelegramNotifier(*telegramToken, *telegramChat, notify.WithLogger(logger))
		if err != nil {
			logger.Fatalf("create telegram notifier: %v", err)
		}
		notifiers = append(notifiers, tg)
		logger.Printf("Telegram notifications enabled for chat %d", *telegramChat)
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Strategy:   strat,
		WindowSize: cfg.WindowSize,
		Archive:    set.Candles,
		Monitor:    learning.NewMonitor(*maxCandles),
		Tracker:    learning.NewTracker(set.Records, learning.TrackerOptions{Logger: logger}),
		Mode:       learningMode,
		Notifier:   notify.NewGuard(notifiers, logger),
		Logger:     logger,
		Streams:    openStreams(ctx, logger, *wsURL, symbolList, iv),
	})

	// Warm up windows so the first closed kline already has full history
	fetcher := marketdata.NewFetcher(marketdata.NewBinanceClient(*binanceURL), marketdata.FetcherOptions{Logger: logger})
	end := time.Now().UTC().Truncate(iv.Duration())
	start := end.Add(-time.Duration(cfg.WindowSize) * iv.Duration())
	for _, symbol := range symbolList {
		res, err := fetcher.Fetch(ctx, symbol, iv, start, end)
		if err != nil {
			logger.Printf("%s: warm-up skipped: %v", symbol, err)
			continue
		}
		runner.Seed(symbol, res.Candles)
		logger.Printf("%s: seeded %d candles", symbol, len(res.Candles))
	}

	err = runner.Run(ctx)
	stats := runner.Stats()
	logger.Printf("Processed %d candles, %d signals, %d resolved, %d pending",
		stats.Candles, stats.Signals, stats.Resolved, runner.Pending())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("ingestion failed: %v", err)
	}
	logger.Println("Shutdown complete")
}

// openStreams connects one kline stream per symbol. Streams close when ctx is done.
func openStreams(ctx context.Context, logger *log.Logger, wsURL string, symbols []string, iv domain.Interval) []ingestion.Stream {
	streamCfg := marketdata.DefaultStreamConfig()
	streamCfg.Logger = logger

	streams := make([]ingestion.Stream, 0, len(symbols))
	for _, symbol := range symbols {
		s, err := marketdata.NewKlineStream(ctx, wsURL, symbol, iv, &streamCfg)
		if err != nil {
			logger.Fatalf("%s: connect kline stream: %v", symbol, err)
		}
		go func() {
			<-ctx.Done()
			s.Close()
		}()
		streams = append(streams, s)
		logger.Printf("%s: subscribed to %s klines", symbol, iv)
	}
	return streams
}
