// Package main provides the HTTP service: on-demand backtests, signal
// generation, stored results and learning rollups.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-lab/internal/backtest"
	"signal-lab/internal/config"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/metrics"
	"signal-lab/internal/notify"
	"signal-lab/internal/storage/stores"
	"signal-lab/internal/verification"
)

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", config.Env("HTTP_ADDR", ":8080"), "HTTP listen address")
	binanceURL := flag.String("binance-url", config.Env("BINANCE_BASE_URL", marketdata.DefaultBaseURL), "Binance REST base URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", true, "Apply database migrations on startup")
	engineConfig := flag.String("engine-config", os.Getenv("ENGINE_CONFIG"), "Engine YAML config (defaults when empty)")
	telegramToken := flag.String("telegram-token", os.Getenv("TELEGRAM_BOT_TOKEN"), "Telegram bot token (optional)")
	telegramChat := flag.Int64("telegram-chat", config.EnvInt64("TELEGRAM_CHAT_ID", 0), "Telegram chat id")
	batchDelay := flag.Duration("batch-delay", config.EnvDuration("FETCH_BATCH_DELAY", marketdata.DefaultBatchDelay), "Pause between klines requests")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.LoadEngineConfig(*engineConfig)
	if err != nil {
		logger.Fatalf("Failed to load engine config: %v", err)
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	set, cleanup, err := stores.Open(ctx, stores.Options{
		PostgresDSN:   *postgresDSN,
		ClickhouseDSN: *clickhouseDSN,
		UseMemory:     *useMemory,
		Migrate:       *migrate,
	})
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	fetcher := marketdata.NewFetcher(marketdata.NewBinanceClient(*binanceURL), marketdata.FetcherOptions{
		BatchDelay: *batchDelay,
		Archive:    set.Candles,
		Logger:     log.New(os.Stdout, "[fetch] ", log.LstdFlags),
	})
	tracker := learning.NewTracker(set.Records, learning.TrackerOptions{
		Logger: log.New(os.Stdout, "[learning] ", log.LstdFlags),
	})
	runner, err := backtest.NewRunner(backtest.RunnerOptions{
		Source:  fetcher,
		Config:  &cfg,
		Results: set.Results,
		Tracker: tracker,
		Logger:  log.New(os.Stdout, "[backtest] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("Failed to create backtest runner: %v", err)
	}

	notifiers := notify.Multi{notify.NewLogNotifier(log.New(os.Stdout, "[signal] ", log.LstdFlags))}
	if *telegramToken != "" {
		tg, err := notify.NewTelegramNotifier(*telegramToken, *telegramChat, notify.WithLogger(logger))
		if err != nil {
			logger.Fatalf("Failed to create telegram notifier: %v", err)
		}
		notifiers = append(notifiers, tg)
	}

	server := NewServer(ServerOptions{
		Runner:     runner,
		Results:    set.Results,
		Tracker:    tracker,
		Aggregator: metrics.NewAggregator(set.Results),
		Verifier:   verification.NewVerifier(set.Results, runner),
		Source:     fetcher,
		Config:     cfg,
		Notifier:   notify.NewGuard(notifiers, logger),
		Backend:    set.Backend,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Closed once in-flight requests have drained
	stopped := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(stopped)
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		go func() {
			// Wait for second signal for immediate shutdown
			select {
			case sig := <-sigCh:
				logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
				os.Exit(1)
			case <-shutdownCtx.Done():
			}
		}()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Graceful shutdown timed out after 30s: %v", err)
			httpServer.Close()
		}
	}()

	logger.Printf("Starting HTTP server on %s (storage=%s, strategy=%s)", *addr, set.Backend, cfg.ActiveStrategy)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}
	<-stopped

	logger.Println("Shutdown complete")
}
