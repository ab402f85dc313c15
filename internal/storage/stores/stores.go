// Package stores opens the storage backends the binaries share.
package stores

import (
	"context"
	"fmt"

	"signal-lab/internal/storage"
	chstore "signal-lab/internal/storage/clickhouse"
	"signal-lab/internal/storage/memory"
	"signal-lab/internal/storage/migrations"
	pgstore "signal-lab/internal/storage/postgres"
)

// Backend names reported by Set.Backend.
const (
	BackendMemory   = "memory"
	BackendDatabase = "postgres+clickhouse"
)

// Options selects the backends.
type Options struct {
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool
	Migrate       bool // apply embedded migrations before use
}

// Set holds one implementation per store.
type Set struct {
	Candles storage.CandleStore
	Results storage.BacktestResultStore
	Records storage.SignalRecordStore
	Backend string
}

// Open creates all stores. PostgreSQL holds backtest results, ClickHouse the
// candle archive and the learning log. The returned cleanup closes connections.
func Open(ctx context.Context, opts Options) (*Set, func(), error) {
	if opts.UseMemory {
		set := &Set{
			Candles: memory.NewCandleStore(),
			Results: memory.NewBacktestResultStore(),
			Records: memory.NewSignalRecordStore(),
			Backend: BackendMemory,
		}
		return set, func() {}, nil
	}

	if opts.PostgresDSN == "" || opts.ClickhouseDSN == "" {
		return nil, nil, fmt.Errorf("postgres and clickhouse DSNs are required without in-memory storage")
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, opts.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if opts.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	// ClickHouse
	var chConn *chstore.Conn
	if opts.Migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, opts.ClickhouseDSN)
	} else {
		chConn, err = chstore.NewConn(ctx, opts.ClickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	set := &Set{
		Results: pgstore.NewBacktestResultStore(pool),
		Candles: chstore.NewCandleStore(chConn),
		Records: chstore.NewSignalRecordStore(chConn),
		Backend: BackendDatabase,
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return set, cleanup, nil
}
