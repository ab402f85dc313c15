package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/observability"
	"signal-lab/internal/storage"
)

// DefaultBatchDelay is the pause between consecutive klines requests.
const DefaultBatchDelay = 100 * time.Millisecond

// FetcherOptions configures Fetcher.
type FetcherOptions struct {
	BatchLimit int                 // candles per request, default and max MaxBatchLimit
	BatchDelay time.Duration       // pause between requests, default DefaultBatchDelay, negative disables
	Archive    storage.CandleStore // optional; fetched candles are appended here
	Logger     *log.Logger
}

// FetchResult is a contiguous candle series plus fetch diagnostics.
type FetchResult struct {
	Candles   []domain.Candle
	Batches   int
	Dropped   int  // candles not strictly after the previous one
	Truncated bool // a later batch failed; Candles holds what was fetched before it
}

// Fetcher pages through a Provider sequentially.
type Fetcher struct {
	provider   Provider
	batchLimit int
	batchDelay time.Duration
	archive    storage.CandleStore
	logger     *log.Logger
}

// NewFetcher creates a new paginated fetcher.
func NewFetcher(provider Provider, opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		provider:   provider,
		batchLimit: opts.BatchLimit,
		batchDelay: opts.BatchDelay,
		archive:    opts.Archive,
		logger:     opts.Logger,
	}
	if f.batchLimit <= 0 || f.batchLimit > MaxBatchLimit {
		f.batchLimit = MaxBatchLimit
	}
	if f.batchDelay < 0 {
		f.batchDelay = 0
	} else if opts.BatchDelay == 0 {
		f.batchDelay = DefaultBatchDelay
	}
	if f.logger == nil {
		f.logger = log.Default()
	}
	return f
}

// Fetch returns every candle with open time in [start, end).
// A failure on the first batch returns ErrDataUnavailable. A failure on a later
// batch returns the candles fetched so far with Truncated set.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) (*FetchResult, error) {
	if !interval.IsValid() {
		return nil, fmt.Errorf("%w: unknown interval %q", ErrDataUnavailable, interval)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: empty range %s..%s", ErrDataUnavailable, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	result := &FetchResult{}
	cursor := start

	for cursor.Before(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if result.Batches > 0 && f.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.batchDelay):
			}
		}

		began := time.Now()
		batch, err := f.provider.FetchCandles(ctx, symbol, interval, cursor, end, f.batchLimit)
		observability.RecordFetchBatch(string(interval), len(batch), time.Since(began).Seconds(), err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if result.Batches == 0 {
				return nil, fmt.Errorf("%w: %s %s: %w", ErrDataUnavailable, symbol, interval, err)
			}
			f.logger.Printf("fetch %s %s truncated at %s after %d candles: %v",
				symbol, interval, cursor.Format(time.RFC3339), len(result.Candles), err)
			observability.RecordFetchTruncated()
			result.Truncated = true
			break
		}
		result.Batches++

		if len(batch) == 0 {
			break
		}

		for _, c := range batch {
			if c.OpenTime.Before(start) || !c.OpenTime.Before(end) {
				result.Dropped++
				continue
			}
			if n := len(result.Candles); n > 0 && !c.OpenTime.After(result.Candles[n-1].OpenTime) {
				result.Dropped++
				continue
			}
			result.Candles = append(result.Candles, c)
		}

		next := batch[len(batch)-1].OpenTime.Add(interval.Duration())
		if !next.After(cursor) {
			// Provider did not advance; stop instead of looping.
			break
		}
		cursor = next
	}

	if len(result.Candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s %s", ErrDataUnavailable, symbol, interval)
	}

	if f.archive != nil {
		if err := f.archive.InsertBulk(ctx, symbol, interval, result.Candles); err != nil {
			f.logger.Printf("archive %d candles for %s %s: %v", len(result.Candles), symbol, interval, err)
		}
	}

	return result, nil
}
