package marketdata

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// seriesProvider serves an in-memory hourly series and can fail on a given call.
type seriesProvider struct {
	mu      sync.Mutex
	candles []domain.Candle
	failOn  int // 1-based call number to fail on, 0 never
	calls   int
	starts  []time.Time
}

func (p *seriesProvider) FetchCandles(_ context.Context, _ string, _ domain.Interval, start, end time.Time, limit int) ([]domain.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.starts = append(p.starts, start)
	if p.calls == p.failOn {
		return nil, errors.New("boom")
	}

	var out []domain.Candle
	for _, c := range p.candles {
		if !c.OpenTime.Before(start) && c.OpenTime.Before(end) {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func hourly(n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := range candles {
		p := 100 + float64(i)
		candles[i] = domain.Candle{OpenTime: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1}
	}
	return candles
}

func quietFetcher(p Provider, limit int) *Fetcher {
	return NewFetcher(p, FetcherOptions{
		BatchLimit: limit,
		BatchDelay: -1,
		Logger:     log.New(io.Discard, "", 0),
	})
}

func TestFetcher_PagesUntilEnd(t *testing.T) {
	p := &seriesProvider{candles: hourly(25)}

	res, err := quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(25*time.Hour))
	require.NoError(t, err)

	assert.Len(t, res.Candles, 25)
	assert.False(t, res.Truncated)
	assert.Equal(t, 3, res.Batches)
	require.Len(t, p.starts, 3)
	assert.True(t, p.starts[1].Equal(t0.Add(10*time.Hour)), "second batch starts after last open time")
	assert.True(t, p.starts[2].Equal(t0.Add(20*time.Hour)))
}

func TestFetcher_StopsOnEmptyBatch(t *testing.T) {
	p := &seriesProvider{candles: hourly(5)}

	res, err := quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(100*time.Hour))
	require.NoError(t, err)
	assert.Len(t, res.Candles, 5)
	assert.Equal(t, 2, p.calls)
}

func TestFetcher_FirstBatchFailure(t *testing.T) {
	p := &seriesProvider{candles: hourly(5), failOn: 1}

	_, err := quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(5*time.Hour))
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestFetcher_LaterFailureTruncates(t *testing.T) {
	p := &seriesProvider{candles: hourly(30), failOn: 2}

	res, err := quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(30*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Candles, 10)
}

func TestFetcher_DropsNonIncreasing(t *testing.T) {
	candles := hourly(4)
	dup := candles[1]
	p := &seriesProvider{candles: []domain.Candle{candles[0], candles[1], dup, candles[2], candles[3]}}

	res, err := quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Len(t, res.Candles, 4)
	assert.Equal(t, 1, res.Dropped)
}

func TestFetcher_NoCandles(t *testing.T) {
	p := &seriesProvider{}

	_, err := quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestFetcher_InvalidRange(t *testing.T) {
	p := &seriesProvider{candles: hourly(5)}

	_, err := quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0)
	assert.ErrorIs(t, err, ErrDataUnavailable)

	_, err = quietFetcher(p, 10).Fetch(context.Background(), "BTCUSDT", domain.Interval("2h"), t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestFetcher_Cancelled(t *testing.T) {
	p := &seriesProvider{candles: hourly(30)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := quietFetcher(p, 10).Fetch(ctx, "BTCUSDT", domain.Interval1h, t0, t0.Add(30*time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.calls)
}

func TestFetcher_CancelledDuringDelay(t *testing.T) {
	p := &seriesProvider{candles: hourly(30)}
	f := NewFetcher(p, FetcherOptions{BatchLimit: 10, BatchDelay: time.Hour, Logger: log.New(io.Discard, "", 0)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "BTCUSDT", domain.Interval1h, t0, t0.Add(30*time.Hour))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.calls)
}

func TestFetcher_ArchivesAndServesOffline(t *testing.T) {
	archive := memory.NewCandleStore()
	p := &seriesProvider{candles: hourly(12)}

	f := NewFetcher(p, FetcherOptions{BatchLimit: 5, BatchDelay: -1, Archive: archive, Logger: log.New(io.Discard, "", 0)})
	_, err := f.Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(12*time.Hour))
	require.NoError(t, err)

	offline := quietFetcher(NewStoreProvider(archive), 5)
	res, err := offline.Fetch(context.Background(), "BTCUSDT", domain.Interval1h, t0, t0.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Len(t, res.Candles, 12)
	assert.Equal(t, 111.0, res.Candles[11].Close)
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(&seriesProvider{}, FetcherOptions{BatchLimit: 5000})
	assert.Equal(t, MaxBatchLimit, f.batchLimit)
	assert.Equal(t, DefaultBatchDelay, f.batchDelay)
	assert.NotNil(t, f.logger)
}
