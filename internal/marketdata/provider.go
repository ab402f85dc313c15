// Package marketdata fetches OHLCV candles from a Binance-compatible exchange
// and serves them to backtests, either live or from the candle archive.
package marketdata

import (
	"context"
	"errors"
	"time"

	"signal-lab/internal/domain"
)

// ErrDataUnavailable is returned when no candles could be obtained for a request.
var ErrDataUnavailable = errors.New("market data unavailable")

// MaxBatchLimit is the largest page the klines endpoint serves.
const MaxBatchLimit = 1000

// Provider returns candles with open time in [start, end), ordered ascending,
// at most limit per call.
type Provider interface {
	FetchCandles(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time, limit int) ([]domain.Candle, error)
}
