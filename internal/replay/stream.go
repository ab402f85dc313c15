package replay

import (
	"context"

	"signal-lab/internal/marketdata"
)

// Stream emits a fixed candle sequence and then closes.
// Satisfies ingestion.Stream.
type Stream struct {
	out chan marketdata.StreamCandle
}

// NewStream starts emitting candles in order. Emission stops early when ctx
// is cancelled.
func NewStream(ctx context.Context, candles []marketdata.StreamCandle) *Stream {
	s := &Stream{out: make(chan marketdata.StreamCandle)}
	go func() {
		defer close(s.out)
		for _, c := range candles {
			select {
			case s.out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s
}

// Candles returns the channel of replayed candles.
func (s *Stream) Candles() <-chan marketdata.StreamCandle {
	return s.out
}
