package strategy

import (
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// Sentiment bounds
const (
	MinSentiment = -10.0
	MaxSentiment = 10.0
)

// SentimentSource supplies the external sentiment term used by the ML variant.
type SentimentSource interface {
	// Sentiment returns a score in [MinSentiment, MaxSentiment].
	Sentiment(symbol string, at time.Time) float64
}

// SeededSentiment draws pseudo-random sentiment from a PCG generator keyed by
// the seed, the symbol and the candle time. Equal inputs always give equal
// sentiment, regardless of call order.
type SeededSentiment struct {
	seed uint64
}

// NewSeededSentiment creates a reproducible sentiment source.
func NewSeededSentiment(seed uint64) *SeededSentiment {
	return &SeededSentiment{seed: seed}
}

// Sentiment implements SentimentSource.
func (s *SeededSentiment) Sentiment(symbol string, at time.Time) float64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	key := h.Sum64() ^ uint64(at.UnixMilli())
	rng := rand.New(rand.NewPCG(s.seed, key^0x9e3779b97f4a7c15))
	return MinSentiment + rng.Float64()*(MaxSentiment-MinSentiment)
}

// FixedSentiment always returns the same score.
type FixedSentiment float64

// Sentiment implements SentimentSource.
func (f FixedSentiment) Sentiment(string, time.Time) float64 {
	return clampFloat(float64(f), MinSentiment, MaxSentiment)
}
