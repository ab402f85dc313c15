package domain

import (
	"fmt"
	"math"
	"time"
)

// Candle is one OHLCV bar. A series is ordered by OpenTime, strictly increasing.
type Candle struct {
	OpenTime time.Time // bar open time (UTC)
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64 // base asset volume
}

// Notional returns close * volume in quote units.
func (c Candle) Notional() float64 {
	return c.Close * c.Volume
}

// Validate checks that prices are positive and finite and that the bar is well formed.
func (c Candle) Validate() error {
	for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
		if !isPositiveFinite(p) {
			return fmt.Errorf("candle %s: non-positive or non-finite price %v", c.OpenTime.Format(time.RFC3339), p)
		}
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %s: high %v below low %v", c.OpenTime.Format(time.RFC3339), c.High, c.Low)
	}
	if math.IsNaN(c.Volume) || c.Volume < 0 {
		return fmt.Errorf("candle %s: invalid volume %v", c.OpenTime.Format(time.RFC3339), c.Volume)
	}
	return nil
}

// Interval is a candle width as understood by the market-data provider.
type Interval string

// Supported intervals
const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// Duration returns the interval width, or 0 for unknown intervals.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// IsValid returns true if the interval is supported.
func (i Interval) IsValid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// String returns the string representation.
func (i Interval) String() string {
	return string(i)
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
