// Package ingestion consumes live closed candles, turns them into signals
// and resolves earlier signals against the candles that follow them.
package ingestion

import (
	"context"
	"errors"
	"log"
	"sync"

	"signal-lab/internal/domain"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/notify"
	"signal-lab/internal/storage"
	"signal-lab/internal/strategy"
)

// Stream delivers closed candles. Satisfied by *marketdata.KlineStream.
type Stream interface {
	Candles() <-chan marketdata.StreamCandle
}

// Stats counts what the runner has processed.
type Stats struct {
	Candles       int // accepted candles
	Duplicates    int // candles at or before the latest one of their symbol
	Invalid       int // candles failing validation
	Signals       int
	Resolved      int
	NotifyErrors  int
	ArchiveErrors int
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Streams    []Stream
	Strategy   strategy.Strategy   // required
	WindowSize int                 // default domain.DefaultWindowSize
	Archive    storage.CandleStore // optional; accepted candles are appended
	Monitor    *learning.Monitor   // default: learning.NewMonitor(0)
	Tracker    *learning.Tracker   // optional; resolved signals are recorded
	Mode       domain.Mode         // default domain.ModeSignal
	Notifier   notify.Notifier     // optional
	Logger     *log.Logger
}

// Runner feeds live candles through a strategy.
// Flow: stream → ordering guard → archive → monitor/tracker → strategy → notifier
type Runner struct {
	streams  []Stream
	strategy strategy.Strategy
	size     int
	archive  storage.CandleStore
	monitor  *learning.Monitor
	tracker  *learning.Tracker
	mode     domain.Mode
	notifier notify.Notifier
	logger   *log.Logger

	mu      sync.Mutex
	windows map[string]*window
	stats   Stats
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	size := opts.WindowSize
	if size < 2 {
		size = domain.DefaultWindowSize
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = learning.NewMonitor(0)
	}
	mode := opts.Mode
	if mode == "" {
		mode = domain.ModeSignal
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		streams:  opts.Streams,
		strategy: opts.Strategy,
		size:     size,
		archive:  opts.Archive,
		monitor:  monitor,
		tracker:  opts.Tracker,
		mode:     mode,
		notifier: opts.Notifier,
		logger:   logger,
		windows:  make(map[string]*window),
	}
}

// Seed preloads history for symbol so the first live candle already has a
// full window. Candles are sorted; duplicates are dropped.
func (r *Runner) Seed(symbol string, candles []domain.Candle) {
	sorted := append([]domain.Candle(nil), candles...)
	SortCandles(sorted)

	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.window(symbol)
	for _, c := range sorted {
		w.push(c)
	}
}

// Stats returns a copy of the counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Pending returns the number of signals awaiting resolution.
func (r *Runner) Pending() int {
	return r.monitor.Pending()
}

// Run consumes every stream until ctx is cancelled or all streams close.
// Candles are handled one at a time.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("Starting ingestion runner: %d streams, strategy=%s, mode=%s", len(r.streams), r.strategy.ID(), r.mode)

	merged := make(chan marketdata.StreamCandle)
	var wg sync.WaitGroup
	for _, s := range r.streams {
		wg.Add(1)
		go func(in <-chan marketdata.StreamCandle) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case sc, ok := <-in:
					if !ok {
						return
					}
					select {
					case merged <- sc:
					case <-ctx.Done():
						return
					}
				}
			}
		}(s.Candles())
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sc, ok := <-merged:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				r.logger.Println("All streams closed")
				return nil
			}
			if err := r.Handle(ctx, sc); err != nil {
				return err
			}
		}
	}
}

// Handle processes one closed candle. Only context errors are returned;
// everything else is logged and counted.
func (r *Runner) Handle(ctx context.Context, sc marketdata.StreamCandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := sc.Candle

	if err := c.Validate(); err != nil {
		r.count(func(s *Stats) { s.Invalid++ })
		r.logger.Printf("%s: skipping candle at %s: %v", sc.Symbol, c.OpenTime, err)
		return nil
	}

	r.mu.Lock()
	w := r.window(sc.Symbol)
	accepted := w.push(c)
	var series []domain.Candle
	if accepted {
		r.stats.Candles++
		series = w.snapshot()
	} else {
		r.stats.Duplicates++
	}
	r.mu.Unlock()
	if !accepted {
		return nil
	}

	if r.archive != nil {
		if err := r.archive.InsertBulk(ctx, sc.Symbol, sc.Interval, []domain.Candle{c}); err != nil {
			r.count(func(s *Stats) { s.ArchiveErrors++ })
			r.logger.Printf("%s: archive candle: %v", sc.Symbol, err)
		}
	}

	// Resolve earlier signals before this candle can produce a new one
	for _, res := range r.monitor.Observe(sc.Symbol, c) {
		r.count(func(s *Stats) { s.Resolved++ })
		r.logger.Printf("%s: signal %s resolved %s after %d candles", sc.Symbol, res.Signal.ID, res.Outcome, res.Candles)
		if r.tracker != nil {
			if _, err := r.tracker.Record(ctx, r.mode, res, false); err != nil {
				r.logger.Printf("%s: record signal %s: %v", sc.Symbol, res.Signal.ID, err)
			}
		}
	}

	sig, _, err := strategy.GenerateSignal(ctx, r.strategy, sc.Symbol, series)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, strategy.ErrInsufficientData):
		return nil
	default:
		r.logger.Printf("%s: generate signal at %s: %v", sc.Symbol, c.OpenTime, err)
		return nil
	}
	if sig == nil {
		return nil
	}

	r.count(func(s *Stats) { s.Signals++ })
	r.monitor.Add(sig)
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, sig); err != nil {
			r.count(func(s *Stats) { s.NotifyErrors++ })
			r.logger.Printf("%s: notify %s: %v", sc.Symbol, sig.ID, err)
		}
	}
	return nil
}

// window returns the series of symbol. Caller holds r.mu.
func (r *Runner) window(symbol string) *window {
	w, ok := r.windows[symbol]
	if !ok {
		w = newWindow(r.size)
		r.windows[symbol] = w
	}
	return w
}

func (r *Runner) count(f func(*Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}
