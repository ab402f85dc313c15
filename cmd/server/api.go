package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/backtest"
	"signal-lab/internal/decision"
	"signal-lab/internal/domain"
	"signal-lab/internal/ingestion"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/metrics"
	"signal-lab/internal/notify"
	"signal-lab/internal/observability"
	"signal-lab/internal/storage"
	"signal-lab/internal/strategy"
	"signal-lab/internal/verification"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// backtestRunner is satisfied by *backtest.Runner.
type backtestRunner interface {
	Run(ctx context.Context, req backtest.Request) (*domain.BacktestResult, error)
}

// ServerOptions wires the server's collaborators.
type ServerOptions struct {
	Runner     backtestRunner
	Results    storage.BacktestResultStore
	Tracker    *learning.Tracker
	Aggregator *metrics.Aggregator
	Evaluator  *decision.Evaluator    // default: decision.DefaultCriteria()
	Verifier   *verification.Verifier // optional; enables /api/backtests/{id}/verify
	Source     backtest.CandleSource  // candles for signal requests without a window
	Registry   *strategy.Registry     // default: strategy.Default
	Config     domain.EngineConfig
	Notifier   notify.Notifier // optional; receives every generated signal
	Backend    string
	Clock      func() time.Time
	Logger     *log.Logger
}

// Server exposes backtests, signal generation and learning rollups over HTTP.
type Server struct {
	runner     backtestRunner
	results    storage.BacktestResultStore
	tracker    *learning.Tracker
	aggregator *metrics.Aggregator
	evaluator  *decision.Evaluator
	verifier   *verification.Verifier
	source     backtest.CandleSource
	registry   *strategy.Registry
	cfg        domain.EngineConfig
	notifier   notify.Notifier
	backend    string
	clock      func() time.Time
	logger     *log.Logger

	// State
	mu               sync.Mutex
	started          time.Time
	lastBacktest     time.Time
	backtestsRun     int
	backtestsFailed  int
	signalsGenerated int
}

// NewServer creates a server.
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		runner:     opts.Runner,
		results:    opts.Results,
		tracker:    opts.Tracker,
		aggregator: opts.Aggregator,
		evaluator:  opts.Evaluator,
		verifier:   opts.Verifier,
		source:     opts.Source,
		registry:   opts.Registry,
		cfg:        opts.Config,
		notifier:   opts.Notifier,
		backend:    opts.Backend,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if s.registry == nil {
		s.registry = strategy.Default
	}
	if s.evaluator == nil {
		s.evaluator = decision.NewEvaluator(decision.DefaultCriteria())
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.started = s.clock()
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /api/backtests", s.handleRunBacktest)
	mux.HandleFunc("GET /api/backtests", s.handleListBacktests)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGetBacktest)
	mux.HandleFunc("GET /api/backtests/{id}/verify", s.handleVerifyBacktest)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/decisions", s.handleDecisions)
	mux.HandleFunc("POST /api/signals", s.handleGenerateSignal)
	mux.HandleFunc("GET /api/learning/{mode}", s.handleLearningSummary)
	mux.HandleFunc("GET /api/learning/{mode}/{symbol}", s.handleLearningRollup)
	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status           string    `json:"status"`
	Uptime           string    `json:"uptime"`
	Started          time.Time `json:"started"`
	Storage          string    `json:"storage"`
	ActiveStrategy   string    `json:"active_strategy"`
	Strategies       []string  `json:"strategies"`
	LastBacktest     time.Time `json:"last_backtest,omitempty"`
	BacktestsRun     int       `json:"backtests_run"`
	BacktestsFailed  int       `json:"backtests_failed"`
	SignalsGenerated int       `json:"signals_generated"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:           "running",
		Uptime:           s.clock().Sub(s.started).String(),
		Started:          s.started,
		Storage:          s.backend,
		ActiveStrategy:   s.cfg.ActiveStrategy,
		Strategies:       s.registry.IDs(),
		LastBacktest:     s.lastBacktest,
		BacktestsRun:     s.backtestsRun,
		BacktestsFailed:  s.backtestsFailed,
		SignalsGenerated: s.signalsGenerated,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// backtestRequest is the body of POST /api/backtests. Zero fields take defaults.
type backtestRequest struct {
	Symbol         string          `json:"symbol"`
	StrategyID     string          `json:"strategy_id"`
	Interval       domain.Interval `json:"interval"`
	From           *time.Time      `json:"from"`
	To             *time.Time      `json:"to"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (b backtestRequest) toRequest() backtest.Request {
	req := backtest.Request{
		Symbol:         b.Symbol,
		StrategyID:     b.StrategyID,
		Interval:       b.Interval,
		InitialBalance: b.InitialBalance,
	}
	if b.From != nil {
		req.From = *b.From
	}
	if b.To != nil {
		req.To = *b.To
	}
	return req
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var body backtestRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.runner.Run(r.Context(), body.toRequest())

	s.mu.Lock()
	s.backtestsRun++
	if err != nil {
		s.backtestsFailed++
	} else {
		s.lastBacktest = s.clock()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("backtest %s/%s failed: %v", body.Symbol, body.StrategyID, err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newResultJSON(result, true))
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var results []*domain.BacktestResult
	if id := r.URL.Query().Get("strategy"); id != "" {
		results, err = s.results.GetByStrategy(r.Context(), id, limit)
	} else {
		results, err = s.results.ListRecent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	out := make([]resultJSON, 0, len(results))
	for _, res := range results {
		out = append(out, newResultJSON(res, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	result, err := s.results.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newResultJSON(result, true))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	board, err := s.aggregator.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleVerifyBacktest(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		writeError(w, http.StatusNotImplemented, errors.New("verification not configured"))
		return
	}
	res, err := s.verifier.Verify(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDecisions runs the decision gate over the full leaderboard.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	board, err := s.aggregator.Leaderboard(r.Context(), 0)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.evaluator.EvaluateAll(board))
}

// signalRequest is the body of POST /api/signals. Without candles the latest
// window is fetched from the market data source.
type signalRequest struct {
	Symbol     string          `json:"symbol"`
	StrategyID string          `json:"strategy_id"`
	Interval   domain.Interval `json:"interval"`
	Candles    []candleJSON    `json:"candles"`
}

type signalResponse struct {
	Signal   *signalJSON `json:"signal"`
	Notified bool        `json:"notified"`
}

func (s *Server) handleGenerateSignal(w http.ResponseWriter, r *http.Request) {
	var body signalRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Symbol == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: symbol required", backtest.ErrInvalidRequest))
		return
	}
	if body.StrategyID == "" {
		body.StrategyID = s.cfg.ActiveStrategy
	}
	if body.Interval == "" {
		body.Interval = backtest.DefaultInterval
	}
	if !body.Interval.IsValid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown interval %q", backtest.ErrInvalidRequest, body.Interval))
		return
	}

	strat, err := s.registry.New(body.StrategyID, s.cfg)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	window, err := s.window(r.Context(), body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	sig, _, err := strategy.GenerateSignal(r.Context(), strat, body.Symbol, window)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := signalResponse{}
	if sig != nil {
		s.mu.Lock()
		s.signalsGenerated++
		s.mu.Unlock()

		resp.Signal = newSignalJSON(sig)
		if s.notifier != nil {
			if err := s.notifier.Notify(r.Context(), sig); err != nil {
				s.logger.Printf("notify %s: %v", sig.ID, err)
			} else {
				resp.Notified = true
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// window returns the candles a signal request is evaluated on, at most WindowSize.
// Request candles must arrive with strictly increasing open times.
func (s *Server) window(ctx context.Context, body signalRequest) ([]domain.Candle, error) {
	size := s.cfg.WindowSize
	if len(body.Candles) > 0 {
		candles := make([]domain.Candle, len(body.Candles))
		for i, c := range body.Candles {
			candles[i] = c.toCandle()
		}
		if err := ingestion.ValidateCandleOrdering(candles); err != nil {
			return nil, err
		}
		if len(candles) > size {
			candles = candles[len(candles)-size:]
		}
		return candles, nil
	}

	if s.source == nil {
		return nil, fmt.Errorf("%w: no market data source", marketdata.ErrDataUnavailable)
	}
	step := body.Interval.Duration()
	end := s.clock().Truncate(step)
	start := end.Add(-time.Duration(size) * step)
	fetched, err := s.source.Fetch(ctx, body.Symbol, body.Interval, start, end)
	if err != nil {
		return nil, err
	}
	candles := fetched.Candles
	if len(candles) > size {
		candles = candles[len(candles)-size:]
	}
	return candles, nil
}

func (s *Server) handleLearningSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.tracker.Summary(r.Context(), domain.Mode(r.PathValue("mode")))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLearningRollup(w http.ResponseWriter, r *http.Request) {
	rollup, err := s.tracker.Rollup(r.Context(), domain.Mode(r.PathValue("mode")), r.PathValue("symbol"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, metrics.ErrNoResults),
		errors.Is(err, verification.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, backtest.ErrInvalidRequest),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, learning.ErrInvalidMode),
		errors.Is(err, ingestion.ErrInvalidOrdering),
		errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, marketdata.ErrDataUnavailable),
		errors.Is(err, strategy.ErrInsufficientData),
		errors.Is(err, strategy.ErrInvalidMarketData),
		errors.Is(err, strategy.ErrInvalidSignal):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return min(n, maxListLimit), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
