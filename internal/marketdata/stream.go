package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"signal-lab/internal/domain"
	"signal-lab/internal/observability"
)

// DefaultStreamURL is the Binance market stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// StreamConfig configures KlineStream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the capacity of the closed-candle channel.
	Buffer int
	Logger *log.Logger
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            256,
	}
}

// StreamCandle is a closed candle received from the kline stream.
type StreamCandle struct {
	Symbol   string
	Interval domain.Interval
	Candle   domain.Candle
}

// KlineStream delivers closed candles for one symbol and interval over a websocket.
// It reconnects with exponential backoff until closed.
type KlineStream struct {
	endpoint string
	symbol   string
	interval domain.Interval
	config   StreamConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	out  chan StreamCandle
	done chan struct{}
	wg   sync.WaitGroup
}

// NewKlineStream connects to <baseURL>/<symbol>@kline_<interval> and starts reading.
func NewKlineStream(ctx context.Context, baseURL, symbol string, interval domain.Interval, config *StreamConfig) (*KlineStream, error) {
	if !interval.IsValid() {
		return nil, fmt.Errorf("unknown interval %q", interval)
	}
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &KlineStream{
		endpoint: fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(baseURL, "/"), strings.ToLower(symbol), interval),
		symbol:   strings.ToUpper(symbol),
		interval: interval,
		config:   cfg,
		logger:   logger,
		out:      make(chan StreamCandle, cfg.Buffer),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	s.wg.Add(1)
	go s.readLoop()

	// Start ping goroutine
	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Candles returns the channel of closed candles. It is closed after Close.
func (s *KlineStream) Candles() <-chan StreamCandle {
	return s.out
}

// connect establishes WebSocket connection.
func (s *KlineStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	if s.closed.Load() {
		conn.Close()
		return fmt.Errorf("stream closed")
	}

	s.conn = conn
	return nil
}

// Close closes the WebSocket connection and the candle channel.
func (s *KlineStream) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.out)
	return nil
}

// readLoop reads kline events and reconnects on connection errors.
func (s *KlineStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect(&reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Printf("kline stream %s read: %v", s.endpoint, err)

			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		if !s.handleMessage(message) {
			return
		}
	}
}

// reconnect waits delay, redials and doubles delay up to MaxReconnectDelay.
// Returns false when the stream was closed while waiting.
func (s *KlineStream) reconnect(delay *time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(*delay):
	}

	observability.RecordStreamReconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.logger.Printf("kline stream reconnect: %v", err)
		*delay *= 2
		if *delay > s.config.MaxReconnectDelay {
			*delay = s.config.MaxReconnectDelay
		}
	}
	return true
}

// handleMessage forwards closed candles. Returns false when the stream was closed.
func (s *KlineStream) handleMessage(message []byte) bool {
	var ev klineEvent
	if err := json.Unmarshal(message, &ev); err != nil || ev.EventType != "kline" {
		return true
	}
	if !ev.Kline.Closed {
		return true
	}

	candle, err := ev.Kline.candle()
	if err != nil {
		s.logger.Printf("kline stream: %v", err)
		return true
	}

	observability.RecordStreamCandle()

	select {
	case s.out <- StreamCandle{Symbol: ev.Symbol, Interval: domain.Interval(ev.Kline.Interval), Candle: candle}:
		return true
	case <-s.done:
		return false
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *KlineStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				// Errors surface in readLoop, which reconnects
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

// Kline stream message types

type klineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

func (k klinePayload) candle() (domain.Candle, error) {
	var fields [5]float64
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline %d field %d: %w", k.OpenTime, i, err)
		}
		fields[i] = v
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}
