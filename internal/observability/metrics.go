// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Market data metrics
	CandlesFetched      *prometheus.CounterVec
	FetchBatches        *prometheus.CounterVec
	FetchTruncated      prometheus.Counter
	ProviderCallLatency *prometheus.HistogramVec
	StreamReconnects    prometheus.Counter
	StreamCandles       prometheus.Counter

	// Strategy metrics
	SignalsGenerated *prometheus.CounterVec
	SignalsDiscarded *prometheus.CounterVec

	// Backtest metrics
	BacktestRunsTotal *prometheus.CounterVec
	BacktestDuration  *prometheus.HistogramVec
	TradesClosed      *prometheus.CounterVec

	// Learning metrics
	SignalsClassified *prometheus.CounterVec

	// Notification metrics
	NotificationsSent *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBacktest prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signal_lab"
	}

	return &Metrics{
		// Market data metrics
		CandlesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candles_fetched_total",
			Help:      "Total number of candles fetched by interval",
		}, []string{"interval"}),
		FetchBatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_batches_total",
			Help:      "Total number of kline batches requested by status",
		}, []string{"status"}),
		FetchTruncated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_truncated_total",
			Help:      "Total number of fetches that ended early after a failed batch",
		}),
		ProviderCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "provider_call_latency_seconds",
			Help:      "Market data provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "stream_reconnects_total",
			Help:      "Total number of kline stream reconnect attempts",
		}),
		StreamCandles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "stream_closed_candles_total",
			Help:      "Total number of closed candles received from the kline stream",
		}),

		// Strategy metrics
		SignalsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "signals_generated_total",
			Help:      "Total number of signals generated by strategy and direction",
		}, []string{"strategy", "direction"}),
		SignalsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "signals_discarded_total",
			Help:      "Total number of steps or signals discarded by reason",
		}, []string{"strategy", "reason"}),

		// Backtest metrics
		BacktestRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"strategy", "status"}),
		BacktestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"strategy"}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_closed_total",
			Help:      "Total number of simulated trades closed by exit reason",
		}, []string{"exit_reason"}),

		// Learning metrics
		SignalsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "signals_classified_total",
			Help:      "Total number of signals classified by mode and outcome",
		}, []string{"mode", "outcome"}),

		// Notification metrics
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of signal notifications by channel and status",
		}, []string{"channel", "status"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulBacktest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_backtest_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFetchBatch records one provider call and the candles it returned.
func RecordFetchBatch(interval string, candles int, seconds float64, err error) {
	DefaultMetrics.ProviderCallLatency.WithLabelValues("klines").Observe(seconds)
	if err != nil {
		DefaultMetrics.FetchBatches.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.FetchBatches.WithLabelValues("success").Inc()
	DefaultMetrics.CandlesFetched.WithLabelValues(interval).Add(float64(candles))
}

// RecordFetchTruncated increments the truncated fetch counter.
func RecordFetchTruncated() {
	DefaultMetrics.FetchTruncated.Inc()
}

// RecordStreamReconnect increments the stream reconnect counter.
func RecordStreamReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordStreamCandle increments the closed stream candle counter.
func RecordStreamCandle() {
	DefaultMetrics.StreamCandles.Inc()
}

// RecordSignal increments the generated signal counter.
func RecordSignal(strategyID, direction string) {
	DefaultMetrics.SignalsGenerated.WithLabelValues(strategyID, direction).Inc()
}

// RecordDiscard records a skipped step or discarded signal.
func RecordDiscard(strategyID, reason string) {
	DefaultMetrics.SignalsDiscarded.WithLabelValues(strategyID, reason).Inc()
}

// RecordTradeClosed increments the closed trade counter.
func RecordTradeClosed(exitReason string) {
	DefaultMetrics.TradesClosed.WithLabelValues(exitReason).Inc()
}

// RecordBacktestRun records a backtest run.
func RecordBacktestRun(strategyID, status string, durationSeconds float64) {
	DefaultMetrics.BacktestRunsTotal.WithLabelValues(strategyID, status).Inc()
	DefaultMetrics.BacktestDuration.WithLabelValues(strategyID).Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulBacktest.SetToCurrentTime()
	}
}

// RecordClassified increments the classified signal counter.
func RecordClassified(mode, outcome string) {
	DefaultMetrics.SignalsClassified.WithLabelValues(mode, outcome).Inc()
}

// RecordNotification records a notification attempt.
func RecordNotification(channel string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.NotificationsSent.WithLabelValues(channel, status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
