// Package metrics exposes Prometheus metrics and a health endpoint for the
// bot process.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	QuotePollsTotal   prometheus.Counter
	QuotePollFailures prometheus.Counter
	TicksTotal        prometheus.Counter

	CandlesFinalized    prometheus.Counter
	CandlesInterpolated prometheus.Counter
	CandlesDropped      prometheus.Counter
	SignalSets          prometheus.Counter
	StoreAppendDur      prometheus.Histogram

	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	PositionsOpened  prometheus.Counter
	PositionsSettled prometheus.Counter
	PositionsVoided  prometheus.Counter
	OrderRetries     prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		QuotePollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_quote_polls_total",
			Help: "Total batched quote polls against the exchange",
		}),
		QuotePollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_quote_poll_failures_total",
			Help: "Quote polls that failed or returned no data",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Total price ticks applied to accumulators",
		}),
		CandlesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_candles_finalized_total",
			Help: "Total 1m candles finalized from live ticks",
		}),
		CandlesInterpolated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_candles_interpolated_total",
			Help: "Tick-less minutes filled from the previous candle",
		}),
		CandlesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_candles_dropped_total",
			Help: "Tick-less minutes dropped (interpolation disabled or no prior candle)",
		}),
		SignalSets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_signal_sets_total",
			Help: "Candle-close signals raised to strategy lanes",
		}),
		StoreAppendDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_store_append_duration_seconds",
			Help:    "CSV candle store append latency (including fsync)",
			Buckets: prometheus.DefBuckets,
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_fanout_drops_total",
			Help: "Candles dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_positions_opened_total",
			Help: "Position entries accepted past validation",
		}),
		PositionsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_positions_settled_total",
			Help: "Positions that reached the settled terminal state",
		}),
		PositionsVoided: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_positions_voided_total",
			Help: "Positions that reached the voided terminal state",
		}),
		OrderRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_order_retries_total",
			Help: "Order submission and fill-wait retries",
		}),
	}

	prometheus.MustRegister(
		m.QuotePollsTotal,
		m.QuotePollFailures,
		m.TicksTotal,
		m.CandlesFinalized,
		m.CandlesInterpolated,
		m.CandlesDropped,
		m.SignalSets,
		m.StoreAppendDur,
		m.FanoutDropsTotal,
		m.PositionsOpened,
		m.PositionsSettled,
		m.PositionsVoided,
		m.OrderRetries,
	)

	return m
}

// HealthStatus represents process health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	LastQuoteTime  time.Time
	RedisConnected bool
	RedisEnabled   bool
	SQLiteOK       bool
	SQLiteEnabled  bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetLastQuoteTime(t time.Time) {
	h.mu.Lock()
	h.LastQuoteTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes until ctx ends.
// Either dependency may be nil when the feature is disabled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	// Degraded when quotes stall or an enabled dependency is unreachable.
	quoteAge := time.Duration(0)
	if !h.LastQuoteTime.IsZero() {
		quoteAge = time.Since(h.LastQuoteTime)
	}
	if quoteAge > time.Minute || (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastQuoteTime   string  `json:"last_quote_time"`
		QuoteAge        string  `json:"quote_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastQuoteTime:   h.LastQuoteTime.Format(time.RFC3339),
		QuoteAge:        quoteAge.Round(time.Millisecond).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		mux:    mux,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// HandleFunc registers an additional route before Start (the bot mounts the
// WS feed here).
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
