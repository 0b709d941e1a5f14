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

// Metrics holds all Prometheus metrics for the order bridge.
type Metrics struct {
	SignalsTotal   *prometheus.CounterVec // labels: outcome
	OrdersTotal    *prometheus.CounterVec // labels: broker, side, status
	DecideDur      prometheus.Histogram
	GatewayCallDur *prometheus.HistogramVec // labels: broker, op
	ResolveErrors  prometheus.Counter
	DedupDrops     prometheus.Counter
	Reconciles     prometheus.Counter
	OpenPositions  prometheus.Gauge
	StreamEvents   prometheus.Counter
	StreamRedials  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_signals_total",
			Help: "Processed signals by terminal outcome",
		}, []string{"outcome"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_orders_total",
			Help: "Orders placed by broker, side and status",
		}, []string{"broker", "side", "status"}),
		DecideDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_decide_duration_seconds",
			Help:    "Full signal handling latency, receipt to terminal outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GatewayCallDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_gateway_call_duration_seconds",
			Help:    "Broker API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"broker", "op"}),
		ResolveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_resolve_errors_total",
			Help: "Signals dropped because the symbol could not be resolved",
		}),
		DedupDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_dedup_drops_total",
			Help: "Signals dropped inside the duplicate-delivery window",
		}),
		Reconciles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_reconciles_total",
			Help: "Ledger overwrites from live broker positions",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_open_positions",
			Help: "Instruments with a non-zero ledger position",
		}),
		StreamEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_order_stream_events_total",
			Help: "Order updates received on the broker stream",
		}),
		StreamRedials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_order_stream_redials_total",
			Help: "Order stream reconnection attempts",
		}),
	}

	prometheus.MustRegister(
		m.SignalsTotal,
		m.OrdersTotal,
		m.DecideDur,
		m.GatewayCallDur,
		m.ResolveErrors,
		m.DedupDrops,
		m.Reconciles,
		m.OpenPositions,
		m.StreamEvents,
		m.StreamRedials,
	)

	return m
}

// Signal counts one processed signal by terminal outcome.
func (m *Metrics) Signal(outcome string) {
	m.SignalsTotal.WithLabelValues(outcome).Inc()
}

// Order counts one placement attempt.
func (m *Metrics) Order(broker, side, status string) {
	m.OrdersTotal.WithLabelValues(broker, side, status).Inc()
}

// Duration observes the end-to-end handling latency for one signal.
func (m *Metrics) Duration(seconds float64) {
	m.DecideDur.Observe(seconds)
}

// ResolveError counts one signal dropped on symbol resolution.
func (m *Metrics) ResolveError() { m.ResolveErrors.Inc() }

// DedupDrop counts one duplicate delivery dropped inside the window.
func (m *Metrics) DedupDrop() { m.DedupDrops.Inc() }

// Reconciled counts one ledger overwrite from live positions.
func (m *Metrics) Reconciled() { m.Reconciles.Inc() }

// SetOpenPositions records the number of non-flat ledger entries.
func (m *Metrics) SetOpenPositions(n int) { m.OpenPositions.Set(float64(n)) }

// GatewayCall observes one broker API call.
func (m *Metrics) GatewayCall(broker, op string, seconds float64) {
	m.GatewayCallDur.WithLabelValues(broker, op).Observe(seconds)
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	RefdataLoaded  bool      `json:"refdata_loaded"`
	StreamUp       bool      `json:"stream_up"`
	Broker         string    `json:"broker"`
	LastSignalTime time.Time `json:"last_signal_time"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(broker string) *HealthStatus {
	return &HealthStatus{
		Broker:    broker,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRefdataLoaded(v bool) {
	h.mu.Lock()
	h.RefdataLoaded = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStreamUp(v bool) {
	h.mu.Lock()
	h.StreamUp = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSignalTime(t time.Time) {
	h.mu.Lock()
	h.LastSignalTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
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

	if !h.RedisConnected || !h.SQLiteOK || !h.RefdataLoaded {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	signalAge := ""
	if !h.LastSignalTime.IsZero() {
		signalAge = time.Since(h.LastSignalTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Broker          string  `json:"broker"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RefdataLoaded   bool    `json:"refdata_loaded"`
		StreamUp        bool    `json:"stream_up"`
		LastSignalTime  string  `json:"last_signal_time"`
		SignalAge       string  `json:"signal_age"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Broker:          h.Broker,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RefdataLoaded:   h.RefdataLoaded,
		StreamUp:        h.StreamUp,
		LastSignalTime:  h.LastSignalTime.Format(time.RFC3339),
		SignalAge:       signalAge,
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
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
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
