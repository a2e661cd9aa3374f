package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultSlowThreshold marks requests counted as slow by the monitor.
const DefaultSlowThreshold = 500 * time.Millisecond

// Monitor owns the application's request, database and cache
// instruments. It is constructed explicitly and injected where needed,
// with every Prometheus collector registered on its own registry, so a
// test can create a fresh Monitor (or call Reset) and assert counters
// deterministically. Nothing here is package-level mutable state.
type Monitor struct {
	mu            sync.Mutex
	started       time.Time
	slowThreshold time.Duration
	routes        map[string]*routeCounters

	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	slowRequests     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	dbQueryLatency   *prometheus.HistogramVec
	activeWebSockets prometheus.Gauge
	wsDrops          *prometheus.CounterVec
	redisErrors      *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
}

type routeCounters struct {
	requests     uint64
	errors       uint64
	slow         uint64
	totalLatency time.Duration
}

// RouteSnapshot is the per-route view served by the metrics summary.
type RouteSnapshot struct {
	Requests     uint64  `json:"requests"`
	Errors       uint64  `json:"errors"`
	Slow         uint64  `json:"slow"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Snapshot is a point-in-time copy of the monitor's counters.
type Snapshot struct {
	UptimeSeconds float64                  `json:"uptime_seconds"`
	TotalRequests uint64                   `json:"total_requests"`
	TotalErrors   uint64                   `json:"total_errors"`
	TotalSlow     uint64                   `json:"total_slow"`
	Routes        map[string]RouteSnapshot `json:"routes"`
}

// NewMonitor creates a Monitor with its own Prometheus registry.
func NewMonitor() *Monitor {
	m := &Monitor{slowThreshold: DefaultSlowThreshold}
	m.init()
	return m
}

func (m *Monitor) init() {
	m.started = time.Now()
	m.routes = make(map[string]*routeCounters)
	m.registry = prometheus.NewRegistry()
	factory := promauto.With(m.registry)

	m.requestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_http_requests_total",
		Help: "Total HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	m.requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkwell_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	m.slowRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_http_slow_requests_total",
		Help: "Requests slower than the monitor's slow threshold",
	}, []string{"route"})

	m.errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_http_errors_total",
		Help: "Requests answered with a 4xx or 5xx status",
	}, []string{"route", "status"})

	m.dbQueryLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkwell_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	m.activeWebSockets = factory.NewGauge(prometheus.GaugeOpts{
		Name: "inkwell_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	m.wsDrops = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_websocket_backpressure_drops_total",
		Help: "WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	m.redisErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_redis_errors_total",
		Help: "Redis errors by operation",
	}, []string{"operation"})

	m.cacheHits = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_cache_hits_total",
		Help: "Cache hits by resource",
	}, []string{"resource"})

	m.cacheMisses = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_cache_misses_total",
		Help: "Cache misses by resource",
	}, []string{"resource"})
}

// SetSlowThreshold overrides the slow-request threshold (tests mostly).
func (m *Monitor) SetSlowThreshold(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowThreshold = d
}

// Registry exposes the monitor's collectors for scraping.
func (m *Monitor) Registry() *prometheus.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry
}

// ObserveRequest records one handled request.
func (m *Monitor) ObserveRequest(method, route string, status int, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rc, ok := m.routes[route]
	if !ok {
		rc = &routeCounters{}
		m.routes[route] = rc
	}
	rc.requests++
	rc.totalLatency += latency

	statusLabel := statusText(status)
	m.requestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(latency.Seconds())

	if status >= 400 {
		rc.errors++
		m.errorsTotal.WithLabelValues(route, statusLabel).Inc()
	}
	if latency > m.slowThreshold {
		rc.slow++
		m.slowRequests.WithLabelValues(route).Inc()
	}
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *Monitor) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.dbQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// WebSocketOpened increments the live connection gauge.
func (m *Monitor) WebSocketOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeWebSockets.Inc()
}

// WebSocketClosed decrements the live connection gauge.
func (m *Monitor) WebSocketClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeWebSockets.Dec()
}

// BackpressureDrop records a message dropped because a client's send
// buffer was full or closed.
func (m *Monitor) BackpressureDrop(hub, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsDrops.WithLabelValues(hub, reason).Inc()
}

// RedisError records a failed Redis command.
func (m *Monitor) RedisError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redisErrors.WithLabelValues(operation).Inc()
}

// CacheHit records a cache-aside hit for the resource.
func (m *Monitor) CacheHit(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits.WithLabelValues(resource).Inc()
}

// CacheMiss records a cache-aside miss for the resource.
func (m *Monitor) CacheMiss(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses.WithLabelValues(resource).Inc()
}

// Snapshot copies the current counters for the summary endpoint.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(m.started).Seconds(),
		Routes:        make(map[string]RouteSnapshot, len(m.routes)),
	}
	for route, rc := range m.routes {
		rs := RouteSnapshot{
			Requests: rc.requests,
			Errors:   rc.errors,
			Slow:     rc.slow,
		}
		if rc.requests > 0 {
			rs.AvgLatencyMS = float64(rc.totalLatency.Milliseconds()) / float64(rc.requests)
		}
		snap.Routes[route] = rs
		snap.TotalRequests += rc.requests
		snap.TotalErrors += rc.errors
		snap.TotalSlow += rc.slow
	}
	return snap
}

// Reset discards all counters and re-registers fresh collectors. Tests
// rely on this to start from zero without process restarts.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
}

func statusText(status int) string {
	// Small fixed set keeps label cardinality down
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
