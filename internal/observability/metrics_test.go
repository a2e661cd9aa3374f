package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// familyTotal sums every sample of a metric family on the monitor's
// registry. Histograms contribute their sample count.
func familyTotal(t *testing.T, m *Monitor, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		return total
	}
	return 0
}

func TestMonitor_ObserveRequestAggregates(t *testing.T) {
	t.Parallel()
	m := NewMonitor()

	m.ObserveRequest("GET", "/api/posts", 200, 100*time.Millisecond)
	m.ObserveRequest("GET", "/api/posts", 200, 200*time.Millisecond)
	m.ObserveRequest("POST", "/api/posts", 400, 50*time.Millisecond)
	m.ObserveRequest("GET", "/api/users/:id", 500, 10*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(4), snap.TotalRequests)
	assert.Equal(t, uint64(2), snap.TotalErrors)

	posts := snap.Routes["/api/posts"]
	assert.Equal(t, uint64(3), posts.Requests)
	assert.Equal(t, uint64(1), posts.Errors)
	assert.InDelta(t, float64(350)/3, posts.AvgLatencyMS, 0.01)

	users := snap.Routes["/api/users/:id"]
	assert.Equal(t, uint64(1), users.Requests)
	assert.Equal(t, uint64(1), users.Errors)

	assert.Equal(t, float64(4), familyTotal(t, m, "inkwell_http_requests_total"))
	assert.Equal(t, float64(2), familyTotal(t, m, "inkwell_http_errors_total"))
}

func TestMonitor_SlowThreshold(t *testing.T) {
	t.Parallel()
	m := NewMonitor()
	m.SetSlowThreshold(10 * time.Millisecond)

	m.ObserveRequest("GET", "/api/posts", 200, 5*time.Millisecond)
	m.ObserveRequest("GET", "/api/posts", 200, 20*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.TotalSlow)
	assert.Equal(t, uint64(1), snap.Routes["/api/posts"].Slow)
	assert.Equal(t, float64(1), familyTotal(t, m, "inkwell_http_slow_requests_total"))
}

func TestMonitor_WebSocketGauge(t *testing.T) {
	t.Parallel()
	m := NewMonitor()

	m.WebSocketOpened()
	m.WebSocketOpened()
	m.WebSocketClosed()

	assert.Equal(t, float64(1), familyTotal(t, m, "inkwell_websocket_connections"))
}

func TestMonitor_EventCounters(t *testing.T) {
	t.Parallel()
	m := NewMonitor()

	m.BackpressureDrop("events", "full")
	m.BackpressureDrop("events", "full")
	m.BackpressureDrop("events", "closed")
	m.RedisError("publish")
	m.CacheHit("post")
	m.CacheMiss("post")
	m.CacheMiss("user")

	assert.Equal(t, float64(3), familyTotal(t, m, "inkwell_websocket_backpressure_drops_total"))
	assert.Equal(t, float64(1), familyTotal(t, m, "inkwell_redis_errors_total"))
	assert.Equal(t, float64(1), familyTotal(t, m, "inkwell_cache_hits_total"))
	assert.Equal(t, float64(2), familyTotal(t, m, "inkwell_cache_misses_total"))
}

func TestMonitor_TrackQuery(t *testing.T) {
	t.Parallel()
	m := NewMonitor()

	done := m.TrackQuery("select", "posts")
	done()

	assert.Equal(t, float64(1), familyTotal(t, m, "inkwell_database_query_latency_seconds"))
}

func TestMonitor_ResetStartsFromZero(t *testing.T) {
	t.Parallel()
	m := NewMonitor()

	m.ObserveRequest("GET", "/api/posts", 200, time.Millisecond)
	m.WebSocketOpened()
	require.Equal(t, uint64(1), m.Snapshot().TotalRequests)

	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.TotalRequests)
	assert.Empty(t, snap.Routes)
	assert.Equal(t, float64(0), familyTotal(t, m, "inkwell_http_requests_total"))
	assert.Equal(t, float64(0), familyTotal(t, m, "inkwell_websocket_connections"))

	// The monitor keeps working after a reset.
	m.ObserveRequest("GET", "/api/posts", 200, time.Millisecond)
	assert.Equal(t, uint64(1), m.Snapshot().TotalRequests)
}
