package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads one sample back from the registry; 0 when absent.
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			pairs := metric.GetLabel()
			for i := 0; i+1 < len(labels); i += 2 {
				found := false
				for _, p := range pairs {
					if p.GetName() == labels[i] && p.GetValue() == labels[i+1] {
						found = true
					}
				}
				if !found {
					continue next
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func count(t *testing.T, m *Metrics, name string) int {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

func TestObserverCounters(t *testing.T) {
	m := NewMetrics()
	m.OnPublish("1", 3)
	m.OnPublish("1", 0)
	m.OnDrop("1")

	assert.Equal(t, 2.0, value(t, m, "alertdesk_bus_published_total", "topic", "1"))
	assert.Equal(t, 3.0, value(t, m, "alertdesk_bus_delivered_total", "topic", "1"))
	assert.Equal(t, 1.0, value(t, m, "alertdesk_bus_dropped_total", "topic", "1"))
}

func TestSessionGauge(t *testing.T) {
	m := NewMetrics()
	m.SessionOpened("ws")
	m.SessionOpened("ws")
	m.SessionClosed("ws")
	m.SessionRejected("sse")

	assert.Equal(t, 1.0, value(t, m, "alertdesk_live_sessions", "transport", "ws"))
	assert.Equal(t, 1.0, value(t, m, "alertdesk_live_sessions_rejected_total", "transport", "sse"))
}

func TestSetAlertsReplacesPreviousValues(t *testing.T) {
	m := NewMetrics()
	m.SetAlerts(map[uint]map[string]int64{1: {"N": 2}, 2: {"A": 1}})
	m.SetAlerts(map[uint]map[string]int64{1: {"N": 5}})

	assert.Equal(t, 5.0, value(t, m, "alertdesk_alerts", "organization", "1", "state", "N"))
	assert.Equal(t, 1, count(t, m, "alertdesk_alerts"))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(MonitorMiddleware(m))
	r.GET("/api/alerts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/alerts/7", nil))
	assert.Equal(t, 1.0, value(t, m, "http_requests_total", "method", "GET", "path", "/api/alerts/:id", "status", "200"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}

func TestSystemMonitorHistory(t *testing.T) {
	sm := NewSystemMonitor(2)
	assert.Nil(t, sm.Latest())
	sm.Collect()
	sm.Collect()
	last := sm.Collect()

	assert.Len(t, sm.History(0), 2)
	assert.Same(t, last, sm.Latest())
	assert.Greater(t, last.Runtime.Goroutines, 0)
}
