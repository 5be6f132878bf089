package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标管理器
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	alertsIngestedTotal   *prometheus.CounterVec
	alertTransitionsTotal *prometheus.CounterVec
	alertsOpen            *prometheus.GaugeVec

	// 广播指标
	busPublishedTotal *prometheus.CounterVec
	busDeliveredTotal *prometheus.CounterVec
	busDroppedTotal   *prometheus.CounterVec

	// 实时连接指标
	liveSessions          *prometheus.GaugeVec
	liveSessionsRejected  *prometheus.CounterVec
	liveMessagesDelivered *prometheus.CounterVec

	// 系统指标
	systemMemoryUsage *prometheus.GaugeVec
	systemCPUUsage    prometheus.Gauge
	systemGoroutines  prometheus.Gauge
}

// NewMetrics registers every collector on a private registry so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		alertsIngestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertdesk_alerts_ingested_total",
				Help: "Alerts created, by ingestion source",
			},
			[]string{"source"},
		),

		alertTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertdesk_alert_transitions_total",
				Help: "Alert state changes, by target state and outcome",
			},
			[]string{"state", "result"},
		),

		alertsOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alertdesk_alerts",
				Help: "Alerts per organization and state",
			},
			[]string{"organization", "state"},
		),

		busPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertdesk_bus_published_total",
				Help: "Messages published per topic",
			},
			[]string{"topic"},
		),

		busDeliveredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertdesk_bus_delivered_total",
				Help: "Messages handed to subscribers per topic",
			},
			[]string{"topic"},
		),

		busDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertdesk_bus_dropped_total",
				Help: "Messages dropped because a subscriber buffer was full",
			},
			[]string{"topic"},
		),

		liveSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alertdesk_live_sessions",
				Help: "Live dashboard sessions currently joined",
			},
			[]string{"transport"},
		),

		liveSessionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertdesk_live_sessions_rejected_total",
				Help: "Live sessions refused at admission",
			},
			[]string{"transport"},
		),

		liveMessagesDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertdesk_live_messages_sent_total",
				Help: "Frames written to live sessions",
			},
			[]string{"transport"},
		),

		systemMemoryUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "system_memory_usage_bytes",
				Help: "System memory usage in bytes",
			},
			[]string{"type"},
		),

		systemCPUUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "system_cpu_usage_percent",
				Help: "System CPU usage percentage",
			},
		),

		systemGoroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "system_goroutines",
				Help: "Number of goroutines",
			},
		),
	}

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAlertIngested 记录新建警报
func (m *Metrics) RecordAlertIngested(source string) {
	m.alertsIngestedTotal.WithLabelValues(source).Inc()
}

// RecordTransition 记录状态变更结果
func (m *Metrics) RecordTransition(state string, ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.alertTransitionsTotal.WithLabelValues(state, result).Inc()
}

// SetAlerts replaces the per-organization alert gauge.
func (m *Metrics) SetAlerts(counts map[uint]map[string]int64) {
	m.alertsOpen.Reset()
	for org, byState := range counts {
		for state, n := range byState {
			m.alertsOpen.WithLabelValues(strconv.FormatUint(uint64(org), 10), state).Set(float64(n))
		}
	}
}

// OnPublish implements pubsub.Observer.
func (m *Metrics) OnPublish(topic string, delivered int) {
	m.busPublishedTotal.WithLabelValues(topic).Inc()
	m.busDeliveredTotal.WithLabelValues(topic).Add(float64(delivered))
}

// OnDrop implements pubsub.Observer.
func (m *Metrics) OnDrop(topic string) {
	m.busDroppedTotal.WithLabelValues(topic).Inc()
}

func (m *Metrics) SessionOpened(transport string) {
	m.liveSessions.WithLabelValues(transport).Inc()
}

func (m *Metrics) SessionClosed(transport string) {
	m.liveSessions.WithLabelValues(transport).Dec()
}

func (m *Metrics) SessionRejected(transport string) {
	m.liveSessionsRejected.WithLabelValues(transport).Inc()
}

func (m *Metrics) MessageSent(transport string) {
	m.liveMessagesDelivered.WithLabelValues(transport).Inc()
}

// SetSystemMemoryUsage 设置系统内存使用量
func (m *Metrics) SetSystemMemoryUsage(memoryType string, bytes uint64) {
	m.systemMemoryUsage.WithLabelValues(memoryType).Set(float64(bytes))
}

// SetSystemCPUUsage 设置系统CPU使用率
func (m *Metrics) SetSystemCPUUsage(percentage float64) {
	m.systemCPUUsage.Set(percentage)
}

// SetSystemGoroutines 设置goroutine数量
func (m *Metrics) SetSystemGoroutines(count int) {
	m.systemGoroutines.Set(float64(count))
}

// ObserveSystem copies a host snapshot into the gauges.
func (m *Metrics) ObserveSystem(stats *SystemStats) {
	if stats == nil {
		return
	}
	m.SetSystemCPUUsage(stats.CPU.UsagePercent)
	m.SetSystemMemoryUsage("used", stats.Memory.Used)
	m.SetSystemMemoryUsage("available", stats.Memory.Available)
	m.SetSystemMemoryUsage("heap_alloc", stats.Runtime.HeapAlloc)
	m.SetSystemGoroutines(stats.Runtime.Goroutines)
}
