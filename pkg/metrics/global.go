package metrics

import (
	"sync"
)

var (
	globalMetrics *Metrics
	mu            sync.RWMutex
)

// SetGlobal 设置全局指标实例
func SetGlobal(m *Metrics) {
	mu.Lock()
	defer mu.Unlock()
	globalMetrics = m
}

// Global returns the process metrics, or nil when metrics are disabled.
func Global() *Metrics {
	mu.RLock()
	defer mu.RUnlock()
	return globalMetrics
}
