package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats 系统统计信息
type SystemStats struct {
	Timestamp time.Time    `json:"timestamp"`
	CPU       CPUStats     `json:"cpu"`
	Memory    MemoryStats  `json:"memory"`
	Disk      DiskStats    `json:"disk"`
	Process   ProcessStats `json:"process"`
	Runtime   RuntimeStats `json:"runtime"`
	Host      HostStats    `json:"host"`
}

// CPUStats CPU统计信息
type CPUStats struct {
	UsagePercent float64 `json:"usage_percent"`
	CountLogical int     `json:"count_logical"`
}

// MemoryStats 内存统计信息
type MemoryStats struct {
	Total        uint64  `json:"total"`
	Available    uint64  `json:"available"`
	Used         uint64  `json:"used"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskStats 磁盘统计信息
type DiskStats struct {
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	Free         uint64  `json:"free"`
	UsagePercent float64 `json:"usage_percent"`
}

// ProcessStats 当前进程
type ProcessStats struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
	Uptime     float64 `json:"uptime_hours"`
}

// RuntimeStats Go运行时统计
type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapInuse  uint64 `json:"heap_inuse"`
	NumGC      uint32 `json:"num_gc"`
}

// HostStats 主机信息
type HostStats struct {
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Uptime   uint64 `json:"uptime"`
}

// SystemMonitor keeps a bounded history of host snapshots. Collection is
// driven by the scheduler.
type SystemMonitor struct {
	mu       sync.RWMutex
	stats    []*SystemStats
	maxStats int
}

// NewSystemMonitor 创建系统监控器
func NewSystemMonitor(maxStats int) *SystemMonitor {
	if maxStats <= 0 {
		maxStats = 60
	}
	return &SystemMonitor{maxStats: maxStats}
}

// Collect takes a snapshot and appends it to the history.
func (sm *SystemMonitor) Collect() *SystemStats {
	stats := CollectSystemStats()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stats = append(sm.stats, stats)
	// 保持统计信息在合理范围内
	if len(sm.stats) > sm.maxStats {
		sm.stats = sm.stats[len(sm.stats)-sm.maxStats:]
	}
	return stats
}

// Latest 获取最新统计信息
func (sm *SystemMonitor) Latest() *SystemStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if len(sm.stats) == 0 {
		return nil
	}
	return sm.stats[len(sm.stats)-1]
}

// History returns up to limit snapshots, newest last.
func (sm *SystemMonitor) History(limit int) []*SystemStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if limit <= 0 || limit > len(sm.stats) {
		limit = len(sm.stats)
	}
	out := make([]*SystemStats, limit)
	copy(out, sm.stats[len(sm.stats)-limit:])
	return out
}

// CollectSystemStats reads one snapshot. Sources that fail are left zero.
func CollectSystemStats() *SystemStats {
	stats := &SystemStats{Timestamp: time.Now()}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		stats.CPU.UsagePercent = cpuPercent[0]
	}
	stats.CPU.CountLogical = runtime.NumCPU()

	if vmstat, err := mem.VirtualMemory(); err == nil {
		stats.Memory.Total = vmstat.Total
		stats.Memory.Available = vmstat.Available
		stats.Memory.Used = vmstat.Used
		stats.Memory.UsagePercent = vmstat.UsedPercent
	}

	if diskStat, err := disk.Usage("/"); err == nil {
		stats.Disk.Total = diskStat.Total
		stats.Disk.Used = diskStat.Used
		stats.Disk.Free = diskStat.Free
		stats.Disk.UsagePercent = diskStat.UsedPercent
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		stats.Process.PID = p.Pid
		if cpuPercent, err := p.CPUPercent(); err == nil {
			stats.Process.CPUPercent = cpuPercent
		}
		if memoryInfo, err := p.MemoryInfo(); err == nil {
			stats.Process.MemoryRSS = memoryInfo.RSS
		}
		if numThreads, err := p.NumThreads(); err == nil {
			stats.Process.NumThreads = numThreads
		}
		if createTime, err := p.CreateTime(); err == nil {
			stats.Process.Uptime = float64(time.Now().UnixMilli()-createTime) / float64(time.Hour/time.Millisecond) // 小时
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = m.HeapAlloc
	stats.Runtime.HeapInuse = m.HeapInuse
	stats.Runtime.NumGC = m.NumGC

	if hostInfo, err := host.Info(); err == nil {
		stats.Host.Hostname = hostInfo.Hostname
		stats.Host.Platform = hostInfo.Platform
		stats.Host.Uptime = hostInfo.Uptime
	}
	return stats
}
