package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const mb = 1024 * 1024

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 低于该可用内存时不再打开浏览器会话(字节)
	CPULoadThreshold    int   // CPU负载阈值(%),>=200 视为关闭CPU检查
	MaxTabsLimit        int   // 标签页绝对上限
	TabMemoryUsage      int64 // 单个标签页的估算内存(字节)
}

// ResourceMonitor 采样系统内存与CPU,决定浏览器会话能否打开以及标签页池大小
type ResourceMonitor struct {
	cfg         ResourceMonitorConfig
	totalMemory uint64

	mu        sync.RWMutex
	available int64   // 最近一次采样的可用内存
	cpuUsage  float64 // 最近一次采样的CPU使用率

	cancel context.CancelFunc
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(cfg ResourceMonitorConfig) *ResourceMonitor {
	if cfg.TabMemoryUsage <= 0 {
		cfg.TabMemoryUsage = 100 * mb
	}
	if cfg.MaxTabsLimit <= 0 {
		cfg.MaxTabsLimit = 4
	}

	var total uint64 = 4 * 1024 * mb
	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,按4GB估算")
	} else {
		total = vm.Total
	}
	log.Debug().Msgf("系统总内存: %.2f GB", float64(total)/(1024*mb))

	rm := &ResourceMonitor{cfg: cfg, totalMemory: total}
	rm.sample(false)
	return rm
}

// StartMonitoring 后台周期采样,重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rm.sample(true)
			}
		}
	}()
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancel != nil {
		rm.cancel()
		rm.cancel = nil
	}
}

// sample 读取系统可用内存(失败时退回 总内存-进程分配)和CPU使用率
func (rm *ResourceMonitor) sample(withCPU bool) {
	var available int64
	if vm, err := mem.VirtualMemory(); err == nil {
		available = int64(vm.Available)
	} else {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		available = int64(rm.totalMemory) - int64(ms.Alloc)
	}
	available -= rm.cfg.SafetyReserveMemory

	usage := 0.0
	if withCPU {
		if pcts, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pcts) > 0 {
			usage = pcts[0]
		}
	}

	rm.mu.Lock()
	rm.available = available
	if withCPU {
		rm.cpuUsage = usage
	}
	rm.mu.Unlock()
}

// CalculateMaxTabs 按可用内存、CPU核数和配置上限计算标签页上限,至少为1
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	rm.mu.RLock()
	available := rm.available
	rm.mu.RUnlock()

	result := 1
	if surplus := available - rm.cfg.SafetyThreshold; surplus > 0 {
		result = int(surplus / rm.cfg.TabMemoryUsage)
	}
	if n := runtime.NumCPU(); n < result {
		result = n
	}
	if rm.cfg.MaxTabsLimit < result {
		result = rm.cfg.MaxTabsLimit
	}
	if result < 1 {
		result = 1
	}
	return result
}

// CheckResourceAvailability 当前资源是否允许再打开一个浏览器会话
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	rm.mu.RLock()
	available := rm.available
	usage := rm.cpuUsage
	rm.mu.RUnlock()

	if available < rm.cfg.SafetyThreshold {
		log.Warn().Msgf("⚠️  可用内存不足(当前%dMB),跳过浏览器会话", available/mb)
		return false, fmt.Sprintf("内存不足(当前%dMB)", available/mb)
	}
	if rm.cfg.CPULoadThreshold < 200 && usage > float64(rm.cfg.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
	}
	return true, ""
}

// MemoryPressure 内存压力等级
func (rm *ResourceMonitor) MemoryPressure() string {
	rm.mu.RLock()
	availableMB := rm.available / mb
	rm.mu.RUnlock()

	switch {
	case availableMB < 200:
		return "emergency"
	case availableMB < 300:
		return "critical"
	case availableMB < 500:
		return "warning"
	default:
		return "normal"
	}
}
