package crawlers

import (
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 系统保留内存(字节)
	PageMemoryUsage     int64 // 单个页面平均内存消耗(字节)
}

// DefaultResourceMonitorConfig 默认配置: 保留1GB,每个页面按100MB估算
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 1024 * 1024 * 1024,
		PageMemoryUsage:     100 * 1024 * 1024,
	}
}

// ResourceMonitor 根据可用内存和CPU核数估算可同时打开的页面数
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 测试时替换
	availableMemory func() (uint64, error)
	cpuCount        func() int
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.PageMemoryUsage <= 0 {
		config.PageMemoryUsage = DefaultResourceMonitorConfig().PageMemoryUsage
	}
	return &ResourceMonitor{
		config: config,
		availableMemory: func() (uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.Available, nil
		},
		cpuCount: func() int {
			n, err := cpu.Counts(true)
			if err != nil || n < 1 {
				return runtime.NumCPU()
			}
			return n
		},
	}
}

// MaxPages 返回当前资源允许的页面上限
func (rm *ResourceMonitor) MaxPages() int {
	limit := rm.cpuCount() * 2

	available, err := rm.availableMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,仅按CPU核数限制")
		return max(limit, 1)
	}
	surplus := int64(available) - rm.config.SafetyReserveMemory
	byMemory := int(surplus / rm.config.PageMemoryUsage)
	return max(min(limit, byMemory), 1)
}

// CapPages 把请求的并发页面数限制在资源上限内
func (rm *ResourceMonitor) CapPages(requested int) int {
	limit := rm.MaxPages()
	if requested > limit {
		log.Warn().Msgf("可用资源不足,并发页面数从 %d 降至 %d", requested, limit)
		return limit
	}
	return requested
}
