package util

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo describes the host the relay runs on.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
	GoVersion    string `json:"go_version"`
}

// GetSystemInfo gathers static host information. Fields gopsutil cannot
// read are left empty.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}
	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}
	return info
}

// ResourceUsage is a point-in-time load sample.
type ResourceUsage struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	MemoryUsedMB     uint64  `json:"memory_used_mb"`
	ProcessRSSMB     uint64  `json:"process_rss_mb"`
	Goroutines       int     `json:"goroutines"`
	ProcessUptimeSec int64   `json:"process_uptime_sec"`
}

var processStart = time.Now()

// GetResourceUsage samples host CPU and memory plus this process's
// footprint.
func GetResourceUsage() (ResourceUsage, error) {
	usage := ResourceUsage{
		Goroutines:       runtime.NumGoroutine(),
		ProcessUptimeSec: int64(time.Since(processStart).Seconds()),
	}

	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return usage, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percentages) > 0 {
		usage.CPUPercent = percentages[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("failed to read memory usage: %w", err)
	}
	usage.MemoryPercent = memInfo.UsedPercent
	usage.MemoryUsedMB = memInfo.Used / (1024 * 1024)

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if rss, err := proc.MemoryInfo(); err == nil {
			usage.ProcessRSSMB = rss.RSS / (1024 * 1024)
		}
	}
	return usage, nil
}
