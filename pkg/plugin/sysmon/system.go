package sysmon

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	cload "github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPUCheck reports cpu usage and, where the platform provides it, the load
// averages. Args: perCore (bool, default false).
func CPUCheck(ctx context.Context, args any) (any, error) {
	perCore := boolArg(args, "perCore", false)

	usage, err := cpu.PercentWithContext(ctx, 0, perCore)
	if err != nil {
		return nil, fmt.Errorf("read cpu usage: %w", err)
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("count cpu cores: %w", err)
	}

	detail := map[string]any{
		"usagePercent": usage,
		"cores":        cores,
	}
	if avg, err := cload.AvgWithContext(ctx); err == nil {
		detail["load1"] = avg.Load1
		detail["load5"] = avg.Load5
		detail["load15"] = avg.Load15
	}
	return detail, nil
}

// MemCheck reports virtual memory usage.
func MemCheck(ctx context.Context, args any) (any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read virtual memory: %w", err)
	}
	return map[string]any{
		"totalBytes":     vm.Total,
		"availableBytes": vm.Available,
		"usedBytes":      vm.Used,
		"usedPercent":    vm.UsedPercent,
	}, nil
}

// DiskCheck reports filesystem usage. Args: path (string, default "/").
func DiskCheck(ctx context.Context, args any) (any, error) {
	path := stringArg(args, "path", "/")

	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read disk usage for %q: %w", path, err)
	}
	return map[string]any{
		"path":        usage.Path,
		"totalBytes":  usage.Total,
		"freeBytes":   usage.Free,
		"usedBytes":   usage.Used,
		"usedPercent": usage.UsedPercent,
	}, nil
}

// HostCheck reports host identity and uptime.
func HostCheck(ctx context.Context, args any) (any, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}
	return map[string]any{
		"hostname":        info.Hostname,
		"os":              info.OS,
		"platform":        info.Platform,
		"platformVersion": info.PlatformVersion,
		"kernelVersion":   info.KernelVersion,
		"uptimeSec":       info.Uptime,
		"procs":           info.Procs,
	}, nil
}
