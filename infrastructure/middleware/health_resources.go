package middleware

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceStats reports host-level CPU and memory figures via gopsutil,
// supplementing RuntimeStats' Go-process-only view for the health surface.
func ResourceStats() map[string]interface{} {
	out := map[string]interface{}{}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		out["cpu_percent"] = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		out["mem_used_percent"] = vm.UsedPercent
		out["mem_total_mb"] = vm.Total / 1024 / 1024
	}

	return out
}
