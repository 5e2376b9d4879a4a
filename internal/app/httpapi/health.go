package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// healthReport is the /healthz payload.
type healthReport struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	MemUsedPct    float64 `json:"mem_used_pct,omitempty"`
	Load1         float64 `json:"load1,omitempty"`
}

// healthz reports liveness plus a coarse host snapshot. Host probes are best
// effort; their failure never fails the check.
func healthz(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(started).Seconds()),
			Goroutines:    runtime.NumGoroutine(),
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			report.MemUsedPct = vm.UsedPercent
		}
		if avg, err := load.Avg(); err == nil {
			report.Load1 = avg.Load1
		}
		writeJSON(w, http.StatusOK, report)
	}
}
