package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"mediaforge/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	StartTime string            `json:"start_time"`
	Checks    map[string]string `json:"checks,omitempty"`
	Workers   *WorkerStats      `json:"workers,omitempty"`
}

// WorkerStats reports the transcode pool load.
type WorkerStats struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
}

var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// health reports liveness and the state of the record stores.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true
	check := func(name string, fn func() error) {
		if err := fn(); err != nil {
			logger.Warnf("Health check %s failed: %v", name, err)
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if h.Media != nil {
		check("media", h.Media.CheckHealth)
	}
	if h.Failures != nil {
		check("failures", h.Failures.CheckHealth)
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version,
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(startTime)),
		StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
		Checks:    checks,
	}
	if h.Jobs != nil {
		running, queued := h.Jobs.Stats()
		response.Workers = &WorkerStats{Running: running, Queued: queued}
	}
	status := http.StatusOK
	if !healthy {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
