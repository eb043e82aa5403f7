package api

import (
	"net/http"
	"time"

	"github.com/snarg/f1-transcriber/internal/scheduler"
)

// StatsSource reports scheduler state for the health endpoint.
type StatsSource interface {
	Stats() scheduler.Stats
}

type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Model         string          `json:"model"`
	Cooldown      string          `json:"cooldown"`
	Queue         scheduler.Stats `json:"queue"`
}

type HealthHandler struct {
	stats     StatsSource
	model     string
	cooldown  time.Duration
	version   string
	startTime time.Time
}

func NewHealthHandler(stats StatsSource, model string, cooldown time.Duration, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		stats:     stats,
		model:     model,
		cooldown:  cooldown,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Model:         h.model,
		Cooldown:      h.cooldown.String(),
		Queue:         h.stats.Stats(),
	})
}
