package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/doorgate/internal/gateway"
)

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Events        gateway.Totals  `json:"events"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	MQTT          *MQTTMetrics    `json:"mqtt,omitempty"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics serves the Prometheus registry.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeNotFound(w, "metrics are not enabled")
		return
	}
	s.metrics.ServeHTTP(w, r)
}

// handleStats returns event totals with runtime and connection statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.events.Counts(r.Context())
	if err != nil {
		s.logger.Error("counting events failed", "error", err)
		writeInternalError(w, "failed to count events")
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := StatsResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Events:        totals,
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.mqtt != nil {
		resp.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		resp.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
