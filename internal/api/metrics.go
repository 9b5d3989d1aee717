package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/ingest"
	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// IngestStats is the response of GET /api/v1/ingest/stats.
type IngestStats struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Queue         message.Stats  `json:"queue"`
	Dispatcher    *ingest.Stats  `json:"dispatcher,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleIngestStats returns queue and worker pool counters. The same
// numbers are exported to Prometheus; this view is for quick checks.
func (s *Server) handleIngestStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := IngestStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Queue: s.queue.Stats(),
	}

	if s.dispatcher != nil {
		stats := s.dispatcher.Stats()
		resp.Dispatcher = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}
