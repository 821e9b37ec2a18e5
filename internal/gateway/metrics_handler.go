package gateway

import (
	"math"
	"net/http"
)

// degradedErrorRateThreshold is the llm_errors_total / llm_calls_total
// ratio at or above which GET /api/metrics/health reports "degraded" (§6).
const degradedErrorRateThreshold = 0.05

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"counters":   map[string]float64{},
			"gauges":     map[string]float64{},
			"histograms": map[string]any{},
		})
		return
	}
	counters, gauges, histograms := s.Metrics.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	})
}

func (s *Server) handleMetricsHealth(w http.ResponseWriter, r *http.Request) {
	var calls, errs, latency float64
	if s.Metrics != nil {
		calls = s.Metrics.Counter("llm_calls_total")
		errs = s.Metrics.Counter("llm_errors_total")
		_, _, histograms := s.Metrics.Snapshot()
		if h, ok := histograms["llm_call_duration_ms"]; ok {
			latency = h.Avg
		}
	}

	errorRate := errs / math.Max(calls, 1)
	status := "healthy"
	if errorRate >= degradedErrorRateThreshold {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"latency":   latency,
		"errorRate": errorRate,
		"uptime":    s.uptime().Seconds(),
		"memory":    memoryBytes(),
	})
}
