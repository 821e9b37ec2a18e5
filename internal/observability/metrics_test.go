package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers on Prometheus's default registry, so the whole
// suite shares one instance rather than each subtest calling NewMetrics
// (which would panic on duplicate registration).
func TestMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("RecordLLMRequest", func(t *testing.T) {
		m.RecordLLMRequest("anthropic", "claude", "success", 0.25)
		got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude", "success"))
		if got != 1 {
			t.Fatalf("LLMRequestCounter = %v, want 1", got)
		}
	})

	t.Run("SessionGauge", func(t *testing.T) {
		m.SessionStarted("http")
		if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("http")); got != 1 {
			t.Fatalf("ActiveSessions after start = %v, want 1", got)
		}
		m.SessionEnded("http")
		if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("http")); got != 0 {
			t.Fatalf("ActiveSessions after end = %v, want 0", got)
		}
	})

	t.Run("GuardBlocked", func(t *testing.T) {
		m.RecordGuardBlocked("input", "pii detected")
		got := testutil.ToFloat64(m.GuardBlocked.WithLabelValues("input", "pii detected"))
		if got != 1 {
			t.Fatalf("GuardBlocked = %v, want 1", got)
		}
	})

	t.Run("RecordError", func(t *testing.T) {
		m.RecordError("gateway", "llm_call_failed")
		got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("gateway", "llm_call_failed"))
		if got != 1 {
			t.Fatalf("ErrorCounter = %v, want 1", got)
		}
	})
}
