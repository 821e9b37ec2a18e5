// Package gateway exposes the core agent loop over HTTP and WebSocket
// (§4.I) and wraps every turn in the safety pipeline (§4.D): input guards
// run before the loop, output guards run on the assistant's reply before
// it leaves the process.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/internal/observability"
	"github.com/dinh2350/lunar/internal/sessions"
)

// fallbackReply is returned to a channel in place of an input that the
// safety pipeline blocked, or an output the pipeline refused to let
// through (§4.D: "the core returns a safe fallback string ... the
// offending reply is never sent").
const fallbackReply = "I'm not able to help with that request."

// FallbackReply is the exported form of fallbackReply for callers outside
// this package (e.g. cmd/lunar's channel-connector fan-in) that need to
// substitute the same safe fallback text when a guard blocks a turn.
const FallbackReply = fallbackReply

// Server wires the session store, tool router, agent loop, and safety
// pipeline to the five endpoints named in §6: GET /api/health,
// POST /api/chat, GET /ws/chat, GET /api/metrics, GET /api/metrics/health.
type Server struct {
	AgentName string
	Model     string
	System    string

	Loop        *agent.Loop
	Sessions    *sessions.Store
	Metrics     *observability.SampleStore
	Audit       *observability.AuditLog
	PromMetrics *observability.Metrics
	Logger      *slog.Logger

	startTime time.Time
}

// NewServer builds a gateway server around an already-constructed agent
// loop and its supporting stores. Construction order follows §9: the loop
// (and everything it closes over) is built first; the server is the
// outermost layer. promMetrics may be nil, in which case the Prometheus
// side of metrics recording is skipped; /metrics still serves the default
// Prometheus registry, without any lunar_ series recorded by this server.
func NewServer(agentName, model, system string, loop *agent.Loop, store *sessions.Store, metrics *observability.SampleStore, audit *observability.AuditLog, promMetrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		AgentName:   agentName,
		Model:       model,
		System:      system,
		Loop:        loop,
		Sessions:    store,
		Metrics:     metrics,
		Audit:       audit,
		PromMetrics: promMetrics,
		Logger:      logger.With("component", "gateway"),
		startTime:   time.Now(),
	}
}

// Mount registers the gateway's handlers on mux, including a Prometheus
// exposition endpoint mirroring the in-memory SampleStore (§4.J) alongside
// the spec-mandated JSON GET /api/metrics.
func (s *Server) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /ws/chat", s.handleWSChat)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/metrics/health", s.handleMetricsHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.startTime)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agent":  s.AgentName,
		"model":  s.Model,
		"uptime": s.uptime().Seconds(),
	})
}

type chatRequest struct {
	Message     string   `json:"message"`
	SessionID   string   `json:"sessionId"`
	Attachments []string `json:"attachments,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = sessions.Resolve("http", uuid.NewString(), s.AgentName)
	}

	reply, blockedReason := s.runTurn(r.Context(), sessionID, req.Message)
	if blockedReason != "" {
		s.Logger.Warn("chat turn blocked", "session", sessionID, "reason", blockedReason)
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply, SessionID: sessionID})
}

// runTurn runs the full §4.D -> §4.G -> §4.D pipeline for one user
// message and returns the text to deliver to the caller, plus a non-empty
// blockedReason when either guard pass substituted the fallback reply.
func (s *Server) runTurn(ctx context.Context, sessionID, message string) (reply string, blockedReason string) {
	in := InputPipeline().Run(message)
	if in.Blocked {
		s.recordGuardBlocked("input", in.Reason)
		return fallbackReply, in.Reason
	}

	s.recordSessionStarted("http")
	defer s.recordSessionEnded("http")

	start := time.Now()
	s.recordLLMCall()
	text, err := s.Loop.Run(ctx, sessionID, message, s.Loop.Router.Definitions(), nil)
	if err != nil {
		s.recordLLMError(start, err)
		s.Logger.Error("agent loop failed", "session", sessionID, "error", err)
		return fallbackReply, err.Error()
	}
	s.recordLLMSuccess(start)

	out := OutputPipeline(s.System).Run(text)
	if out.Blocked {
		s.recordGuardBlocked("output", out.Reason)
		return fallbackReply, out.Reason
	}
	return text, ""
}

func (s *Server) recordLLMCall() {
	if s.Metrics != nil {
		s.Metrics.IncCounter("llm_calls_total", 1)
	}
}

func (s *Server) recordLLMSuccess(start time.Time) {
	if s.Metrics != nil {
		s.Metrics.Observe("llm_call_duration_ms", float64(time.Since(start).Milliseconds()))
	}
	if s.PromMetrics != nil {
		s.PromMetrics.RecordLLMRequest(s.provider(), s.Model, "success", time.Since(start).Seconds())
	}
}

func (s *Server) recordLLMError(start time.Time, err error) {
	if s.Metrics != nil {
		s.Metrics.IncCounter("llm_errors_total", 1)
	}
	if s.PromMetrics != nil {
		s.PromMetrics.RecordLLMRequest(s.provider(), s.Model, "error", time.Since(start).Seconds())
		s.PromMetrics.RecordError("gateway", "llm_call_failed")
	}
}

func (s *Server) recordGuardBlocked(side, reason string) {
	if s.PromMetrics != nil {
		s.PromMetrics.RecordGuardBlocked(side, reason)
	}
}

func (s *Server) recordSessionStarted(channel string) {
	if s.PromMetrics != nil {
		s.PromMetrics.SessionStarted(channel)
	}
}

func (s *Server) recordSessionEnded(channel string) {
	if s.PromMetrics != nil {
		s.PromMetrics.SessionEnded(channel)
	}
}

func (s *Server) provider() string {
	if s.Loop == nil || s.Loop.Provider == nil {
		return "unknown"
	}
	return s.Loop.Provider.Name()
}

func memoryBytes() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}
