package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dinh2350/lunar/internal/observability"
	"github.com/dinh2350/lunar/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	shellToolTimeout   = 10 * time.Second
	defaultToolTimeout = 30 * time.Second
)

// Router is the unified dispatch point for every tool call the agent loop
// makes, builtin or MCP-remote alike (§4.E). Remote tools are registered
// under their mcp_{serverName}_{toolName} name by internal/mcp so the
// router never special-cases transport.
type Router struct {
	perms    *PermissionManager
	approval ApprovalCallback
	metrics  *observability.SampleStore
	audit    *observability.AuditLog

	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRouter builds a router against a permission table, an approval
// policy, and the process-wide metrics/audit stores.
func NewRouter(perms *PermissionManager, approval ApprovalCallback, metrics *observability.SampleStore, audit *observability.AuditLog) *Router {
	return &Router{
		perms:    perms,
		approval: approval,
		metrics:  metrics,
		audit:    audit,
		tools:    make(map[string]Tool),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register installs a tool (builtin or MCP-wrapped remote) under its name,
// compiling its parameters as a JSON Schema so Execute can validate call
// arguments before dispatch. A tool whose Parameters() fails to compile is
// still registered, just without argument-shape validation.
func (r *Router) Register(t Tool) {
	r.tools[t.Name()] = t
	if schema, err := jsonschema.CompileString(t.Name(), string(t.Parameters())); err == nil {
		r.schemas[t.Name()] = schema
	} else {
		delete(r.schemas, t.Name())
	}
}

// Definitions returns the tool catalog as models.ToolDefinition, for
// inclusion in a CompletionRequest.
func (r *Router) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for name, t := range r.tools {
		source := models.ToolSource{Builtin: true}
		if perm, ok := r.perms.Lookup(name); ok && perm.Description == "mcp" {
			source = models.ToolSource{Builtin: false}
		}
		defs = append(defs, models.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Source:      source,
		})
	}
	return defs
}

// Execute runs the §4.E dispatch pipeline for one tool call: lookup,
// quota, path/command validation, approval, timeout-bounded execution,
// then metrics and audit recording. It never panics and never returns an
// error for a denied call — the denial is reported inside the
// models.ToolResult so the agent loop can feed it back to the model.
func (r *Router) Execute(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	start := time.Now()

	tool, known := r.tools[call.Name]
	if !known {
		r.recordDenied(sessionID, call, "unknown tool")
		return r.deny(call, ErrToolNotFound.Error())
	}

	perm, hasPerm := r.perms.Lookup(call.Name)
	if !hasPerm {
		r.recordDenied(sessionID, call, "no permission configured")
		return r.deny(call, ErrPermissionDenied.Error())
	}

	if !r.perms.CheckAndIncrement(sessionID, call.Name, perm.MaxExecutions) {
		r.recordDenied(sessionID, call, "quota exceeded")
		return r.deny(call, "execution quota exceeded")
	}

	if reason := r.validateSchema(call.Name, call.Arguments); reason != "" {
		r.recordDenied(sessionID, call, reason)
		return r.deny(call, reason)
	}

	if reason := r.validateArgs(perm, call.Arguments); reason != "" {
		r.recordDenied(sessionID, call, reason)
		return r.deny(call, reason)
	}

	risk := classifyBuiltinRisk(perm)
	if perm.RequiresApproval && r.approval != nil {
		if !r.approval(call.Name, call.Arguments, risk) {
			r.recordDenied(sessionID, call, "not approved")
			return r.deny(call, "approval denied")
		}
	}

	timeout := defaultToolTimeout
	if perm.Level == models.PermissionExecute {
		timeout = shellToolTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan struct {
		out string
		err error
	}, 1)
	go func() {
		out, err := tool.Execute(execCtx, call.Arguments)
		resultCh <- struct {
			out string
			err error
		}{out, err}
	}()

	var (
		output string
		execErr error
	)
	select {
	case <-execCtx.Done():
		execErr = ErrToolTimeout
	case res := <-resultCh:
		output, execErr = res.out, res.err
	}

	duration := time.Since(start)
	r.metrics.Observe("tool."+call.Name+".duration_ms", float64(duration.Milliseconds()))

	result := models.ToolResult{Name: call.Name, DurationMs: duration.Milliseconds()}
	if execErr != nil {
		r.metrics.IncCounter("tool."+call.Name+".errors", 1)
		result.OK = false
		result.Reason = execErr.Error()
		r.audit.Record(models.AuditEntry{Tool: call.Name, Args: string(call.Arguments), Allowed: true, Reason: execErr.Error(), UserID: sessionID})
		return result
	}

	r.metrics.IncCounter("tool."+call.Name+".success", 1)
	result.OK = true
	result.Result = output
	r.audit.Record(models.AuditEntry{Tool: call.Name, Args: string(call.Arguments), Allowed: true, UserID: sessionID})
	return result
}

func (r *Router) recordDenied(sessionID string, call models.ToolCall, reason string) {
	r.metrics.IncCounter("tool."+call.Name+".denied", 1)
	r.audit.Record(models.AuditEntry{Tool: call.Name, Args: string(call.Arguments), Allowed: false, Reason: reason, UserID: sessionID})
}

func (r *Router) deny(call models.ToolCall, reason string) models.ToolResult {
	return models.ToolResult{Name: call.Name, OK: false, Reason: reason}
}

// validateSchema checks call arguments against the tool's own parameters
// JSON Schema, compiled at Register time. A tool with no compiled schema
// (compile failure, or none registered) skips this step.
func (r *Router) validateSchema(toolName string, args json.RawMessage) string {
	schema, ok := r.schemas[toolName]
	if !ok {
		return ""
	}
	var payload any
	if len(args) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(args, &payload); err != nil {
		return "invalid arguments: " + err.Error()
	}
	if err := schema.Validate(payload); err != nil {
		return "arguments do not match tool schema: " + err.Error()
	}
	return ""
}

// validateArgs inspects the call arguments for well-known "path" and
// "command" fields and applies the corresponding §4.E step-3 validation
// when present. Tools with neither field (e.g. pure computation) skip
// validation entirely.
func (r *Router) validateArgs(perm models.Permission, args json.RawMessage) string {
	var fields struct {
		Path    string `json:"path"`
		Command string `json:"command"`
	}
	if len(args) == 0 {
		return ""
	}
	if err := json.Unmarshal(args, &fields); err != nil {
		return ""
	}
	if fields.Path != "" {
		if err := ValidatePath(perm, fields.Path); err != nil {
			return err.Error()
		}
	}
	if fields.Command != "" {
		if err := ValidateCommand(perm, fields.Command); err != nil {
			return err.Error()
		}
	}
	return ""
}
