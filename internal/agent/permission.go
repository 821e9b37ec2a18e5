package agent

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dinh2350/lunar/pkg/models"
)

// commandMetacharacters are shell chaining sequences rejected outright by
// path/command validation (§4.E step 3).
var commandMetacharacters = []string{";", "|", "`", "$(", "&&", "||"}

// PermissionManager holds the permission table and per-(session, tool)
// execution counters. Permissions live for the process lifetime.
type PermissionManager struct {
	mu          sync.Mutex
	permissions map[string]models.Permission
	counters    map[string]int // key: sessionID + "\x00" + toolName
}

// NewPermissionManager builds a manager from the configured permission
// table, keyed by tool name.
func NewPermissionManager(perms []models.Permission) *PermissionManager {
	table := make(map[string]models.Permission, len(perms))
	for _, p := range perms {
		table[p.ToolName] = p
	}
	return &PermissionManager{
		permissions: table,
		counters:    make(map[string]int),
	}
}

// Lookup returns the permission for a tool, or false if none is configured.
func (m *PermissionManager) Lookup(toolName string) (models.Permission, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permissions[toolName]
	return p, ok
}

// Set installs or replaces a tool's permission, e.g. from builtin defaults
// or MCP policy-default classification.
func (m *PermissionManager) Set(p models.Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions[p.ToolName] = p
}

// remoteReadOnlyVerbs and remoteDestructiveVerbs implement the remote-tool
// half of the policy defaults: a name containing a read-only verb
// auto-approves, a name containing a destructive verb is denied outright,
// everything else requires approval.
var remoteReadOnlyVerbs = []string{"search", "list", "read", "get", "fetch"}
var remoteDestructiveVerbs = []string{"drop", "delete_repo", "truncate"}

// DefaultBuiltinPermissions returns the policy-default permission table
// for the fixed set of builtin tools (spec.md §policy defaults): read-only
// builtins auto-approve, any write or exec builtin requires approval.
// workspace scopes the filesystem-touching tools' allowed paths.
func DefaultBuiltinPermissions(workspace string) []models.Permission {
	return []models.Permission{
		{ToolName: "time", Level: models.PermissionRead},
		{ToolName: "calculator", Level: models.PermissionRead},
		{ToolName: "memory_search", Level: models.PermissionRead},
		{ToolName: "read_file", Level: models.PermissionRead, AllowedPaths: []string{workspace}},
		{ToolName: "list_directory", Level: models.PermissionRead, AllowedPaths: []string{workspace}},
		{ToolName: "memory_write", Level: models.PermissionWrite, RequiresApproval: true, AllowedPaths: []string{workspace}},
	}
}

// ClassifyRemoteToolPermission applies the remote-tool verb-pattern policy
// default to an MCP tool name with no explicit configured permission. ok
// is false when the name matches a destructive pattern: the caller must
// not register any permission for it, so the router denies every call to
// it outright rather than ever offering it for approval.
func ClassifyRemoteToolPermission(toolName string) (perm models.Permission, ok bool) {
	lower := strings.ToLower(toolName)
	for _, verb := range remoteDestructiveVerbs {
		if strings.Contains(lower, verb) {
			return models.Permission{}, false
		}
	}
	for _, verb := range remoteReadOnlyVerbs {
		if strings.Contains(lower, verb) {
			return models.Permission{ToolName: toolName, Level: models.PermissionRead}, true
		}
	}
	return models.Permission{ToolName: toolName, Level: models.PermissionWrite, RequiresApproval: true}, true
}

func counterKey(sessionID, toolName string) string {
	return sessionID + "\x00" + toolName
}

// CheckAndIncrement enforces maxExecutions for (sessionID, toolName) and,
// if the call is allowed, increments the counter. A non-positive
// maxExecutions means "unbounded."
func (m *PermissionManager) CheckAndIncrement(sessionID, toolName string, maxExecutions int) bool {
	if maxExecutions <= 0 {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := counterKey(sessionID, toolName)
	if m.counters[key] >= maxExecutions {
		return false
	}
	m.counters[key]++
	return true
}

// ResetSession clears every execution counter for a session, per the
// explicit resetSession lifecycle operation in §3.
func (m *PermissionManager) ResetSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := sessionID + "\x00"
	for key := range m.counters {
		if strings.HasPrefix(key, prefix) {
			delete(m.counters, key)
		}
	}
}

// ValidatePath enforces the path half of §4.E step 3: no ".." component,
// and the resolved path must have one of the permission's allowed prefixes.
func ValidatePath(perm models.Permission, path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("agent: path traversal rejected: %s", path)
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("agent: cannot resolve path: %w", err)
	}
	if len(perm.AllowedPaths) == 0 {
		return fmt.Errorf("agent: no allowed paths configured for %s", perm.ToolName)
	}
	for _, allowed := range perm.AllowedPaths {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		if strings.HasPrefix(resolved, allowedAbs) {
			return nil
		}
	}
	return fmt.Errorf("agent: path %s not under an allowed prefix", resolved)
}

// ValidateCommand enforces the command half of §4.E step 3: no shell
// chaining metacharacters, and the first whitespace-delimited token must
// match an allowed prefix.
func ValidateCommand(perm models.Permission, command string) error {
	for _, meta := range commandMetacharacters {
		if strings.Contains(command, meta) {
			return fmt.Errorf("agent: command metacharacter %q rejected", meta)
		}
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("agent: empty command")
	}
	token := fields[0]
	for _, allowed := range perm.AllowedCommands {
		if token == allowed || strings.HasPrefix(token, allowed) {
			return nil
		}
	}
	return fmt.Errorf("agent: command %q does not match an allowed prefix", token)
}
