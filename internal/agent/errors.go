package agent

import "errors"

// Sentinel errors per the ambient error-handling stack (§10.3): typed,
// comparable with errors.Is, never stringly-matched.
var (
	ErrToolNotFound     = errors.New("agent: tool not found")
	ErrPermissionDenied = errors.New("agent: permission denied")
	ErrToolTimeout      = errors.New("agent: tool execution timed out")
	ErrMaxIterations    = errors.New("agent: max iterations reached")
)
