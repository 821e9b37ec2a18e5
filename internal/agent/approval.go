package agent

import "github.com/dinh2350/lunar/pkg/models"

// ApprovalCallback decides whether a risky tool call may proceed. It is
// injectable so a channel (e.g. the CLI) can prompt a human, while the
// default gateway wiring auto-approves up to a configured risk threshold.
type ApprovalCallback func(tool string, args []byte, risk models.RiskLevel) bool

var riskOrder = map[models.RiskLevel]int{
	models.RiskLow:    0,
	models.RiskMedium: 1,
	models.RiskHigh:   2,
}

// AutoApproveUpTo returns a callback that approves any call at or below
// threshold and defers (denies) everything riskier.
func AutoApproveUpTo(threshold models.RiskLevel) ApprovalCallback {
	max := riskOrder[threshold]
	return func(tool string, args []byte, risk models.RiskLevel) bool {
		return riskOrder[risk] <= max
	}
}

// classifyBuiltinRisk assigns a risk level to a builtin tool call based on
// its permission level, used when no explicit risk is supplied.
func classifyBuiltinRisk(perm models.Permission) models.RiskLevel {
	switch perm.Level {
	case models.PermissionRead:
		return models.RiskLow
	case models.PermissionWrite:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}
