package observability

import (
	"sync"
	"time"

	"github.com/dinh2350/lunar/pkg/models"
)

// auditCapacity is the bounded size of the in-memory audit log (§3, §4.J:
// "a ring buffer of the last ~1,000 tool-call decisions, independent of the
// per-session transcript").
const auditCapacity = 1000

// AuditLog is a fixed-capacity, oldest-evicted-first record of tool-call
// permission decisions, for /api/metrics/health and operator inspection.
// It is process-wide, not per-session.
type AuditLog struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	next    int
	full    bool
}

// NewAuditLog constructs an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{entries: make([]models.AuditEntry, auditCapacity)}
}

// Record appends an entry, evicting the oldest once the log is full.
func (a *AuditLog) Record(entry models.AuditEntry) {
	if entry.TS.IsZero() {
		entry.TS = time.Now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[a.next] = entry
	a.next = (a.next + 1) % auditCapacity
	if a.next == 0 {
		a.full = true
	}
}

// Recent returns up to n most-recent entries, newest first. n <= 0 returns
// everything retained.
func (a *AuditLog) Recent(n int) []models.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := a.next
	if a.full {
		count = auditCapacity
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]models.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (a.next - 1 - i + auditCapacity) % auditCapacity
		out = append(out, a.entries[idx])
	}
	return out
}
