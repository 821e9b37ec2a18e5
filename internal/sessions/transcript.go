// Package sessions implements the append-only per-session transcript store:
// sessionId resolution, durable appends, and replay into LLM-shaped messages.
package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dinh2350/lunar/pkg/models"
)

// Store is the transcript store described by the spec: resolve a stable
// sessionId, append turns durably, and replay history for the agent loop.
type Store struct {
	dir    string
	locker *SessionLocker
	logger *slog.Logger
}

// NewStore opens a transcript store rooted at dir (normally
// "{workspace}/sessions"). The directory is created if absent.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sessions: create dir: %w", err)
	}
	return &Store{
		dir:    dir,
		locker: NewSessionLocker(DefaultLockTimeout),
		logger: logger.With("component", "sessions"),
	}, nil
}

// Resolve derives the stable sessionId for a (provider, peerId, agentId)
// triple. Sessions are created lazily on first message; Resolve is pure.
func Resolve(provider, peerID, agentID string) string {
	return fmt.Sprintf("agent:%s:%s:%s", agentID, provider, peerID)
}

// safeFileName replaces reserved characters so sessionId can be used as a
// filename: ":" becomes "-" per the persistent state layout.
func safeFileName(sessionID string) string {
	return strings.ReplaceAll(sessionID, ":", "-")
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, safeFileName(sessionID)+".jsonl")
}

// AppendTurn appends one turn to the session's log. The write is fsynced
// before returning, so a successful call is durable.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	if err := s.locker.Lock(ctx, sessionID); err != nil {
		return err
	}
	defer s.locker.Unlock(sessionID)

	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("sessions: marshal turn: %w", err)
	}

	f, err := os.OpenFile(s.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sessions: open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("sessions: append turn: %w", err)
	}
	return f.Sync()
}

// LoadRecent replays the session's file and returns the last N non-system
// turns. A missing file returns an empty history, not an error. A corrupt
// line is skipped with a logged warning rather than failing the replay.
func (s *Store) LoadRecent(sessionID string, n int) ([]models.Turn, error) {
	f, err := os.Open(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: open transcript: %w", err)
	}
	defer f.Close()

	var turns []models.Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var turn models.Turn
		if err := json.Unmarshal(line, &turn); err != nil {
			s.logger.Warn("skipping corrupt transcript line", "session", sessionID, "line", lineNo, "error", err)
			continue
		}
		if turn.Kind == models.TurnSystem {
			continue
		}
		turns = append(turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sessions: scan transcript: %w", err)
	}

	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

// ListSessions enumerates the known sessions from the files on disk.
func (s *Store) ListSessions() ([]models.SessionSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sessions: list dir: %w", err)
	}

	var summaries []models.SessionSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sessionID := strings.TrimSuffix(e.Name(), ".jsonl")
		turns, err := s.LoadRecent(sessionID, 0)
		if err != nil {
			continue
		}
		summary := models.SessionSummary{
			SessionID: sessionID,
			TurnCount: len(turns),
			CreatedTS: info.ModTime(),
		}
		if len(turns) > 0 {
			summary.LastTurnTS = turns[len(turns)-1].TS
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ToMessages flattens turns into role-tagged messages suitable for an LLM
// call, in source order. A tool_call turn becomes an "assistant" message
// naming the call and its arguments; a tool_result turn becomes a "tool"
// role message carrying its result content.
func ToMessages(turns []models.Turn) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(turns))
	for _, t := range turns {
		switch t.Kind {
		case models.TurnUser:
			out = append(out, models.ChatMessage{Role: "user", Content: t.Content})
		case models.TurnAssistant:
			out = append(out, models.ChatMessage{Role: "assistant", Content: t.Content})
		case models.TurnToolCall:
			out = append(out, models.ChatMessage{
				Role:    "assistant",
				Content: fmt.Sprintf("[tool_call %s(%s)]", t.Name, string(t.Arguments)),
			})
		case models.TurnToolResult:
			out = append(out, models.ChatMessage{Role: "tool", Content: t.ResultContent})
		case models.TurnSystem:
			out = append(out, models.ChatMessage{Role: "system", Content: t.Content})
		}
	}
	return out
}
