// Package models defines the core data types shared across the agent runtime:
// turns, sessions, envelopes, chunks, and tool/permission/audit records.
package models

import (
	"encoding/json"
	"time"
)

// TurnKind identifies which variant of Turn a record holds.
type TurnKind string

const (
	TurnUser       TurnKind = "user"
	TurnAssistant  TurnKind = "assistant"
	TurnToolCall   TurnKind = "tool_call"
	TurnToolResult TurnKind = "tool_result"
	TurnSystem     TurnKind = "system"
)

// ToolCall is an LLM-emitted request to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Turn is one entry in a session transcript. Exactly the fields for Kind are
// populated; the rest are left zero. Turns are appended, never rewritten.
type Turn struct {
	Kind    TurnKind  `json:"kind"`
	Content string    `json:"content,omitempty"`
	TS      time.Time `json:"ts"`

	// assistant only
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// tool_call only
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	ID        string          `json:"id,omitempty"`

	// tool_result only (ID above is reused as the tool_call.ID this result answers)
	ResultContent string `json:"result_content,omitempty"`
	OK            bool   `json:"ok,omitempty"`
}

// UserTurn constructs a user turn.
func UserTurn(content string, ts time.Time) Turn {
	return Turn{Kind: TurnUser, Content: content, TS: ts}
}

// AssistantTurn constructs an assistant turn, optionally carrying tool calls.
func AssistantTurn(content string, ts time.Time, calls ...ToolCall) Turn {
	return Turn{Kind: TurnAssistant, Content: content, TS: ts, ToolCalls: calls}
}

// ToolCallTurn constructs a tool_call turn.
func ToolCallTurn(id, name string, args json.RawMessage, ts time.Time) Turn {
	return Turn{Kind: TurnToolCall, ID: id, Name: name, Arguments: args, TS: ts}
}

// ToolResultTurn constructs a tool_result turn referencing an earlier tool_call.ID.
func ToolResultTurn(id, name, content string, ok bool, ts time.Time) Turn {
	return Turn{Kind: TurnToolResult, ID: id, Name: name, ResultContent: content, OK: ok, TS: ts}
}

// SystemTurn constructs a bootstrapping system turn.
func SystemTurn(content string, ts time.Time) Turn {
	return Turn{Kind: TurnSystem, Content: content, TS: ts}
}

// ChatMessage is a role-tagged message in the shape an LLM provider expects.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionSummary is the listing shape for sessions.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	TurnCount   int       `json:"turn_count"`
	LastTurnTS  time.Time `json:"last_turn_ts"`
	CreatedTS   time.Time `json:"created_ts"`
}
