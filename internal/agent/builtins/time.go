// Package builtins implements the read-only and write builtin tools
// named in §4.E: time, calculator, memory_search, read_file,
// list_directory, and memory_write.
package builtins

import (
	"context"
	"encoding/json"
	"time"
)

// TimeTool reports the current time, optionally in a named location.
type TimeTool struct{}

func (TimeTool) Name() string        { return "time" }
func (TimeTool) Description() string { return "Returns the current date and time, optionally in a named IANA timezone." }

func (TimeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "timezone": {"type": "string", "description": "IANA timezone name, e.g. \"America/New_York\". Defaults to UTC."}
  }
}`)
}

func (TimeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		Timezone string `json:"timezone"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return "", err
		}
	}

	loc := time.UTC
	if input.Timezone != "" {
		l, err := time.LoadLocation(input.Timezone)
		if err != nil {
			return "", err
		}
		loc = l
	}
	return time.Now().In(loc).Format(time.RFC3339), nil
}
