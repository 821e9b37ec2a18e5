// Package cli implements the local CLI channel connector (§6): a
// read-eval-print loop over stdin/stdout with a fixed set of slash
// commands (`/temp`, `/model`, `/history`, `/clear`, `/system`, `/help`,
// `/tools`, `/sessions`, `exit`). Slash commands are handled here, never
// forwarded to the agent loop (§4.H).
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/internal/sessions"
	"github.com/dinh2350/lunar/pkg/models"
)

// REPL drives an interactive chat session against an agent.Loop, entirely
// in-process: no network hop, no channels.Registry involvement, since a
// CLI session has no background lifecycle to start/stop and nothing to
// fan in from other connectors.
type REPL struct {
	Loop     *agent.Loop
	Router   *agent.Router
	Sessions *sessions.Store
	AgentID  string

	sessionID string
	in        *bufio.Scanner
	out       io.Writer
}

// NewREPL builds a REPL reading from in and writing to out.
func NewREPL(loop *agent.Loop, router *agent.Router, store *sessions.Store, agentID string, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		Loop:      loop,
		Router:    router,
		Sessions:  store,
		AgentID:   agentID,
		sessionID: sessions.Resolve("cli", "local", agentID),
		in:        bufio.NewScanner(in),
		out:       out,
	}
}

// Run reads lines until `exit`, EOF, or ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "type a message, or /help for commands")
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		if strings.HasPrefix(line, "/") {
			r.handleCommand(ctx, line)
			continue
		}

		events := make(chan agent.StreamEvent, 16)
		go func() {
			for ev := range events {
				if ev.Text != "" {
					fmt.Fprint(r.out, ev.Text)
				}
			}
		}()
		reply, err := r.Loop.Run(ctx, r.sessionID, line, r.Router.Definitions(), events)
		close(events)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			continue
		}
		if reply != "" {
			fmt.Fprintln(r.out, reply)
		}
	}
}

func (r *REPL) handleCommand(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "/help":
		fmt.Fprintln(r.out, "/temp <0-2>      set sampling temperature")
		fmt.Fprintln(r.out, "/model <name>    set the model")
		fmt.Fprintln(r.out, "/system <text>   set the system prompt")
		fmt.Fprintln(r.out, "/history         show recent turns in this session")
		fmt.Fprintln(r.out, "/clear           start a fresh session")
		fmt.Fprintln(r.out, "/tools           list registered tools")
		fmt.Fprintln(r.out, "/sessions        list all sessions on disk")
		fmt.Fprintln(r.out, "/help            show this message")
		fmt.Fprintln(r.out, "exit             quit")

	case "/temp":
		if len(rest) != 1 {
			fmt.Fprintln(r.out, "usage: /temp <0-2>")
			return
		}
		v, err := strconv.ParseFloat(rest[0], 64)
		if err != nil || v < 0 || v > 2 {
			fmt.Fprintln(r.out, "temperature must be a number between 0 and 2")
			return
		}
		r.Loop.Temperature = v
		fmt.Fprintf(r.out, "temperature set to %v\n", v)

	case "/model":
		if len(rest) != 1 {
			fmt.Fprintln(r.out, "usage: /model <name>")
			return
		}
		r.Loop.Model = rest[0]
		fmt.Fprintf(r.out, "model set to %s\n", rest[0])

	case "/system":
		if len(rest) == 0 {
			fmt.Fprintln(r.out, "usage: /system <text>")
			return
		}
		r.Loop.System = strings.Join(rest, " ")
		fmt.Fprintln(r.out, "system prompt updated")

	case "/history":
		turns, err := r.Sessions.LoadRecent(r.sessionID, 20)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		if len(turns) == 0 {
			fmt.Fprintln(r.out, "(no turns yet)")
			return
		}
		for _, t := range turns {
			printTurn(r.out, t)
		}

	case "/clear":
		r.sessionID = sessions.Resolve("cli", strconv.FormatInt(nextSessionSuffix(), 10), r.AgentID)
		fmt.Fprintln(r.out, "started a new session")

	case "/tools":
		defs := r.Router.Definitions()
		if len(defs) == 0 {
			fmt.Fprintln(r.out, "(no tools registered)")
			return
		}
		for _, d := range defs {
			fmt.Fprintf(r.out, "%s — %s\n", d.Name, d.Description)
		}

	case "/sessions":
		summaries, err := r.Sessions.ListSessions()
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		if len(summaries) == 0 {
			fmt.Fprintln(r.out, "(no sessions on disk)")
			return
		}
		for _, s := range summaries {
			fmt.Fprintf(r.out, "%s  turns=%d  last=%s\n", s.SessionID, s.TurnCount, s.LastTurnTS.Format("2006-01-02 15:04:05"))
		}

	default:
		fmt.Fprintf(r.out, "unknown command %q; try /help\n", cmd)
	}
}

func printTurn(out io.Writer, t models.Turn) {
	switch t.Kind {
	case models.TurnUser:
		fmt.Fprintf(out, "user: %s\n", t.Content)
	case models.TurnAssistant:
		fmt.Fprintf(out, "assistant: %s\n", t.Content)
	case models.TurnToolCall:
		fmt.Fprintf(out, "tool_call[%s]: %s\n", t.Name, string(t.Arguments))
	case models.TurnToolResult:
		fmt.Fprintf(out, "tool_result: %s\n", t.ResultContent)
	default:
		fmt.Fprintf(out, "system: %s\n", t.Content)
	}
}

// nextSessionSuffix disambiguates successive /clear sessions within one
// process; it does not need to survive restarts.
var clearCounter int64

func nextSessionSuffix() int64 {
	clearCounter++
	return clearCounter
}
