package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/internal/observability"
	"github.com/dinh2350/lunar/internal/sessions"
	"github.com/dinh2350/lunar/pkg/models"
)

type fakeProvider struct{ reply string }

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req agent.CompletionRequest) (<-chan *agent.ResponseChunk, error) {
	ch := make(chan *agent.ResponseChunk, 1)
	ch <- &agent.ResponseChunk{Text: f.reply, Done: true}
	close(ch)
	return ch, nil
}

func newTestREPL(t *testing.T, in, out *bytes.Buffer) *REPL {
	t.Helper()
	store, err := sessions.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	perms := agent.NewPermissionManager(nil)
	router := agent.NewRouter(perms, agent.AutoApproveUpTo(models.RiskLow), observability.NewSampleStore(), observability.NewAuditLog())
	loop := agent.NewLoop(&fakeProvider{reply: "hi there"}, router, store)
	return NewREPL(loop, router, store, "lunar", in, out)
}

func TestREPLForwardsPlainMessageToLoop(t *testing.T) {
	in := bytes.NewBufferString("hello\nexit\n")
	out := &bytes.Buffer{}
	r := newTestREPL(t, in, out)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "hi there") {
		t.Fatalf("expected the loop's reply in output, got %q", out.String())
	}
}

func TestREPLSlashCommandsHandledLocally(t *testing.T) {
	in := bytes.NewBufferString("/temp 0.5\n/model gpt-5\n/tools\n/sessions\nexit\n")
	out := &bytes.Buffer{}
	r := newTestREPL(t, in, out)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Loop.Temperature != 0.5 {
		t.Fatalf("expected /temp to set Loop.Temperature, got %v", r.Loop.Temperature)
	}
	if r.Loop.Model != "gpt-5" {
		t.Fatalf("expected /model to set Loop.Model, got %q", r.Loop.Model)
	}
}

func TestREPLClearStartsNewSession(t *testing.T) {
	in := bytes.NewBufferString("/clear\nexit\n")
	out := &bytes.Buffer{}
	r := newTestREPL(t, in, out)
	before := r.sessionID

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.sessionID == before {
		t.Fatalf("expected /clear to change the session id")
	}
}

func TestREPLUnknownCommand(t *testing.T) {
	in := bytes.NewBufferString("/bogus\nexit\n")
	out := &bytes.Buffer{}
	r := newTestREPL(t, in, out)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("expected an unknown-command message, got %q", out.String())
	}
}
