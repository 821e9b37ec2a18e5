package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dinh2350/lunar/pkg/models"
)

type fakeAdapter struct {
	ConnStatus
	provider string
	envs     chan models.Envelope
	sent     []string
	startErr error
}

func (f *fakeAdapter) Provider() string                  { return f.provider }
func (f *fakeAdapter) Envelopes() <-chan models.Envelope { return f.envs }
func (f *fakeAdapter) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.MarkConnected()
	return nil
}
func (f *fakeAdapter) Stop(ctx context.Context) error { return nil }
func (f *fakeAdapter) Send(ctx context.Context, env models.Envelope, reply string) error {
	f.sent = append(f.sent, reply)
	return nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{provider: "telegram", envs: make(chan models.Envelope, 1)}
	reg.Register(a)

	got, ok := reg.Get("telegram")
	if !ok || got.Provider() != "telegram" {
		t.Fatalf("expected to find the registered adapter")
	}
	if _, ok := reg.Get("slack"); ok {
		t.Fatalf("unregistered provider should not be found")
	}

	out, ok := reg.Outbound("telegram")
	if !ok {
		t.Fatalf("expected outbound adapter")
	}
	if err := out.Send(context.Background(), models.Envelope{}, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.sent) != 1 || a.sent[0] != "hi" {
		t.Fatalf("unexpected sent messages: %v", a.sent)
	}
}

func TestRegistryStartAllPropagatesError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{provider: "telegram", envs: make(chan models.Envelope), startErr: errors.New("boom")})

	if err := reg.StartAll(context.Background()); err == nil {
		t.Fatalf("expected StartAll to propagate the adapter's error")
	}
}

func TestRegistryFanMergesEnvelopes(t *testing.T) {
	reg := NewRegistry()
	a1 := &fakeAdapter{provider: "telegram", envs: make(chan models.Envelope, 2)}
	a2 := &fakeAdapter{provider: "websocket", envs: make(chan models.Envelope, 2)}
	reg.Register(a1)
	reg.Register(a2)

	a1.envs <- models.Envelope{Provider: "telegram", Text: "hello"}
	a2.envs <- models.Envelope{Provider: "websocket", Text: "world"}
	close(a1.envs)
	close(a2.envs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	merged := reg.Fan(ctx)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case env, ok := <-merged:
			if !ok {
				t.Fatalf("channel closed early")
			}
			seen[env.Text] = true
		case <-ctx.Done():
			t.Fatalf("timed out waiting for envelopes")
		}
	}
	if !seen["hello"] || !seen["world"] {
		t.Fatalf("expected both envelopes, got %v", seen)
	}
}

func TestRegistryHealthStatuses(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{provider: "telegram", envs: make(chan models.Envelope)}
	reg.Register(a)
	_ = a.Start(context.Background())

	statuses := reg.HealthStatuses()
	st, ok := statuses["telegram"]
	if !ok || !st.Connected {
		t.Fatalf("expected connected status for telegram, got %+v", statuses)
	}
}
