package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"

	"github.com/dinh2350/lunar/pkg/models"
)

type fakeBotClient struct {
	sent     []*bot.SendMessageParams
	sendErr  error
	getMeErr error
	started  chan struct{}
}

func (f *fakeBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botmodels.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return &botmodels.Message{}, nil
}

func (f *fakeBotClient) GetMe(ctx context.Context) (*botmodels.User, error) {
	if f.getMeErr != nil {
		return nil, f.getMeErr
	}
	return &botmodels.User{ID: 1}, nil
}

func (f *fakeBotClient) Start(ctx context.Context) {
	if f.started != nil {
		close(f.started)
	}
	<-ctx.Done()
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeBotClient) {
	t.Helper()
	a, err := NewAdapter(Config{Token: "test-token"})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	client := &fakeBotClient{started: make(chan struct{})}
	a.SetBotClient(client)
	return a, client
}

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(Config{}); err == nil {
		t.Fatalf("expected an error for a missing token")
	}
}

func TestAdapterProviderIsTelegram(t *testing.T) {
	a, _ := newTestAdapter(t)
	if a.Provider() != "telegram" {
		t.Fatalf("Provider() = %q", a.Provider())
	}
}

func TestHandleUpdateProducesEnvelope(t *testing.T) {
	a, _ := newTestAdapter(t)

	update := &botmodels.Update{
		Message: &botmodels.Message{
			Date: int(time.Now().Unix()),
			Chat: botmodels.Chat{ID: 42, Type: "private"},
			Text: "hello there",
		},
	}
	a.handleUpdate(context.Background(), nil, update)

	select {
	case env := <-a.Envelopes():
		if env.Provider != "telegram" || env.PeerID != "42" || env.Text != "hello there" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
		if env.ChatType != models.ChatDirect {
			t.Fatalf("expected direct chat type, got %v", env.ChatType)
		}
	default:
		t.Fatalf("expected an envelope to be emitted")
	}
}

func TestHandleUpdateGroupChat(t *testing.T) {
	a, _ := newTestAdapter(t)
	update := &botmodels.Update{
		Message: &botmodels.Message{
			Chat: botmodels.Chat{ID: 7, Type: "group"},
			Text: "hi all",
		},
	}
	a.handleUpdate(context.Background(), nil, update)

	env := <-a.Envelopes()
	if env.ChatType != models.ChatGroup {
		t.Fatalf("expected group chat type, got %v", env.ChatType)
	}
}

func TestHandleUpdateIgnoresNonMessageUpdates(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.handleUpdate(context.Background(), nil, &botmodels.Update{})

	select {
	case env := <-a.Envelopes():
		t.Fatalf("expected no envelope, got %+v", env)
	default:
	}
}

func TestSendParsesChatIDAndDelivers(t *testing.T) {
	a, client := newTestAdapter(t)
	if err := a.Send(context.Background(), models.Envelope{PeerID: "99"}, "pong"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(client.sent) != 1 || client.sent[0].ChatID != int64(99) || client.sent[0].Text != "pong" {
		t.Fatalf("unexpected sent params: %+v", client.sent)
	}
}

func TestSendInvalidPeerID(t *testing.T) {
	a, _ := newTestAdapter(t)
	if err := a.Send(context.Background(), models.Envelope{PeerID: "not-a-number"}, "pong"); err == nil {
		t.Fatalf("expected an error for a non-numeric peer id")
	}
}

func TestStartAndStop(t *testing.T) {
	a, client := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-client.started:
	case <-time.After(time.Second):
		t.Fatalf("expected the poll loop to start")
	}
	if !a.Status().Connected {
		t.Fatalf("expected Status().Connected after Start")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartFailsWhenGetMeErrors(t *testing.T) {
	a, client := newTestAdapter(t)
	client.getMeErr = errors.New("unauthorized")

	if err := a.Start(context.Background()); err == nil {
		t.Fatalf("expected Start to fail when GetMe errors")
	}
	if a.Status().Connected {
		t.Fatalf("expected Status().Connected to be false after a failed Start")
	}
}
