// Package telegram implements the Telegram-style polling channel
// connector (§6): a per-update long-polling loop that normalizes every
// incoming Telegram message into a models.Envelope.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"

	"github.com/dinh2350/lunar/internal/channels"
	"github.com/dinh2350/lunar/pkg/models"
)

const reconnectDelay = 5 * time.Second

// Config holds the Telegram adapter's configuration.
type Config struct {
	Token  string
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return channels.ErrConfig("token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Telegram: a long-polling
// loop that normalizes updates into models.Envelope and delivers replies
// back through the bot API.
type Adapter struct {
	config    Config
	botClient BotClient
	envelopes chan models.Envelope
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
	channels.ConnStatus
}

// NewAdapter validates config and builds an unstarted Telegram adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:    config,
		envelopes: make(chan models.Envelope, 100),
		logger:    config.Logger.With("adapter", "telegram"),
	}, nil
}

// SetBotClient overrides the bot client, for tests.
func (a *Adapter) SetBotClient(client BotClient) {
	a.botClient = client
}

// Provider identifies this adapter in a channels.Registry.
func (a *Adapter) Provider() string { return "telegram" }

// Envelopes exposes the normalized inbound stream.
func (a *Adapter) Envelopes() <-chan models.Envelope { return a.envelopes }

// Start connects to Telegram and begins the long-polling loop. The loop
// retries with a fixed delay on failure until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.botClient == nil {
		b, err := bot.New(a.config.Token, bot.WithDefaultHandler(a.handleUpdate))
		if err != nil {
			a.MarkError(err)
			return channels.ErrAuthentication("failed to create telegram bot", err)
		}
		a.botClient = newRealBotClient(b)
	}

	if _, err := a.botClient.GetMe(ctx); err != nil {
		a.MarkError(err)
		return channels.ErrAuthentication("failed to authenticate with telegram", err)
	}
	a.MarkConnected()

	a.wg.Add(1)
	go a.runWithReconnect(runCtx)
	return nil
}

func (a *Adapter) runWithReconnect(ctx context.Context) {
	defer a.wg.Done()
	defer close(a.envelopes)

	for {
		a.botClient.Start(ctx)
		if ctx.Err() != nil {
			return
		}
		a.MarkError(fmt.Errorf("long-poll loop exited unexpectedly"))
		a.logger.Warn("telegram poll loop stopped, reconnecting", "delay", reconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		a.MarkConnected()
	}
}

// Stop cancels the polling loop and waits for it to exit.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return channels.ErrTimeout("telegram stop timed out", ctx.Err())
	}
}

// Send delivers reply to the chat identified by env.PeerID.
func (a *Adapter) Send(ctx context.Context, env models.Envelope, reply string) error {
	if a.botClient == nil {
		return channels.ErrInternal("telegram bot not started", nil)
	}
	chatID, err := strconv.ParseInt(env.PeerID, 10, 64)
	if err != nil {
		return channels.ErrInvalidInput("invalid telegram chat id", err)
	}
	_, err = a.botClient.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   reply,
	})
	if err != nil {
		return channels.ErrConnection("failed to send telegram message", err)
	}
	return nil
}

// handleUpdate normalizes one Telegram update into a models.Envelope and
// hands it to the merged inbound stream.
func (a *Adapter) handleUpdate(ctx context.Context, _ *bot.Bot, update *botmodels.Update) {
	if update.Message == nil {
		return
	}
	msg := update.Message

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	chatType := models.ChatDirect
	if msg.Chat.Type != "private" {
		chatType = models.ChatGroup
	}

	env := models.Envelope{
		Provider:    "telegram",
		PeerID:      strconv.FormatInt(msg.Chat.ID, 10),
		Text:        text,
		ChatType:    chatType,
		TS:          time.Unix(int64(msg.Date), 0),
		Attachments: attachmentsFor(msg),
	}

	select {
	case a.envelopes <- env:
		a.MarkConnected()
	case <-ctx.Done():
	default:
		a.logger.Warn("envelope channel full, dropping message", "chat_id", msg.Chat.ID)
	}
}

func attachmentsFor(msg *botmodels.Message) []models.Attachment {
	var out []models.Attachment
	switch {
	case len(msg.Photo) > 0:
		out = append(out, models.Attachment{Kind: models.AttachmentImage, Mime: "image/jpeg"})
	case msg.Document != nil:
		out = append(out, models.Attachment{Kind: models.AttachmentFile, Mime: msg.Document.MimeType})
	case msg.Voice != nil:
		out = append(out, models.Attachment{Kind: models.AttachmentAudio, Mime: msg.Voice.MimeType})
	case msg.Audio != nil:
		out = append(out, models.Attachment{Kind: models.AttachmentAudio, Mime: msg.Audio.MimeType})
	}
	return out
}
