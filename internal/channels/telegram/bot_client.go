package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"
)

// BotClient is the subset of *bot.Bot the adapter depends on, narrowed to
// a mockable interface for testing.
type BotClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botmodels.Message, error)
	GetMe(ctx context.Context) (*botmodels.User, error)
	Start(ctx context.Context)
}

type realBotClient struct {
	bot *bot.Bot
}

func newRealBotClient(b *bot.Bot) BotClient {
	return &realBotClient{bot: b}
}

func (r *realBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botmodels.Message, error) {
	return r.bot.SendMessage(ctx, params)
}

func (r *realBotClient) GetMe(ctx context.Context) (*botmodels.User, error) {
	return r.bot.GetMe(ctx)
}

func (r *realBotClient) Start(ctx context.Context) {
	r.bot.Start(ctx)
}
