// Package bot implements the Telegram chat surface: plain messages become
// inbox captures, slash commands drive the filing pipeline.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/starford/ansuz/internal/curator"
)

// TelegramBot is the subset of the Telegram API the bot uses; it exists
// so tests can substitute a fake transport.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() { w.bot.StopReceivingUpdates() }

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User { return w.bot.Self }

// BotFactory creates TelegramBot instances; tests supply their own.
type BotFactory func(token string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token string, client *http.Client) (TelegramBot, error) {
	b, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: b}, nil
}

// Config holds bot settings.
type Config struct {
	Token string
	// AllowedChats restricts which chat IDs may talk to the bot. Empty
	// means open to anyone who finds the bot.
	AllowedChats []int64
}

// Bot is the Telegram front end over the curator service.
type Bot struct {
	cfg     Config
	svc     *curator.Service
	bot     TelegramBot
	factory BotFactory
	logger  *slog.Logger
}

// New creates a Bot with the production Telegram transport.
func New(cfg Config, svc *curator.Service, logger *slog.Logger) (*Bot, error) {
	return NewWithFactory(cfg, svc, logger, defaultBotFactory)
}

// NewWithFactory creates a Bot with a custom transport factory.
func NewWithFactory(cfg Config, svc *curator.Service, logger *slog.Logger, factory BotFactory) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot: token is required")
	}
	return &Bot{cfg: cfg, svc: svc, factory: factory, logger: logger}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	bot, err := b.factory(b.cfg.Token, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("bot: create telegram client: %w", err)
	}
	b.bot = bot
	b.logger.Info("telegram: authorized", slog.String("username", bot.GetSelf().UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			b.logger.Info("telegram: stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !b.allowed(msg.Chat.ID) {
		b.logger.Warn("telegram: rejected chat",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("username", msg.From.UserName))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	var reply string
	if strings.HasPrefix(text, "/") {
		reply = b.handleCommand(ctx, text)
	} else {
		reply = b.handleCapture(ctx, text)
	}
	if reply != "" {
		b.send(msg.Chat.ID, reply)
	}
}

func (b *Bot) handleCapture(ctx context.Context, text string) string {
	path, err := b.svc.Capture(ctx, text, "telegram")
	if err != nil {
		b.logger.Error("telegram: capture failed", slog.String("error", err.Error()))
		return "Capture failed: " + err.Error()
	}
	return "Captured to " + path
}

func (b *Bot) allowed(chatID int64) bool {
	if len(b.cfg.AllowedChats) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// send chunks long replies under Telegram's message size limit.
func (b *Bot) send(chatID int64, text string) {
	const maxLen = 4000
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			if idx := strings.LastIndex(chunk[:maxLen], "\n"); idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		text = strings.TrimPrefix(text[len(chunk):], "\n")

		if _, err := b.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			b.logger.Error("telegram: send failed", slog.String("error", err.Error()))
			return
		}
	}
}
