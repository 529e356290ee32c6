package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
)

// Telegram sends reminders as bot messages. Recipients are numeric chat ids or
// @channel usernames.
type Telegram struct {
	bot *bot.Bot
}

// NewTelegram builds the bot client without calling getMe, so startup does not depend on
// the Bot API being reachable. serverURL overrides the API endpoint when non-empty.
func NewTelegram(token, serverURL string) (*Telegram, error) {
	opts := []bot.Option{bot.WithSkipGetMe()}
	if serverURL != "" {
		opts = append(opts, bot.WithServerURL(serverURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Validate(recipient string) error {
	_, err := chatID(recipient)
	return err
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	id, err := chatID(msg.Recipient)
	if err != nil {
		return err
	}
	_, err = t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: id,
		Text:   msg.Body,
	})
	if errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorForbidden) {
		// Unknown chat, or the mentee blocked the bot.
		return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	return err
}

func chatID(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id != 0 {
		return id, nil
	}
	if name, ok := strings.CutPrefix(raw, "@"); ok && len(name) >= 5 && validUsername(name) {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: telegram chat %q", ErrInvalidRecipient, raw)
}

func validUsername(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
