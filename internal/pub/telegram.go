package pub

import (
	"context"
	"fmt"
	"lunchbell/internal/types"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const maxTelegramMessage = 4096

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts into the configured lunch group chat.
type Telegram struct {
	bot    telegramSender
	chatID int64
}

// NewTelegram authenticates the bot token against the Telegram API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Send only checks ctx between parts; the bot client has its own HTTP timeout.
func (t *Telegram) Send(ctx context.Context, _ string, message string, extra types.Extra) error {
	for _, part := range splitMessage(chatText(message, extra)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.bot.Send(msg); err != nil {
			// Menus scraped from HTML often contain stray markdown; retry as plain text.
			log.WithError(err).Debug("telegram markdown send failed, retrying as plain text")
			msg.ParseMode = ""
			if _, err := t.bot.Send(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitMessage cuts text into parts of at most maxTelegramMessage bytes, on rune boundaries.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := len(text)
		if end > maxTelegramMessage {
			end = maxTelegramMessage
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == 0 {
				end = maxTelegramMessage
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
