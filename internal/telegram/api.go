package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender — единственное, что бот использует из Bot API; в тестах подменяется.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type botAPISender struct{ api *tgbotapi.BotAPI }

func (s botAPISender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.api.Send(c)
}

// send отправляет обычный текст без разметки и превью ссылок.
func (b *Bot) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := b.s.Send(msg)
	return err
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if err := b.send(chatID, text); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

func (b *Bot) notifyAdminRequest(userID int64, username string) {
	admin := b.authSvc.AdminID()
	if admin == 0 {
		return
	}
	b.sendMessage(admin, fmt.Sprintf("User %d (@%s) wants to control the robot. Use /allow %d to grant access.", userID, username, userID))
}
