// Package notify отправляет уведомления пользователям в Telegram.
// При пустом токене бота уведомления тихо отключаются, остальная
// логика продолжает работать.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Notifier отправляет сообщения по Telegram id.
type Notifier struct {
	api *tgbotapi.BotAPI
}

// New создаёт нотификатор. Пустой токен даёт выключенный нотификатор.
func New(token string) (*Notifier, error) {
	if token == "" {
		log.Warn("токен Telegram не задан, уведомления отключены")
		return &Notifier{}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к Telegram: %w", err)
	}
	log.WithField("bot", api.Self.UserName).Info("Telegram-уведомления включены")
	return &Notifier{api: api}, nil
}

// Send отправляет сообщение пользователю.
func (n *Notifier) Send(telegramID int64, text string) error {
	if n.api == nil {
		log.WithField("telegram_id", telegramID).Debug("уведомление пропущено: бот выключен")
		return nil
	}
	msg := tgbotapi.NewMessage(telegramID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	log.WithField("telegram_id", telegramID).Debug("уведомление отправлено")
	return nil
}
