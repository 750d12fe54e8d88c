// Package users управляет локальными пользователями программы лояльности.
// models.go описывает структуру пользователя.
package users

import "time"

// User — локальный пользователь: связка Telegram-аккаунта,
// телефона и клиента YClients.
type User struct {
	ID         int64   `db:"id"`
	TelegramID int64   `db:"telegram_id"`
	Username   *string `db:"username"`
	FullName   *string `db:"full_name"`

	Phone            *string `db:"phone"`
	YClientsClientID *int64  `db:"yclients_client_id"`

	// nil = мы ещё не определяли «новый/старый» по YCLIENTS.
	// Значение фиксируется один раз и больше не меняется.
	IsNewClient *bool `db:"is_new_client"`

	AgreedPrivacy bool `db:"agreed_privacy"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// UpsertParams — параметры создания/обновления пользователя.
// nil-поля не трогаются.
type UpsertParams struct {
	TelegramID       int64
	Username         *string
	FullName         *string
	Phone            *string
	AgreedPrivacy    *bool
	YClientsClientID *int64
	IsNewClient      *bool
}
