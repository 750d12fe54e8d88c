// Package booking реализует сверку записей YClients с локальным журналом
// событий и определение статуса визита.
package booking

import "time"

// Типы событий записи.
const (
	EventClickBooking = "CLICK_BOOKING"
	EventCreated      = "BOOKING_CREATED"
	EventCompleted    = "BOOKING_COMPLETED"
	EventCancelled    = "BOOKING_CANCELLED"
)

// Статусы записи после нормализации.
const (
	StatusCreated   = "created"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Event — событие журнала бронирований. RecordID пуст только у кликов
// по кнопке записи, которые фиксируются до появления записи в YClients.
type Event struct {
	ID        int64
	UserID    int64
	RecordID  *int64
	EventType string
	CreatedAt time.Time
}

// Stats — счётчики одного прохода сверки.
type Stats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}
