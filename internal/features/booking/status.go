package booking

import (
	"strings"

	"ashlounge.ru/loyalty-bot/internal/yclients"
)

// MapRecordStatus приводит разнородные признаки записи YClients к одному
// из трёх статусов. Порядок проверок важен: явное удаление сильнее кода
// посещаемости, код посещаемости сильнее текстового статуса, отметка об
// оплате трактуется как состоявшийся визит.
func MapRecordStatus(rec *yclients.Record) string {
	if bool(rec.Deleted) {
		return StatusCancelled
	}

	switch rec.StatusRaw() {
	case "2":
		return StatusCompleted
	case "4", "5":
		return StatusCancelled
	}

	status := strings.ToLower(rec.StatusRaw())
	if strings.Contains(status, "cancel") || strings.Contains(status, "delete") {
		return StatusCancelled
	}
	if strings.Contains(status, "visit") || strings.Contains(status, "completed") ||
		strings.Contains(status, "done") || strings.Contains(status, "finish") {
		return StatusCompleted
	}
	if rec.PaidIndicator() {
		return StatusCompleted
	}
	return StatusCreated
}

// statusEvent сопоставляет нормализованный статус событию журнала.
func statusEvent(status string) string {
	switch status {
	case StatusCompleted:
		return EventCompleted
	case StatusCancelled:
		return EventCancelled
	}
	return EventCreated
}
