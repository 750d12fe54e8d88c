package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository хранит журнал событий бронирований.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий событий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LogClick фиксирует нажатие кнопки записи. У клика нет record_id,
// он служит якорем атрибуции для последующей сверки.
func (r *Repository) LogClick(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO booking_events (user_id, event_type) VALUES ($1, $2)
	`, userID, EventClickBooking)
	if err != nil {
		return fmt.Errorf("ошибка записи клика: %w", err)
	}
	return nil
}

// LastClickAt возвращает время последнего клика по кнопке записи.
func (r *Repository) LastClickAt(ctx context.Context, userID int64) (time.Time, bool, error) {
	var ts time.Time
	err := r.db.QueryRow(ctx, `
		SELECT created_at FROM booking_events
		WHERE user_id = $1 AND event_type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, EventClickBooking).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ошибка поиска клика: %w", err)
	}
	return ts, true, nil
}

// InsertEvent пишет событие записи, опираясь на уникальность тройки
// (user_id, record_id, event_type). Возвращает true, если строка
// действительно вставлена, и false при повторе.
func (r *Repository) InsertEvent(ctx context.Context, userID, recordID int64, eventType string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO booking_events (user_id, record_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, record_id, event_type) WHERE record_id IS NOT NULL
		DO NOTHING
	`, userID, recordID, eventType)
	if err != nil {
		return false, fmt.Errorf("ошибка записи события: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasEvent проверяет наличие события по записи.
func (r *Repository) HasEvent(ctx context.Context, userID, recordID int64, eventType string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM booking_events
			WHERE user_id = $1 AND record_id = $2 AND event_type = $3
		)
	`, userID, recordID, eventType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки события: %w", err)
	}
	return exists, nil
}

// DeleteCompletedForRecord удаляет событие визита по записи. Вызывается
// при отмене: отменённая запись не может считаться состоявшейся.
func (r *Repository) DeleteCompletedForRecord(ctx context.Context, userID, recordID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM booking_events
		WHERE user_id = $1 AND record_id = $2 AND event_type = $3
	`, userID, recordID, EventCompleted)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления события визита: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
