// Package admin — repository.go работает с таблицами admin_sessions,
// admin_login_attempts и admin_audit_log.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ashlounge.ru/loyalty-bot/internal/common"
)

// Repository работает с админ-таблицами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession создаёт новую сессию администратора.
func (r *Repository) CreateSession(ctx context.Context, session *Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO admin_sessions (admin_username, session_token, expires_at, is_active)
		VALUES ($1, $2, $3, TRUE)
	`, session.AdminUsername, session.SessionToken, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// GetSessionByToken возвращает активную сессию по токену.
func (r *Repository) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT id, admin_username, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE session_token = $1 AND is_active = TRUE AND expires_at > NOW()
	`, token).Scan(
		&s.ID, &s.AdminUsername, &s.SessionToken, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска сессии: %w", err)
	}
	return &s, nil
}

// TouchSession обновляет время последней активности.
func (r *Repository) TouchSession(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE admin_sessions SET last_activity = NOW()
		WHERE session_token = $1 AND is_active = TRUE
	`, token)
	return err
}

// DeactivateSession деактивирует сессию по токену.
func (r *Repository) DeactivateSession(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE admin_sessions SET is_active = FALSE WHERE session_token = $1
	`, token)
	return err
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, username string, success bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO admin_login_attempts (admin_username, success) VALUES ($1, $2)
	`, username, success)
	return err
}

// CountRecentFailures возвращает число неудачных попыток за период.
func (r *Repository) CountRecentFailures(ctx context.Context, username string, period time.Duration) (int, error) {
	since := time.Now().Add(-period)
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE admin_username = $1 AND success = FALSE AND attempt_time >= $2
	`, username, since).Scan(&count)
	return count, err
}

// InsertAudit пишет действие администратора в журнал аудита.
func (r *Repository) InsertAudit(ctx context.Context, username, action, details string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO admin_audit_log (admin_username, action, details) VALUES ($1, $2, $3)
	`, username, action, details)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал аудита: %w", err)
	}
	return nil
}
