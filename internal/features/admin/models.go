// Package admin реализует аутентификацию администратора для HTTP API:
// парольный вход, сессии по токену и журнал аудита.
package admin

import "time"

// Session — активная сессия администратора.
type Session struct {
	ID              int64
	AdminUsername   string
	SessionToken    string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
	LastActivity    time.Time
	IsActive        bool
}

// LoginAttempt — попытка входа, нужна для защиты от перебора.
type LoginAttempt struct {
	ID            int64
	AdminUsername string
	AttemptTime   time.Time
	Success       bool
}

// AuditEntry — запись журнала действий администратора.
type AuditEntry struct {
	ID            int64
	AdminUsername string
	Action        string
	Details       string
	CreatedAt     time.Time
}

// Время жизни сессии и параметры защиты от перебора.
const (
	sessionTTL      = 24 * time.Hour
	maxLoginFails   = 3
	lockoutInterval = time.Hour
)
