// Package admin — service.go содержит логику аутентификации и сессий.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"ashlounge.ru/loyalty-bot/internal/common"
)

// SessionStore — хранилище сессий и попыток входа. Реализуется Repository.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	TouchSession(ctx context.Context, token string) error
	DeactivateSession(ctx context.Context, token string) error
	LogAttempt(ctx context.Context, username string, success bool) error
	CountRecentFailures(ctx context.Context, username string, period time.Duration) (int, error)
	InsertAudit(ctx context.Context, username, action, details string) error
}

// Service управляет доступом администратора.
type Service struct {
	store        SessionStore
	username     string
	passwordHash string
}

// NewService создаёт сервис аутентификации. passwordHash — Argon2id хеш
// в формате $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func NewService(store SessionStore, username, passwordHash string) *Service {
	return &Service{store: store, username: username, passwordHash: passwordHash}
}

// Login проверяет логин и пароль и выдаёт токен сессии.
// После трёх неудачных попыток вход блокируется на час.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if username != s.username {
		// Попытки по чужому логину тоже считаются.
		if err := s.store.LogAttempt(ctx, username, false); err != nil {
			log.WithError(err).Warn("не удалось записать попытку входа")
		}
		return "", common.ErrWrongPassword
	}

	failures, err := s.store.CountRecentFailures(ctx, username, lockoutInterval)
	if err != nil {
		return "", err
	}
	if failures >= maxLoginFails {
		return "", common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)
	if err := s.store.LogAttempt(ctx, username, match); err != nil {
		log.WithError(err).Warn("не удалось записать попытку входа")
	}
	if !match {
		return "", common.ErrWrongPassword
	}

	token := generateSecureToken()
	session := &Session{
		AdminUsername: username,
		SessionToken:  token,
		ExpiresAt:     time.Now().Add(sessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return "", err
	}

	log.WithField("admin", username).Info("администратор вошёл в систему")
	return token, nil
}

// Validate проверяет токен сессии и возвращает имя администратора.
func (s *Service) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", common.ErrNotAuthenticated
	}
	session, err := s.store.GetSessionByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.store.TouchSession(ctx, token); err != nil {
		log.WithError(err).Warn("не удалось обновить активность сессии")
	}
	return session.AdminUsername, nil
}

// Logout деактивирует сессию.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeactivateSession(ctx, token)
}

// Audit пишет действие администратора в журнал.
func (s *Service) Audit(ctx context.Context, adminUsername, action, details string) error {
	return s.store.InsertAudit(ctx, adminUsername, action, details)
}

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени (защита от timing attack)
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
