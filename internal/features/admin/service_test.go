package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"

	"ashlounge.ru/loyalty-bot/internal/common"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	var (
		memory      uint32 = 65536
		iterations  uint32 = 3
		parallelism uint8  = 2
	)
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, 32)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

type fakeSessionStore struct {
	sessions map[string]*Session
	attempts []LoginAttempt
	audits   []AuditEntry
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*Session)}
}

func (f *fakeSessionStore) CreateSession(_ context.Context, session *Session) error {
	f.sessions[session.SessionToken] = session
	return nil
}

func (f *fakeSessionStore) GetSessionByToken(_ context.Context, token string) (*Session, error) {
	s, ok := f.sessions[token]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, common.ErrNotAuthenticated
	}
	return s, nil
}

func (f *fakeSessionStore) TouchSession(_ context.Context, _ string) error { return nil }

func (f *fakeSessionStore) DeactivateSession(_ context.Context, token string) error {
	delete(f.sessions, token)
	return nil
}

func (f *fakeSessionStore) LogAttempt(_ context.Context, username string, success bool) error {
	f.attempts = append(f.attempts, LoginAttempt{
		AdminUsername: username,
		AttemptTime:   time.Now(),
		Success:       success,
	})
	return nil
}

func (f *fakeSessionStore) CountRecentFailures(_ context.Context, username string, period time.Duration) (int, error) {
	since := time.Now().Add(-period)
	count := 0
	for _, a := range f.attempts {
		if a.AdminUsername == username && !a.Success && a.AttemptTime.After(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) InsertAudit(_ context.Context, username, action, details string) error {
	f.audits = append(f.audits, AuditEntry{AdminUsername: username, Action: action, Details: details})
	return nil
}

func TestVerifyArgon2id(t *testing.T) {
	hash := hashPassword(t, "correct horse")
	require.True(t, verifyArgon2id("correct horse", hash))
	require.False(t, verifyArgon2id("wrong horse", hash))
	require.False(t, verifyArgon2id("correct horse", "не хеш вовсе"))
}

func TestLoginAndValidate(t *testing.T) {
	ctx := context.Background()
	store := newFakeSessionStore()
	svc := NewService(store, "admin", hashPassword(t, "s3cret"))

	token, err := svc.Login(ctx, "admin", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "admin", username)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Validate(ctx, token)
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	store := newFakeSessionStore()
	svc := NewService(store, "admin", hashPassword(t, "s3cret"))

	_, err := svc.Login(ctx, "admin", "guess")
	require.ErrorIs(t, err, common.ErrWrongPassword)
	_, err = svc.Login(ctx, "intruder", "s3cret")
	require.ErrorIs(t, err, common.ErrWrongPassword)
}

func TestLoginLockoutAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	store := newFakeSessionStore()
	svc := NewService(store, "admin", hashPassword(t, "s3cret"))

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, "admin", "guess")
		require.ErrorIs(t, err, common.ErrWrongPassword)
	}

	// Четвёртая попытка блокируется даже с верным паролем.
	_, err := svc.Login(ctx, "admin", "s3cret")
	require.ErrorIs(t, err, common.ErrTooManyAttempts)
}

func TestValidateEmptyToken(t *testing.T) {
	svc := NewService(newFakeSessionStore(), "admin", "")
	_, err := svc.Validate(context.Background(), "")
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}
