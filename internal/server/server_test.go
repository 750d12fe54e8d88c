package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/balancesync"
	"ashlounge.ru/loyalty-bot/internal/features/booking"
	"ashlounge.ru/loyalty-bot/internal/features/users"
)

type fakeAuth struct {
	token string
}

func (a *fakeAuth) Login(_ context.Context, username, password string) (string, error) {
	if username == "admin" && password == "s3cret" {
		return a.token, nil
	}
	return "", common.ErrWrongPassword
}

func (a *fakeAuth) Validate(_ context.Context, token string) (string, error) {
	if token == a.token && token != "" {
		return "admin", nil
	}
	return "", common.ErrNotAuthenticated
}

func (a *fakeAuth) Logout(_ context.Context, _ string) error { return nil }

type fakeReconciler struct {
	stats booking.Stats
	busy  bool
}

func (r *fakeReconciler) Run(_ context.Context) (booking.Stats, error) {
	if r.busy {
		return booking.Stats{}, common.ErrSyncBusy
	}
	return r.stats, nil
}

type fakeBalances struct {
	pulled map[int64]int64
}

func (b *fakeBalances) SyncAll(_ context.Context) (balancesync.Stats, error) {
	return balancesync.Stats{Total: 2, Synced: 2}, nil
}

func (b *fakeBalances) PullBalance(_ context.Context, userID int64) (int64, error) {
	v, ok := b.pulled[userID]
	if !ok {
		return 0, common.ErrUserNotFound
	}
	return v, nil
}

type fakeBonuses struct {
	lastAdmin string
	balance   int64
}

func (b *fakeBonuses) ManualAdjust(_ context.Context, adminUsername string, _ int64, operation string, amount int64, _ string) (int64, error) {
	b.lastAdmin = adminUsername
	if operation == "writeoff" && amount > b.balance {
		return 0, common.ErrInsufficientBalance
	}
	if operation == "accrual" {
		b.balance += amount
	} else {
		b.balance -= amount
	}
	return b.balance, nil
}

type fakeClicks struct {
	clicked []int64
}

func (c *fakeClicks) LogClick(_ context.Context, userID int64) error {
	c.clicked = append(c.clicked, userID)
	return nil
}

type fakeUserDir struct {
	byTelegram map[int64]*users.User
}

func (f *fakeUserDir) GetByTelegramID(_ context.Context, telegramID int64) (*users.User, error) {
	if u, ok := f.byTelegram[telegramID]; ok {
		return u, nil
	}
	return nil, common.ErrUserNotFound
}

type testEnv struct {
	srv        *Server
	reconciler *fakeReconciler
	balances   *fakeBalances
	bonuses    *fakeBonuses
	clicks     *fakeClicks
}

func newTestServer() *testEnv {
	e := &testEnv{
		reconciler: &fakeReconciler{stats: booking.Stats{Processed: 3, Created: 2}},
		balances:   &fakeBalances{pulled: map[int64]int64{5: 70}},
		bonuses:    &fakeBonuses{balance: 100},
		clicks:     &fakeClicks{},
	}
	auth := &fakeAuth{token: "valid-token"}
	userDir := &fakeUserDir{byTelegram: map[int64]*users.User{777: {ID: 5, TelegramID: 777}}}
	e.srv = New(auth, e.reconciler, e.balances, e.bonuses, e.clicks, userDir)
	return e
}

func doRequest(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	e := newTestServer()
	w := doRequest(t, e.srv, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLogin(t *testing.T) {
	e := newTestServer()

	w := doRequest(t, e.srv, http.MethodPost, "/api/login", "", map[string]string{
		"username": "admin", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "valid-token", resp["token"])

	w = doRequest(t, e.srv, http.MethodPost, "/api/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestServer()

	w := doRequest(t, e.srv, http.MethodPost, "/api/sync/bookings", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, e.srv, http.MethodPost, "/api/sync/bookings", "bad-token", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncBookings(t *testing.T) {
	e := newTestServer()

	w := doRequest(t, e.srv, http.MethodPost, "/api/sync/bookings", "valid-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats booking.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 3, stats.Processed)

	// Параллельный запуск отклоняется с 409.
	e.reconciler.busy = true
	w = doRequest(t, e.srv, http.MethodPost, "/api/sync/bookings", "valid-token", nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestManualBonus(t *testing.T) {
	e := newTestServer()

	w := doRequest(t, e.srv, http.MethodPost, "/api/users/5/bonus", "valid-token", map[string]any{
		"operation": "accrual", "amount": 200, "comment": "компенсация",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "admin", e.bonuses.lastAdmin)

	// Списание больше баланса.
	w = doRequest(t, e.srv, http.MethodPost, "/api/users/5/bonus", "valid-token", map[string]any{
		"operation": "writeoff", "amount": 100000, "comment": "много",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Неизвестная операция.
	w = doRequest(t, e.srv, http.MethodPost, "/api/users/5/bonus", "valid-token", map[string]any{
		"operation": "transfer", "amount": 10, "comment": "x",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Без комментария не проходит валидация.
	w = doRequest(t, e.srv, http.MethodPost, "/api/users/5/bonus", "valid-token", map[string]any{
		"operation": "accrual", "amount": 10,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPullBalance(t *testing.T) {
	e := newTestServer()

	w := doRequest(t, e.srv, http.MethodPost, "/api/users/5/sync", "valid-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(70), resp["balance"])

	w = doRequest(t, e.srv, http.MethodPost, "/api/users/99/sync", "valid-token", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestClick(t *testing.T) {
	e := newTestServer()

	w := doRequest(t, e.srv, http.MethodPost, "/api/click", "", map[string]int64{"telegram_id": 777})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []int64{5}, e.clicks.clicked)

	w = doRequest(t, e.srv, http.MethodPost, "/api/click", "", map[string]int64{"telegram_id": 1})
	require.Equal(t, http.StatusNotFound, w.Code)
}
