package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/bonus"
	"ashlounge.ru/loyalty-bot/internal/features/users"
	"ashlounge.ru/loyalty-bot/internal/yclients"
)

type fakeStore struct {
	pending []PendingReferral
	rewards map[int64]bool // invitedID -> награда выдана
	credits map[int64]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rewards: make(map[int64]bool),
		credits: make(map[int64]int64),
	}
}

func (f *fakeStore) PendingReferrals(_ context.Context) ([]PendingReferral, error) {
	var out []PendingReferral
	for _, p := range f.pending {
		if !f.rewards[p.UserID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) RewardReferral(_ context.Context, inviterID, invitedID, amount int64, _ string) (int64, error) {
	if f.rewards[invitedID] {
		return 0, common.ErrAlreadyGranted
	}
	f.rewards[invitedID] = true
	f.credits[inviterID] += amount
	return f.credits[inviterID], nil
}

type fakeAccounts struct {
	accounts map[int64]*bonus.Account
	config   bonus.Config
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts: make(map[int64]*bonus.Account),
		config:   bonus.DefaultConfig(),
	}
}

func (f *fakeAccounts) EnsureAccount(_ context.Context, userID int64) (*bonus.Account, error) {
	if a, ok := f.accounts[userID]; ok {
		return a, nil
	}
	a := &bonus.Account{UserID: userID, ReferralCode: fmt.Sprintf("CODE%04d", userID)}
	f.accounts[userID] = a
	return a, nil
}

func (f *fakeAccounts) GetAccountByReferralCode(_ context.Context, code string) (*bonus.Account, error) {
	for _, a := range f.accounts {
		if a.ReferralCode == code {
			return a, nil
		}
	}
	return nil, common.ErrAccountNotFound
}

func (f *fakeAccounts) SetReferredBy(_ context.Context, userID int64, code string, boundAt time.Time) error {
	a := f.accounts[userID]
	a.ReferredByCode = &code
	a.ReferralBoundAt = &boundAt
	return nil
}

func (f *fakeAccounts) MarkRegistrationNotified(_ context.Context, userID int64) error {
	f.accounts[userID].ReferredRegistrationNotified = true
	return nil
}

func (f *fakeAccounts) GetConfig(_ context.Context) (bonus.Config, error) {
	return f.config, nil
}

type fakeUserDir struct {
	users map[int64]*users.User
}

func (f *fakeUserDir) Get(_ context.Context, id int64) (*users.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrUserNotFound
}

type fakeCRM struct {
	records map[int64][]yclients.Record
}

func (c *fakeCRM) GetClientRecords(_ context.Context, clientID int64, _, _ time.Time) ([]yclients.Record, error) {
	return c.records[clientID], nil
}

type fakeNotifier struct {
	sent map[int64][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[int64][]string)}
}

func (n *fakeNotifier) Send(telegramID int64, text string) error {
	n.sent[telegramID] = append(n.sent[telegramID], text)
	return nil
}

func completedVisit(t *testing.T, visitAt time.Time) yclients.Record {
	t.Helper()
	raw := fmt.Sprintf(`{"id": 1, "attendance": 2, "datetime": %q}`, visitAt.Format(time.RFC3339))
	var rec yclients.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}

type env struct {
	store    *fakeStore
	accounts *fakeAccounts
	userDir  *fakeUserDir
	crm      *fakeCRM
	notifier *fakeNotifier
	svc      *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:    newFakeStore(),
		accounts: newFakeAccounts(),
		userDir:  &fakeUserDir{users: map[int64]*users.User{}},
		crm:      &fakeCRM{records: map[int64][]yclients.Record{}},
		notifier: newFakeNotifier(),
	}
	e.svc = NewService(e.store, e.accounts, e.userDir, e.crm, e.notifier, nil, 60, 30*time.Minute)
	return e
}

// addPair заводит пригласившего (id=1) и приглашённого (id=2, клиент CRM 500).
func (e *env) addPair(t *testing.T, boundAt time.Time) {
	t.Helper()
	ctx := context.Background()
	inviter, err := e.accounts.EnsureAccount(ctx, 1)
	require.NoError(t, err)
	_, err = e.accounts.EnsureAccount(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, e.accounts.SetReferredBy(ctx, 2, inviter.ReferralCode, boundAt))

	e.userDir.users[1] = &users.User{ID: 1, TelegramID: 101}
	e.userDir.users[2] = &users.User{ID: 2, TelegramID: 102}

	e.store.pending = []PendingReferral{{
		UserID:           2,
		TelegramID:       102,
		YClientsClientID: 500,
		ReferredByCode:   inviter.ReferralCode,
		ReferralBoundAt:  &boundAt,
	}}
}

func TestSweepRewardsCompletedVisit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	boundAt := time.Now().Add(-48 * time.Hour)
	e.addPair(t, boundAt)

	visitAt := time.Now().Add(-2 * time.Hour)
	e.crm.records[500] = []yclients.Record{completedVisit(t, visitAt)}

	stats, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Rewarded)
	require.Equal(t, int64(500), e.store.credits[1])
	require.Len(t, e.notifier.sent[101], 1)
	require.Len(t, e.notifier.sent[102], 1)
	// Пригласивший видит дату визита по Москве.
	require.Contains(t, e.notifier.sent[101][0], common.FormatDateTime(visitAt))
}

func TestSweepRewardsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addPair(t, time.Now().Add(-48*time.Hour))
	e.crm.records[500] = []yclients.Record{
		completedVisit(t, time.Now().Add(-2*time.Hour)),
	}

	for i := 0; i < 3; i++ {
		_, err := e.svc.Sweep(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, int64(500), e.store.credits[1])
}

func TestSweepWaitsGracePeriod(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addPair(t, time.Now().Add(-48*time.Hour))

	// Визит только что завершился: награда откладывается.
	e.crm.records[500] = []yclients.Record{
		completedVisit(t, time.Now().Add(-10*time.Minute)),
	}

	stats, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Rewarded)
	require.Equal(t, int64(0), e.store.credits[1])
}

func TestSweepIgnoresVisitBeforeBinding(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	boundAt := time.Now().Add(-time.Hour)
	e.addPair(t, boundAt)

	// Визит был до привязки кода: клиент не приведён этим кодом.
	e.crm.records[500] = []yclients.Record{
		completedVisit(t, boundAt.Add(-24*time.Hour)),
	}

	stats, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Rewarded)
	require.Equal(t, int64(0), e.store.credits[1])
}

func TestSweepIgnoresFutureVisit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addPair(t, time.Now().Add(-48*time.Hour))

	e.crm.records[500] = []yclients.Record{
		completedVisit(t, time.Now().Add(24*time.Hour)),
	}

	stats, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Rewarded)
}

func TestBindCode(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	inviter, err := e.accounts.EnsureAccount(ctx, 1)
	require.NoError(t, err)
	_, err = e.accounts.EnsureAccount(ctx, 2)
	require.NoError(t, err)
	e.userDir.users[1] = &users.User{ID: 1, TelegramID: 101}

	require.NoError(t, e.svc.BindCode(ctx, 2, inviter.ReferralCode))

	acc := e.accounts.accounts[2]
	require.NotNil(t, acc.ReferredByCode)
	require.Equal(t, inviter.ReferralCode, *acc.ReferredByCode)
	require.NotNil(t, acc.ReferralBoundAt)
	require.True(t, acc.ReferredRegistrationNotified)
	require.Len(t, e.notifier.sent[101], 1)

	// Повторная привязка запрещена.
	err = e.svc.BindCode(ctx, 2, inviter.ReferralCode)
	require.ErrorIs(t, err, common.ErrReferralAlreadyBound)
}

func TestBindCodeRejectsSelfReferral(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acc, err := e.accounts.EnsureAccount(ctx, 1)
	require.NoError(t, err)

	err = e.svc.BindCode(ctx, 1, acc.ReferralCode)
	require.ErrorIs(t, err, common.ErrSelfReferral)
}

func TestBindCodeRejectsUnknownCode(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.accounts.EnsureAccount(ctx, 2)
	require.NoError(t, err)

	err = e.svc.BindCode(ctx, 2, "NOSUCHCD")
	require.ErrorIs(t, err, common.ErrReferralCodeNotFound)
}
