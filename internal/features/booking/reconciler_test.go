package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/users"
	"ashlounge.ru/loyalty-bot/internal/yclients"
)

type fakeCRM struct {
	records []yclients.Record
}

func (c *fakeCRM) GetAllRecords(_ context.Context, _, _ time.Time, _ bool) ([]yclients.Record, error) {
	return c.records, nil
}

type eventKey struct {
	userID    int64
	recordID  int64
	eventType string
}

// fakeEvents повторяет семантику журнала: уникальность тройки
// (пользователь, запись, тип события) и клики без record_id.
type fakeEvents struct {
	events map[eventKey]bool
	clicks map[int64]time.Time
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		events: make(map[eventKey]bool),
		clicks: make(map[int64]time.Time),
	}
}

func (f *fakeEvents) LastClickAt(_ context.Context, userID int64) (time.Time, bool, error) {
	ts, ok := f.clicks[userID]
	return ts, ok, nil
}

func (f *fakeEvents) InsertEvent(_ context.Context, userID, recordID int64, eventType string) (bool, error) {
	k := eventKey{userID, recordID, eventType}
	if f.events[k] {
		return false, nil
	}
	f.events[k] = true
	return true, nil
}

func (f *fakeEvents) HasEvent(_ context.Context, userID, recordID int64, eventType string) (bool, error) {
	return f.events[eventKey{userID, recordID, eventType}], nil
}

func (f *fakeEvents) DeleteCompletedForRecord(_ context.Context, userID, recordID int64) (bool, error) {
	k := eventKey{userID, recordID, EventCompleted}
	if !f.events[k] {
		return false, nil
	}
	delete(f.events, k)
	return true, nil
}

type fakeResolver struct {
	byPhone map[string]*users.User
	byCRM   map[int64]*users.User
	bound   map[int64]int64
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		byPhone: make(map[string]*users.User),
		byCRM:   make(map[int64]*users.User),
		bound:   make(map[int64]int64),
	}
}

func (f *fakeResolver) ResolveByPhone(_ context.Context, rawPhone string) (*users.User, error) {
	if u, ok := f.byPhone[rawPhone]; ok {
		return u, nil
	}
	return nil, common.ErrUserNotFound
}

func (f *fakeResolver) ResolveByYClientsID(_ context.Context, clientID int64) (*users.User, error) {
	if u, ok := f.byCRM[clientID]; ok {
		return u, nil
	}
	return nil, common.ErrUserNotFound
}

func (f *fakeResolver) BindYClientsID(_ context.Context, userID, clientID int64) error {
	f.bound[userID] = clientID
	return nil
}

func makeRecord(t *testing.T, id int64, phone string, createdAt time.Time, extra string) yclients.Record {
	t.Helper()
	raw := fmt.Sprintf(
		`{"id": %d, "client": {"id": 900, "phone": %q}, "create_date": %q%s}`,
		id, phone, createdAt.Format(time.RFC3339), extra,
	)
	var rec yclients.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}

func setup(t *testing.T) (*fakeCRM, *fakeEvents, *fakeResolver, *Reconciler, *users.User) {
	t.Helper()
	crm := &fakeCRM{}
	events := newFakeEvents()
	resolver := newFakeResolver()
	user := &users.User{ID: 1, TelegramID: 100}
	resolver.byPhone["+79991234567"] = user
	rec := NewReconciler(crm, events, resolver, 30, 30*time.Minute)
	return crm, events, resolver, rec, user
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	crm, events, _, rec, user := setup(t)

	clickAt := time.Now().Add(-10 * time.Minute)
	events.clicks[user.ID] = clickAt
	crm.records = []yclients.Record{
		makeRecord(t, 501, "+79991234567", clickAt.Add(5*time.Minute), ""),
	}

	stats, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Processed: 1, Created: 1}, stats)

	// Повторный проход по тем же данным не порождает новых событий.
	stats, err = rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Processed: 1}, stats)
}

func TestAttributionWindow(t *testing.T) {
	ctx := context.Background()
	crm, events, _, rec, user := setup(t)

	clickAt := time.Now().Add(-2 * time.Hour)
	events.clicks[user.ID] = clickAt

	crm.records = []yclients.Record{
		makeRecord(t, 601, "+79991234567", clickAt.Add(29*time.Minute), ""),
		makeRecord(t, 602, "+79991234567", clickAt.Add(31*time.Minute), ""),
	}

	stats, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Processed)

	has, err := events.HasEvent(ctx, user.ID, 601, EventCreated)
	require.NoError(t, err)
	require.True(t, has)
	has, err = events.HasEvent(ctx, user.ID, 602, EventCreated)
	require.NoError(t, err)
	require.False(t, has)
}

func TestSkipsRecordsWithoutClick(t *testing.T) {
	ctx := context.Background()
	crm, _, _, rec, _ := setup(t)

	crm.records = []yclients.Record{
		makeRecord(t, 701, "+79991234567", time.Now(), ""),
	}

	stats, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
}

func TestCancellationRemovesCompletedEvent(t *testing.T) {
	ctx := context.Background()
	crm, events, _, rec, user := setup(t)

	clickAt := time.Now().Add(-time.Hour)
	events.clicks[user.ID] = clickAt
	createdAt := clickAt.Add(10 * time.Minute)

	// Первый проход видит оплаченный визит.
	crm.records = []yclients.Record{
		makeRecord(t, 801, "+79991234567", createdAt, `, "attendance": 2`),
	}
	stats, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Completed)

	// Затем запись отменили в CRM: визит снимается, отмена фиксируется.
	crm.records = []yclients.Record{
		makeRecord(t, 801, "+79991234567", createdAt, `, "deleted": true`),
	}
	stats, err = rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Cancelled)

	has, err := events.HasEvent(ctx, user.ID, 801, EventCompleted)
	require.NoError(t, err)
	require.False(t, has)
	has, err = events.HasEvent(ctx, user.ID, 801, EventCancelled)
	require.NoError(t, err)
	require.True(t, has)
}

func TestCancelledRecordNeverBecomesCompleted(t *testing.T) {
	ctx := context.Background()
	crm, events, _, rec, user := setup(t)

	clickAt := time.Now().Add(-time.Hour)
	events.clicks[user.ID] = clickAt
	createdAt := clickAt.Add(10 * time.Minute)

	crm.records = []yclients.Record{
		makeRecord(t, 901, "+79991234567", createdAt, `, "attendance": 4`),
	}
	_, err := rec.Run(ctx)
	require.NoError(t, err)

	// В CRM запись восстановили как состоявшуюся, но отмена уже
	// зафиксирована и блокирует визит.
	crm.records = []yclients.Record{
		makeRecord(t, 901, "+79991234567", createdAt, `, "attendance": 2`),
	}
	stats, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Completed)

	has, err := events.HasEvent(ctx, user.ID, 901, EventCompleted)
	require.NoError(t, err)
	require.False(t, has)
}

func TestSkipsRecordsWithoutDates(t *testing.T) {
	ctx := context.Background()
	crm, events, _, rec, user := setup(t)
	events.clicks[user.ID] = time.Now().Add(-5 * time.Minute)

	// Запись без единого поля с датой: привязать её ко времени клика
	// не к чему, событий быть не должно.
	var dateless yclients.Record
	require.NoError(t, json.Unmarshal(
		[]byte(`{"id": 777, "client": {"id": 900, "phone": "+79991234567"}}`), &dateless))
	crm.records = []yclients.Record{dateless}

	stats, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
}

func TestSkipsRecordsWithoutID(t *testing.T) {
	ctx := context.Background()
	crm, events, _, rec, user := setup(t)
	events.clicks[user.ID] = time.Now()

	var noID yclients.Record
	require.NoError(t, json.Unmarshal([]byte(`{"client": {"phone": "+79991234567"}}`), &noID))
	crm.records = []yclients.Record{noID}

	stats, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
}

func TestBindsCRMClientIDOnPhoneMatch(t *testing.T) {
	ctx := context.Background()
	crm, events, resolver, rec, user := setup(t)

	clickAt := time.Now().Add(-time.Hour)
	events.clicks[user.ID] = clickAt
	crm.records = []yclients.Record{
		makeRecord(t, 1001, "+79991234567", clickAt.Add(time.Minute), ""),
	}

	_, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(900), resolver.bound[user.ID])
}

func TestConcurrentRunRejected(t *testing.T) {
	_, _, _, rec, _ := setup(t)

	require.True(t, rec.tryAcquire())
	_, err := rec.Run(context.Background())
	require.ErrorIs(t, err, common.ErrSyncBusy)
	rec.release()
}
