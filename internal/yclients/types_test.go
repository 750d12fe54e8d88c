package yclients

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordToleratesMixedFieldTypes(t *testing.T) {
	// Разные инсталляции YClients отдают attendance числом или строкой,
	// а флаги оплаты — bool, числом и строкой.
	raw := `{
		"id": "123",
		"client": {"id": 77, "phone": "+7 999 123-45-67"},
		"datetime": "2026-08-20T14:00:00+0300",
		"attendance": 2,
		"is_payed": "1",
		"payment_status": 0
	}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	require.EqualValues(t, 123, rec.ExternalID())
	require.EqualValues(t, 77, rec.ClientRef())
	require.Equal(t, "+7 999 123-45-67", rec.RawPhone())
	require.Equal(t, "2", rec.StatusRaw())
	require.True(t, rec.PaidIndicator())
}

func TestRecordMissingID(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"client_id": null, "attendance": "что-то"}`), &rec))
	require.EqualValues(t, 0, rec.ExternalID())
	require.EqualValues(t, 0, rec.ClientRef())
	require.Equal(t, "что-то", rec.StatusRaw())
	require.False(t, rec.PaidIndicator())
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-08-20T14:00:00+03:00", time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC), true},
		{"2026-08-20T14:00:00+0300", time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC), true},
		{"2026-08-20T11:00:00Z", time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC), true},
		{"2026-08-20 11:00:00", time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC), true},
		{"2026-08-20", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), true},
		{"1755687600", time.Unix(1755687600, 0).UTC(), true},
		{"", time.Time{}, false},
		{"не дата", time.Time{}, false},
	}

	for _, tc := range cases {
		got, ok := ParseTime(tc.in)
		require.Equal(t, tc.ok, ok, "вход %q", tc.in)
		if ok {
			require.True(t, tc.want.Equal(got), "вход %q: ожидали %s, получили %s", tc.in, tc.want, got)
		}
	}
}

func TestRecordCreatedTimePrefersCreateDate(t *testing.T) {
	raw := `{"create_date": "2026-08-20T10:00:00Z", "datetime": "2026-08-25T15:00:00Z"}`
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	created, ok := rec.CreatedTime()
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), created)
}
