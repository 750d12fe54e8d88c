package booking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"ashlounge.ru/loyalty-bot/internal/yclients"
)

func recordFromJSON(t *testing.T, raw string) *yclients.Record {
	t.Helper()
	var rec yclients.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return &rec
}

func TestMapRecordStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "удалённая запись всегда отменена",
			raw:  `{"id": 1, "deleted": true, "attendance": 2, "is_payed": true}`,
			want: StatusCancelled,
		},
		{
			name: "посещаемость 2 означает визит даже без оплаты",
			raw:  `{"id": 2, "attendance": 2, "is_payed": false}`,
			want: StatusCompleted,
		},
		{
			name: "посещаемость 4 означает отмену",
			raw:  `{"id": 3, "attendance": 4}`,
			want: StatusCancelled,
		},
		{
			name: "посещаемость 5 означает отмену",
			raw:  `{"id": 4, "attendance": "5"}`,
			want: StatusCancelled,
		},
		{
			name: "текстовый статус cancelled",
			raw:  `{"id": 5, "status": "cancelled_by_client"}`,
			want: StatusCancelled,
		},
		{
			name: "текстовый статус visit_confirmed",
			raw:  `{"id": 6, "status": "visit_confirmed"}`,
			want: StatusCompleted,
		},
		{
			name: "оплата без статуса трактуется как визит",
			raw:  `{"id": 7, "is_payed": 1}`,
			want: StatusCompleted,
		},
		{
			name: "новая запись без признаков",
			raw:  `{"id": 8, "attendance": 0}`,
			want: StatusCreated,
		},
		{
			name: "посещаемость 3 не терминальна",
			raw:  `{"id": 9, "attendance": 3}`,
			want: StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MapRecordStatus(recordFromJSON(t, tt.raw)))
		})
	}
}

func TestStatusEventMapping(t *testing.T) {
	require.Equal(t, EventCompleted, statusEvent(StatusCompleted))
	require.Equal(t, EventCancelled, statusEvent(StatusCancelled))
	require.Equal(t, EventCreated, statusEvent(StatusCreated))
}
