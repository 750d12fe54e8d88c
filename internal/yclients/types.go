// Package yclients — types.go описывает записи, клиентов и карты лояльности
// в том виде, в котором их отдаёт YClients API v2.
//
// Поля записей в разных инсталляциях приходят в разных типах:
// attendance бывает числом и строкой, флаги оплаты — bool, числом и строкой.
// Flex-типы терпимо разбирают все эти варианты, чтобы одна кривая запись
// не валила разбор всей страницы.
package yclients

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// FlexInt — целое, которое может прийти числом, числовой строкой или null.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// не число — считаем отсутствующим, а не ошибкой разбора
		*f = 0
		return nil
	}
	*f = FlexInt(v)
	return nil
}

// FlexString — строка, которая может прийти числом, bool или null.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(string(b))
	return nil
}

// FlexBool — флаг, который может прийти bool, числом (ненулевое = true)
// или строкой ("1"/"true").
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s := strings.ToLower(strings.Trim(string(b), `"`))
	switch s {
	case "", "null", "false", "0", "0.0":
		*f = false
	case "true":
		*f = true
	default:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*f = v != 0
			return nil
		}
		*f = false
	}
	return nil
}

// RecordClient — вложенный блок client в записи.
type RecordClient struct {
	ID    FlexInt `json:"id"`
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
}

// Record — запись (бронирование/визит) в YClients.
type Record struct {
	ID        FlexInt `json:"id"`
	RecordID  FlexInt `json:"record_id"`
	BookingID FlexInt `json:"booking_id"`

	Client      *RecordClient `json:"client"`
	ClientID    FlexInt       `json:"client_id"`
	Phone       string        `json:"phone"`
	ClientPhone string        `json:"client_phone"`

	Datetime   FlexString `json:"datetime"`
	Date       FlexString `json:"date"`
	CreateDate FlexString `json:"create_date"`
	CreatedAt  FlexString `json:"created_at"`
	StartTime  FlexString `json:"start_time"`

	Attendance      FlexString `json:"attendance"`
	VisitAttendance FlexString `json:"visit_attendance"`
	Status          FlexString `json:"status"`

	IsPayed       FlexBool   `json:"is_payed"`
	IsPaid        FlexBool   `json:"is_paid"`
	PaidFull      FlexBool   `json:"paid_full"`
	PaymentStatus FlexString `json:"payment_status"`

	Deleted FlexBool `json:"deleted"`
}

// ExternalID возвращает идентификатор записи.
// Популярные варианты: id, record_id, booking_id. 0 = id не найден.
func (r *Record) ExternalID() int64 {
	for _, v := range []FlexInt{r.ID, r.RecordID, r.BookingID} {
		if v != 0 {
			return int64(v)
		}
	}
	return 0
}

// ClientRef возвращает id клиента YClients: client_id или client.id.
func (r *Record) ClientRef() int64 {
	if r.ClientID != 0 {
		return int64(r.ClientID)
	}
	if r.Client != nil {
		return int64(r.Client.ID)
	}
	return 0
}

// RawPhone возвращает телефон клиента в сыром виде: client.phone,
// phone или client_phone — что найдётся первым.
func (r *Record) RawPhone() string {
	if r.Client != nil && r.Client.Phone != "" {
		return r.Client.Phone
	}
	if r.Phone != "" {
		return r.Phone
	}
	return r.ClientPhone
}

// StatusRaw — статус/посещаемость, первое непустое из
// attendance, visit_attendance, status.
func (r *Record) StatusRaw() string {
	for _, v := range []FlexString{r.Attendance, r.VisitAttendance, r.Status} {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// PaidIndicator — любой положительный признак оплаты:
// is_payed / is_paid / paid_full, payment_status == "paid"
// или числовой payment_status > 0.
func (r *Record) PaidIndicator() bool {
	if r.IsPayed || r.IsPaid || r.PaidFull {
		return true
	}
	ps := strings.ToLower(strings.TrimSpace(string(r.PaymentStatus)))
	if ps == "paid" {
		return true
	}
	if v, err := strconv.ParseFloat(ps, 64); err == nil && v > 0 {
		return true
	}
	return false
}

// AppointmentTime возвращает дату записи (UTC), если её удалось
// распарсить: create_date, date, datetime, start_time.
func (r *Record) AppointmentTime() (time.Time, bool) {
	for _, v := range []FlexString{r.CreateDate, r.Date, r.Datetime, r.StartTime} {
		if t, ok := ParseTime(string(v)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// CreatedTime возвращает время создания записи (UTC), если его удалось
// распарсить: create_date, created_at, datetime, date.
func (r *Record) CreatedTime() (time.Time, bool) {
	for _, v := range []FlexString{r.CreateDate, r.CreatedAt, r.Datetime, r.Date} {
		if t, ok := ParseTime(string(v)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// VisitTime — дата визита (UTC) для реферальной логики: datetime или date.
func (r *Record) VisitTime() (time.Time, bool) {
	for _, v := range []FlexString{r.Datetime, r.Date} {
		if t, ok := ParseTime(string(v)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTime разбирает дату из YClients: ISO 8601 в нескольких вариантах
// или unix-таймстамп. Возвращает время в UTC.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05-0700", // YClients отдаёт смещение без двоеточия
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	// unix-таймстамп числом
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
		return time.Unix(int64(v), 0).UTC(), true
	}

	return time.Time{}, false
}

// LoyaltyCard — карта лояльности клиента.
type LoyaltyCard struct {
	ID      int64   `json:"id"`
	TypeID  int64   `json:"type_id"`
	Balance FlexInt `json:"balance"`
}

// ClientInfo — клиент YClients (поиск по телефону / создание).
type ClientInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
