// Package common содержит общие утилиты, используемые во всём проекте.
package common

import (
	"fmt"
	"math"
	"time"
)

// MoscowLocation возвращает часовой пояс Москвы.
// Если tzdata недоступна — фиксированный UTC+3.
func MoscowLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" по Москве.
// Используется для отображения дат транзакций и событий.
func FormatDateTime(t time.Time) string {
	return t.In(MoscowLocation()).Format("02.01.2006 15:04")
}

// PluralizeBonuses возвращает правильную форму слова «бонус» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "бонус" (1, 21, 31, 101, ...)
//   - n%10 в [2,4] И n%100 НЕ в [12,14] → "бонуса" (2, 3, 4, 22, ...)
//   - остальные случаи → "бонусов" (0, 5-20, 25-30, 100, ...)
func PluralizeBonuses(n int64) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "бонус"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "бонуса"
	}
	return "бонусов"
}

// FormatBonuses форматирует сумму бонусов в читабельную строку.
// Пример: FormatBonuses(150) → "150 бонусов"
func FormatBonuses(amount int64) string {
	return fmt.Sprintf("%d %s", amount, PluralizeBonuses(amount))
}
