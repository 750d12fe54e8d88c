// Package phone нормализует телефонные номера под российский формат,
// который использует YClients, и строит варианты написания номера
// для поиска по исторически неконсистентным данным в нашей базе.
// Все функции чистые, без побочных эффектов.
package phone

import "strings"

// Normalize приводит произвольную строку с телефоном к виду 7XXXXXXXXXX.
//
// Поддерживаются варианты с +7, 7, 8, скобками, пробелами и дефисами:
//   - 11 цифр с ведущей 8 → 8 заменяется на 7
//   - 10 цифр (номер без кода страны) → добавляется 7
//
// Возвращает пустую строку, если после нормализации получилось
// не ровно 11 цифр.
func Normalize(raw string) string {
	digits := onlyDigits(raw)
	if digits == "" {
		return ""
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "8") {
		digits = "7" + digits[1:]
	}
	if len(digits) == 10 {
		digits = "7" + digits
	}
	if len(digits) != 11 {
		return ""
	}
	return digits
}

// Variants возвращает эквивалентные написания нормализованного номера:
// канонический 7XXXXXXXXXX, с +7, с 8 и без кода страны.
// Пользователи и старые выгрузки хранят телефон во всех четырёх видах.
// Для пустого или ненормализованного входа возвращает nil.
func Variants(normalized string) []string {
	if normalized == "" {
		return nil
	}
	if len(normalized) != 11 || !strings.HasPrefix(normalized, "7") {
		return []string{normalized}
	}
	core := normalized[1:]
	return []string{
		normalized,
		"+7" + core,
		"8" + core,
		core,
	}
}

// MatchVariants — нормализация и варианты одним вызовом.
func MatchVariants(raw string) []string {
	return Variants(Normalize(raw))
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
