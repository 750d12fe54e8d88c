// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях ядра.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отдавать вызывающей стороне понятный результат.
package common

import "errors"

// Ошибки бонусного счёта
var (
	// ErrInsufficientBalance — списание увело бы баланс в минус
	ErrInsufficientBalance = errors.New("недостаточно бонусов на счёте")
	// ErrAlreadyGranted — одноразовый бонус уже выдавался
	ErrAlreadyGranted = errors.New("бонус уже был начислен ранее")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrAccountNotFound — бонусный счёт не найден
	ErrAccountNotFound = errors.New("бонусный счёт не найден")
)

// Ошибки синхронизации с YClients
var (
	// ErrSyncBusy — синхронизация записей уже выполняется
	ErrSyncBusy = errors.New("синхронизация уже выполняется")
	// ErrCRMUnavailable — YClients недоступен или вернул некорректный ответ
	ErrCRMUnavailable = errors.New("внешняя CRM недоступна")
	// ErrNoLoyaltyCard — у клиента нет карты лояльности нужного типа
	ErrNoLoyaltyCard = errors.New("карта лояльности не найдена")
)

// Ошибки реферальной программы
var (
	// ErrReferralAlreadyBound — пользователь уже привязан к коду
	ErrReferralAlreadyBound = errors.New("реферальный код уже привязан")
	// ErrReferralCodeNotFound — код пригласившего не существует
	ErrReferralCodeNotFound = errors.New("реферальный код не найден")
	// ErrSelfReferral — попытка использовать собственный код
	ErrSelfReferral = errors.New("нельзя использовать собственный реферальный код")
)

// Ошибки промокодов
var (
	ErrPromocodeNotFound = errors.New("промокод не найден")
	ErrPromocodeInactive = errors.New("промокод неактивен")
	ErrPromocodeNotYet   = errors.New("промокод ещё не активен")
	ErrPromocodeExpired  = errors.New("срок действия промокода истёк")
	ErrPromocodeDepleted = errors.New("промокод исчерпан")
	ErrPromocodeUsed     = errors.New("вы уже использовали этот промокод")
)

// Ошибки админки
var (
	// ErrNotAuthenticated — токен сессии отсутствует или недействителен
	ErrNotAuthenticated = errors.New("требуется авторизация")
	// ErrWrongPassword — неверный логин или пароль
	ErrWrongPassword = errors.New("неверный логин или пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)
