// Package bonus реализует бонусный счёт пользователя: начисления,
// списания, разовые награды, промокоды и журнал транзакций.
package bonus

import "time"

// Типы транзакций.
const (
	TypeAccrual = "ACCRUAL"
	TypeDebit   = "DEBIT"
)

// Источники транзакций.
const (
	SourceWelcome      = "WELCOME"
	SourceSubscription = "SUBSCRIPTION"
	SourceReview       = "REVIEW"
	SourceReferral     = "REFERRAL"
	SourceManual       = "MANUAL"
	SourcePromocode    = "PROMOCODE"
	SourceExternalSync = "EXTERNAL_SYNC"
)

// TaskFlag — разовая награда, которую нельзя получить повторно.
type TaskFlag string

const (
	FlagWelcome     TaskFlag = "welcome_given"
	FlagChannel     TaskFlag = "channel_given"
	FlagReviewYndx  TaskFlag = "review_yandex_given"
	FlagReview2GIS  TaskFlag = "review_2gis_given"
)

// Account — бонусный счёт пользователя.
type Account struct {
	UserID  int64
	Balance int64

	WelcomeGiven      bool
	ChannelGiven      bool
	ReviewYandexGiven bool
	Review2GISGiven   bool

	ReferralCode   string
	ReferredByCode *string
	ReferralEarned int64

	ReferralBoundAt               *time.Time
	ReferredRegistrationNotified  bool
	ReferralVisitRewardGiven      bool
	FirstVisitReviewNotified      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FlagValue возвращает текущее значение разовой награды.
func (a *Account) FlagValue(flag TaskFlag) bool {
	switch flag {
	case FlagWelcome:
		return a.WelcomeGiven
	case FlagChannel:
		return a.ChannelGiven
	case FlagReviewYndx:
		return a.ReviewYandexGiven
	case FlagReview2GIS:
		return a.Review2GISGiven
	}
	return false
}

// Transaction — запись журнала движения бонусов.
// Amount подписанный: начисление положительное, списание отрицательное.
type Transaction struct {
	ID        int64
	UserID    int64
	Amount    int64
	Type      string
	Source    string
	Comment   *string
	CreatedAt time.Time
}

// Config — настраиваемые размеры наград. Хранится одной строкой.
type Config struct {
	WelcomeBonus      int64
	SubscriptionBonus int64
	ReviewBonus       int64
	ReferralBonus     int64
}

// DefaultConfig — значения наград по умолчанию.
func DefaultConfig() Config {
	return Config{
		WelcomeBonus:      500,
		SubscriptionBonus: 500,
		ReviewBonus:       500,
		ReferralBonus:     500,
	}
}

// Promocode — промокод на разовое начисление.
type Promocode struct {
	ID          int64
	Code        string
	Amount      int64
	IsActive    bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	MaxUses     *int64
	CurrentUses int64
	CreatedAt   time.Time
}

// ApplyParams — параметры движения по счёту.
type ApplyParams struct {
	UserID  int64
	Amount  int64 // подписанная величина
	Type    string
	Source  string
	Comment *string
	// AllowNegative разрешает уход баланса в минус. Используется только
	// выравниванием по внешнему балансу.
	AllowNegative bool
}
