// Package referral реализует реферальную программу: привязку кода
// пригласившего и начисление награды после первого визита приглашённого.
package referral

import "time"

// PendingReferral — приглашённый пользователь, ожидающий награды:
// код привязан, награда не выдана, клиент новый и известен в YClients.
type PendingReferral struct {
	UserID           int64
	TelegramID       int64
	FullName         *string
	YClientsClientID int64
	ReferredByCode   string
	ReferralBoundAt  *time.Time
}

// SweepStats — счётчики одного прохода проверки визитов.
type SweepStats struct {
	Checked  int `json:"checked"`
	Rewarded int `json:"rewarded"`
	Skipped  int `json:"skipped"`
}
