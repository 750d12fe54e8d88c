package referral

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/bonus"
	"ashlounge.ru/loyalty-bot/internal/features/booking"
	"ashlounge.ru/loyalty-bot/internal/features/users"
	"ashlounge.ru/loyalty-bot/internal/yclients"
)

// Store — операции реферальной программы над БД. Реализуется Repository.
type Store interface {
	PendingReferrals(ctx context.Context) ([]PendingReferral, error)
	RewardReferral(ctx context.Context, inviterID, invitedID, amount int64, comment string) (int64, error)
}

// Accounts — нужные сервису операции бонусных счетов.
type Accounts interface {
	EnsureAccount(ctx context.Context, userID int64) (*bonus.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*bonus.Account, error)
	SetReferredBy(ctx context.Context, userID int64, code string, boundAt time.Time) error
	MarkRegistrationNotified(ctx context.Context, userID int64) error
	GetConfig(ctx context.Context) (bonus.Config, error)
}

// UserDirectory отдаёт пользователей по внутреннему id.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (*users.User, error)
}

// CRM отдаёт записи конкретного клиента за период.
type CRM interface {
	GetClientRecords(ctx context.Context, clientID int64, start, end time.Time) ([]yclients.Record, error)
}

// Notifier отправляет сообщения пользователям в Telegram.
type Notifier interface {
	Send(telegramID int64, text string) error
}

// BalancePusher отправляет баланс во внешнюю систему лояльности.
type BalancePusher interface {
	PushBalance(ctx context.Context, userID int64, newBalance int64, delta int64) bool
}

// Service — бизнес-логика реферальной программы.
type Service struct {
	store    Store
	accounts Accounts
	userDir  UserDirectory
	crm      CRM
	notifier Notifier
	pusher   BalancePusher

	lookback time.Duration
	delay    time.Duration
}

// NewService создаёт реферальный сервис. notifier и pusher могут быть nil.
// lookbackDays ограничивает глубину поиска визитов, delay — пауза после
// визита перед выдачей награды.
func NewService(store Store, accounts Accounts, userDir UserDirectory, crm CRM, notifier Notifier, pusher BalancePusher, lookbackDays int, delay time.Duration) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		userDir:  userDir,
		crm:      crm,
		notifier: notifier,
		pusher:   pusher,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		delay:    delay,
	}
}

// BindCode привязывает пользователя к реферальному коду пригласившего.
// Код привязывается один раз, свой собственный код использовать нельзя.
func (s *Service) BindCode(ctx context.Context, userID int64, code string) error {
	account, err := s.accounts.EnsureAccount(ctx, userID)
	if err != nil {
		return err
	}
	if account.ReferredByCode != nil {
		return common.ErrReferralAlreadyBound
	}

	inviter, err := s.accounts.GetAccountByReferralCode(ctx, code)
	if err != nil {
		return common.ErrReferralCodeNotFound
	}
	if inviter.UserID == userID {
		return common.ErrSelfReferral
	}

	if err := s.accounts.SetReferredBy(ctx, userID, inviter.ReferralCode, time.Now()); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user_id":    userID,
		"inviter_id": inviter.UserID,
		"code":       inviter.ReferralCode,
	}).Info("привязан реферальный код")

	s.notifyRegistration(ctx, userID, inviter.UserID)
	return nil
}

// notifyRegistration однократно сообщает пригласившему, что по его коду
// зарегистрировался друг.
func (s *Service) notifyRegistration(ctx context.Context, invitedID, inviterID int64) {
	if s.notifier == nil {
		return
	}
	invited, err := s.accounts.EnsureAccount(ctx, invitedID)
	if err != nil || invited.ReferredRegistrationNotified {
		return
	}
	inviter, err := s.userDir.Get(ctx, inviterID)
	if err != nil {
		log.WithError(err).WithField("user_id", inviterID).
			Warn("пригласивший не найден для уведомления")
		return
	}
	if err := s.notifier.Send(inviter.TelegramID,
		"По вашей реферальной ссылке зарегистрировался друг! Бонусы придут после его первого визита."); err != nil {
		log.WithError(err).WithField("telegram_id", inviter.TelegramID).
			Warn("не удалось уведомить пригласившего о регистрации")
		return
	}
	if err := s.accounts.MarkRegistrationNotified(ctx, invitedID); err != nil {
		log.WithError(err).Warn("не удалось отметить уведомление о регистрации")
	}
}

// Sweep проходит по ожидающим рефералам и выдаёт награды за состоявшиеся
// первые визиты. Награда выдаётся спустя паузу после визита и только если
// визит случился после привязки кода.
func (s *Service) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	pending, err := s.store.PendingReferrals(ctx)
	if err != nil {
		return stats, err
	}
	if len(pending) == 0 {
		return stats, nil
	}

	cfg, err := s.accounts.GetConfig(ctx)
	if err != nil {
		return stats, err
	}

	now := time.Now()
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++

		rewarded, err := s.processPending(ctx, &p, cfg.ReferralBonus, now)
		if err != nil {
			log.WithError(err).WithField("user_id", p.UserID).
				Warn("реферал пропущен из-за ошибки")
			stats.Skipped++
			continue
		}
		if rewarded {
			stats.Rewarded++
		} else {
			stats.Skipped++
		}
	}

	log.WithFields(log.Fields{
		"checked":  stats.Checked,
		"rewarded": stats.Rewarded,
	}).Info("проверка реферальных визитов завершена")
	return stats, nil
}

func (s *Service) processPending(ctx context.Context, p *PendingReferral, amount int64, now time.Time) (bool, error) {
	inviter, err := s.accounts.GetAccountByReferralCode(ctx, p.ReferredByCode)
	if err != nil {
		return false, fmt.Errorf("код %q не найден: %w", p.ReferredByCode, err)
	}
	if inviter.UserID == p.UserID {
		return false, nil
	}

	records, err := s.crm.GetClientRecords(ctx, p.YClientsClientID, now.Add(-s.lookback), now)
	if err != nil {
		return false, err
	}

	visitAt, found := latestCompletedVisit(records, now)
	if !found {
		return false, nil
	}
	if now.Sub(visitAt) < s.delay {
		// Даём CRM время на правки: отметку о визите могли поставить ошибочно.
		return false, nil
	}
	if p.ReferralBoundAt != nil && visitAt.Before(*p.ReferralBoundAt) {
		// Визит до привязки кода наградой не считается.
		return false, nil
	}

	comment := fmt.Sprintf("Реферальная награда за визит друга (user_id=%d)", p.UserID)
	balance, err := s.store.RewardReferral(ctx, inviter.UserID, p.UserID, amount, comment)
	if err == common.ErrAlreadyGranted {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log.WithFields(log.Fields{
		"inviter_id": inviter.UserID,
		"invited_id": p.UserID,
		"amount":     amount,
	}).Info("выдана реферальная награда")

	if s.pusher != nil {
		s.pusher.PushBalance(ctx, inviter.UserID, balance, amount)
	}
	s.notifyReward(ctx, p, inviter.UserID, amount, visitAt)
	return true, nil
}

// latestCompletedVisit выбирает самый поздний состоявшийся визит,
// игнорируя записи с датой в будущем.
func latestCompletedVisit(records []yclients.Record, now time.Time) (time.Time, bool) {
	var latest time.Time
	var found bool
	for i := range records {
		rec := &records[i]
		if booking.MapRecordStatus(rec) != booking.StatusCompleted {
			continue
		}
		visitAt, ok := rec.VisitTime()
		if !ok || visitAt.After(now) {
			continue
		}
		if !found || visitAt.After(latest) {
			latest = visitAt
			found = true
		}
	}
	return latest, found
}

func (s *Service) notifyReward(ctx context.Context, p *PendingReferral, inviterID, amount int64, visitAt time.Time) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(p.TelegramID, fmt.Sprintf(
		"Спасибо за визит! Вашему другу начислено %s за приглашение.",
		common.FormatBonuses(amount),
	)); err != nil {
		log.WithError(err).WithField("telegram_id", p.TelegramID).
			Warn("не удалось уведомить приглашённого")
	}

	inviter, err := s.userDir.Get(ctx, inviterID)
	if err != nil {
		log.WithError(err).WithField("user_id", inviterID).
			Warn("пригласивший не найден для уведомления")
		return
	}
	if err := s.notifier.Send(inviter.TelegramID, fmt.Sprintf(
		"Ваш друг посетил салон %s! Вам начислено %s.",
		common.FormatDateTime(visitAt),
		common.FormatBonuses(amount),
	)); err != nil {
		log.WithError(err).WithField("telegram_id", inviter.TelegramID).
			Warn("не удалось уведомить пригласившего")
	}
}
