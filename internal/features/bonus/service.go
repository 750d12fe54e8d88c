package bonus

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/common"
)

// Операции ручной корректировки.
const (
	OperationAccrual  = "accrual"
	OperationWriteoff = "writeoff"
)

// Store — хранилище бонусных счетов. Реализуется Repository, в тестах
// подменяется фейком в памяти.
type Store interface {
	EnsureAccount(ctx context.Context, userID int64) (*Account, error)
	GetAccount(ctx context.Context, userID int64) (*Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*Account, error)
	Apply(ctx context.Context, p ApplyParams) (int64, error)
	GrantOnce(ctx context.Context, userID int64, flag TaskFlag, amount int64, source string, comment *string) (bool, int64, error)
	SetReferredBy(ctx context.Context, userID int64, code string, boundAt time.Time) error
	GetConfig(ctx context.Context) (Config, error)
	ApplyPromocode(ctx context.Context, userID int64, code string) (int64, int64, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
	AnotherUserHasWelcomeForClient(ctx context.Context, clientID, excludeUserID int64) (bool, error)
}

// BalancePusher отправляет новый баланс во внешнюю систему лояльности.
// Ошибки отправки не прерывают локальную операцию.
type BalancePusher interface {
	PushBalance(ctx context.Context, userID int64, newBalance int64, delta int64) bool
}

// Auditor пишет действия администратора в журнал аудита.
type Auditor interface {
	Audit(ctx context.Context, adminUsername, action, details string) error
}

// Service — бизнес-логика бонусного счёта.
type Service struct {
	store   Store
	pusher  BalancePusher
	auditor Auditor
}

// NewService создаёт сервис бонусов. pusher и auditor могут быть nil.
func NewService(store Store, pusher BalancePusher, auditor Auditor) *Service {
	return &Service{store: store, pusher: pusher, auditor: auditor}
}

// EnsureAccount возвращает счёт, создавая его при первом обращении.
func (s *Service) EnsureAccount(ctx context.Context, userID int64) (*Account, error) {
	return s.store.EnsureAccount(ctx, userID)
}

// GetAccount возвращает счёт пользователя.
func (s *Service) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	return s.store.GetAccount(ctx, userID)
}

// GetConfig возвращает размеры наград.
func (s *Service) GetConfig(ctx context.Context) (Config, error) {
	return s.store.GetConfig(ctx)
}

// Transactions возвращает последние транзакции пользователя.
func (s *Service) Transactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

// Credit начисляет бонусы. amount должен быть положительным.
func (s *Service) Credit(ctx context.Context, userID, amount int64, source, comment string) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	var c *string
	if comment != "" {
		c = &comment
	}
	balance, err := s.store.Apply(ctx, ApplyParams{
		UserID: userID, Amount: amount, Type: TypeAccrual, Source: source, Comment: c,
	})
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"source":  source,
	}).Info("начислены бонусы")
	return balance, nil
}

// Debit списывает бонусы. amount должен быть положительным, баланс
// не может уйти в минус.
func (s *Service) Debit(ctx context.Context, userID, amount int64, source, comment string) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	var c *string
	if comment != "" {
		c = &comment
	}
	balance, err := s.store.Apply(ctx, ApplyParams{
		UserID: userID, Amount: -amount, Type: TypeDebit, Source: source, Comment: c,
	})
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"source":  source,
	}).Info("списаны бонусы")
	return balance, nil
}

// GrantOnce выдаёт разовую награду. Повторный вызов возвращает
// (false, текущий баланс, nil) без изменения счёта.
func (s *Service) GrantOnce(ctx context.Context, userID int64, flag TaskFlag, amount int64, source, comment string) (bool, int64, error) {
	if amount <= 0 {
		return false, 0, common.ErrInvalidAmount
	}
	var c *string
	if comment != "" {
		c = &comment
	}
	granted, balance, err := s.store.GrantOnce(ctx, userID, flag, amount, source, c)
	if err == common.ErrAlreadyGranted {
		return false, balance, nil
	}
	if err != nil {
		return false, 0, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"flag":    string(flag),
		"amount":  amount,
	}).Info("выдана разовая награда")
	s.push(ctx, userID, balance, amount)
	return granted, balance, nil
}

// GrantWelcome выдаёт приветственный бонус. Помимо флага на счёте
// проверяется клиент YClients: один и тот же клиент салона не получает
// приветственный бонус дважды через разные Telegram-аккаунты.
func (s *Service) GrantWelcome(ctx context.Context, userID int64, yclientsClientID *int64) (bool, int64, error) {
	if yclientsClientID != nil {
		taken, err := s.store.AnotherUserHasWelcomeForClient(ctx, *yclientsClientID, userID)
		if err != nil {
			return false, 0, err
		}
		if taken {
			acc, err := s.store.GetAccount(ctx, userID)
			if err != nil {
				return false, 0, err
			}
			log.WithFields(log.Fields{
				"user_id":   userID,
				"client_id": *yclientsClientID,
			}).Warn("приветственный бонус уже выдан этому клиенту салона")
			return false, acc.Balance, nil
		}
	}

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return false, 0, err
	}
	return s.GrantOnce(ctx, userID, FlagWelcome, cfg.WelcomeBonus, SourceWelcome, "Приветственный бонус")
}

// ManualAdjust выполняет ручную корректировку баланса администратором:
// проверяет параметры, пишет транзакцию, журнал аудита и отправляет
// новый баланс во внешнюю систему.
func (s *Service) ManualAdjust(ctx context.Context, adminUsername string, userID int64, operation string, amount int64, comment string) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if strings.TrimSpace(comment) == "" {
		return 0, fmt.Errorf("комментарий обязателен для ручной корректировки")
	}

	var signed int64
	var txType string
	switch operation {
	case OperationAccrual:
		signed, txType = amount, TypeAccrual
	case OperationWriteoff:
		signed, txType = -amount, TypeDebit
	default:
		return 0, fmt.Errorf("неизвестная операция: %q", operation)
	}

	balance, err := s.store.Apply(ctx, ApplyParams{
		UserID: userID, Amount: signed, Type: txType, Source: SourceManual, Comment: &comment,
	})
	if err != nil {
		return 0, err
	}

	if s.auditor != nil {
		details := fmt.Sprintf("user_id=%d operation=%s amount=%d comment=%s", userID, operation, amount, comment)
		if err := s.auditor.Audit(ctx, adminUsername, "manual_bonus", details); err != nil {
			log.WithError(err).Warn("не удалось записать журнал аудита")
		}
	}

	log.WithFields(log.Fields{
		"admin":     adminUsername,
		"user_id":   userID,
		"operation": operation,
		"amount":    amount,
		"balance":   balance,
	}).Info("ручная корректировка баланса")

	s.push(ctx, userID, balance, signed)
	return balance, nil
}

// ApplyPromocode применяет промокод и отправляет баланс во внешнюю систему.
func (s *Service) ApplyPromocode(ctx context.Context, userID int64, code string) (int64, int64, error) {
	amount, balance, err := s.store.ApplyPromocode(ctx, userID, code)
	if err != nil {
		return 0, 0, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"code":    strings.ToUpper(strings.TrimSpace(code)),
		"amount":  amount,
	}).Info("применён промокод")
	s.push(ctx, userID, balance, amount)
	return amount, balance, nil
}

func (s *Service) push(ctx context.Context, userID, balance, delta int64) {
	if s.pusher == nil {
		return
	}
	if ok := s.pusher.PushBalance(ctx, userID, balance, delta); !ok {
		log.WithField("user_id", userID).Warn("баланс не отправлен во внешнюю систему")
	}
}
