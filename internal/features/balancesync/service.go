// Package balancesync выравнивает бонусные балансы между локальной БД
// и картами лояльности YClients в обе стороны.
package balancesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/bonus"
	"ashlounge.ru/loyalty-bot/internal/features/users"
	"ashlounge.ru/loyalty-bot/internal/yclients"
)

// CRM — операции с картами лояльности YClients.
type CRM interface {
	GetOrCreateBotLoyaltyCard(ctx context.Context, phoneRaw string) (int64, error)
	GetBotCardBalance(ctx context.Context, phoneRaw string) (int64, error)
	ApplyLoyaltyTransaction(ctx context.Context, cardID, amount int64, title string) error
}

// Accounts — операции с локальными бонусными счетами.
type Accounts interface {
	GetAccount(ctx context.Context, userID int64) (*bonus.Account, error)
	Apply(ctx context.Context, p bonus.ApplyParams) (int64, error)
}

// UserDirectory отдаёт пользователей для синхронизации.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (*users.User, error)
	ListWithPhone(ctx context.Context) ([]*users.User, error)
}

// Stats — результат массовой синхронизации.
type Stats struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Errors int `json:"errors"`
}

// Service выравнивает балансы. Ошибки внешней системы не считаются
// фатальными: повторная синхронизация доведёт балансы до согласия.
type Service struct {
	crm      CRM
	accounts Accounts
	userDir  UserDirectory

	batchSize  int
	batchPause time.Duration
}

// NewService создаёт синхронизатор балансов.
func NewService(crm CRM, accounts Accounts, userDir UserDirectory, batchSize int, batchPause time.Duration) *Service {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Service{
		crm:        crm,
		accounts:   accounts,
		userDir:    userDir,
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// PushBalance отправляет новый локальный баланс во внешнюю систему.
// delta — известная величина изменения; 0 означает «вычислить по
// фактическому внешнему балансу». Возвращает true при успехе,
// ошибки логируются и не прерывают вызывающую операцию.
func (s *Service) PushBalance(ctx context.Context, userID, newBalance, delta int64) bool {
	user, err := s.userDir.Get(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("пользователь для синхронизации не найден")
		return false
	}
	return s.pushUser(ctx, user, newBalance, delta)
}

func (s *Service) pushUser(ctx context.Context, user *users.User, newBalance, delta int64) bool {
	if user.Phone == nil || *user.Phone == "" {
		return false
	}

	cardID, err := s.crm.GetOrCreateBotLoyaltyCard(ctx, *user.Phone)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("не удалось получить карту лояльности")
		return false
	}

	amount := delta
	if amount == 0 {
		external, err := s.crm.GetBotCardBalance(ctx, *user.Phone)
		if err != nil && !errors.Is(err, common.ErrNoLoyaltyCard) {
			log.WithError(err).WithField("user_id", user.ID).Warn("не удалось прочитать внешний баланс")
			return false
		}
		amount = newBalance - external
	}
	if amount == 0 {
		return true
	}

	if err := s.crm.ApplyLoyaltyTransaction(ctx, cardID, amount, yclients.LoyaltyTransactionTitle); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": user.ID,
			"card_id": cardID,
			"amount":  amount,
		}).Warn("не удалось изменить внешний баланс")
		return false
	}

	log.WithFields(log.Fields{
		"user_id": user.ID,
		"amount":  amount,
		"balance": newBalance,
	}).Info("баланс отправлен во внешнюю систему")
	return true
}

// PullBalance подтягивает внешний баланс пользователя: расхождение
// оформляется корректирующей транзакцией, после чего локальный баланс
// равен внешнему. Возвращает итоговый баланс.
func (s *Service) PullBalance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userDir.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.Phone == nil || *user.Phone == "" {
		return 0, fmt.Errorf("у пользователя %d нет телефона", userID)
	}

	account, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	external, err := s.crm.GetBotCardBalance(ctx, *user.Phone)
	if errors.Is(err, common.ErrNoLoyaltyCard) {
		// Карты ещё нет: отсутствие карты не означает нулевой баланс.
		return account.Balance, nil
	}
	if err != nil {
		return 0, err
	}

	diff := external - account.Balance
	if diff == 0 {
		return account.Balance, nil
	}

	txType := bonus.TypeAccrual
	if diff < 0 {
		txType = bonus.TypeDebit
	}
	comment := fmt.Sprintf("Выравнивание по внешнему балансу (%d -> %d)", account.Balance, external)
	balance, err := s.accounts.Apply(ctx, bonus.ApplyParams{
		UserID:        userID,
		Amount:        diff,
		Type:          txType,
		Source:        bonus.SourceExternalSync,
		Comment:       &comment,
		AllowNegative: true,
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"diff":    diff,
		"balance": balance,
	}).Info("локальный баланс выровнен по внешнему")
	return balance, nil
}

// SyncAll отправляет балансы всех пользователей с телефоном во внешнюю
// систему, порциями с паузой, чтобы не упереться в лимиты API.
func (s *Service) SyncAll(ctx context.Context) (Stats, error) {
	var stats Stats

	all, err := s.userDir.ListWithPhone(ctx)
	if err != nil {
		return stats, err
	}
	stats.Total = len(all)

	for start := 0; start < len(all); start += s.batchSize {
		end := start + s.batchSize
		if end > len(all) {
			end = len(all)
		}

		g, gctx := errgroup.WithContext(ctx)
		results := make([]bool, end-start)
		for i, user := range all[start:end] {
			i, user := i, user
			g.Go(func() error {
				account, err := s.accounts.GetAccount(gctx, user.ID)
				if err != nil {
					log.WithError(err).WithField("user_id", user.ID).
						Warn("счёт для синхронизации не найден")
					return nil
				}
				results[i] = s.pushUser(gctx, user, account.Balance, 0)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
		for _, ok := range results {
			if ok {
				stats.Synced++
			} else {
				stats.Errors++
			}
		}

		if end < len(all) && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}

	log.WithFields(log.Fields{
		"total":  stats.Total,
		"synced": stats.Synced,
		"errors": stats.Errors,
	}).Info("массовая синхронизация балансов завершена")
	return stats, nil
}
