// Package jobs управляет фоновыми задачами (cron):
// периодическая сверка записей и проверка реферальных визитов.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/booking"
	"ashlounge.ru/loyalty-bot/internal/features/referral"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *booking.Reconciler
	referrals  *referral.Service

	syncInterval     time.Duration
	referralInterval time.Duration
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(reconciler *booking.Reconciler, referrals *referral.Service, syncInterval, referralInterval time.Duration) *Scheduler {
	c := cron.New(cron.WithLocation(common.MoscowLocation()))

	return &Scheduler{
		cron:             c,
		reconciler:       reconciler,
		referrals:        referrals,
		syncInterval:     syncInterval,
		referralInterval: referralInterval,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	// Сверка записей с CRM
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.syncInterval), func() {
		log.Debug("[CRON] Запуск сверки записей")
		if _, err := s.reconciler.Run(ctx); err != nil {
			if errors.Is(err, common.ErrSyncBusy) {
				log.Debug("[CRON] Сверка ещё выполняется, пропуск")
				return
			}
			log.WithError(err).Error("[CRON] Ошибка сверки записей")
		}
	})
	if err != nil {
		return fmt.Errorf("ошибка регистрации задачи сверки: %w", err)
	}

	// Проверка реферальных визитов
	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.referralInterval), func() {
		log.Debug("[CRON] Проверка реферальных визитов")
		if _, err := s.referrals.Sweep(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка проверки рефералов")
		}
	})
	if err != nil {
		return fmt.Errorf("ошибка регистрации реферальной задачи: %w", err)
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"sync_interval":     s.syncInterval.String(),
		"referral_interval": s.referralInterval.String(),
	}).Info("Планировщик задач запущен (Europe/Moscow)")
	return nil
}

// Stop останавливает планировщик и дожидается завершения задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
