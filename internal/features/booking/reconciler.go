package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/users"
	"ashlounge.ru/loyalty-bot/internal/yclients"
)

// CRM отдаёт записи салона за период.
type CRM interface {
	GetAllRecords(ctx context.Context, start, end time.Time, includeDeleted bool) ([]yclients.Record, error)
}

// EventStore — журнал событий. Реализуется Repository.
type EventStore interface {
	LastClickAt(ctx context.Context, userID int64) (time.Time, bool, error)
	InsertEvent(ctx context.Context, userID, recordID int64, eventType string) (bool, error)
	HasEvent(ctx context.Context, userID, recordID int64, eventType string) (bool, error)
	DeleteCompletedForRecord(ctx context.Context, userID, recordID int64) (bool, error)
}

// UserResolver сопоставляет запись CRM локальному пользователю.
type UserResolver interface {
	ResolveByPhone(ctx context.Context, rawPhone string) (*users.User, error)
	ResolveByYClientsID(ctx context.Context, clientID int64) (*users.User, error)
	BindYClientsID(ctx context.Context, userID, clientID int64) error
}

// Reconciler периодически сверяет записи YClients с журналом событий.
type Reconciler struct {
	crm      CRM
	events   EventStore
	resolver UserResolver
	lookback time.Duration
	window   time.Duration

	mu      sync.Mutex
	running bool
}

// NewReconciler создаёт сверку. lookbackDays задаёт симметричное окно
// выборки записей, window — допуск атрибуции к клику.
func NewReconciler(crm CRM, events EventStore, resolver UserResolver, lookbackDays int, window time.Duration) *Reconciler {
	return &Reconciler{
		crm:      crm,
		events:   events,
		resolver: resolver,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		window:   window,
	}
}

// tryAcquire не даёт двум проходам сверки работать одновременно.
func (r *Reconciler) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Reconciler) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Run выполняет один проход сверки и возвращает счётчики. Параллельный
// вызов завершается common.ErrSyncBusy. Проход идемпотентен: повторный
// запуск по тем же данным не порождает новых событий.
func (r *Reconciler) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if !r.tryAcquire() {
		return stats, common.ErrSyncBusy
	}
	defer r.release()

	now := time.Now()
	start := now.Add(-r.lookback)
	end := now.Add(r.lookback)

	records, err := r.crm.GetAllRecords(ctx, start, end, true)
	if err != nil {
		return stats, err
	}

	log.WithField("records", len(records)).Info("начата сверка записей")

	for i := range records {
		rec := &records[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := r.processRecord(ctx, rec, &stats); err != nil {
			log.WithError(err).WithField("record_id", rec.ExternalID()).
				Warn("запись пропущена из-за ошибки")
		}
	}

	log.WithFields(log.Fields{
		"processed": stats.Processed,
		"created":   stats.Created,
		"completed": stats.Completed,
		"cancelled": stats.Cancelled,
	}).Info("сверка записей завершена")
	return stats, nil
}

func (r *Reconciler) processRecord(ctx context.Context, rec *yclients.Record, stats *Stats) error {
	recordID := rec.ExternalID()
	if recordID == 0 {
		return nil
	}

	user, err := r.resolveUser(ctx, rec)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	attributed, err := r.attributed(ctx, user.ID, rec)
	if err != nil {
		return err
	}
	if !attributed {
		return nil
	}
	stats.Processed++

	// Событие создания пишется всегда: терминальный статус не отменяет
	// факта, что запись была сделана.
	inserted, err := r.events.InsertEvent(ctx, user.ID, recordID, EventCreated)
	if err != nil {
		return err
	}
	if inserted {
		stats.Created++
	}

	switch statusEvent(MapRecordStatus(rec)) {
	case EventCompleted:
		cancelled, err := r.events.HasEvent(ctx, user.ID, recordID, EventCancelled)
		if err != nil {
			return err
		}
		if cancelled {
			// Отменённая запись не может стать визитом.
			return nil
		}
		inserted, err := r.events.InsertEvent(ctx, user.ID, recordID, EventCompleted)
		if err != nil {
			return err
		}
		if inserted {
			stats.Completed++
		}
	case EventCancelled:
		inserted, err := r.events.InsertEvent(ctx, user.ID, recordID, EventCancelled)
		if err != nil {
			return err
		}
		if inserted {
			stats.Cancelled++
		}
		removed, err := r.events.DeleteCompletedForRecord(ctx, user.ID, recordID)
		if err != nil {
			return err
		}
		if removed {
			log.WithFields(log.Fields{
				"user_id":   user.ID,
				"record_id": recordID,
			}).Info("событие визита снято после отмены записи")
		}
	}
	return nil
}

// resolveUser ищет пользователя по телефону, затем по id клиента YClients.
// При совпадении по телефону id клиента запоминается для будущих сверок.
func (r *Reconciler) resolveUser(ctx context.Context, rec *yclients.Record) (*users.User, error) {
	if raw := rec.RawPhone(); raw != "" {
		user, err := r.resolver.ResolveByPhone(ctx, raw)
		if err == nil {
			if clientID := rec.ClientRef(); clientID != 0 && user.YClientsClientID == nil {
				if bindErr := r.resolver.BindYClientsID(ctx, user.ID, clientID); bindErr != nil {
					log.WithError(bindErr).WithField("user_id", user.ID).
						Warn("не удалось сохранить id клиента YClients")
				}
			}
			return user, nil
		}
		if !errors.Is(err, common.ErrUserNotFound) {
			return nil, err
		}
	}

	if clientID := rec.ClientRef(); clientID != 0 {
		user, err := r.resolver.ResolveByYClientsID(ctx, clientID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, common.ErrUserNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// attributed проверяет, что запись сделана через бота: у пользователя
// есть клик по кнопке записи, а время создания записи отстоит от клика
// не больше чем на допуск.
func (r *Reconciler) attributed(ctx context.Context, userID int64, rec *yclients.Record) (bool, error) {
	clickAt, found, err := r.events.LastClickAt(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	reference, ok := rec.CreatedTime()
	if !ok {
		reference, ok = rec.AppointmentTime()
	}
	if !ok {
		// Запись без единой разборной даты не к чему привязывать.
		return false, nil
	}

	diff := reference.Sub(clickAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.window, nil
}
