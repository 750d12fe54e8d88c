package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/bonus"
)

// Repository выполняет операции реферальной программы над БД.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий рефералов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// PendingReferrals возвращает приглашённых, ожидающих награды.
func (r *Repository) PendingReferrals(ctx context.Context) ([]PendingReferral, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.telegram_id, u.full_name, u.yclients_client_id,
		       b.referred_by_code, b.referral_bound_at
		FROM user_bonuses b
		JOIN users u ON u.id = b.user_id
		WHERE b.referred_by_code IS NOT NULL
		  AND b.referral_visit_reward_given = FALSE
		  AND u.is_new_client = TRUE
		  AND u.yclients_client_id IS NOT NULL
		ORDER BY u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки ожидающих рефералов: %w", err)
	}
	defer rows.Close()

	var out []PendingReferral
	for rows.Next() {
		var p PendingReferral
		if err := rows.Scan(&p.UserID, &p.TelegramID, &p.FullName, &p.YClientsClientID,
			&p.ReferredByCode, &p.ReferralBoundAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения реферала: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RewardReferral выдаёт награду пригласившему в одной транзакции:
// начисляет бонусы, увеличивает реферальный заработок и помечает
// приглашённого как вознаграждённого. Счета блокируются в порядке
// возрастания id, чтобы исключить взаимную блокировку.
// Возвращает новый баланс пригласившего.
func (r *Repository) RewardReferral(ctx context.Context, inviterID, invitedID, amount int64, comment string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := inviterID, invitedID
	if second < first {
		first, second = second, first
	}
	for _, id := range []int64{first, second} {
		if _, err := tx.Exec(ctx, `
			SELECT user_id FROM user_bonuses WHERE user_id = $1 FOR UPDATE
		`, id); err != nil {
			return 0, fmt.Errorf("ошибка блокировки счёта %d: %w", id, err)
		}
	}

	// Повторная проверка под блокировкой: награда строго однократна.
	var alreadyGiven bool
	err = tx.QueryRow(ctx, `
		SELECT referral_visit_reward_given FROM user_bonuses WHERE user_id = $1
	`, invitedID).Scan(&alreadyGiven)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, common.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения счёта приглашённого: %w", err)
	}
	if alreadyGiven {
		return 0, common.ErrAlreadyGranted
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE user_bonuses
		SET balance = balance + $2, referral_earned = referral_earned + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`, inviterID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, common.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка начисления реферальной награды: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bonus_transactions (user_id, amount, type, source, comment)
		VALUES ($1, $2, $3, $4, $5)
	`, inviterID, amount, bonus.TypeAccrual, bonus.SourceReferral, comment); err != nil {
		return 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_bonuses SET referral_visit_reward_given = TRUE, updated_at = NOW()
		WHERE user_id = $1
	`, invitedID); err != nil {
		return 0, fmt.Errorf("ошибка отметки награды: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return balance, nil
}
