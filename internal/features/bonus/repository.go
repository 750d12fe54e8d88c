package bonus

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ashlounge.ru/loyalty-bot/internal/common"
)

// Алфавит реферального кода без похожих символов (0/O, 1/I).
const referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const referralCodeLength = 8

// Repository выполняет все операции со счётами и журналом транзакций.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий бонусов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func generateReferralCode() (string, error) {
	var b strings.Builder
	for i := 0; i < referralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referralCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("ошибка генерации реферального кода: %w", err)
		}
		b.WriteByte(referralCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

const accountColumns = `user_id, balance,
	welcome_given, channel_given, review_yandex_given, review_2gis_given,
	referral_code, referred_by_code, referral_earned,
	referral_bound_at, referred_registration_notified,
	referral_visit_reward_given, first_visit_review_notified,
	created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.UserID, &a.Balance,
		&a.WelcomeGiven, &a.ChannelGiven, &a.ReviewYandexGiven, &a.Review2GISGiven,
		&a.ReferralCode, &a.ReferredByCode, &a.ReferralEarned,
		&a.ReferralBoundAt, &a.ReferredRegistrationNotified,
		&a.ReferralVisitRewardGiven, &a.FirstVisitReviewNotified,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения бонусного счёта: %w", err)
	}
	return &a, nil
}

// flagColumn сопоставляет разовую награду колонке таблицы. Белый список
// защищает от подстановки произвольного имени колонки в запрос.
func flagColumn(flag TaskFlag) (string, error) {
	switch flag {
	case FlagWelcome, FlagChannel, FlagReviewYndx, FlagReview2GIS:
		return string(flag), nil
	}
	return "", fmt.Errorf("неизвестный флаг награды: %q", flag)
}

// EnsureAccount возвращает счёт пользователя, создавая его при отсутствии.
// Реферальный код генерируется при создании; коллизии по уникальному
// индексу разрешаются повторной попыткой.
func (r *Repository) EnsureAccount(ctx context.Context, userID int64) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_bonuses WHERE user_id = $1`, accountColumns)

	acc, err := scanAccount(r.db.QueryRow(ctx, query, userID))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, common.ErrAccountNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return nil, err
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO user_bonuses (user_id, referral_code)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, code)
		if err == nil {
			return scanAccount(r.db.QueryRow(ctx, query, userID))
		}
		if !strings.Contains(err.Error(), "user_bonuses_referral_code_key") {
			return nil, fmt.Errorf("ошибка создания бонусного счёта: %w", err)
		}
	}
	return nil, fmt.Errorf("не удалось подобрать уникальный реферальный код")
}

// GetAccount возвращает счёт пользователя.
func (r *Repository) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_bonuses WHERE user_id = $1`, accountColumns)
	return scanAccount(r.db.QueryRow(ctx, query, userID))
}

// GetAccountByReferralCode находит счёт по реферальному коду.
func (r *Repository) GetAccountByReferralCode(ctx context.Context, code string) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_bonuses WHERE referral_code = $1`, accountColumns)
	return scanAccount(r.db.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(code))))
}

// Apply выполняет движение по счёту: блокирует строку, проверяет
// достаточность баланса, обновляет его и пишет транзакцию в журнал.
// Возвращает новый баланс.
func (r *Repository) Apply(ctx context.Context, p ApplyParams) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM user_bonuses WHERE user_id = $1 FOR UPDATE
	`, p.UserID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, common.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка блокировки счёта: %w", err)
	}

	newBalance := balance + p.Amount
	if newBalance < 0 && !p.AllowNegative {
		return 0, common.ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_bonuses SET balance = $2, updated_at = NOW() WHERE user_id = $1
	`, p.UserID, newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления баланса: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bonus_transactions (user_id, amount, type, source, comment)
		VALUES ($1, $2, $3, $4, $5)
	`, p.UserID, p.Amount, p.Type, p.Source, p.Comment)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return newBalance, nil
}

// GrantOnce начисляет разовую награду, если она ещё не выдавалась.
// Проверка флага, его установка и начисление выполняются в одной
// транзакции под блокировкой строки. Возвращает (выдано, новый баланс).
func (r *Repository) GrantOnce(ctx context.Context, userID int64, flag TaskFlag, amount int64, source string, comment *string) (bool, int64, error) {
	column, err := flagColumn(flag)
	if err != nil {
		return false, 0, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	var given bool
	query := fmt.Sprintf(`
		SELECT balance, %s FROM user_bonuses WHERE user_id = $1 FOR UPDATE
	`, column)
	err = tx.QueryRow(ctx, query, userID).Scan(&balance, &given)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, common.ErrAccountNotFound
	}
	if err != nil {
		return false, 0, fmt.Errorf("ошибка блокировки счёта: %w", err)
	}

	if given {
		return false, balance, common.ErrAlreadyGranted
	}

	newBalance := balance + amount
	update := fmt.Sprintf(`
		UPDATE user_bonuses SET balance = $2, %s = TRUE, updated_at = NOW() WHERE user_id = $1
	`, column)
	if _, err := tx.Exec(ctx, update, userID, newBalance); err != nil {
		return false, 0, fmt.Errorf("ошибка обновления счёта: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bonus_transactions (user_id, amount, type, source, comment)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, amount, TypeAccrual, source, comment)
	if err != nil {
		return false, 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return true, newBalance, nil
}

// AnotherUserHasWelcomeForClient проверяет, получал ли приветственный
// бонус другой пользователь, привязанный к тому же клиенту YClients.
// Перепривязка Telegram-аккаунта к чужому номеру не даёт второй бонус.
func (r *Repository) AnotherUserHasWelcomeForClient(ctx context.Context, clientID, excludeUserID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM user_bonuses b
			JOIN users u ON u.id = b.user_id
			WHERE u.yclients_client_id = $1 AND b.user_id <> $2 AND b.welcome_given = TRUE
		)
	`, clientID, excludeUserID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки приветственного бонуса: %w", err)
	}
	return exists, nil
}

// SetReferredBy привязывает счёт к реферальному коду пригласившего.
func (r *Repository) SetReferredBy(ctx context.Context, userID int64, code string, boundAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_bonuses
		SET referred_by_code = $2, referral_bound_at = $3, updated_at = NOW()
		WHERE user_id = $1
	`, userID, code, boundAt)
	if err != nil {
		return fmt.Errorf("ошибка привязки реферального кода: %w", err)
	}
	return nil
}

// MarkRegistrationNotified отмечает, что пригласивший уведомлён о регистрации.
func (r *Repository) MarkRegistrationNotified(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE user_bonuses SET referred_registration_notified = TRUE, updated_at = NOW()
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("ошибка отметки уведомления: %w", err)
	}
	return nil
}

// ListTransactions возвращает последние транзакции пользователя.
func (r *Repository) ListTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, type, source, comment, created_at
		FROM bonus_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Source, &t.Comment, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения транзакции: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// GetConfig возвращает настройки наград, создавая строку с умолчаниями
// при первом обращении.
func (r *Repository) GetConfig(ctx context.Context) (Config, error) {
	def := DefaultConfig()
	var cfg Config
	err := r.db.QueryRow(ctx, `
		SELECT welcome_bonus, subscription_bonus, review_bonus, referral_bonus
		FROM bonus_config WHERE id = 1
	`).Scan(&cfg.WelcomeBonus, &cfg.SubscriptionBonus, &cfg.ReviewBonus, &cfg.ReferralBonus)
	if errors.Is(err, pgx.ErrNoRows) {
		_, insErr := r.db.Exec(ctx, `
			INSERT INTO bonus_config (id, welcome_bonus, subscription_bonus, review_bonus, referral_bonus)
			VALUES (1, $1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, def.WelcomeBonus, def.SubscriptionBonus, def.ReviewBonus, def.ReferralBonus)
		if insErr != nil {
			return def, fmt.Errorf("ошибка инициализации настроек бонусов: %w", insErr)
		}
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("ошибка чтения настроек бонусов: %w", err)
	}
	return cfg, nil
}

// ApplyPromocode применяет промокод: проверяет активность, срок действия,
// лимит использований и повторное применение одним пользователем, затем
// начисляет бонусы и фиксирует использование. Всё в одной транзакции.
func (r *Repository) ApplyPromocode(ctx context.Context, userID int64, code string) (int64, int64, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var p Promocode
	err = tx.QueryRow(ctx, `
		SELECT id, code, amount, is_active, valid_from, valid_until, max_uses, current_uses
		FROM promocodes WHERE code = $1 FOR UPDATE
	`, normalized).Scan(&p.ID, &p.Code, &p.Amount, &p.IsActive, &p.ValidFrom, &p.ValidUntil, &p.MaxUses, &p.CurrentUses)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, common.ErrPromocodeNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка чтения промокода: %w", err)
	}

	now := time.Now()
	switch {
	case !p.IsActive:
		return 0, 0, common.ErrPromocodeInactive
	case p.ValidFrom != nil && now.Before(*p.ValidFrom):
		return 0, 0, common.ErrPromocodeNotYet
	case p.ValidUntil != nil && now.After(*p.ValidUntil):
		return 0, 0, common.ErrPromocodeExpired
	case p.MaxUses != nil && p.CurrentUses >= *p.MaxUses:
		return 0, 0, common.ErrPromocodeDepleted
	}

	var used bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM promocode_usages WHERE promocode_id = $1 AND user_id = $2)
	`, p.ID, userID).Scan(&used)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка проверки использования промокода: %w", err)
	}
	if used {
		return 0, 0, common.ErrPromocodeUsed
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM user_bonuses WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, common.ErrAccountNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка блокировки счёта: %w", err)
	}

	newBalance := balance + p.Amount
	if _, err := tx.Exec(ctx, `
		UPDATE user_bonuses SET balance = $2, updated_at = NOW() WHERE user_id = $1
	`, userID, newBalance); err != nil {
		return 0, 0, fmt.Errorf("ошибка обновления баланса: %w", err)
	}

	comment := fmt.Sprintf("Промокод %s", p.Code)
	if _, err := tx.Exec(ctx, `
		INSERT INTO bonus_transactions (user_id, amount, type, source, comment)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, p.Amount, TypeAccrual, SourcePromocode, comment); err != nil {
		return 0, 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO promocode_usages (promocode_id, user_id) VALUES ($1, $2)
	`, p.ID, userID); err != nil {
		return 0, 0, fmt.Errorf("ошибка записи использования промокода: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE promocodes SET current_uses = current_uses + 1 WHERE id = $1
	`, p.ID); err != nil {
		return 0, 0, fmt.Errorf("ошибка обновления счётчика промокода: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return p.Amount, newBalance, nil
}
