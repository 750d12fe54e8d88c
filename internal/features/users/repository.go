// Package users — repository.go выполняет все операции с таблицей users.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ashlounge.ru/loyalty-bot/internal/common"
)

// Repository предоставляет методы для работы с пользователями.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий пользователей.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, telegram_id, username, full_name, phone, yclients_client_id,
	is_new_client, agreed_privacy, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.FullName, &u.Phone,
		&u.YClientsClientID, &u.IsNewClient, &u.AgreedPrivacy,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя: %w", err)
	}
	return &u, nil
}

// GetByID возвращает пользователя по внутреннему id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetByTelegramID возвращает пользователя по Telegram id.
func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE telegram_id = $1`, userColumns)
	return scanUser(r.db.QueryRow(ctx, query, telegramID))
}

// GetByYClientsID находит пользователя по id клиента YClients.
func (r *Repository) GetByYClientsID(ctx context.Context, clientID int64) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE yclients_client_id = $1 LIMIT 1`, userColumns)
	return scanUser(r.db.QueryRow(ctx, query, clientID))
}

// FindByPhoneVariants ищет пользователя по любому из вариантов написания
// телефона. Телефон в users хранится в исторически разных форматах.
func (r *Repository) FindByPhoneVariants(ctx context.Context, variants []string) (*User, error) {
	if len(variants) == 0 {
		return nil, common.ErrUserNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE phone = ANY($1) LIMIT 1`, userColumns)
	return scanUser(r.db.QueryRow(ctx, query, variants))
}

// ListWithPhone возвращает всех пользователей с заполненным телефоном.
// Используется массовой синхронизацией балансов.
func (r *Repository) ListWithPhone(ctx context.Context) ([]*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE phone IS NOT NULL ORDER BY id`, userColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки пользователей: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BindYClientsID запоминает id клиента YClients у пользователя,
// найденного по телефону.
func (r *Repository) BindYClientsID(ctx context.Context, userID, clientID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET yclients_client_id = $2, updated_at = NOW()
		WHERE id = $1 AND yclients_client_id IS NULL
	`, userID, clientID)
	if err != nil {
		return fmt.Errorf("ошибка привязки клиента YClients: %w", err)
	}
	return nil
}

// Upsert создаёт или обновляет пользователя.
// is_new_client записывается только если ранее не определялся —
// флаг «новый клиент» фиксируется навсегда при первом разрешении.
func (r *Repository) Upsert(ctx context.Context, p UpsertParams) (*User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (telegram_id, username, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO NOTHING
	`, p.TelegramID, p.Username, p.FullName)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET
			username           = COALESCE($2, username),
			full_name          = COALESCE($3, full_name),
			phone              = COALESCE($4, phone),
			agreed_privacy     = COALESCE($5, agreed_privacy),
			yclients_client_id = COALESCE($6, yclients_client_id),
			is_new_client      = CASE WHEN is_new_client IS NULL THEN $7 ELSE is_new_client END,
			updated_at         = NOW()
		WHERE telegram_id = $1
	`, p.TelegramID, p.Username, p.FullName, p.Phone, p.AgreedPrivacy, p.YClientsClientID, p.IsNewClient)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления пользователя: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE telegram_id = $1`, userColumns)
	u, err := scanUser(tx.QueryRow(ctx, query, p.TelegramID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return u, nil
}
