// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, клиент YClients, репозитории,
// сервисы и собирает всё в один объект App.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ashlounge.ru/loyalty-bot/internal/config"
	"ashlounge.ru/loyalty-bot/internal/db/postgres"
	"ashlounge.ru/loyalty-bot/internal/features/admin"
	"ashlounge.ru/loyalty-bot/internal/features/balancesync"
	"ashlounge.ru/loyalty-bot/internal/features/bonus"
	"ashlounge.ru/loyalty-bot/internal/features/booking"
	"ashlounge.ru/loyalty-bot/internal/features/referral"
	"ashlounge.ru/loyalty-bot/internal/features/users"
	"ashlounge.ru/loyalty-bot/internal/jobs"
	"ashlounge.ru/loyalty-bot/internal/notify"
	"ashlounge.ru/loyalty-bot/internal/server"
	"ashlounge.ru/loyalty-bot/internal/yclients"
)

// App содержит все компоненты приложения.
type App struct {
	Server    *server.Server
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Внешние клиенты ===
	crm := yclients.NewClient(cfg)
	notifier, err := notify.New(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания нотификатора: %w", err)
	}

	// === 3. Репозитории ===
	userRepo := users.NewRepository(pool)
	bonusRepo := bonus.NewRepository(pool)
	bookingRepo := booking.NewRepository(pool)
	referralRepo := referral.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 4. Сервисы ===
	userService := users.NewService(userRepo)
	adminService := admin.NewService(adminRepo, cfg.AdminUsername, cfg.AdminPasswordHash)
	syncService := balancesync.NewService(crm, bonusRepo, userService,
		cfg.BalanceSyncBatchSize, cfg.BalanceSyncBatchPause)
	bonusService := bonus.NewService(bonusRepo, syncService, adminService)
	reconciler := booking.NewReconciler(crm, bookingRepo, userService,
		cfg.SyncLookbackDays, cfg.BookingWindow)
	referralService := referral.NewService(referralRepo, bonusRepo, userService, crm,
		notifier, syncService, cfg.ReferralLookbackDays, cfg.ReferralCheckDelay)

	// === 5. HTTP API и планировщик ===
	srv := server.New(adminService, reconciler, syncService, bonusService, bookingRepo, userService)
	scheduler := jobs.NewScheduler(reconciler, referralService, cfg.SyncInterval, cfg.ReferralCheckInterval)

	return &App{
		Server:    srv,
		Scheduler: scheduler,
		DB:        pool,
	}, nil
}

// runMigrations выполняет все SQL-миграции по порядку.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.InitMigrations(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002Bonuses},
		{3, migration003BookingEvents},
		{4, migration004Promocodes},
		{5, migration005BonusConfig},
		{6, migration006Admin},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
	}
	return nil
}

// --- SQL-миграции ---

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    telegram_id BIGINT NOT NULL UNIQUE,
    username TEXT,
    full_name TEXT,
    phone TEXT,
    yclients_client_id BIGINT,
    is_new_client BOOLEAN,
    agreed_privacy BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_users_phone ON users (phone) WHERE phone IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_users_yclients ON users (yclients_client_id) WHERE yclients_client_id IS NOT NULL;
`

var migration002Bonuses = `
CREATE TABLE IF NOT EXISTS user_bonuses (
    user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    balance BIGINT NOT NULL DEFAULT 0,
    welcome_given BOOLEAN NOT NULL DEFAULT FALSE,
    channel_given BOOLEAN NOT NULL DEFAULT FALSE,
    review_yandex_given BOOLEAN NOT NULL DEFAULT FALSE,
    review_2gis_given BOOLEAN NOT NULL DEFAULT FALSE,
    referral_code TEXT NOT NULL UNIQUE,
    referred_by_code TEXT,
    referral_earned BIGINT NOT NULL DEFAULT 0,
    referral_bound_at TIMESTAMPTZ,
    referred_registration_notified BOOLEAN NOT NULL DEFAULT FALSE,
    referral_visit_reward_given BOOLEAN NOT NULL DEFAULT FALSE,
    first_visit_review_notified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bonus_transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    amount BIGINT NOT NULL,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    comment TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bonus_tx_user ON bonus_transactions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bonuses_referred_by ON user_bonuses (referred_by_code) WHERE referred_by_code IS NOT NULL;
`

var migration003BookingEvents = `
CREATE TABLE IF NOT EXISTS booking_events (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    record_id BIGINT,
    event_type TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Одно событие каждого типа на запись: повторная вставка не проходит.
CREATE UNIQUE INDEX IF NOT EXISTS uq_booking_events_record
    ON booking_events (user_id, record_id, event_type)
    WHERE record_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_booking_events_clicks
    ON booking_events (user_id, event_type, created_at DESC);
`

var migration004Promocodes = `
CREATE TABLE IF NOT EXISTS promocodes (
    id BIGSERIAL PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    amount BIGINT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    valid_from TIMESTAMPTZ,
    valid_until TIMESTAMPTZ,
    max_uses BIGINT,
    current_uses BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS promocode_usages (
    id BIGSERIAL PRIMARY KEY,
    promocode_id BIGINT NOT NULL REFERENCES promocodes(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (promocode_id, user_id)
);
`

var migration005BonusConfig = `
CREATE TABLE IF NOT EXISTS bonus_config (
    id INT PRIMARY KEY CHECK (id = 1),
    welcome_bonus BIGINT NOT NULL DEFAULT 500,
    subscription_bonus BIGINT NOT NULL DEFAULT 500,
    review_bonus BIGINT NOT NULL DEFAULT 500,
    referral_bonus BIGINT NOT NULL DEFAULT 500
);
`

var migration006Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    admin_username TEXT NOT NULL,
    session_token TEXT NOT NULL UNIQUE,
    authenticated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL,
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    admin_username TEXT NOT NULL,
    attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    success BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_login_attempts
    ON admin_login_attempts (admin_username, attempt_time DESC);

CREATE TABLE IF NOT EXISTS admin_audit_log (
    id BIGSERIAL PRIMARY KEY,
    admin_username TEXT NOT NULL,
    action TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
