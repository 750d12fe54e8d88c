// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"loyalty"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"loyalty_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// --- Telegram (уведомления; пустой токен = уведомления отключены) ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`

	// --- YClients ---
	YClientsAPIBaseURL   string        `envconfig:"YCLIENTS_API_BASE_URL" default:"https://api.yclients.com/api/v1"`
	YClientsPartnerToken string        `envconfig:"YCLIENTS_PARTNER_TOKEN" required:"true"`
	YClientsUserToken    string        `envconfig:"YCLIENTS_USER_TOKEN" required:"true"`
	YClientsCompanyID    int64         `envconfig:"YCLIENTS_COMPANY_ID" required:"true"`
	YClientsCardTypeID   int64         `envconfig:"YCLIENTS_CARD_TYPE_ID" default:"100956"`
	YClientsTimeout      time.Duration `envconfig:"YCLIENTS_REQUEST_TIMEOUT" default:"25s"`

	// --- Синхронизация записей (polling вместо вебхука) ---
	// Окно симметричное: прошлое и будущее по SyncLookbackDays.
	SyncLookbackDays int           `envconfig:"YCLIENTS_SYNC_LOOKBACK_DAYS" default:"30"`
	SyncInterval     time.Duration `envconfig:"YCLIENTS_SYNC_INTERVAL" default:"90s"`
	// Сколько минут считаем запись «ботовской» после клика на кнопку записи
	BookingWindow time.Duration `envconfig:"BOT_BOOKING_WINDOW" default:"30m"`

	// --- Реферальная программа ---
	ReferralCheckInterval time.Duration `envconfig:"REFERRAL_CHECK_INTERVAL" default:"10m"`
	// Пауза после визита перед начислением: защита от фантомных записей в CRM
	ReferralCheckDelay   time.Duration `envconfig:"REFERRAL_CHECK_DELAY" default:"30m"`
	ReferralLookbackDays int           `envconfig:"REFERRAL_LOOKBACK_DAYS" default:"60"`

	// --- Массовая синхронизация балансов ---
	BalanceSyncBatchSize  int           `envconfig:"BALANCE_SYNC_BATCH_SIZE" default:"5"`
	BalanceSyncBatchPause time.Duration `envconfig:"BALANCE_SYNC_BATCH_PAUSE" default:"100ms"`

	// --- Admin ---
	AdminUsername     string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.SyncLookbackDays <= 0 {
		return fmt.Errorf("YCLIENTS_SYNC_LOOKBACK_DAYS должен быть > 0")
	}
	if c.BookingWindow <= 0 {
		return fmt.Errorf("BOT_BOOKING_WINDOW должен быть > 0")
	}
	if c.BalanceSyncBatchSize <= 0 {
		return fmt.Errorf("BALANCE_SYNC_BATCH_SIZE должен быть > 0")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
