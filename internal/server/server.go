// Package server поднимает HTTP API для администратора и служебных
// триггеров: ручной запуск сверок, корректировки балансов, фиксация
// кликов по кнопке записи.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/balancesync"
	"ashlounge.ru/loyalty-bot/internal/features/booking"
	"ashlounge.ru/loyalty-bot/internal/features/users"
)

// Reconciler запускает сверку записей.
type Reconciler interface {
	Run(ctx context.Context) (booking.Stats, error)
}

// BalanceSyncer — операции синхронизации балансов.
type BalanceSyncer interface {
	SyncAll(ctx context.Context) (balancesync.Stats, error)
	PullBalance(ctx context.Context, userID int64) (int64, error)
}

// BonusManager — ручные корректировки баланса.
type BonusManager interface {
	ManualAdjust(ctx context.Context, adminUsername string, userID int64, operation string, amount int64, comment string) (int64, error)
}

// Auth — вход, проверка и завершение сессий администратора.
type Auth interface {
	Login(ctx context.Context, username, password string) (string, error)
	Validate(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context, token string) error
}

// ClickLogger фиксирует клики по кнопке записи.
type ClickLogger interface {
	LogClick(ctx context.Context, userID int64) error
}

// UserDirectory находит пользователей для обработчиков.
type UserDirectory interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*users.User, error)
}

// Server — HTTP API приложения.
type Server struct {
	engine     *gin.Engine
	auth       Auth
	reconciler Reconciler
	balances   BalanceSyncer
	bonuses    BonusManager
	clicks     ClickLogger
	userDir    UserDirectory
}

// New собирает сервер с маршрутами.
func New(auth Auth, reconciler Reconciler, balances BalanceSyncer, bonuses BonusManager, clicks ClickLogger, userDir UserDirectory) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:     gin.New(),
		auth:       auth,
		reconciler: reconciler,
		balances:   balances,
		bonuses:    bonuses,
		clicks:     clicks,
		userDir:    userDir,
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

// Handler возвращает http.Handler для запуска и тестов.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run запускает сервер на указанном адресе.
func (s *Server) Run(addr string) error {
	log.WithField("addr", addr).Info("HTTP API запущен")
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	api.POST("/login", s.handleLogin)
	api.POST("/click", s.handleClick)

	authed := api.Group("")
	authed.Use(s.requireAuth())
	authed.POST("/logout", s.handleLogout)
	authed.POST("/sync/bookings", s.handleSyncBookings)
	authed.POST("/sync/balances", s.handleSyncBalances)
	authed.POST("/users/:id/bonus", s.handleManualBonus)
	authed.POST("/users/:id/sync", s.handlePullBalance)
}

// requestLogger пишет метод, путь и статус каждого запроса.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("http запрос")
	}
}

// requireAuth проверяет токен сессии из заголовка Authorization.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		username, err := s.auth.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": common.ErrNotAuthenticated.Error()})
			return
		}
		c.Set("admin", username)
		c.Set("token", token)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
