package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/features/bonus"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "требуются username и password"})
		return
	}

	token, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, common.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case err != nil:
		log.WithError(err).Error("ошибка входа администратора")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
	default:
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func (s *Server) handleLogout(c *gin.Context) {
	token := c.GetString("token")
	if err := s.auth.Logout(c.Request.Context(), token); err != nil {
		log.WithError(err).Error("ошибка завершения сессии")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type clickRequest struct {
	TelegramID int64 `json:"telegram_id" binding:"required"`
}

// handleClick фиксирует нажатие кнопки записи: именно к этим кликам
// сверка привязывает появляющиеся в CRM записи.
func (s *Server) handleClick(c *gin.Context) {
	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "требуется telegram_id"})
		return
	}

	user, err := s.userDir.GetByTelegramID(c.Request.Context(), req.TelegramID)
	if errors.Is(err, common.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).Error("ошибка поиска пользователя")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
		return
	}

	if err := s.clicks.LogClick(c.Request.Context(), user.ID); err != nil {
		log.WithError(err).Error("ошибка записи клика")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSyncBookings(c *gin.Context) {
	stats, err := s.reconciler.Run(c.Request.Context())
	if errors.Is(err, common.ErrSyncBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).Error("ошибка сверки записей")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleSyncBalances(c *gin.Context) {
	stats, err := s.balances.SyncAll(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("ошибка массовой синхронизации балансов")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type manualBonusRequest struct {
	Operation string `json:"operation" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Comment   string `json:"comment" binding:"required"`
}

func (s *Server) handleManualBonus(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный id пользователя"})
		return
	}

	var req manualBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "требуются operation, amount и comment"})
		return
	}
	if req.Operation != bonus.OperationAccrual && req.Operation != bonus.OperationWriteoff {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operation должен быть accrual или writeoff"})
		return
	}

	balance, err := s.bonuses.ManualAdjust(c.Request.Context(), c.GetString("admin"), userID, req.Operation, req.Amount, req.Comment)
	switch {
	case errors.Is(err, common.ErrInvalidAmount), errors.Is(err, common.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrAccountNotFound), errors.Is(err, common.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		log.WithError(err).Error("ошибка ручной корректировки")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
	default:
		c.JSON(http.StatusOK, gin.H{"balance": balance})
	}
}

func (s *Server) handlePullBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный id пользователя"})
		return
	}

	balance, err := s.balances.PullBalance(c.Request.Context(), userID)
	switch {
	case errors.Is(err, common.ErrUserNotFound), errors.Is(err, common.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		log.WithError(err).Error("ошибка выравнивания баланса")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка"})
	default:
		c.JSON(http.StatusOK, gin.H{"balance": balance})
	}
}
