// Package main — точка входа сервиса лояльности.
// Загружает конфигурацию, инициализирует приложение и запускает
// HTTP API с планировщиком фоновых сверок.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/app"
	"ashlounge.ru/loyalty-bot/internal/config"
)

func main() {
	setupLogging()

	// .env удобен для локальной разработки, в проде переменные
	// приходят из окружения контейнера
	if err := godotenv.Load(); err != nil {
		log.Debug(".env не найден, используем переменные окружения")
	}

	log.Info("=== Сервис лояльности запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.DB.Close()

	// Запускаем планировщик задач (cron)
	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}
	defer application.Scheduler.Stop()

	// Обрабатываем сигналы остановки (Ctrl+C, docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP API в отдельной горутине
	go func() {
		if err := application.Server.Run(cfg.HTTPAddr); err != nil {
			log.WithError(err).Fatal("HTTP API завершился с ошибкой")
		}
	}()

	log.Info("=== Сервис готов к работе ===")

	sig := <-quit
	log.Infof("Получен сигнал %s, останавливаемся...", sig)

	cancel()

	log.Info("=== Сервис остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
