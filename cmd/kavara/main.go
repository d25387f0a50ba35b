// Package main запускает HTTP-сервер магазина KAVARA.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kavara-app/kavara-backend/internal/bot"
	"github.com/kavara-app/kavara-backend/internal/config"
	"github.com/kavara-app/kavara-backend/internal/crm"
	"github.com/kavara-app/kavara-backend/internal/handler"
	"github.com/kavara-app/kavara-backend/internal/middleware"
	"github.com/kavara-app/kavara-backend/internal/repository"
	"github.com/kavara-app/kavara-backend/internal/service"
	"github.com/kavara-app/kavara-backend/internal/worker"
)

const crmSyncInterval = time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	var crmClient *crm.Client
	if cfg.RetailCRMURL != "" {
		crmClient = crm.NewClient(cfg.RetailCRMURL, cfg.RetailCRMKey)
	}

	svc := service.NewService(repo, nil, crmClient)
	defer svc.Close()

	tgBot, err := bot.NewBot(cfg.BotToken, svc, logger)
	if err != nil {
		sugar.Fatalw("bot initialization error", "error", err.Error())
	}
	svc.SetNotifier(tgBot)

	tgAuth := middleware.NewTelegramAuth(cfg.BotToken)
	adminAuth, err := middleware.NewAdminAuth(cfg.AdminLogin, cfg.AdminPassword, cfg.AdminJWTSecret)
	if err != nil {
		sugar.Fatalw("admin auth initialization error", "error", err.Error())
	}

	h := handler.NewHandler(svc, logger, tgAuth, adminAuth)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	reminder := worker.NewReminder(repo, rdb, tgBot, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск Telegram-бота
	g.Go(func() error {
		if err := tgBot.Run(ctx); err != nil {
			return fmt.Errorf("bot error: %w", err)
		}
		return nil
	})

	// Напоминания о неоплаченных заказах
	g.Go(func() error {
		reminder.Run(ctx)
		return nil
	})

	// Фоновая выгрузка оплаченных заказов в RetailCRM
	g.Go(func() error {
		svc.StartCRMSync(ctx, crmSyncInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting kavara server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
