// Package worker содержит фоновые задачи магазина KAVARA.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kavara-app/kavara-backend/internal/repository"
)

const (
	reminderInterval  = time.Hour
	reminderAge       = 24 * time.Hour
	reminderBatchSize = 100

	// Ключ дедупликации живёт неделю: за это время заказ либо оплатят,
	// либо отменят, повторное напоминание не нужно.
	reminderKeyTTL = 7 * 24 * time.Hour
)

// ReminderRepository возвращает заказы, ожидающие оплаты.
type ReminderRepository interface {
	ListPendingReminders(ctx context.Context, olderThan time.Duration, limit int) ([]repository.OrderReminder, error)
}

// Notifier отправляет сообщение пользователю Telegram.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Reminder напоминает покупателям о неоплаченных заказах.
type Reminder struct {
	repo     ReminderRepository
	redis    *redis.Client
	notifier Notifier
	logger   *zap.Logger
}

// NewReminder создаёт фоновую задачу напоминаний о неоплаченных заказах.
func NewReminder(repo ReminderRepository, rdb *redis.Client, notifier Notifier, logger *zap.Logger) *Reminder {
	return &Reminder{
		repo:     repo,
		redis:    rdb,
		notifier: notifier,
		logger:   logger,
	}
}

// Run выполняет проверки раз в час до отмены контекста.
func (r *Reminder) Run(ctx context.Context) {
	ticker := time.NewTicker(reminderInterval)
	defer ticker.Stop()

	r.logger.Info("reminder worker started")

	r.checkOrders(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			r.checkOrders(ctx)
		}
	}
}

func (r *Reminder) checkOrders(ctx context.Context) {
	reminders, err := r.repo.ListPendingReminders(ctx, reminderAge, reminderBatchSize)
	if err != nil {
		r.logger.Error("list pending reminders", zap.Error(err))
		return
	}

	for _, reminder := range reminders {
		key := fmt.Sprintf("reminder:order:%s", reminder.OrderID)

		// SETNX гарантирует не более одного напоминания на заказ,
		// даже при нескольких экземплярах сервиса.
		acquired, err := r.redis.SetNX(ctx, key, time.Now().Format(time.RFC3339), reminderKeyTTL).Result()
		if err != nil {
			r.logger.Error("reminder dedup check", zap.Error(err), zap.String("orderID", reminder.OrderID.String()))
			continue
		}
		if !acquired {
			continue
		}

		text := fmt.Sprintf("⏰ Ваш заказ на %d ₽ ждёт оплаты. Завершите оформление, чтобы мы собрали ваш бокс.", reminder.TotalPrice)
		if err := r.notifier.SendMessage(ctx, reminder.TelegramID, text); err != nil {
			r.logger.Error("send reminder", zap.Error(err), zap.Int64("telegramID", reminder.TelegramID))
			// Напоминание не ушло — снимаем ключ, попробуем в следующем цикле.
			r.redis.Del(ctx, key)
			continue
		}

		r.logger.Info("reminder sent",
			zap.String("orderID", reminder.OrderID.String()),
			zap.Int64("telegramID", reminder.TelegramID),
		)
	}
}
