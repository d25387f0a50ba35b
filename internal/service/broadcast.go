package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// Broadcast создаёт рассылку и асинхронно отправляет текст всем активным
// пользователям. Возвращает идентификатор рассылки и число получателей.
func (s *Service) Broadcast(ctx context.Context, text string) (uuid.UUID, int64, error) {
	ids, err := s.repo.ListActiveTelegramIDs(ctx)
	if err != nil {
		return uuid.Nil, 0, err
	}

	total := int64(len(ids))

	id, err := s.repo.CreateBroadcast(ctx, text, total)
	if err != nil {
		return uuid.Nil, 0, err
	}

	if s.notifier == nil || total == 0 {
		_ = s.repo.UpdateBroadcastProgress(ctx, id, 0, 0, model.BroadcastStatusDone)
		return id, total, nil
	}

	// Отправка идёт в фоне и не привязана к времени жизни HTTP-запроса.
	go s.runBroadcast(context.WithoutCancel(ctx), id, text, ids)

	return id, total, nil
}

func (s *Service) runBroadcast(ctx context.Context, id uuid.UUID, text string, chatIDs []int64) {
	_ = s.repo.UpdateBroadcastProgress(ctx, id, 0, 0, model.BroadcastStatusRunning)

	var sent, failed int64
	for _, chatID := range chatIDs {
		if err := s.notifier.SendMessage(ctx, chatID, text); err != nil {
			failed++
		} else {
			sent++
		}
	}

	_ = s.repo.UpdateBroadcastProgress(ctx, id, sent, failed, model.BroadcastStatusDone)
}
