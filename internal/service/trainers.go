package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// CreateTrainer регистрирует тренера-партнёра вместе с его промокодом.
func (s *Service) CreateTrainer(ctx context.Context, t *model.Trainer) (uuid.UUID, error) {
	if t.Name == "" || t.PromoCode == "" {
		return uuid.Nil, fmt.Errorf("%w: name and promo code are required", ErrInvalidAmount)
	}
	if t.DiscountPercent < 0 || t.DiscountPercent > 100 ||
		t.CommissionPercent < 0 || t.CommissionPercent > 100 {
		return uuid.Nil, ErrInvalidAmount
	}
	t.IsActive = true
	return s.repo.CreateTrainer(ctx, t)
}

// ListTrainers возвращает тренеров с накопленными агрегатами заказов.
func (s *Service) ListTrainers(ctx context.Context) ([]model.Trainer, error) {
	return s.repo.ListTrainers(ctx)
}

// UpdateTrainer обновляет параметры тренера.
func (s *Service) UpdateTrainer(ctx context.Context, t *model.Trainer) error {
	if t.DiscountPercent < 0 || t.DiscountPercent > 100 ||
		t.CommissionPercent < 0 || t.CommissionPercent > 100 {
		return ErrInvalidAmount
	}
	return s.repo.UpdateTrainer(ctx, t)
}
