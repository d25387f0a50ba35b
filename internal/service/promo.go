package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
	"github.com/kavara-app/kavara-backend/internal/repository"
)

// ValidationResult содержит результат успешной проверки промокода.
type ValidationResult struct {
	Promo           *model.PromoCode
	Trainer         *model.Trainer
	DiscountPercent int64
	DiscountAmount  int64
}

// ValidatePromoCode проверяет применимость промокода к заказу указанной суммы.
// Проверка не имеет побочных эффектов: счётчик использований увеличивается
// только при применении кода к оплаченному заказу. Скидка считается с
// округлением вниз — так же считались все исторические заказы.
func (s *Service) ValidatePromoCode(ctx context.Context, code string, orderAmount int64) (*ValidationResult, error) {
	if orderAmount < 0 {
		return nil, ErrInvalidAmount
	}

	promo, err := s.repo.GetPromoCodeByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}

	if !promo.IsActive {
		return nil, repository.ErrPromoInactive
	}
	if promo.ExpiresAt != nil && promo.ExpiresAt.Before(time.Now()) {
		return nil, repository.ErrPromoExpired
	}
	if promo.MaxUses != nil && promo.UsedCount >= *promo.MaxUses {
		return nil, repository.ErrPromoUsageLimit
	}

	res := &ValidationResult{
		Promo:           promo,
		DiscountPercent: promo.DiscountPercent,
	}

	if promo.TrainerID != nil {
		trainer, err := s.repo.GetTrainerByID(ctx, *promo.TrainerID)
		if err != nil {
			return nil, err
		}
		if !trainer.IsActive {
			return nil, repository.ErrPromoInactive
		}
		res.Trainer = trainer
		res.DiscountPercent = trainer.DiscountPercent
	}

	switch {
	case promo.DiscountAmount > 0:
		// Фиксированная скидка не может превышать сумму заказа.
		res.DiscountPercent = 0
		res.DiscountAmount = min(promo.DiscountAmount, orderAmount)
	default:
		res.DiscountAmount = orderAmount * res.DiscountPercent / 100
	}

	return res, nil
}

// ApplyPromoCode применяет промокод заказа при переходе в статус «оплачен».
// Операция идемпотентна: повторный вызов для того же заказа возвращает
// repository.ErrAlreadyApplied и не дублирует эффекты.
func (s *Service) ApplyPromoCode(ctx context.Context, orderID uuid.UUID) (int64, error) {
	return s.repo.ApplyPromo(ctx, orderID)
}

// CreatePromoCode создаёт промокод из админки. Одновременно заданные
// points_per_use и reward_percent отклоняются: режимы начисления альтернативны.
func (s *Service) CreatePromoCode(ctx context.Context, p *model.PromoCode) (uuid.UUID, error) {
	if p.Code == "" {
		return uuid.Nil, fmt.Errorf("%w: empty code", ErrInvalidAmount)
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 || p.DiscountAmount < 0 {
		return uuid.Nil, ErrInvalidAmount
	}
	if p.PointsPerUse > 0 && p.RewardPercent > 0 {
		return uuid.Nil, fmt.Errorf("%w: points_per_use and reward_percent are mutually exclusive", ErrInvalidAmount)
	}
	if p.Type == "" {
		p.Type = model.PromoCodeTypeGeneral
	}
	return s.repo.CreatePromoCode(ctx, p)
}

// UpdatePromoCode обновляет параметры промокода.
func (s *Service) UpdatePromoCode(ctx context.Context, p *model.PromoCode) error {
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 || p.DiscountAmount < 0 {
		return ErrInvalidAmount
	}
	if p.PointsPerUse > 0 && p.RewardPercent > 0 {
		return fmt.Errorf("%w: points_per_use and reward_percent are mutually exclusive", ErrInvalidAmount)
	}
	return s.repo.UpdatePromoCode(ctx, p)
}

// DeactivatePromoCode выключает промокод.
func (s *Service) DeactivatePromoCode(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivatePromoCode(ctx, id)
}

// ListPromoCodes возвращает все промокоды.
func (s *Service) ListPromoCodes(ctx context.Context) ([]model.PromoCode, error) {
	return s.repo.ListPromoCodes(ctx)
}

// IsValidationError сообщает, является ли ошибка ожидаемым отказом проверки
// промокода, а не сбоем инфраструктуры.
func IsValidationError(err error) bool {
	return errors.Is(err, repository.ErrPromoNotFound) ||
		errors.Is(err, repository.ErrPromoUsageLimit) ||
		errors.Is(err, repository.ErrPromoInactive) ||
		errors.Is(err, repository.ErrPromoExpired) ||
		errors.Is(err, ErrInvalidAmount)
}
