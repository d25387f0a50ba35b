package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
	"github.com/kavara-app/kavara-backend/internal/repository"
)

// Earn начисляет пользователю баллы за заказ.
func (s *Service) Earn(ctx context.Context, userID uuid.UUID, points int64, orderID *uuid.UUID, description string) error {
	if points <= 0 {
		return ErrInvalidAmount
	}
	return s.repo.AddLedgerEntry(ctx, userID, orderID, model.TransactionTypeEarn, points, description)
}

// Redeem списывает баллы при оплате заказа. Курс фиксированный:
// 1 балл = 1 рубль скидки. maxUsable — потолок списания, политика которого
// определяется вызывающей стороной; превышение потолка, как и нехватка
// баланса, завершается ErrInsufficientBalance.
func (s *Service) Redeem(ctx context.Context, userID uuid.UUID, points int64, orderID *uuid.UUID, maxUsable int64) error {
	if points <= 0 {
		return ErrInvalidAmount
	}
	if points > maxUsable {
		return repository.ErrInsufficientBalance
	}
	return s.repo.SpendPoints(ctx, userID, orderID, points, "Оплата баллами")
}

// Recalculate пересчитывает кэшированный баланс пользователя по журналу.
// Ремонтная операция для админки: кэш и журнал могут разойтись после ручных
// правок в БД или сбоя между шагами.
func (s *Service) Recalculate(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.RecalculateBalance(ctx, userID)
}

// AwardManual начисляет или списывает баллы по username. Отрицательное значение
// уменьшает баланс без проверки достаточности: административная корректировка
// считается авторитетной.
func (s *Service) AwardManual(ctx context.Context, username string, points int64, description string) error {
	if points == 0 {
		return ErrInvalidAmount
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}

	if description == "" {
		description = "Ручная корректировка баллов"
	}

	return s.repo.AddLedgerEntry(ctx, user.ID, nil, model.TransactionTypeManual, points, description)
}

// GetTransactions возвращает историю операций с баллами пользователя.
func (s *Service) GetTransactions(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	return s.repo.GetTransactionsByUser(ctx, userID)
}

// GetBalance возвращает кэшированный баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*model.Balance, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{Current: user.LoyaltyPoints}, nil
}
