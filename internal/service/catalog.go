package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// ListBoxes возвращает активные боксы каталога.
func (s *Service) ListBoxes(ctx context.Context) ([]model.Box, error) {
	return s.repo.ListBoxes(ctx)
}

// GetBoxByID возвращает бокс по идентификатору.
func (s *Service) GetBoxByID(ctx context.Context, id uuid.UUID) (*model.Box, error) {
	return s.repo.GetBoxByID(ctx, id)
}

// ListProducts возвращает активные товары каталога.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// ToggleFavorite переключает элемент избранного. Возвращает true, если элемент добавлен.
func (s *Service) ToggleFavorite(ctx context.Context, userID uuid.UUID, boxID, productID *uuid.UUID) (bool, error) {
	return s.repo.ToggleFavorite(ctx, userID, boxID, productID)
}

// ListFavorites возвращает избранное пользователя.
func (s *Service) ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error) {
	return s.repo.ListFavorites(ctx, userID)
}

// GetProfile возвращает пользователя по Telegram ID.
func (s *Service) GetProfile(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.repo.GetUserByTelegramID(ctx, telegramID)
}

// DeactivateUser помечает пользователя неактивным: рассылки и напоминания его
// пропускают, история заказов и баллов сохраняется.
func (s *Service) DeactivateUser(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeactivateUser(ctx, userID)
}
