// Package service реализует бизнес-логику магазина KAVARA: промокоды,
// бонусные баллы, рефералы и комиссии тренеров.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// ErrInvalidAmount возвращается при некорректном количестве баллов или сумме.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrEmptyOrder возвращается при попытке оформить заказ без позиций.
	ErrEmptyOrder = errors.New("order has no items")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	GetOrCreateUser(ctx context.Context, telegramID int64, username *string, firstName string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	SetReferredBy(ctx context.Context, userID, referrerID uuid.UUID) (bool, error)
	ListActiveTelegramIDs(ctx context.Context) ([]int64, error)
	DeactivateUser(ctx context.Context, id uuid.UUID) error

	ListBoxes(ctx context.Context) ([]model.Box, error)
	GetBoxByID(ctx context.Context, id uuid.UUID) (*model.Box, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	ToggleFavorite(ctx context.Context, userID uuid.UUID, boxID, productID *uuid.UUID) (bool, error)
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error)

	GetPromoCodeByCode(ctx context.Context, code string) (*model.PromoCode, error)
	GetPromoCodeByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error)
	CreatePromoCode(ctx context.Context, p *model.PromoCode) (uuid.UUID, error)
	UpdatePromoCode(ctx context.Context, p *model.PromoCode) error
	DeactivatePromoCode(ctx context.Context, id uuid.UUID) error
	ListPromoCodes(ctx context.Context) ([]model.PromoCode, error)

	AddLedgerEntry(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, typ model.TransactionType, points int64, description string) error
	SpendPoints(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, points int64, description string) error
	RecalculateBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	GetTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error)

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error
	ApplyPromo(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListUnsyncedPaidOrders(ctx context.Context, limit int) ([]model.Order, error)
	MarkOrderSynced(ctx context.Context, id uuid.UUID) error

	CreateReferral(ctx context.Context, referrerID, referredID uuid.UUID) error
	GetPendingReferralByReferredID(ctx context.Context, referredID uuid.UUID) (*model.Referral, error)
	CompleteReferral(ctx context.Context, referralID uuid.UUID, bonusPoints int64, description string) (bool, error)
	CreateReferralCode(ctx context.Context, userID uuid.UUID, code string, discountPercent, rewardPercent int64) error

	CreateTrainer(ctx context.Context, t *model.Trainer) (uuid.UUID, error)
	GetTrainerByID(ctx context.Context, id uuid.UUID) (*model.Trainer, error)
	ListTrainers(ctx context.Context) ([]model.Trainer, error)
	UpdateTrainer(ctx context.Context, t *model.Trainer) error

	CreateBroadcast(ctx context.Context, text string, total int64) (uuid.UUID, error)
	UpdateBroadcastProgress(ctx context.Context, id uuid.UUID, sent, failed int64, status model.BroadcastStatus) error
}

// Notifier отправляет сообщения пользователям в Telegram.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// CRMClient отправляет оплаченные заказы во внешнюю CRM.
type CRMClient interface {
	PushOrder(ctx context.Context, order *model.Order) error
}

// Service содержит бизнес-логику магазина KAVARA.
type Service struct {
	repo     Repository
	notifier Notifier
	crm      CRMClient
}

// NewService создаёт сервис с указанным репозиторием, нотификатором и CRM-клиентом.
// Нотификатор и CRM-клиент могут быть nil: соответствующие функции отключаются.
func NewService(repo Repository, notifier Notifier, crm CRMClient) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		crm:      crm,
	}
}

// SetNotifier подключает нотификатор. Бот создаётся после сервиса,
// поскольку сам зависит от него при регистрации пользователей.
func (s *Service) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// StartCRMSync запускает фоновую отправку оплаченных заказов в RetailCRM.
func (s *Service) StartCRMSync(ctx context.Context, interval time.Duration) {
	if s.crm == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOrdersBatch(ctx)
		}
	}
}

func (s *Service) syncOrdersBatch(ctx context.Context) {
	orders, err := s.repo.ListUnsyncedPaidOrders(ctx, 50)
	if err != nil {
		return
	}

	for i := range orders {
		order := &orders[i]

		backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := s.crm.PushOrder(ctx, order); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			continue
		}

		_ = s.repo.MarkOrderSynced(ctx, order.ID)
	}
}
