package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
	"github.com/kavara-app/kavara-backend/internal/repository"
)

// Баллами можно оплатить не больше половины суммы заказа после скидки.
const maxRedeemShare = 2

// Процент кэшбэка баллами от итоговой суммы оплаченного заказа.
const purchaseEarnPercent = 5

// OrderItemInput описывает позицию создаваемого заказа.
type OrderItemInput struct {
	BoxID     *uuid.UUID
	ProductID *uuid.UUID
	Quantity  int64
}

// CreateOrderInput описывает параметры оформления заказа.
type CreateOrderInput struct {
	UserID        uuid.UUID
	Items         []OrderItemInput
	PromoCode     string
	LoyaltyPoints int64
}

// CreateOrder оформляет заказ: фиксирует цены позиций, применяет скидку
// промокода (проверка без побочных эффектов) и списывает баллы. Скидка и
// баллы сохраняются в заказе как снимок и не пересчитываются задним числом.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if in.LoyaltyPoints < 0 {
		return nil, ErrInvalidAmount
	}

	var (
		items    []model.OrderItem
		subtotal int64
	)
	for _, it := range in.Items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}

		switch {
		case it.BoxID != nil:
			box, err := s.repo.GetBoxByID(ctx, *it.BoxID)
			if err != nil {
				return nil, err
			}
			if !box.IsActive {
				return nil, repository.ErrBoxNotFound
			}
			items = append(items, model.OrderItem{
				BoxID:    it.BoxID,
				Name:     box.Name,
				Price:    box.Price,
				Quantity: qty,
			})
			subtotal += box.Price * qty
		case it.ProductID != nil:
			product, err := s.repo.GetProductByID(ctx, *it.ProductID)
			if err != nil {
				return nil, err
			}
			if !product.IsActive {
				return nil, repository.ErrProductNotFound
			}
			items = append(items, model.OrderItem{
				ProductID: it.ProductID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  qty,
			})
			subtotal += product.Price * qty
		default:
			return nil, fmt.Errorf("%w: item without box or product", ErrEmptyOrder)
		}
	}

	order := &model.Order{
		UserID: in.UserID,
		Status: model.OrderStatusPendingPayment,
		Items:  items,
	}

	if in.PromoCode != "" {
		res, err := s.ValidatePromoCode(ctx, in.PromoCode, subtotal)
		if err != nil {
			return nil, err
		}
		order.PromoCodeID = &res.Promo.ID
		order.DiscountPercent = res.DiscountPercent
		order.DiscountAmount = res.DiscountAmount
		if res.Trainer != nil {
			order.TrainerID = &res.Trainer.ID
		}
	}

	payable := subtotal - order.DiscountAmount

	if in.LoyaltyPoints > 0 {
		if in.LoyaltyPoints > payable/maxRedeemShare {
			return nil, ErrInvalidAmount
		}
		order.LoyaltyPointsUsed = in.LoyaltyPoints
	}

	order.TotalPrice = payable - order.LoyaltyPointsUsed

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetOrderByID возвращает заказ по идентификатору.
func (s *Service) GetOrderByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

// SetOrderStatus меняет статус заказа. Переход в «оплачен» запускает применение
// промокода и завершение реферала; обработка устойчива к повторной доставке
// события оплаты.
func (s *Service) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) error {
	if err := s.repo.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return err
	}

	if status != model.OrderStatusPaid {
		return nil
	}

	return s.processOrderPaid(ctx, orderID)
}

func (s *Service) processOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.PromoCodeID != nil && !order.PromoApplied {
		_, err := s.repo.ApplyPromo(ctx, orderID)
		if err != nil && !errors.Is(err, repository.ErrAlreadyApplied) {
			return err
		}
	}

	// Кэшбэк за покупку. Уникальность пары (заказ, тип) в журнале делает
	// повторную доставку события оплаты безопасной.
	if points := order.TotalPrice * purchaseEarnPercent / 100; points > 0 {
		if err := s.Earn(ctx, order.UserID, points, &order.ID, "Баллы за покупку"); err != nil {
			return err
		}
	}

	referral, err := s.repo.GetPendingReferralByReferredID(ctx, order.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrReferralNotFound) {
			return nil
		}
		return err
	}

	if _, err := s.CompleteReferral(ctx, referral.ID); err != nil {
		return err
	}

	return nil
}
