package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
	"github.com/kavara-app/kavara-backend/internal/repository"
)

func TestCreateOrder_SnapshotsDiscountAndPoints(t *testing.T) {
	boxID := uuid.New()
	repo := &stubRepo{
		box:           &model.Box{ID: boxID, Name: "Бокс PRO", Price: 3000, IsActive: true},
		promo:         activePromo(),
		createOrderID: uuid.New(),
	}
	svc := NewService(repo, nil, nil)

	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:        uuid.New(),
		Items:         []OrderItemInput{{BoxID: &boxID, Quantity: 1}},
		PromoCode:     "SAVE20",
		LoyaltyPoints: 500,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// 3000 - 20% = 2400, минус 500 баллов
	if order.DiscountAmount != 600 {
		t.Fatalf("discount = %d, want 600", order.DiscountAmount)
	}
	if order.LoyaltyPointsUsed != 500 {
		t.Fatalf("points used = %d, want 500", order.LoyaltyPointsUsed)
	}
	if order.TotalPrice != 1900 {
		t.Fatalf("total = %d, want 1900", order.TotalPrice)
	}
	if order.Status != model.OrderStatusPendingPayment {
		t.Fatalf("status = %s, want pending_payment", order.Status)
	}
	if order.PromoCodeID == nil {
		t.Fatalf("promo code id not snapshotted")
	}
	if repo.createdOrder == nil {
		t.Fatalf("order not persisted")
	}
}

func TestCreateOrder_PointsLimitedToHalf(t *testing.T) {
	boxID := uuid.New()
	repo := &stubRepo{
		box: &model.Box{ID: boxID, Name: "Бокс", Price: 1000, IsActive: true},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:        uuid.New(),
		Items:         []OrderItemInput{{BoxID: &boxID, Quantity: 1}},
		LoyaltyPoints: 501,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestCreateOrder_EmptyAndInactive(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: uuid.New()})
	if !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("empty order: err = %v, want ErrEmptyOrder", err)
	}

	boxID := uuid.New()
	repo := &stubRepo{box: &model.Box{ID: boxID, Price: 1000, IsActive: false}}
	svc = NewService(repo, nil, nil)

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: uuid.New(),
		Items:  []OrderItemInput{{BoxID: &boxID}},
	})
	if !errors.Is(err, repository.ErrBoxNotFound) {
		t.Fatalf("inactive box: err = %v, want ErrBoxNotFound", err)
	}
}

func TestSetOrderStatus_PaidTriggersPromoAndReferral(t *testing.T) {
	promoID := uuid.New()
	userID := uuid.New()
	orderID := uuid.New()

	repo := &stubRepo{
		order: &model.Order{
			ID:          orderID,
			UserID:      userID,
			PromoCodeID: &promoID,
		},
		referral:           &model.Referral{ID: uuid.New(), ReferredID: userID},
		completeReferralOK: true,
	}
	svc := NewService(repo, nil, nil)

	if err := svc.SetOrderStatus(context.Background(), orderID, model.OrderStatusPaid); err != nil {
		t.Fatalf("SetOrderStatus: %v", err)
	}

	if repo.applyPromoCalls != 1 {
		t.Fatalf("ApplyPromo calls = %d, want 1", repo.applyPromoCalls)
	}
	if len(repo.completedReferralIDs) != 1 {
		t.Fatalf("CompleteReferral calls = %d, want 1", len(repo.completedReferralIDs))
	}
}

func TestSetOrderStatus_PaidAccruesPurchasePoints(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()

	repo := &stubRepo{
		order: &model.Order{
			ID:         orderID,
			UserID:     userID,
			TotalPrice: 1999,
		},
	}
	svc := NewService(repo, nil, nil)

	if err := svc.SetOrderStatus(context.Background(), orderID, model.OrderStatusPaid); err != nil {
		t.Fatalf("SetOrderStatus: %v", err)
	}

	if len(repo.ledger) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(repo.ledger))
	}
	entry := repo.ledger[0]
	if entry.typ != model.TransactionTypeEarn {
		t.Fatalf("entry type = %s, want earn", entry.typ)
	}
	// 5% от 1999 с округлением вниз.
	if entry.points != 99 {
		t.Fatalf("points = %d, want 99", entry.points)
	}
	if entry.userID != userID || entry.orderID == nil || *entry.orderID != orderID {
		t.Fatalf("entry = %+v, want user %s order %s", entry, userID, orderID)
	}
}

func TestSetOrderStatus_PaidPropagatesPromoReject(t *testing.T) {
	promoID := uuid.New()
	orderID := uuid.New()

	repo := &stubRepo{
		order: &model.Order{
			ID:          orderID,
			UserID:      uuid.New(),
			PromoCodeID: &promoID,
		},
		applyPromoErr: repository.ErrPromoExpired,
	}
	svc := NewService(repo, nil, nil)

	err := svc.SetOrderStatus(context.Background(), orderID, model.OrderStatusPaid)
	if !errors.Is(err, repository.ErrPromoExpired) {
		t.Fatalf("err = %v, want ErrPromoExpired", err)
	}
}

func TestSetOrderStatus_PaidToleratesRedelivery(t *testing.T) {
	promoID := uuid.New()
	orderID := uuid.New()

	repo := &stubRepo{
		order: &model.Order{
			ID:           orderID,
			UserID:       uuid.New(),
			PromoCodeID:  &promoID,
			PromoApplied: true,
		},
	}
	svc := NewService(repo, nil, nil)

	if err := svc.SetOrderStatus(context.Background(), orderID, model.OrderStatusPaid); err != nil {
		t.Fatalf("SetOrderStatus: %v", err)
	}

	if repo.applyPromoCalls != 0 {
		t.Fatalf("ApplyPromo calls = %d, want 0 for already applied promo", repo.applyPromoCalls)
	}
}

func TestSetOrderStatus_NonPaidSkipsProcessing(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, nil)

	if err := svc.SetOrderStatus(context.Background(), uuid.New(), model.OrderStatusShipped); err != nil {
		t.Fatalf("SetOrderStatus: %v", err)
	}

	if repo.applyPromoCalls != 0 {
		t.Fatalf("ApplyPromo must not be called for non-paid statuses")
	}
}

func TestRegisterTelegramUser_LinksReferrer(t *testing.T) {
	user := &model.User{ID: uuid.New(), TelegramID: 100}
	referrer := &model.User{ID: uuid.New(), TelegramID: 200}

	repo := &stubRepo{user: user, referrer: referrer, linked: true}
	svc := NewService(repo, nil, nil)

	if err := svc.RegisterTelegramUser(context.Background(), 100, nil, "Иван", "KAVABCDEFGH"); err != nil {
		t.Fatalf("RegisterTelegramUser: %v", err)
	}

	if repo.createdReferrals != 1 {
		t.Fatalf("referrals created = %d, want 1", repo.createdReferrals)
	}
}

func TestRegisterTelegramUser_IgnoresSelfAndUnknownCode(t *testing.T) {
	user := &model.User{ID: uuid.New(), TelegramID: 100}

	// Собственный код пользователя.
	repo := &stubRepo{user: user, referrer: user, linked: true}
	svc := NewService(repo, nil, nil)

	if err := svc.RegisterTelegramUser(context.Background(), 100, nil, "Иван", "KAVSELF"); err != nil {
		t.Fatalf("self referral: %v", err)
	}
	if repo.createdReferrals != 0 {
		t.Fatalf("self referral must not create referral")
	}

	// Несуществующий код.
	repo = &stubRepo{user: user, userByCodeErr: repository.ErrUserNotFound}
	svc = NewService(repo, nil, nil)

	if err := svc.RegisterTelegramUser(context.Background(), 100, nil, "Иван", "KAVUNKNOWN"); err != nil {
		t.Fatalf("unknown code must be ignored: %v", err)
	}
}

func TestGenerateReferralCode_ReturnsExisting(t *testing.T) {
	code := "KAVEXISTING"
	user := &model.User{ID: uuid.New(), ReferralCode: &code}

	repo := &stubRepo{user: user}
	svc := NewService(repo, nil, nil)

	got, err := svc.GenerateReferralCode(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GenerateReferralCode: %v", err)
	}
	if got != code {
		t.Fatalf("code = %s, want %s", got, code)
	}
	if repo.createReferralCodeCall != 0 {
		t.Fatalf("existing code must not be regenerated")
	}
}

func TestGenerateReferralCode_RetriesOnCollision(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	repo := &stubRepo{
		user:                   user,
		createReferralCodeErrs: []error{repository.ErrCodeTaken, nil},
	}
	svc := NewService(repo, nil, nil)

	code, err := svc.GenerateReferralCode(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GenerateReferralCode: %v", err)
	}
	if !strings.HasPrefix(code, "KAV") {
		t.Fatalf("code = %s, want KAV prefix", code)
	}
	if repo.createReferralCodeCall != 2 {
		t.Fatalf("attempts = %d, want 2", repo.createReferralCodeCall)
	}
}
