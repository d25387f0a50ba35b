package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
	"github.com/kavara-app/kavara-backend/internal/repository"
)

type ledgerEntry struct {
	userID      uuid.UUID
	orderID     *uuid.UUID
	typ         model.TransactionType
	points      int64
	description string
}

type stubRepo struct {
	user           *model.User
	userErr        error
	userByUsername *model.User
	userByCodeErr  error
	referrer       *model.User

	promo      *model.PromoCode
	promoErr   error
	trainer    *model.Trainer
	trainerErr error

	box     *model.Box
	product *model.Product

	ledger        []ledgerEntry
	ledgerErr     error
	spendErr      error
	createdOrder  *model.Order
	createOrderID uuid.UUID

	order    *model.Order
	orderErr error

	applyPromoAwarded int64
	applyPromoErr     error
	applyPromoCalls   int

	referral             *model.Referral
	referralErr          error
	completedReferralIDs []uuid.UUID
	completeReferralOK   bool

	createReferralCodeErrs []error
	createReferralCodeCall int
	linked                 bool
	createdReferrals       int
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) GetOrCreateUser(ctx context.Context, telegramID int64, username *string, firstName string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	if s.userByUsername == nil {
		return nil, repository.ErrUserNotFound
	}
	return s.userByUsername, nil
}

func (s *stubRepo) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	if s.userByCodeErr != nil {
		return nil, s.userByCodeErr
	}
	return s.referrer, nil
}

func (s *stubRepo) SetReferredBy(ctx context.Context, userID, referrerID uuid.UUID) (bool, error) {
	return s.linked, nil
}

func (s *stubRepo) ListActiveTelegramIDs(ctx context.Context) ([]int64, error) {
	return nil, nil
}

func (s *stubRepo) DeactivateUser(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubRepo) ListBoxes(ctx context.Context) ([]model.Box, error)        { return nil, nil }
func (s *stubRepo) ListProducts(ctx context.Context) ([]model.Product, error) { return nil, nil }

func (s *stubRepo) GetBoxByID(ctx context.Context, id uuid.UUID) (*model.Box, error) {
	if s.box == nil {
		return nil, repository.ErrBoxNotFound
	}
	return s.box, nil
}

func (s *stubRepo) GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	if s.product == nil {
		return nil, repository.ErrProductNotFound
	}
	return s.product, nil
}

func (s *stubRepo) ToggleFavorite(ctx context.Context, userID uuid.UUID, boxID, productID *uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubRepo) ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error) {
	return nil, nil
}

func (s *stubRepo) GetPromoCodeByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	if s.promoErr != nil {
		return nil, s.promoErr
	}
	if s.promo == nil {
		return nil, repository.ErrPromoNotFound
	}
	return s.promo, nil
}

func (s *stubRepo) GetPromoCodeByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	return s.promo, s.promoErr
}

func (s *stubRepo) CreatePromoCode(ctx context.Context, p *model.PromoCode) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *stubRepo) UpdatePromoCode(ctx context.Context, p *model.PromoCode) error { return nil }
func (s *stubRepo) DeactivatePromoCode(ctx context.Context, id uuid.UUID) error   { return nil }
func (s *stubRepo) ListPromoCodes(ctx context.Context) ([]model.PromoCode, error) { return nil, nil }

func (s *stubRepo) AddLedgerEntry(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, typ model.TransactionType, points int64, description string) error {
	if s.ledgerErr != nil {
		return s.ledgerErr
	}
	s.ledger = append(s.ledger, ledgerEntry{userID, orderID, typ, points, description})
	return nil
}

func (s *stubRepo) SpendPoints(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, points int64, description string) error {
	if s.spendErr != nil {
		return s.spendErr
	}
	s.ledger = append(s.ledger, ledgerEntry{userID, orderID, model.TransactionTypeSpend, -points, description})
	return nil
}

func (s *stubRepo) RecalculateBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	return nil, nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, o *model.Order) error {
	o.ID = s.createOrderID
	s.createdOrder = o
	return nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	return nil
}

func (s *stubRepo) ApplyPromo(ctx context.Context, orderID uuid.UUID) (int64, error) {
	s.applyPromoCalls++
	return s.applyPromoAwarded, s.applyPromoErr
}

func (s *stubRepo) ListUnsyncedPaidOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) MarkOrderSynced(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubRepo) CreateReferral(ctx context.Context, referrerID, referredID uuid.UUID) error {
	s.createdReferrals++
	return nil
}

func (s *stubRepo) GetPendingReferralByReferredID(ctx context.Context, referredID uuid.UUID) (*model.Referral, error) {
	if s.referralErr != nil {
		return nil, s.referralErr
	}
	if s.referral == nil {
		return nil, repository.ErrReferralNotFound
	}
	return s.referral, nil
}

func (s *stubRepo) CompleteReferral(ctx context.Context, referralID uuid.UUID, bonusPoints int64, description string) (bool, error) {
	s.completedReferralIDs = append(s.completedReferralIDs, referralID)
	return s.completeReferralOK, nil
}

func (s *stubRepo) CreateReferralCode(ctx context.Context, userID uuid.UUID, code string, discountPercent, rewardPercent int64) error {
	defer func() { s.createReferralCodeCall++ }()
	if s.createReferralCodeCall < len(s.createReferralCodeErrs) {
		return s.createReferralCodeErrs[s.createReferralCodeCall]
	}
	return nil
}

func (s *stubRepo) CreateTrainer(ctx context.Context, t *model.Trainer) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *stubRepo) GetTrainerByID(ctx context.Context, id uuid.UUID) (*model.Trainer, error) {
	if s.trainerErr != nil {
		return nil, s.trainerErr
	}
	if s.trainer == nil {
		return nil, repository.ErrTrainerNotFound
	}
	return s.trainer, nil
}

func (s *stubRepo) ListTrainers(ctx context.Context) ([]model.Trainer, error) { return nil, nil }
func (s *stubRepo) UpdateTrainer(ctx context.Context, t *model.Trainer) error { return nil }

func (s *stubRepo) CreateBroadcast(ctx context.Context, text string, total int64) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *stubRepo) UpdateBroadcastProgress(ctx context.Context, id uuid.UUID, sent, failed int64, status model.BroadcastStatus) error {
	return nil
}

func activePromo() *model.PromoCode {
	return &model.PromoCode{
		ID:              uuid.New(),
		Code:            "SAVE20",
		Type:            model.PromoCodeTypeGeneral,
		DiscountPercent: 20,
		IsActive:        true,
	}
}

func TestValidatePromoCode_PercentDiscountRoundsDown(t *testing.T) {
	promo := activePromo()
	promo.DiscountPercent = 5

	svc := NewService(&stubRepo{promo: promo}, nil, nil)

	res, err := svc.ValidatePromoCode(context.Background(), "save20", 999)
	if err != nil {
		t.Fatalf("ValidatePromoCode: %v", err)
	}

	// 999 * 5 / 100 = 49.95, дробная часть отбрасывается
	if res.DiscountAmount != 49 {
		t.Fatalf("discount = %d, want 49", res.DiscountAmount)
	}
	if res.DiscountPercent != 5 {
		t.Fatalf("percent = %d, want 5", res.DiscountPercent)
	}
}

func TestValidatePromoCode_FixedDiscountCappedByOrder(t *testing.T) {
	promo := activePromo()
	promo.DiscountPercent = 0
	promo.DiscountAmount = 1000

	svc := NewService(&stubRepo{promo: promo}, nil, nil)

	res, err := svc.ValidatePromoCode(context.Background(), "SAVE20", 700)
	if err != nil {
		t.Fatalf("ValidatePromoCode: %v", err)
	}
	if res.DiscountAmount != 700 {
		t.Fatalf("discount = %d, want 700 (capped by order amount)", res.DiscountAmount)
	}
}

func TestValidatePromoCode_Failures(t *testing.T) {
	expired := activePromo()
	past := time.Now().Add(-time.Hour)
	expired.ExpiresAt = &past

	inactive := activePromo()
	inactive.IsActive = false

	exhausted := activePromo()
	limit := int64(10)
	exhausted.MaxUses = &limit
	exhausted.UsedCount = 10

	tests := []struct {
		name    string
		repo    *stubRepo
		amount  int64
		wantErr error
	}{
		{"not found", &stubRepo{}, 1000, repository.ErrPromoNotFound},
		{"expired", &stubRepo{promo: expired}, 1000, repository.ErrPromoExpired},
		{"inactive", &stubRepo{promo: inactive}, 1000, repository.ErrPromoInactive},
		{"usage limit", &stubRepo{promo: exhausted}, 1000, repository.ErrPromoUsageLimit},
		{"negative amount", &stubRepo{promo: activePromo()}, -1, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.repo, nil, nil)

			_, err := svc.ValidatePromoCode(context.Background(), "SAVE20", tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !IsValidationError(err) {
				t.Fatalf("IsValidationError(%v) = false, want true", err)
			}
		})
	}
}

func TestValidatePromoCode_TrainerDiscountOverridesPromo(t *testing.T) {
	trainerID := uuid.New()
	promo := activePromo()
	promo.Type = model.PromoCodeTypeTrainer
	promo.TrainerID = &trainerID

	trainer := &model.Trainer{
		ID:              trainerID,
		Name:            "Анна",
		DiscountPercent: 15,
		IsActive:        true,
	}

	svc := NewService(&stubRepo{promo: promo, trainer: trainer}, nil, nil)

	res, err := svc.ValidatePromoCode(context.Background(), "SAVE20", 1000)
	if err != nil {
		t.Fatalf("ValidatePromoCode: %v", err)
	}
	if res.DiscountPercent != 15 {
		t.Fatalf("percent = %d, want trainer's 15", res.DiscountPercent)
	}
	if res.DiscountAmount != 150 {
		t.Fatalf("discount = %d, want 150", res.DiscountAmount)
	}
	if res.Trainer == nil || res.Trainer.ID != trainerID {
		t.Fatalf("trainer not resolved")
	}
}

func TestValidatePromoCode_InactiveTrainer(t *testing.T) {
	trainerID := uuid.New()
	promo := activePromo()
	promo.TrainerID = &trainerID

	trainer := &model.Trainer{ID: trainerID, IsActive: false}

	svc := NewService(&stubRepo{promo: promo, trainer: trainer}, nil, nil)

	_, err := svc.ValidatePromoCode(context.Background(), "SAVE20", 1000)
	if !errors.Is(err, repository.ErrPromoInactive) {
		t.Fatalf("err = %v, want ErrPromoInactive", err)
	}
}

func TestCreatePromoCode_MutuallyExclusiveRewards(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.CreatePromoCode(context.Background(), &model.PromoCode{
		Code:          "BOTH",
		PointsPerUse:  100,
		RewardPercent: 5,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestRedeem_Validation(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)
	userID := uuid.New()

	if err := svc.Redeem(context.Background(), userID, 0, nil, 1000); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero points: err = %v, want ErrInvalidAmount", err)
	}
	if err := svc.Redeem(context.Background(), userID, 600, nil, 500); !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("above cap: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestRedeem_PropagatesInsufficientBalance(t *testing.T) {
	repo := &stubRepo{spendErr: repository.ErrInsufficientBalance}
	svc := NewService(repo, nil, nil)

	err := svc.Redeem(context.Background(), uuid.New(), 100, nil, 1000)
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestAwardManual(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	repo := &stubRepo{userByUsername: user}
	svc := NewService(repo, nil, nil)

	if err := svc.AwardManual(context.Background(), "@coach", 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero points: err = %v, want ErrInvalidAmount", err)
	}

	if err := svc.AwardManual(context.Background(), "@coach", -200, ""); err != nil {
		t.Fatalf("AwardManual: %v", err)
	}

	if len(repo.ledger) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(repo.ledger))
	}
	entry := repo.ledger[0]
	if entry.typ != model.TransactionTypeManual || entry.points != -200 {
		t.Fatalf("entry = %+v, want manual -200", entry)
	}
	if entry.description != "Ручная корректировка баллов" {
		t.Fatalf("description = %q", entry.description)
	}
}

func TestAwardManual_UnknownUser(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	err := svc.AwardManual(context.Background(), "@nobody", 100, "")
	if !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}
