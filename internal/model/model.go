// Package model содержит доменные сущности магазина KAVARA.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User представляет покупателя, привязанного к аккаунту Telegram.
type User struct {
	ID            uuid.UUID
	TelegramID    int64
	Username      *string
	FirstName     string
	LoyaltyPoints int64
	ReferralCode  *string
	ReferredBy    *uuid.UUID
	IsActive      bool
	CreatedAt     time.Time
}

// Product описывает отдельный товар каталога.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       int64
	Category    string
	ImageURL    string
	IsActive    bool
	CreatedAt   time.Time
}

// Box описывает готовый набор товаров, продаваемый как одна позиция.
type Box struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       int64
	ImageURL    string
	IsActive    bool
	ProductIDs  []uuid.UUID
	CreatedAt   time.Time
}

// Favorite связывает пользователя с отмеченным боксом или товаром.
// Заполнено ровно одно из полей BoxID/ProductID.
type Favorite struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	BoxID     *uuid.UUID
	ProductID *uuid.UUID
	CreatedAt time.Time
}

// PromoCodeType описывает происхождение промокода.
type PromoCodeType string

const (
	PromoCodeTypeTrainer PromoCodeType = "trainer"
	PromoCodeTypeGeneral PromoCodeType = "general"
	PromoCodeTypeLoyalty PromoCodeType = "loyalty"
)

// PromoCode описывает промокод и схему вознаграждения его владельца.
// PointsPerUse и RewardPercent — альтернативные режимы начисления:
// приоритет у PointsPerUse.
type PromoCode struct {
	ID              uuid.UUID
	Code            string
	Type            PromoCodeType
	DiscountPercent int64
	DiscountAmount  int64
	MaxUses         *int64
	UsedCount       int64
	IsActive        bool
	ExpiresAt       *time.Time
	TrainerID       *uuid.UUID
	OwnerUserID     *uuid.UUID
	PointsPerUse    int64
	RewardPercent   int64
	CreatedAt       time.Time
}

// Trainer представляет партнёра-тренера с собственным промокодом.
// TotalOrders и TotalEarnings — накопительные агрегаты по оплаченным заказам.
type Trainer struct {
	ID                uuid.UUID
	Name              string
	PromoCode         string
	DiscountPercent   int64
	CommissionPercent int64
	TotalOrders       int64
	TotalEarnings     int64
	IsActive          bool
	CreatedAt         time.Time
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusNew            OrderStatus = "new"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDone           OrderStatus = "done"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderItem описывает позицию заказа, зафиксированную на момент оформления.
type OrderItem struct {
	BoxID     *uuid.UUID `json:"box_id,omitempty"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Name      string     `json:"name"`
	Price     int64      `json:"price"`
	Quantity  int64      `json:"quantity"`
}

// Order описывает заказ. Скидка и списанные баллы — снимок на момент
// оформления, изменения промокода задним числом на заказ не влияют.
type Order struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Status            OrderStatus
	TotalPrice        int64
	Items             []OrderItem
	PromoCodeID       *uuid.UUID
	TrainerID         *uuid.UUID
	DiscountPercent   int64
	DiscountAmount    int64
	LoyaltyPointsUsed int64
	PromoApplied      bool
	CRMSyncedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TransactionType описывает тип записи в журнале баллов.
type TransactionType string

const (
	TransactionTypeEarn           TransactionType = "earn"
	TransactionTypeSpend          TransactionType = "spend"
	TransactionTypeReferralBonus  TransactionType = "referral_bonus"
	TransactionTypeReferralReward TransactionType = "referral_reward"
	TransactionTypeManual         TransactionType = "manual"
)

// LoyaltyTransaction — запись журнала баллов. Журнал только пополняется;
// истинный баланс пользователя равен сумме Points по всем его записям.
type LoyaltyTransaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	OrderID     *uuid.UUID
	Type        TransactionType
	Points      int64
	Description string
	CreatedAt   time.Time
}

// ReferralStatus описывает состояние реферальной связи.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
)

// Referral связывает пригласившего и приглашённого пользователей.
// BonusAwarded переходит из false в true не более одного раза.
type Referral struct {
	ID           uuid.UUID
	ReferrerID   uuid.UUID
	ReferredID   uuid.UUID
	Status       ReferralStatus
	BonusAwarded bool
	CreatedAt    time.Time
}

// BroadcastStatus описывает состояние рассылки.
type BroadcastStatus string

const (
	BroadcastStatusPending BroadcastStatus = "pending"
	BroadcastStatusRunning BroadcastStatus = "running"
	BroadcastStatusDone    BroadcastStatus = "done"
)

// Broadcast описывает массовую рассылку сообщения пользователям.
type Broadcast struct {
	ID        uuid.UUID
	Text      string
	Status    BroadcastStatus
	Total     int64
	Sent      int64
	Failed    int64
	CreatedAt time.Time
}

// Balance содержит кэшированный баланс баллов пользователя.
type Balance struct {
	Current int64 `json:"current"`
}
