// Package handler содержит HTTP-обработчики API магазина KAVARA.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kavara-app/kavara-backend/internal/middleware"
	"github.com/kavara-app/kavara-backend/internal/model"
	"github.com/kavara-app/kavara-backend/internal/repository"
	"github.com/kavara-app/kavara-backend/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterTelegramUser(ctx context.Context, telegramID int64, username *string, firstName, referralCode string) error
	GetProfile(ctx context.Context, telegramID int64) (*model.User, error)
	GetTransactions(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error)

	ListBoxes(ctx context.Context) ([]model.Box, error)
	GetBoxByID(ctx context.Context, id uuid.UUID) (*model.Box, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ToggleFavorite(ctx context.Context, userID uuid.UUID, boxID, productID *uuid.UUID) (bool, error)
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error)

	GenerateReferralCode(ctx context.Context, userID uuid.UUID) (string, error)
	ValidatePromoCode(ctx context.Context, code string, orderAmount int64) (*service.ValidationResult, error)

	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) error

	CreatePromoCode(ctx context.Context, p *model.PromoCode) (uuid.UUID, error)
	UpdatePromoCode(ctx context.Context, p *model.PromoCode) error
	DeactivatePromoCode(ctx context.Context, id uuid.UUID) error
	ListPromoCodes(ctx context.Context) ([]model.PromoCode, error)

	CreateTrainer(ctx context.Context, t *model.Trainer) (uuid.UUID, error)
	ListTrainers(ctx context.Context) ([]model.Trainer, error)
	UpdateTrainer(ctx context.Context, t *model.Trainer) error

	AwardManual(ctx context.Context, username string, points int64, description string) error
	DeactivateUser(ctx context.Context, userID uuid.UUID) error
	Recalculate(ctx context.Context, userID uuid.UUID) (int64, error)
	Broadcast(ctx context.Context, text string) (uuid.UUID, int64, error)
}

// Handler реализует HTTP-обработчики API магазина KAVARA.
type Handler struct {
	service   Service
	logger    *zap.Logger
	tgAuth    *middleware.TelegramAuth
	adminAuth *middleware.AdminAuth
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, tgAuth *middleware.TelegramAuth, adminAuth *middleware.AdminAuth) *Handler {
	return &Handler{
		service:   s,
		logger:    logger,
		tgAuth:    tgAuth,
		adminAuth: adminAuth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorKind сопоставляет ошибке бизнес-логики машинный код и сообщение
// для покупателя. Инфраструктурные сбои сюда не попадают.
func errorKind(err error) (string, string, bool) {
	switch {
	case errors.Is(err, repository.ErrPromoNotFound):
		return "not_found", "Промокод не найден", true
	case errors.Is(err, repository.ErrPromoInactive):
		return "inactive", "Промокод недействителен", true
	case errors.Is(err, repository.ErrPromoExpired):
		return "expired", "Срок действия промокода истёк", true
	case errors.Is(err, repository.ErrPromoUsageLimit):
		return "usage_limit_reached", "Лимит использований промокода исчерпан", true
	case errors.Is(err, repository.ErrInsufficientBalance):
		return "insufficient_balance", "Недостаточно баллов", true
	case errors.Is(err, service.ErrInvalidAmount):
		return "invalid_amount", "Некорректное значение", true
	case errors.Is(err, repository.ErrAlreadyApplied):
		return "already_applied", "Промокод уже применён к заказу", true
	case errors.Is(err, repository.ErrUserNotFound):
		return "user_not_found", "Пользователь не найден", true
	}
	return "", "", false
}

// currentUser регистрирует пользователя Telegram и возвращает его запись.
func (h *Handler) currentUser(r *http.Request) (*model.User, error) {
	tgUser, ok := middleware.GetTelegramUserFromContext(r.Context())
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	var username *string
	if tgUser.Username != "" {
		username = &tgUser.Username
	}

	err := h.service.RegisterTelegramUser(r.Context(), tgUser.ID, username, tgUser.FirstName, tgUser.StartParam)
	if err != nil {
		return nil, err
	}

	return h.service.GetProfile(r.Context(), tgUser.ID)
}

type profileResponse struct {
	TelegramID    int64   `json:"telegram_id"`
	Username      *string `json:"username,omitempty"`
	FirstName     string  `json:"first_name"`
	LoyaltyPoints int64   `json:"loyalty_points"`
	ReferralCode  *string `json:"referral_code,omitempty"`
}

// GetProfile возвращает профиль текущего пользователя, создавая его при первом входе.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("get profile error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		TelegramID:    user.TelegramID,
		Username:      user.Username,
		FirstName:     user.FirstName,
		LoyaltyPoints: user.LoyaltyPoints,
		ReferralCode:  user.ReferralCode,
	})
}

type transactionResponse struct {
	Type        string `json:"type"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// GetTransactions возвращает историю баллов текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	transactions, err := h.service.GetTransactions(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.Int64("telegramID", user.TelegramID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, transactionResponse{
			Type:        string(t.Type),
			Points:      t.Points,
			Description: t.Description,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListBoxes возвращает активные боксы каталога.
func (h *Handler) ListBoxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := h.service.ListBoxes(r.Context())
	if err != nil {
		h.logger.Error("list boxes error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, boxes)
}

// GetBox возвращает бокс по идентификатору.
func (h *Handler) GetBox(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	box, err := h.service.GetBoxByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get box error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, box)
}

// ListProducts возвращает активные товары каталога.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

type toggleFavoriteRequest struct {
	BoxID     *uuid.UUID `json:"box_id,omitempty"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
}

// ToggleFavorite переключает элемент избранного текущего пользователя.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req toggleFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if (req.BoxID == nil) == (req.ProductID == nil) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("toggle favorite error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	added, err := h.service.ToggleFavorite(r.Context(), user.ID, req.BoxID, req.ProductID)
	if err != nil {
		h.logger.Error("toggle favorite error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

// ListFavorites возвращает избранное текущего пользователя.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("list favorites error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	favorites, err := h.service.ListFavorites(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list favorites error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, favorites)
}

// GenerateReferralCode возвращает реферальный код текущего пользователя,
// создавая его при первом обращении.
func (h *Handler) GenerateReferralCode(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("generate referral code error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	code, err := h.service.GenerateReferralCode(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("generate referral code error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"referral_code": code})
}

type validatePromoRequest struct {
	Code        string `json:"code"`
	OrderAmount int64  `json:"order_amount"`
}

type validatePromoResponse struct {
	IsValid         bool   `json:"is_valid"`
	DiscountPercent int64  `json:"discount_percent,omitempty"`
	DiscountAmount  int64  `json:"discount_amount,omitempty"`
	TrainerName     string `json:"trainer_name,omitempty"`
	Error           string `json:"error,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ValidatePromoCode проверяет промокод для суммы заказа. Отказ проверки —
// нормальный ответ с кодом причины, а не ошибка HTTP.
func (h *Handler) ValidatePromoCode(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.ValidatePromoCode(r.Context(), req.Code, req.OrderAmount)
	if err != nil {
		if kind, message, ok := errorKind(err); ok {
			writeJSON(w, http.StatusOK, validatePromoResponse{
				IsValid: false,
				Error:   kind,
				Message: message,
			})
			return
		}
		h.logger.Error("validate promo error", zap.Error(err), zap.String("code", req.Code))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := validatePromoResponse{
		IsValid:         true,
		DiscountPercent: res.DiscountPercent,
		DiscountAmount:  res.DiscountAmount,
	}
	if res.Trainer != nil {
		resp.TrainerName = res.Trainer.Name
	}

	writeJSON(w, http.StatusOK, resp)
}

type orderItemRequest struct {
	BoxID     *uuid.UUID `json:"box_id,omitempty"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Quantity  int64      `json:"quantity"`
}

type createOrderRequest struct {
	Items         []orderItemRequest `json:"items"`
	PromoCode     string             `json:"promo_code"`
	LoyaltyPoints int64              `json:"loyalty_points"`
}

// CreateOrder оформляет заказ текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("create order error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	in := service.CreateOrderInput{
		UserID:        user.ID,
		PromoCode:     req.PromoCode,
		LoyaltyPoints: req.LoyaltyPoints,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.OrderItemInput{
			BoxID:     it.BoxID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}

	order, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientBalance):
			kind, message, _ := errorKind(err)
			writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: kind, Message: message})
		case errors.Is(err, service.ErrEmptyOrder),
			errors.Is(err, repository.ErrBoxNotFound),
			errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			if kind, message, ok := errorKind(err); ok {
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: kind, Message: message})
				return
			}
			h.logger.Error("create order error", zap.Error(err), zap.Int64("telegramID", user.TelegramID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("telegramID", user.TelegramID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}
