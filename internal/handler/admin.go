package handler

import (
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

type adminLoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AdminLogin проверяет учётные данные администратора и выдаёт bearer-токен.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	token, err := h.adminAuth.Authenticate(req.Login, req.Password)
	if err != nil {
		if errors.Is(err, middleware.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("admin login error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type promoCodeRequest struct {
	Code            string     `json:"code"`
	Type            string     `json:"type"`
	DiscountPercent int64      `json:"discount_percent"`
	DiscountAmount  int64      `json:"discount_amount"`
	MaxUses         *int64     `json:"max_uses,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	TrainerID       *uuid.UUID `json:"trainer_id,omitempty"`
	PointsPerUse    int64      `json:"points_per_use"`
	RewardPercent   int64      `json:"reward_percent"`
}

func (r *promoCodeRequest) toModel() *model.PromoCode {
	return &model.PromoCode{
		Code:            r.Code,
		Type:            model.PromoCodeType(r.Type),
		DiscountPercent: r.DiscountPercent,
		DiscountAmount:  r.DiscountAmount,
		MaxUses:         r.MaxUses,
		IsActive:        true,
		ExpiresAt:       r.ExpiresAt,
		TrainerID:       r.TrainerID,
		PointsPerUse:    r.PointsPerUse,
		RewardPercent:   r.RewardPercent,
	}
}

// CreatePromoCode создаёт промокод.
func (h *Handler) CreatePromoCode(w http.ResponseWriter, r *http.Request) {
	var req promoCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreatePromoCode(r.Context(), req.toModel())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeTaken):
			http.Error(w, "promo code already exists", http.StatusConflict)
		case errors.Is(err, service.ErrInvalidAmount):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("create promo error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

// UpdatePromoCode обновляет параметры промокода.
func (h *Handler) UpdatePromoCode(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req promoCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	promo := req.toModel()
	promo.ID = id

	if err := h.service.UpdatePromoCode(r.Context(), promo); err != nil {
		switch {
		case errors.Is(err, repository.ErrPromoNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidAmount):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("update promo error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeactivatePromoCode отключает промокод, сохраняя историю использований.
func (h *Handler) DeactivatePromoCode(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeactivatePromoCode(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrPromoNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("deactivate promo error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListPromoCodes возвращает все промокоды.
func (h *Handler) ListPromoCodes(w http.ResponseWriter, r *http.Request) {
	promos, err := h.service.ListPromoCodes(r.Context())
	if err != nil {
		h.logger.Error("list promos error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, promos)
}

type trainerRequest struct {
	Name              string `json:"name"`
	PromoCode         string `json:"promo_code"`
	DiscountPercent   int64  `json:"discount_percent"`
	CommissionPercent int64  `json:"commission_percent"`
	IsActive          *bool  `json:"is_active,omitempty"`
}

// CreateTrainer регистрирует тренера вместе с его промокодом.
func (h *Handler) CreateTrainer(w http.ResponseWriter, r *http.Request) {
	var req trainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	trainer := &model.Trainer{
		Name:              req.Name,
		PromoCode:         req.PromoCode,
		DiscountPercent:   req.DiscountPercent,
		CommissionPercent: req.CommissionPercent,
	}

	id, err := h.service.CreateTrainer(r.Context(), trainer)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeTaken):
			http.Error(w, "promo code already exists", http.StatusConflict)
		case errors.Is(err, service.ErrInvalidAmount):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("create trainer error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

// ListTrainers возвращает всех тренеров со статистикой.
func (h *Handler) ListTrainers(w http.ResponseWriter, r *http.Request) {
	trainers, err := h.service.ListTrainers(r.Context())
	if err != nil {
		h.logger.Error("list trainers error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, trainers)
}

// UpdateTrainer обновляет данные тренера.
func (h *Handler) UpdateTrainer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req trainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	trainer := &model.Trainer{
		ID:                id,
		Name:              req.Name,
		PromoCode:         req.PromoCode,
		DiscountPercent:   req.DiscountPercent,
		CommissionPercent: req.CommissionPercent,
		IsActive:          req.IsActive == nil || *req.IsActive,
	}

	if err := h.service.UpdateTrainer(r.Context(), trainer); err != nil {
		switch {
		case errors.Is(err, repository.ErrTrainerNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidAmount):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("update trainer error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// SetOrderStatus меняет статус заказа. Переход в "paid" запускает начисления
// по промокоду и реферальной программе.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	status := model.OrderStatus(req.Status)
	switch status {
	case model.OrderStatusNew, model.OrderStatusPendingPayment, model.OrderStatusPaid,
		model.OrderStatusShipped, model.OrderStatusDone, model.OrderStatusCancelled:
	default:
		http.Error(w, "unknown order status", http.StatusBadRequest)
		return
	}

	if err := h.service.SetOrderStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("set order status error", zap.Error(err), zap.String("orderID", id.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type awardPointsRequest struct {
	Username    string `json:"username"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

// AwardPoints начисляет или списывает баллы пользователю вручную.
func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	var req awardPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AwardManual(r.Context(), req.Username, req.Points, req.Description); err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidAmount):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("award points error", zap.Error(err), zap.String("username", req.Username))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeactivateUser помечает пользователя неактивным. Физическое удаление не
// поддерживается: журнал баллов и заказы остаются.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeactivateUser(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("deactivate user error", zap.Error(err), zap.String("userID", id.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// RecalculateBalance пересчитывает баланс пользователя по журналу операций.
func (h *Handler) RecalculateBalance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.Recalculate(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("recalculate balance error", zap.Error(err), zap.String("userID", id.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, model.Balance{Current: balance})
}

type broadcastRequest struct {
	Text string `json:"text"`
}

// CreateBroadcast запускает рассылку сообщения всем активным пользователям.
func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, total, err := h.service.Broadcast(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("create broadcast error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":    id,
		"total": total,
	})
}
