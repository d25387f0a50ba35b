package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kavara-app/kavara-backend/internal/model"
)

const promoColumns = `id, code, type, discount_percent, discount_amount, max_uses, used_count,
	is_active, expires_at, trainer_id, owner_user_id, points_per_use, reward_percent, created_at`

func scanPromoCode(row pgx.Row) (*model.PromoCode, error) {
	var p model.PromoCode
	err := row.Scan(&p.ID, &p.Code, &p.Type, &p.DiscountPercent, &p.DiscountAmount,
		&p.MaxUses, &p.UsedCount, &p.IsActive, &p.ExpiresAt, &p.TrainerID,
		&p.OwnerUserID, &p.PointsPerUse, &p.RewardPercent, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("scan promo code: %w", err)
	}
	return &p, nil
}

// GetPromoCodeByCode возвращает промокод по нормализованному коду.
func (r *PostgresRepository) GetPromoCodeByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`,
		strings.ToUpper(strings.TrimSpace(code)),
	)
	return scanPromoCode(row)
}

// GetPromoCodeByID возвращает промокод по идентификатору.
func (r *PostgresRepository) GetPromoCodeByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE id = $1`, id)
	return scanPromoCode(row)
}

// CreatePromoCode создаёт новый промокод. Код хранится в верхнем регистре.
func (r *PostgresRepository) CreatePromoCode(ctx context.Context, p *model.PromoCode) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO promo_codes
		 (code, type, discount_percent, discount_amount, max_uses, is_active, expires_at,
		  trainer_id, owner_user_id, points_per_use, reward_percent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		strings.ToUpper(strings.TrimSpace(p.Code)), p.Type, p.DiscountPercent, p.DiscountAmount,
		p.MaxUses, p.IsActive, p.ExpiresAt, p.TrainerID, p.OwnerUserID,
		p.PointsPerUse, p.RewardPercent,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrCodeTaken, p.Code)
		}
		return uuid.Nil, fmt.Errorf("create promo code: %w", err)
	}
	return id, nil
}

// UpdatePromoCode обновляет параметры промокода. Счётчик использований не трогается.
func (r *PostgresRepository) UpdatePromoCode(ctx context.Context, p *model.PromoCode) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE promo_codes
		 SET discount_percent = $2, discount_amount = $3, max_uses = $4, is_active = $5,
		     expires_at = $6, points_per_use = $7, reward_percent = $8
		 WHERE id = $1`,
		p.ID, p.DiscountPercent, p.DiscountAmount, p.MaxUses, p.IsActive,
		p.ExpiresAt, p.PointsPerUse, p.RewardPercent,
	)
	if err != nil {
		return fmt.Errorf("update promo code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

// DeactivatePromoCode выключает промокод, не удаляя его историю использований.
func (r *PostgresRepository) DeactivatePromoCode(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE promo_codes SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate promo code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

// ListPromoCodes возвращает все промокоды в порядке создания.
func (r *PostgresRepository) ListPromoCodes(ctx context.Context) ([]model.PromoCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select promo codes: %w", err)
	}
	defer rows.Close()

	var codes []model.PromoCode
	for rows.Next() {
		p, err := scanPromoCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return codes, nil
}
