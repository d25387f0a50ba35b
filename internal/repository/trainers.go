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

const trainerColumns = `id, name, promo_code, discount_percent, commission_percent,
	total_orders, total_earnings, is_active, created_at`

func scanTrainer(row pgx.Row) (*model.Trainer, error) {
	var t model.Trainer
	err := row.Scan(&t.ID, &t.Name, &t.PromoCode, &t.DiscountPercent, &t.CommissionPercent,
		&t.TotalOrders, &t.TotalEarnings, &t.IsActive, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTrainerNotFound
		}
		return nil, fmt.Errorf("scan trainer: %w", err)
	}
	return &t, nil
}

// CreateTrainer создаёт тренера и одной транзакцией регистрирует его промокод.
func (r *PostgresRepository) CreateTrainer(ctx context.Context, t *model.Trainer) (uuid.UUID, error) {
	code := strings.ToUpper(strings.TrimSpace(t.PromoCode))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO trainers (name, promo_code, discount_percent, commission_percent, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		t.Name, code, t.DiscountPercent, t.CommissionPercent, t.IsActive,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrCodeTaken, code)
		}
		return uuid.Nil, fmt.Errorf("create trainer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO promo_codes (code, type, discount_percent, trainer_id)
		 VALUES ($1, $2, $3, $4)`,
		code, model.PromoCodeTypeTrainer, t.DiscountPercent, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrCodeTaken, code)
		}
		return uuid.Nil, fmt.Errorf("register trainer promo: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetTrainerByID возвращает тренера по идентификатору.
func (r *PostgresRepository) GetTrainerByID(ctx context.Context, id uuid.UUID) (*model.Trainer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+trainerColumns+` FROM trainers WHERE id = $1`, id)
	return scanTrainer(row)
}

// ListTrainers возвращает всех тренеров с их накопленными агрегатами.
func (r *PostgresRepository) ListTrainers(ctx context.Context) ([]model.Trainer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+trainerColumns+` FROM trainers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select trainers: %w", err)
	}
	defer rows.Close()

	var trainers []model.Trainer
	for rows.Next() {
		t, err := scanTrainer(rows)
		if err != nil {
			return nil, err
		}
		trainers = append(trainers, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return trainers, nil
}

// UpdateTrainer обновляет параметры тренера. Агрегаты заказов не трогаются.
func (r *PostgresRepository) UpdateTrainer(ctx context.Context, t *model.Trainer) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE trainers
		 SET name = $2, discount_percent = $3, commission_percent = $4, is_active = $5
		 WHERE id = $1`,
		t.ID, t.Name, t.DiscountPercent, t.CommissionPercent, t.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update trainer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTrainerNotFound
	}
	return nil
}
