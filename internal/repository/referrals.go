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

// CreateReferral регистрирует реферальную связь. Повторная регистрация того же
// приглашённого молча игнорируется: у пользователя может быть только один пригласивший.
func (r *PostgresRepository) CreateReferral(ctx context.Context, referrerID, referredID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO referrals (referrer_id, referred_id)
		 VALUES ($1, $2)
		 ON CONFLICT (referred_id) DO NOTHING`,
		referrerID, referredID,
	)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

// GetPendingReferralByReferredID возвращает незавершённую реферальную связь приглашённого.
func (r *PostgresRepository) GetPendingReferralByReferredID(ctx context.Context, referredID uuid.UUID) (*model.Referral, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, referrer_id, referred_id, status, bonus_awarded, created_at
		 FROM referrals
		 WHERE referred_id = $1 AND status = $2`,
		referredID, model.ReferralStatusPending,
	)

	var ref model.Referral
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.Status,
		&ref.BonusAwarded, &ref.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("get referral: %w", err)
	}

	return &ref, nil
}

// CompleteReferral переводит связь в completed и начисляет бонус пригласившему,
// если он ещё не начислялся. Возвращает true, если бонус был начислен этим вызовом;
// повторные вызовы безопасны и возвращают false без ошибки.
func (r *PostgresRepository) CompleteReferral(ctx context.Context, referralID uuid.UUID, bonusPoints int64, description string) (bool, error) {
	var awarded bool

	err := r.withRetry(ctx, func() error {
		awarded = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var referrerID uuid.UUID
		err = tx.QueryRow(ctx,
			`UPDATE referrals
			 SET status = $2, bonus_awarded = TRUE
			 WHERE id = $1 AND NOT bonus_awarded
			 RETURNING referrer_id`,
			referralID, model.ReferralStatusCompleted,
		).Scan(&referrerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Бонус уже начислен ранее: событие доставлено повторно.
				return nil
			}
			return fmt.Errorf("complete referral: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO loyalty_transactions (user_id, order_id, type, points, description)
			 VALUES ($1, NULL, $2, $3, $4)`,
			referrerID, model.TransactionTypeReferralBonus, bonusPoints, description,
		)
		if err != nil {
			return fmt.Errorf("insert bonus entry: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET loyalty_points = loyalty_points + $2 WHERE id = $1`,
			referrerID, bonusPoints,
		)
		if err != nil {
			return fmt.Errorf("credit referrer balance: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		awarded = true
		return nil
	})

	return awarded, err
}

// CreateReferralCode присваивает пользователю реферальный код и одной транзакцией
// регистрирует его как промокод, принадлежащий пользователю. Занятый код
// возвращает ErrCodeTaken.
func (r *PostgresRepository) CreateReferralCode(ctx context.Context, userID uuid.UUID, code string, discountPercent, rewardPercent int64) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE users SET referral_code = $2 WHERE id = $1 AND referral_code IS NULL`,
		userID, code,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCodeTaken, code)
		}
		return fmt.Errorf("set referral code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Либо пользователя нет, либо код уже присвоен конкурентным запросом.
		u, uerr := r.GetUserByID(ctx, userID)
		if uerr != nil {
			return uerr
		}
		if u.ReferralCode != nil {
			return nil
		}
		return ErrUserNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO promo_codes (code, type, discount_percent, owner_user_id, reward_percent)
		 VALUES ($1, $2, $3, $4, $5)`,
		code, model.PromoCodeTypeLoyalty, discountPercent, userID, rewardPercent,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCodeTaken, code)
		}
		return fmt.Errorf("register referral promo: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
