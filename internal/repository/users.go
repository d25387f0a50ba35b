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

const userColumns = `id, telegram_id, username, first_name, loyalty_points, referral_code, referred_by, is_active, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LoyaltyPoints,
		&u.ReferralCode, &u.ReferredBy, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetOrCreateUser возвращает пользователя по Telegram ID, создавая его при первом обращении.
// Имя и username обновляются при каждом входе.
func (r *PostgresRepository) GetOrCreateUser(ctx context.Context, telegramID int64, username *string, firstName string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (telegram_id, username, first_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (telegram_id) DO UPDATE
		 SET username = COALESCE(EXCLUDED.username, users.username),
		     first_name = EXCLUDED.first_name
		 RETURNING `+userColumns,
		telegramID, username, firstName,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByTelegramID возвращает пользователя по Telegram ID.
func (r *PostgresRepository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	return scanUser(row)
}

// GetUserByUsername возвращает пользователя по username без учёта регистра.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = $1`, normalized)
	return scanUser(row)
}

// GetUserByReferralCode возвращает владельца указанного реферального кода.
func (r *PostgresRepository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1`, strings.ToUpper(code))
	return scanUser(row)
}

// SetReferredBy привязывает пользователя к пригласившему, если привязки ещё нет.
func (r *PostgresRepository) SetReferredBy(ctx context.Context, userID, referrerID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET referred_by = $2 WHERE id = $1 AND referred_by IS NULL AND id <> $2`,
		userID, referrerID,
	)
	if err != nil {
		return false, fmt.Errorf("set referred_by: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveTelegramIDs возвращает Telegram ID всех активных пользователей.
func (r *PostgresRepository) ListActiveTelegramIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT telegram_id FROM users WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("select telegram ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan telegram id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// DeactivateUser помечает пользователя неактивным. Пользователи не удаляются физически.
func (r *PostgresRepository) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
