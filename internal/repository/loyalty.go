package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// AddLedgerEntry добавляет запись в журнал баллов и в той же транзакции
// сдвигает кэшированный баланс пользователя. Баланс не проверяется:
// операция используется для начислений и административных корректировок.
// Для записей, привязанных к заказу, повторная вставка той же пары
// (order_id, type) молча пропускается, баланс при этом не меняется.
func (r *PostgresRepository) AddLedgerEntry(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, typ model.TransactionType, points int64, description string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		inserted, err := tx.Exec(ctx,
			`INSERT INTO loyalty_transactions (user_id, order_id, type, points, description)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (order_id, type) WHERE order_id IS NOT NULL DO NOTHING`,
			userID, orderID, typ, points, description,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		if inserted.RowsAffected() == 0 {
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit tx: %w", err)
			}
			return nil
		}

		tag, err := tx.Exec(ctx,
			`UPDATE users SET loyalty_points = loyalty_points + $2 WHERE id = $1`,
			userID, points,
		)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// SpendPoints списывает баллы при оплате заказа. Строка пользователя блокируется,
// чтобы параллельные списания не увели баланс в минус.
func (r *PostgresRepository) SpendPoints(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, points int64, description string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := spendPointsTx(ctx, tx, userID, orderID, points, description); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

func spendPointsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, orderID *uuid.UUID, points int64, description string) error {
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT loyalty_points FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock user for update: %w", err)
	}

	if points > balance {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO loyalty_transactions (user_id, order_id, type, points, description)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, orderID, model.TransactionTypeSpend, -points, description,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET loyalty_points = loyalty_points - $2 WHERE id = $1`,
		userID, points,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	return nil
}

// RecalculateBalance пересчитывает кэшированный баланс как сумму записей журнала
// и перезаписывает кэш. Операция идемпотентна и безопасна для повторного запуска.
func (r *PostgresRepository) RecalculateBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET loyalty_points = COALESCE(
		     (SELECT SUM(points) FROM loyalty_transactions WHERE user_id = users.id), 0)
		 WHERE id = $1
		 RETURNING loyalty_points`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("recalculate balance: %w", err)
	}
	return balance, nil
}

// GetTransactionsByUser возвращает историю операций с баллами пользователя.
func (r *PostgresRepository) GetTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, order_id, type, points, description, created_at
		 FROM loyalty_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.LoyaltyTransaction
	for rows.Next() {
		var t model.LoyaltyTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Type, &t.Points,
			&t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
