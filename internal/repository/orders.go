package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kavara-app/kavara-backend/internal/model"
)

const orderColumns = `id, user_id, status, total_price, items, promo_code_id, trainer_id,
	discount_percent, discount_amount, loyalty_points_used, promo_applied, crm_synced_at,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var items []byte
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalPrice, &items, &o.PromoCodeID,
		&o.TrainerID, &o.DiscountPercent, &o.DiscountAmount, &o.LoyaltyPointsUsed,
		&o.PromoApplied, &o.CRMSyncedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &o, nil
}

// CreateOrder сохраняет заказ. Списание баллов выполняется в той же транзакции,
// что и вставка заказа: при нехватке баланса заказ не создаётся.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO orders
			 (user_id, status, total_price, items, promo_code_id, trainer_id,
			  discount_percent, discount_amount, loyalty_points_used)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id, created_at, updated_at`,
			o.UserID, o.Status, o.TotalPrice, items, o.PromoCodeID, o.TrainerID,
			o.DiscountPercent, o.DiscountAmount, o.LoyaltyPointsUsed,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if o.LoyaltyPointsUsed > 0 {
			err := spendPointsTx(ctx, tx, o.UserID, &o.ID, o.LoyaltyPointsUsed,
				"Списание баллов при оформлении заказа")
			if err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetOrderByID возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus обновляет статус заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ApplyPromo выполняет все эффекты применения промокода к оплаченному заказу
// одной транзакцией: инкремент счётчика использований с проверкой лимита,
// начисление баллов владельцу кода, обновление агрегатов тренера. Повторный
// вызов для того же заказа завершается ErrAlreadyApplied. Возвращает число
// баллов, начисленных владельцу кода.
func (r *PostgresRepository) ApplyPromo(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var awarded int64

	err := r.withRetry(ctx, func() error {
		awarded = 0

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			totalPrice   int64
			promoCodeID  *uuid.UUID
			promoApplied bool
		)
		err = tx.QueryRow(ctx,
			`SELECT total_price, promo_code_id, promo_applied FROM orders WHERE id = $1 FOR UPDATE`,
			orderID,
		).Scan(&totalPrice, &promoCodeID, &promoApplied)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if promoApplied {
			return ErrAlreadyApplied
		}
		if promoCodeID == nil {
			return ErrPromoNotFound
		}

		// Условный инкремент: лимит использований не может быть превышен
		// даже при конкурентных оплатах одного кода.
		var (
			ownerUserID  *uuid.UUID
			trainerID    *uuid.UUID
			pointsPerUse int64
			rewardPct    int64
		)
		err = tx.QueryRow(ctx,
			`UPDATE promo_codes
			 SET used_count = used_count + 1
			 WHERE id = $1
			   AND is_active
			   AND (expires_at IS NULL OR expires_at > now())
			   AND (max_uses IS NULL OR used_count < max_uses)
			 RETURNING owner_user_id, trainer_id, points_per_use, reward_percent`,
			*promoCodeID,
		).Scan(&ownerUserID, &trainerID, &pointsPerUse, &rewardPct)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return promoRejectReason(ctx, tx, *promoCodeID)
			}
			return fmt.Errorf("increment promo usage: %w", err)
		}

		if ownerUserID != nil {
			// Режимы вознаграждения альтернативны: приоритет у points_per_use.
			switch {
			case pointsPerUse > 0:
				awarded = pointsPerUse
			case rewardPct > 0:
				awarded = totalPrice * rewardPct / 100
			}

			if awarded > 0 {
				_, err = tx.Exec(ctx,
					`INSERT INTO loyalty_transactions (user_id, order_id, type, points, description)
					 VALUES ($1, $2, $3, $4, $5)`,
					*ownerUserID, orderID, model.TransactionTypeReferralReward, awarded,
					"Начисление за использование вашего промокода",
				)
				if err != nil {
					return fmt.Errorf("insert reward entry: %w", err)
				}

				_, err = tx.Exec(ctx,
					`UPDATE users SET loyalty_points = loyalty_points + $2 WHERE id = $1`,
					*ownerUserID, awarded,
				)
				if err != nil {
					return fmt.Errorf("credit owner balance: %w", err)
				}
			}
		}

		if trainerID != nil {
			_, err = tx.Exec(ctx,
				`UPDATE trainers
				 SET total_orders = total_orders + 1,
				     total_earnings = total_earnings + ($2 * commission_percent / 100)
				 WHERE id = $1`,
				*trainerID, totalPrice,
			)
			if err != nil {
				return fmt.Errorf("update trainer totals: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders SET promo_applied = TRUE, updated_at = now() WHERE id = $1`,
			orderID,
		)
		if err != nil {
			return fmt.Errorf("mark promo applied: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})

	return awarded, err
}

// promoRejectReason определяет, почему условный инкремент не нашёл строку:
// промокод выключен, просрочен или исчерпал лимит использований.
func promoRejectReason(ctx context.Context, tx pgx.Tx, promoCodeID uuid.UUID) error {
	var (
		isActive  bool
		expiresAt *time.Time
	)
	err := tx.QueryRow(ctx,
		`SELECT is_active, expires_at FROM promo_codes WHERE id = $1`,
		promoCodeID,
	).Scan(&isActive, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPromoNotFound
		}
		return fmt.Errorf("read promo state: %w", err)
	}

	switch {
	case !isActive:
		return ErrPromoInactive
	case expiresAt != nil && !expiresAt.After(time.Now()):
		return ErrPromoExpired
	default:
		return ErrPromoUsageLimit
	}
}

// ListUnsyncedPaidOrders возвращает оплаченные заказы, ещё не отправленные в CRM.
func (r *PostgresRepository) ListUnsyncedPaidOrders(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = $1 AND crm_synced_at IS NULL
		 ORDER BY updated_at
		 LIMIT $2`,
		model.OrderStatusPaid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select unsynced orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// MarkOrderSynced фиксирует успешную отправку заказа в CRM.
func (r *PostgresRepository) MarkOrderSynced(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET crm_synced_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark order synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// OrderReminder описывает неоплаченный заказ, по которому пора напомнить покупателю.
type OrderReminder struct {
	OrderID    uuid.UUID
	TelegramID int64
	TotalPrice int64
	CreatedAt  time.Time
}

// ListPendingReminders возвращает заказы, ожидающие оплаты дольше указанного срока.
func (r *PostgresRepository) ListPendingReminders(ctx context.Context, olderThan time.Duration, limit int) ([]OrderReminder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, u.telegram_id, o.total_price, o.created_at
		 FROM orders o
		 JOIN users u ON u.id = o.user_id
		 WHERE o.status = $1 AND o.created_at < now() - make_interval(secs => $2) AND u.is_active
		 ORDER BY o.created_at
		 LIMIT $3`,
		model.OrderStatusPendingPayment, olderThan.Seconds(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending reminders: %w", err)
	}
	defer rows.Close()

	var res []OrderReminder
	for rows.Next() {
		var rem OrderReminder
		if err := rows.Scan(&rem.OrderID, &rem.TelegramID, &rem.TotalPrice, &rem.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		res = append(res, rem)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
