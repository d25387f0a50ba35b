package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// CreateBroadcast сохраняет новую рассылку в состоянии pending.
func (r *PostgresRepository) CreateBroadcast(ctx context.Context, text string, total int64) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO broadcasts (text, total) VALUES ($1, $2) RETURNING id`,
		text, total,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create broadcast: %w", err)
	}
	return id, nil
}

// UpdateBroadcastProgress обновляет счётчики и статус рассылки.
func (r *PostgresRepository) UpdateBroadcastProgress(ctx context.Context, id uuid.UUID, sent, failed int64, status model.BroadcastStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE broadcasts SET sent = $2, failed = $3, status = $4 WHERE id = $1`,
		id, sent, failed, status,
	)
	if err != nil {
		return fmt.Errorf("update broadcast: %w", err)
	}
	return nil
}
