package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// ListBoxes возвращает активные боксы каталога вместе с составом.
func (r *PostgresRepository) ListBoxes(ctx context.Context) ([]model.Box, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.id, b.name, b.description, b.price, b.image_url, b.is_active, b.created_at,
		        COALESCE(array_agg(bi.product_id) FILTER (WHERE bi.product_id IS NOT NULL), '{}')
		 FROM boxes b
		 LEFT JOIN box_items bi ON bi.box_id = b.id
		 WHERE b.is_active
		 GROUP BY b.id
		 ORDER BY b.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select boxes: %w", err)
	}
	defer rows.Close()

	var boxes []model.Box
	for rows.Next() {
		var b model.Box
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Price, &b.ImageURL,
			&b.IsActive, &b.CreatedAt, &b.ProductIDs); err != nil {
			return nil, fmt.Errorf("scan box: %w", err)
		}
		boxes = append(boxes, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return boxes, nil
}

// GetBoxByID возвращает бокс по идентификатору вместе с составом.
func (r *PostgresRepository) GetBoxByID(ctx context.Context, id uuid.UUID) (*model.Box, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT b.id, b.name, b.description, b.price, b.image_url, b.is_active, b.created_at,
		        COALESCE(array_agg(bi.product_id) FILTER (WHERE bi.product_id IS NOT NULL), '{}')
		 FROM boxes b
		 LEFT JOIN box_items bi ON bi.box_id = b.id
		 WHERE b.id = $1
		 GROUP BY b.id`,
		id,
	)

	var b model.Box
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Price, &b.ImageURL,
		&b.IsActive, &b.CreatedAt, &b.ProductIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoxNotFound
		}
		return nil, fmt.Errorf("get box: %w", err)
	}

	return &b, nil
}

// ListProducts возвращает активные товары каталога.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, price, category, image_url, is_active, created_at
		 FROM products
		 WHERE is_active
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category,
			&p.ImageURL, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// GetProductByID возвращает товар по идентификатору.
func (r *PostgresRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, description, price, category, image_url, is_active, created_at
		 FROM products WHERE id = $1`,
		id,
	)

	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category,
		&p.ImageURL, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// ToggleFavorite добавляет элемент в избранное или убирает его, если он уже добавлен.
// Возвращает true, если элемент был добавлен.
func (r *PostgresRepository) ToggleFavorite(ctx context.Context, userID uuid.UUID, boxID, productID *uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO favorites (user_id, box_id, product_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		userID, boxID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("insert favorite: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return true, nil
	}

	_, err = r.pool.Exec(ctx,
		`DELETE FROM favorites
		 WHERE user_id = $1 AND box_id IS NOT DISTINCT FROM $2 AND product_id IS NOT DISTINCT FROM $3`,
		userID, boxID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}

	return false, nil
}

// ListFavorites возвращает избранное пользователя.
func (r *PostgresRepository) ListFavorites(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, box_id, product_id, created_at
		 FROM favorites
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select favorites: %w", err)
	}
	defer rows.Close()

	var favorites []model.Favorite
	for rows.Next() {
		var f model.Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.BoxID, &f.ProductID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favorites = append(favorites, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return favorites, nil
}
