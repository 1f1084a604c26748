package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const listActiveMenuItems = `SELECT id, sku, name, description, category, position, price, tags, is_active, created_at, updated_at
FROM menu_items
WHERE is_active = true
ORDER BY category, position, name
`

func (q *Queries) ListActiveMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listActiveMenuItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		var i MenuItem
		if err := rows.Scan(
			&i.ID,
			&i.Sku,
			&i.Name,
			&i.Description,
			&i.Category,
			&i.Position,
			&i.Price,
			&i.Tags,
			&i.IsActive,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMenuItemsBySkus = `SELECT id, sku, name, description, category, position, price, tags, is_active, created_at, updated_at
FROM menu_items
WHERE sku = ANY($1::text[]) AND is_active = true
`

func (q *Queries) GetMenuItemsBySkus(ctx context.Context, skus []string) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, getMenuItemsBySkus, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		var i MenuItem
		if err := rows.Scan(
			&i.ID,
			&i.Sku,
			&i.Name,
			&i.Description,
			&i.Category,
			&i.Position,
			&i.Price,
			&i.Tags,
			&i.IsActive,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertMenuItem = `INSERT INTO menu_items (sku, name, description, category, position, price, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (sku) DO UPDATE
SET name = EXCLUDED.name,
    description = EXCLUDED.description,
    category = EXCLUDED.category,
    position = EXCLUDED.position,
    price = EXCLUDED.price,
    tags = EXCLUDED.tags,
    is_active = true,
    updated_at = now()
RETURNING id, sku, name, description, category, position, price, tags, is_active, created_at, updated_at
`

type UpsertMenuItemParams struct {
	Sku         string         `json:"sku"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Position    int32          `json:"position"`
	Price       pgtype.Numeric `json:"price"`
	Tags        []string       `json:"tags"`
}

func (q *Queries) UpsertMenuItem(ctx context.Context, arg UpsertMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, upsertMenuItem,
		arg.Sku,
		arg.Name,
		arg.Description,
		arg.Category,
		arg.Position,
		arg.Price,
		arg.Tags,
	)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Sku,
		&i.Name,
		&i.Description,
		&i.Category,
		&i.Position,
		&i.Price,
		&i.Tags,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
