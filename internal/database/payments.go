package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createPayment = `INSERT INTO payments (order_id, method, status, amount_tendered, change_due, reference)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, method, status, amount_tendered, change_due, reference, created_at
`

type CreatePaymentParams struct {
	OrderID        uuid.UUID      `json:"order_id"`
	Method         string         `json:"method"`
	Status         string         `json:"status"`
	AmountTendered pgtype.Numeric `json:"amount_tendered"`
	ChangeDue      pgtype.Numeric `json:"change_due"`
	Reference      string         `json:"reference"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.OrderID,
		arg.Method,
		arg.Status,
		arg.AmountTendered,
		arg.ChangeDue,
		arg.Reference,
	)
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Method,
		&i.Status,
		&i.AmountTendered,
		&i.ChangeDue,
		&i.Reference,
		&i.CreatedAt,
	)
	return i, err
}

const listPaymentsByOrder = `SELECT id, order_id, method, status, amount_tendered, change_due, reference, created_at
FROM payments
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		var i Payment
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.Method,
			&i.Status,
			&i.AmountTendered,
			&i.ChangeDue,
			&i.Reference,
			&i.CreatedAt,
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
