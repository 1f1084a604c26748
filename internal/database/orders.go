package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, order_type, label, delivery_address, delivery_contact, subtotal, tax_rate, tax_amount, tip, discount, total_amount, status, created_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.OrderType,
		&i.Label,
		&i.DeliveryAddress,
		&i.DeliveryContact,
		&i.Subtotal,
		&i.TaxRate,
		&i.TaxAmount,
		&i.Tip,
		&i.Discount,
		&i.TotalAmount,
		&i.Status,
		&i.CreatedAt,
		&i.PaidAt,
	)
	return i, err
}

const createOrder = `INSERT INTO orders (order_type, label, delivery_address, delivery_contact, subtotal, tax_rate, tax_amount, tip, discount, total_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderType       string         `json:"order_type"`
	Label           string         `json:"label"`
	DeliveryAddress pgtype.Text    `json:"delivery_address"`
	DeliveryContact pgtype.Text    `json:"delivery_contact"`
	Subtotal        pgtype.Numeric `json:"subtotal"`
	TaxRate         pgtype.Numeric `json:"tax_rate"`
	TaxAmount       pgtype.Numeric `json:"tax_amount"`
	Tip             pgtype.Numeric `json:"tip"`
	Discount        pgtype.Numeric `json:"discount"`
	TotalAmount     pgtype.Numeric `json:"total_amount"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderType,
		arg.Label,
		arg.DeliveryAddress,
		arg.DeliveryContact,
		arg.Subtotal,
		arg.TaxRate,
		arg.TaxAmount,
		arg.Tip,
		arg.Discount,
		arg.TotalAmount,
	)
	return scanOrder(row)
}

const createOrderItem = `INSERT INTO order_items (order_id, sku, name, unit_price, quantity, subtotal)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, sku, name, unit_price, quantity, subtotal
`

type CreateOrderItemParams struct {
	OrderID   uuid.UUID      `json:"order_id"`
	Sku       string         `json:"sku"`
	Name      string         `json:"name"`
	UnitPrice pgtype.Numeric `json:"unit_price"`
	Quantity  int32          `json:"quantity"`
	Subtotal  pgtype.Numeric `json:"subtotal"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.Sku,
		arg.Name,
		arg.UnitPrice,
		arg.Quantity,
		arg.Subtotal,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Sku,
		&i.Name,
		&i.UnitPrice,
		&i.Quantity,
		&i.Subtotal,
	)
	return i, err
}

const getOrderByNumber = `SELECT ` + orderColumns + `
FROM orders
WHERE order_number = $1
`

func (q *Queries) GetOrderByNumber(ctx context.Context, orderNumber int64) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderByNumber, orderNumber)
	return scanOrder(row)
}

const getOrderForUpdate = `SELECT ` + orderColumns + `
FROM orders
WHERE order_number = $1
FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, orderNumber int64) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderForUpdate, orderNumber)
	return scanOrder(row)
}

const markOrderPaid = `UPDATE orders
SET status = 'PAID', paid_at = now()
WHERE id = $1 AND status = 'OPEN'
RETURNING ` + orderColumns

func (q *Queries) MarkOrderPaid(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, markOrderPaid, id)
	return scanOrder(row)
}

const listOrderItems = `SELECT id, order_id, sku, name, unit_price, quantity, subtotal
FROM order_items
WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.Sku,
			&i.Name,
			&i.UnitPrice,
			&i.Quantity,
			&i.Subtotal,
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
