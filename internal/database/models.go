package database

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type MenuItem struct {
	ID          uuid.UUID          `json:"id"`
	Sku         string             `json:"sku"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Position    int32              `json:"position"`
	Price       pgtype.Numeric     `json:"price"`
	Tags        []string           `json:"tags"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
	UpdatedAt   pgtype.Timestamptz `json:"updated_at"`
}

type Order struct {
	ID              uuid.UUID          `json:"id"`
	OrderNumber     int64              `json:"order_number"`
	OrderType       string             `json:"order_type"`
	Label           string             `json:"label"`
	DeliveryAddress pgtype.Text        `json:"delivery_address"`
	DeliveryContact pgtype.Text        `json:"delivery_contact"`
	Subtotal        pgtype.Numeric     `json:"subtotal"`
	TaxRate         pgtype.Numeric     `json:"tax_rate"`
	TaxAmount       pgtype.Numeric     `json:"tax_amount"`
	Tip             pgtype.Numeric     `json:"tip"`
	Discount        pgtype.Numeric     `json:"discount"`
	TotalAmount     pgtype.Numeric     `json:"total_amount"`
	Status          string             `json:"status"`
	CreatedAt       pgtype.Timestamptz `json:"created_at"`
	PaidAt          pgtype.Timestamptz `json:"paid_at"`
}

type OrderItem struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   uuid.UUID      `json:"order_id"`
	Sku       string         `json:"sku"`
	Name      string         `json:"name"`
	UnitPrice pgtype.Numeric `json:"unit_price"`
	Quantity  int32          `json:"quantity"`
	Subtotal  pgtype.Numeric `json:"subtotal"`
}

type Payment struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        uuid.UUID          `json:"order_id"`
	Method         string             `json:"method"`
	Status         string             `json:"status"`
	AmountTendered pgtype.Numeric     `json:"amount_tendered"`
	ChangeDue      pgtype.Numeric     `json:"change_due"`
	Reference      string             `json:"reference"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
}
