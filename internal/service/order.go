package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Errors returned by the order service.
var (
	ErrInvalidOrderType = errors.New("invalid orderType")
	ErrInvalidQuantity  = errors.New("quantity must be >= 1")
	ErrDuplicateSKU     = errors.New("sku listed more than once")
	ErrSKUNotFound      = errors.New("sku not found on menu")
	ErrNegativeTip      = errors.New("tip must be >= 0")
	ErrNegativeDiscount = errors.New("discount must be >= 0")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetMenuItemsBySkus(ctx context.Context, skus []string) ([]database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	OrderType       string
	Label           string
	DeliveryAddress string
	DeliveryContact string
	Tip             decimal.Decimal
	Discount        decimal.Decimal
	Items           []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line of the order. Prices sent by the
// terminal are ignored; the menu is the source of truth.
type CreateOrderItemRequest struct {
	SKU      string
	Quantity int32
}

// CreateOrderResult is the created order with its items and computed totals.
type CreateOrderResult struct {
	Order  database.Order
	Items  []database.OrderItem
	Totals money.Totals
}

// OrderCreatedEvent is published after an order commits.
type OrderCreatedEvent struct {
	OrderID   string          `json:"orderId"`
	OrderType string          `json:"orderType"`
	Label     string          `json:"label"`
	Items     int             `json:"items"`
	Total     decimal.Decimal `json:"total"`
}

// OrderService handles order business logic.
type OrderService struct {
	pool      TxBeginner
	newStore  NewOrderStore
	taxRate   decimal.Decimal
	publisher events.Publisher
	logger    *zap.Logger
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, taxRate decimal.Decimal, publisher events.Publisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		pool:      pool,
		newStore:  newStore,
		taxRate:   taxRate,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateOrder validates the request, re-prices every line from the menu and
// creates the order atomically. An order with no items is accepted.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	// --- Validate ---
	if !enum.IsOrderType(req.OrderType) {
		return nil, ErrInvalidOrderType
	}
	if req.Tip.IsNegative() {
		return nil, ErrNegativeTip
	}
	if req.Discount.IsNegative() {
		return nil, ErrNegativeDiscount
	}

	skus := make([]string, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if seen[item.SKU] {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrDuplicateSKU)
		}
		seen[item.SKU] = true
		skus = append(skus, item.SKU)
	}

	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Price lines from the menu ---
	menu := map[string]database.MenuItem{}
	if len(skus) > 0 {
		rows, err := store.GetMenuItemsBySkus(ctx, skus)
		if err != nil {
			return nil, fmt.Errorf("get menu items: %w", err)
		}
		for _, row := range rows {
			menu[row.Sku] = row
		}
	}

	lines := make([]catalog.LineItem, 0, len(req.Items))
	for i, item := range req.Items {
		row, ok := menu[item.SKU]
		if !ok {
			return nil, fmt.Errorf("item[%d] %q: %w", i, item.SKU, ErrSKUNotFound)
		}
		lines = append(lines, catalog.LineItem{
			Item: catalog.Item{
				SKU:   row.Sku,
				Name:  row.Name,
				Price: numericToDecimal(row.Price),
			},
			Quantity: int(item.Quantity),
		})
	}

	totals := money.ComputeTotals(lines, s.taxRate, req.Tip, req.Discount)

	// --- Insert order ---
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderType:       req.OrderType,
		Label:           req.Label,
		DeliveryAddress: optionalText(req.DeliveryAddress),
		DeliveryContact: optionalText(req.DeliveryContact),
		Subtotal:        decimalToNumeric(totals.Subtotal),
		TaxRate:         decimalToNumeric(s.taxRate),
		TaxAmount:       decimalToNumeric(totals.Tax),
		Tip:             decimalToNumeric(req.Tip),
		Discount:        decimalToNumeric(req.Discount),
		TotalAmount:     decimalToNumeric(totals.Total),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// --- Insert items ---
	items := make([]database.OrderItem, 0, len(lines))
	for _, line := range lines {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			Sku:       line.SKU,
			Name:      line.Name,
			UnitPrice: decimalToNumeric(line.Price),
			Quantity:  int32(line.Quantity),
			Subtotal:  decimalToNumeric(line.LineTotal()),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	// --- Commit ---
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Info("order created",
		zap.Int64("order_number", order.OrderNumber),
		zap.Int("items", len(items)),
		zap.String("total", totals.Total.String()))

	// The order is already committed; a lost event is logged, not returned.
	if err := s.publisher.Publish(ctx, enum.EventOrderCreated, OrderCreatedEvent{
		OrderID:   PublicOrderID(order),
		OrderType: order.OrderType,
		Label:     order.Label,
		Items:     len(items),
		Total:     totals.Total,
	}); err != nil {
		s.logger.Warn("publish order.created failed", zap.Int64("order_number", order.OrderNumber), zap.Error(err))
	}

	return &CreateOrderResult{
		Order:  order,
		Items:  items,
		Totals: totals,
	}, nil
}

// PublicOrderID is the id handed to terminals: the sequential order number.
func PublicOrderID(o database.Order) string {
	return strconv.FormatInt(o.OrderNumber, 10)
}

// ParseOrderID is the inverse of PublicOrderID.
func ParseOrderID(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// --- Helpers ---

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NumericToDecimal exposes the pgtype bridge to handlers.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal { return numericToDecimal(n) }

// decimalToNumeric keeps every digit; computed money is never rounded here.
func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
