package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Errors returned by the payment service.
var (
	ErrInvalidOrderID     = errors.New("invalid orderId")
	ErrInvalidMethod      = errors.New("invalid payment method")
	ErrNegativeTendered   = errors.New("amountTendered must be >= 0")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyPaid   = errors.New("order is already paid")
	ErrInsufficientCash   = errors.New("cash tendered must cover the amount due")
	ErrCardAmountMismatch = errors.New("card amount must equal the amount due")
)

// PaymentStore defines the DB methods needed to settle an order.
// Satisfied by *database.Queries (and its WithTx variant).
type PaymentStore interface {
	GetOrderForUpdate(ctx context.Context, orderNumber int64) (database.Order, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// SettleRequest is the input for settling an order.
type SettleRequest struct {
	OrderID        string
	Method         string
	AmountTendered decimal.Decimal
}

// SettleResult is the stored payment and the order as it stands afterwards.
type SettleResult struct {
	OrderID string
	Order   database.Order
	Payment database.Payment
}

// Approved reports whether the payment went through.
func (r *SettleResult) Approved() bool {
	return r.Payment.Status == enum.SettlementStatusApproved
}

// OrderPaidEvent is published after an approved payment commits.
type OrderPaidEvent struct {
	OrderID   string          `json:"orderId"`
	Method    string          `json:"method"`
	Total     decimal.Decimal `json:"total"`
	ChangeDue decimal.Decimal `json:"changeDue"`
	Reference string          `json:"reference"`
}

// PaymentService handles payment business logic.
type PaymentService struct {
	pool      TxBeginner
	newStore  NewPaymentStore
	card      CardProcessor
	publisher events.Publisher
	logger    *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(pool TxBeginner, newStore NewPaymentStore, card CardProcessor, publisher events.Publisher, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		pool:      pool,
		newStore:  newStore,
		card:      card,
		publisher: publisher,
		logger:    logger,
	}
}

// Settle takes payment for an open order. Cash must cover the total and
// yields change; card must equal the total and is charged through the card
// processor. A declined card is recorded and leaves the order open.
//
// The order row stays locked for the whole call, card charge included, so two
// terminals can never settle the same order twice.
func (s *PaymentService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	// --- Validate ---
	orderNumber, ok := ParseOrderID(req.OrderID)
	if !ok {
		return nil, ErrInvalidOrderID
	}
	if !enum.IsPaymentMethod(req.Method) {
		return nil, ErrInvalidMethod
	}
	if req.AmountTendered.IsNegative() {
		return nil, ErrNegativeTendered
	}

	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status == enum.OrderStatusPaid {
		return nil, ErrOrderAlreadyPaid
	}

	total := numericToDecimal(order.TotalAmount)
	status := enum.SettlementStatusApproved
	change := decimal.Zero
	var reference string

	switch req.Method {
	case enum.PaymentMethodCash:
		if req.AmountTendered.LessThan(total) {
			return nil, ErrInsufficientCash
		}
		change = money.Change(req.AmountTendered, total)
		reference = fmt.Sprintf("CASH-%d-%s", order.OrderNumber, strings.ToUpper(uuid.NewString()[:8]))
	case enum.PaymentMethodCard:
		if !req.AmountTendered.Equal(total) {
			return nil, ErrCardAmountMismatch
		}
		res, err := s.card.Charge(ctx, CardCharge{OrderID: req.OrderID, Amount: total})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCardUnavailable, err)
		}
		reference = res.Reference
		if !res.Approved {
			status = enum.SettlementStatusDeclined
		}
	}

	// --- Record payment ---
	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:        order.ID,
		Method:         req.Method,
		Status:         status,
		AmountTendered: decimalToNumeric(req.AmountTendered),
		ChangeDue:      decimalToNumeric(change),
		Reference:      reference,
	})
	if err != nil {
		if isApprovedPaymentConflict(err) {
			return nil, ErrOrderAlreadyPaid
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if status == enum.SettlementStatusApproved {
		order, err = store.MarkOrderPaid(ctx, order.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrOrderAlreadyPaid
			}
			return nil, fmt.Errorf("mark order paid: %w", err)
		}
	}

	// --- Commit ---
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	result := &SettleResult{OrderID: req.OrderID, Order: order, Payment: payment}
	if !result.Approved() {
		s.logger.Warn("card declined", zap.String("order_id", req.OrderID), zap.String("reference", reference))
		return result, nil
	}

	s.logger.Info("order paid",
		zap.String("order_id", req.OrderID),
		zap.String("method", req.Method),
		zap.String("reference", reference))

	if err := s.publisher.Publish(ctx, enum.EventOrderPaid, OrderPaidEvent{
		OrderID:   req.OrderID,
		Method:    req.Method,
		Total:     total,
		ChangeDue: change,
		Reference: reference,
	}); err != nil {
		s.logger.Warn("publish order.paid failed", zap.String("order_id", req.OrderID), zap.Error(err))
	}

	return result, nil
}

// isApprovedPaymentConflict checks for a second approved payment on the same
// order (pgconn error code 23505).
func isApprovedPaymentConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "uq_payments_order_approved"
	}
	return false
}
