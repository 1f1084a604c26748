package tender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/gateway"
	"github.com/kiwari-pos/terminal/internal/money"
	"github.com/kiwari-pos/terminal/internal/order"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const paymentFailedMessage = "unable to process payment"

// Errors returned by the tender workflow. Validation errors leave the
// workflow open and make no call to the authorizer.
var (
	ErrNoConfirmedOrder      = order.ErrNoConfirmedOrder
	ErrNoMethod              = errors.New("select a payment method")
	ErrInvalidMethod         = errors.New("invalid payment method")
	ErrInsufficientCash      = errors.New("cash tendered must cover the amount due")
	ErrNegativeTendered      = errors.New("amount tendered must be >= 0")
	ErrTenderClosed          = errors.New("tender is not open")
	ErrAuthorizationInFlight = errors.New("payment authorization already in progress")
	ErrDeclined              = errors.New("payment declined")
)

// State of the tender panel.
type State string

const (
	StateClosed State = "CLOSED"
	StateOpen   State = "OPEN"
)

// Status is what the operator sees while a payment is being taken.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusAuthorizing Status = "authorizing"
	StatusApproved    Status = "approved"
	StatusFailed      Status = "failed"
)

// PaymentError reports an authorizer failure or decline. Error() is the text
// shown to the operator.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string {
	if errors.Is(e.Err, ErrDeclined) {
		return gateway.Describe(e.Err, e.Err.Error())
	}
	return gateway.Describe(e.Err, paymentFailedMessage)
}

func (e *PaymentError) Unwrap() error { return e.Err }

func declined(reference string) error {
	if reference == "" {
		return ErrDeclined
	}
	return fmt.Errorf("%w: %s", ErrDeclined, reference)
}

// Snapshot is a point-in-time copy of the workflow for display.
type Snapshot struct {
	State        State               `json:"state"`
	Status       Status              `json:"status"`
	OrderID      string              `json:"order_id,omitempty"`
	AmountDue    decimal.Decimal     `json:"amount_due"`
	Method       string              `json:"method,omitempty"`
	CashTendered decimal.Decimal     `json:"cash_tendered"`
	ChangeDue    decimal.Decimal     `json:"change_due"`
	Error        string              `json:"error,omitempty"`
	Settlement   *gateway.Settlement `json:"settlement,omitempty"`
}

// Workflow gates payment collection on a confirmed order. It snapshots the
// confirmed order when opened and checks with the lifecycle again before
// calling the authorizer, so an edit made in between is never charged.
type Workflow struct {
	mu         sync.Mutex
	lifecycle  *order.Lifecycle
	authorizer gateway.PaymentAuthorizer
	timeout    time.Duration
	logger     *zap.Logger

	state        State
	status       Status
	order        order.Confirmed
	method       string
	cashTendered decimal.Decimal
	lastErr      error
	settlement   *gateway.Settlement
}

func NewWorkflow(lc *order.Lifecycle, authorizer gateway.PaymentAuthorizer, timeout time.Duration, logger *zap.Logger) *Workflow {
	return &Workflow{
		lifecycle:  lc,
		authorizer: authorizer,
		timeout:    timeout,
		logger:     logger,
		state:      StateClosed,
		status:     StatusIdle,
	}
}

// Open starts taking payment for the outstanding confirmed order. Without one
// it refuses and stays closed.
func (w *Workflow) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusAuthorizing {
		return ErrAuthorizationInFlight
	}

	c, ok := w.lifecycle.Confirmed()
	if !ok {
		w.lastErr = ErrNoConfirmedOrder
		return ErrNoConfirmedOrder
	}

	w.state = StateOpen
	w.status = StatusIdle
	w.order = c
	w.method = ""
	// A discount larger than the bill leaves a negative total; nothing is owed.
	w.cashTendered = decimal.Max(decimal.Zero, c.Total)
	w.lastErr = nil
	w.settlement = nil
	return nil
}

// SelectMethod switches between the cash and card panels.
func (w *Workflow) SelectMethod(method string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return ErrTenderClosed
	}
	if !enum.IsPaymentMethod(method) {
		return ErrInvalidMethod
	}
	w.method = method
	return nil
}

// SetCashTendered records what the customer handed over. Change is recomputed
// from it on every snapshot.
func (w *Workflow) SetCashTendered(amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return ErrTenderClosed
	}
	if amount.IsNegative() {
		return ErrNegativeTendered
	}
	w.cashTendered = amount
	return nil
}

// Change is the live change preview for the cash field.
func (w *Workflow) Change() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return money.Change(w.cashTendered, w.order.Total)
}

// Submit settles the order. Cash must cover the amount due; card always
// charges exactly the amount due. An approved settlement closes both the
// tender and the order lifecycle. Any failure keeps the confirmed order so
// the operator can retry.
func (w *Workflow) Submit(ctx context.Context) (gateway.Settlement, error) {
	w.mu.Lock()
	if w.state != StateOpen {
		w.mu.Unlock()
		return gateway.Settlement{}, ErrTenderClosed
	}
	if w.status == StatusAuthorizing {
		w.mu.Unlock()
		return gateway.Settlement{}, ErrAuthorizationInFlight
	}

	req, err := w.buildRequestLocked()
	if err != nil {
		w.lastErr = err
		w.mu.Unlock()
		return gateway.Settlement{}, err
	}

	if err := w.lifecycle.BeginSettlement(req.OrderID); err != nil {
		w.lastErr = err
		if errors.Is(err, order.ErrNoConfirmedOrder) {
			w.resetLocked()
		}
		w.mu.Unlock()
		return gateway.Settlement{}, err
	}
	w.status = StatusAuthorizing
	w.lastErr = nil
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	settlement, err := w.authorizer.Authorize(ctx, req)
	cancel()
	if err == nil && settlement.Status != enum.SettlementStatusApproved {
		err = declined(settlement.Reference)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lifecycle.EndSettlement(req.OrderID, err == nil)

	if err != nil {
		perr := &PaymentError{Err: err}
		w.status = StatusFailed
		w.lastErr = perr
		w.logger.Warn("payment failed",
			zap.String("order_id", req.OrderID),
			zap.String("method", req.Method),
			zap.Error(err))
		return gateway.Settlement{}, perr
	}

	w.logger.Info("payment settled",
		zap.String("order_id", req.OrderID),
		zap.String("method", req.Method),
		zap.String("reference", settlement.Reference))
	w.resetLocked()
	w.status = StatusApproved
	w.settlement = &settlement
	return settlement, nil
}

func (w *Workflow) buildRequestLocked() (gateway.PaymentRequest, error) {
	due := w.order.Total
	switch w.method {
	case "":
		return gateway.PaymentRequest{}, ErrNoMethod
	case enum.PaymentMethodCash:
		if w.cashTendered.LessThan(due) {
			return gateway.PaymentRequest{}, ErrInsufficientCash
		}
		return gateway.PaymentRequest{OrderID: w.order.ID, Method: w.method, AmountTendered: w.cashTendered}, nil
	default:
		return gateway.PaymentRequest{OrderID: w.order.ID, Method: w.method, AmountTendered: due}, nil
	}
}

// Close dismisses the tender panel. The confirmed order stays, so payment can
// be taken later.
func (w *Workflow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusAuthorizing {
		return ErrAuthorizationInFlight
	}
	w.resetLocked()
	w.status = StatusIdle
	w.lastErr = nil
	return nil
}

func (w *Workflow) resetLocked() {
	w.state = StateClosed
	w.method = ""
	w.order = order.Confirmed{}
	w.cashTendered = decimal.Zero
}

// Snapshot returns the current workflow state for display.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		State:        w.state,
		Status:       w.status,
		OrderID:      w.order.ID,
		AmountDue:    w.order.Total,
		Method:       w.method,
		CashTendered: w.cashTendered,
		ChangeDue:    money.Change(w.cashTendered, w.order.Total),
		Settlement:   w.settlement,
	}
	if w.lastErr != nil {
		s.Error = w.lastErr.Error()
	}
	return s
}
