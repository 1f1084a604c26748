package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kiwari-pos/terminal/internal/gateway"
	"github.com/kiwari-pos/terminal/internal/ticket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const saveFailedMessage = "unable to save order"

// Errors returned by the lifecycle.
var (
	ErrSaveInFlight       = errors.New("order is already being sent")
	ErrSettlementInFlight = errors.New("payment is being processed for this order")
	ErrNoConfirmedOrder   = errors.New("send the order before taking payment")
)

// State is the dirty/clean boundary between editing a ticket and holding a
// confirmed order that awaits payment.
type State string

const (
	StateEditing   State = "EDITING"
	StateConfirmed State = "CONFIRMED"
)

// Confirmed is an order the backend accepted. Immutable once created.
type Confirmed struct {
	ID    string          `json:"orderId"`
	Total decimal.Decimal `json:"total"`
}

// SaveError reports a persistence failure. Error() is the text shown to the
// operator: the backend's own message when it sent one.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return gateway.Describe(e.Err, saveFailedMessage) }
func (e *SaveError) Unwrap() error { return e.Err }

// Lifecycle owns the working ticket and the confirmed order derived from it.
// Any ticket edit while confirmed drops the confirmed order, since its total
// no longer matches what is on the ticket.
type Lifecycle struct {
	mu        sync.Mutex
	ticket    *ticket.Ticket
	persister gateway.OrderPersister
	timeout   time.Duration
	logger    *zap.Logger

	confirmed *Confirmed
	saving    bool
	settling  string // order id held by an in-flight payment
}

// NewLifecycle wraps t and takes over its change hook.
func NewLifecycle(t *ticket.Ticket, persister gateway.OrderPersister, timeout time.Duration, logger *zap.Logger) *Lifecycle {
	l := &Lifecycle{
		ticket:    t,
		persister: persister,
		timeout:   timeout,
		logger:    logger,
	}
	t.OnChange(l.invalidateLocked)
	return l
}

// State reports whether a confirmed order is outstanding.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.confirmed != nil {
		return StateConfirmed
	}
	return StateEditing
}

// Confirmed returns a copy of the outstanding confirmed order.
func (l *Lifecycle) Confirmed() (Confirmed, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.confirmed == nil {
		return Confirmed{}, false
	}
	return *l.confirmed, true
}

// Saving reports whether a save call is in flight.
func (l *Lifecycle) Saving() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saving
}

// View runs fn with read access to the ticket.
func (l *Lifecycle) View(fn func(t *ticket.Ticket)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.ticket)
}

// Edit runs fn against the ticket. Mutations made by fn invalidate the
// confirmed order. Edits are refused while a save or a payment is in flight.
func (l *Lifecycle) Edit(fn func(t *ticket.Ticket) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saving {
		return ErrSaveInFlight
	}
	if l.settling != "" {
		return ErrSettlementInFlight
	}
	return fn(l.ticket)
}

// Invalidate drops the confirmed order, if any.
func (l *Lifecycle) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidateLocked()
}

func (l *Lifecycle) invalidateLocked() {
	if l.confirmed == nil {
		return
	}
	l.logger.Info("confirmed order invalidated by ticket edit", zap.String("order_id", l.confirmed.ID))
	l.confirmed = nil
}

// Save sends a snapshot of the ticket to the backend. On success the line
// items are cleared (details are kept for the receipt) and the returned order
// becomes the one awaiting payment. On failure nothing changes and the same
// ticket can be sent again.
func (l *Lifecycle) Save(ctx context.Context) (Confirmed, error) {
	l.mu.Lock()
	if l.saving {
		l.mu.Unlock()
		return Confirmed{}, ErrSaveInFlight
	}
	if l.settling != "" {
		l.mu.Unlock()
		return Confirmed{}, ErrSettlementInFlight
	}
	l.saving = true
	snap := l.ticket.Snapshot()
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	receipt, err := l.persister.SaveOrder(ctx, snap)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.saving = false

	if err != nil {
		l.logger.Warn("save order failed", zap.Error(err), zap.Int("items", len(snap.Items)))
		return Confirmed{}, &SaveError{Err: err}
	}

	c := Confirmed{ID: receipt.OrderID, Total: receipt.Total}
	l.confirmed = &c
	l.ticket.Clear()
	l.logger.Info("order confirmed", zap.String("order_id", c.ID), zap.String("total", c.Total.String()))
	return c, nil
}

// BeginSettlement reserves the confirmed order with the given id for a payment
// call. Ticket edits and saves are refused until EndSettlement.
func (l *Lifecycle) BeginSettlement(orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.confirmed == nil || l.confirmed.ID != orderID {
		return ErrNoConfirmedOrder
	}
	if l.settling != "" {
		return ErrSettlementInFlight
	}
	if l.saving {
		return ErrSaveInFlight
	}
	l.settling = orderID
	return nil
}

// EndSettlement releases the reservation. A paid order closes the lifecycle.
func (l *Lifecycle) EndSettlement(orderID string, paid bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settling == orderID {
		l.settling = ""
	}
	if paid && l.confirmed != nil && l.confirmed.ID == orderID {
		l.confirmed = nil
	}
}
