// Package gateway defines the contracts of the services the terminal depends
// on but does not implement: menu lookup, order persistence and payment
// authorization.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/ticket"
	"github.com/shopspring/decimal"
)

// Menu is the catalog grouped by category name. Each category is ordered.
type Menu struct {
	Categories map[string][]catalog.Item `json:"categories"`
}

// OrderReceipt is what persistence hands back for a saved ticket.
type OrderReceipt struct {
	OrderID string          `json:"orderId"`
	Total   decimal.Decimal `json:"total"`
}

// PaymentRequest asks the authorizer to settle an order.
type PaymentRequest struct {
	OrderID        string          `json:"orderId"`
	Method         string          `json:"method"`
	AmountTendered decimal.Decimal `json:"amountTendered"`
}

// Settlement is the authorizer's verdict. Never persisted by the terminal.
type Settlement struct {
	OrderID        string          `json:"orderId"`
	Method         string          `json:"method"`
	AmountTendered decimal.Decimal `json:"amountTendered"`
	ChangeDue      decimal.Decimal `json:"changeDue"`
	Status         string          `json:"status"`
	Reference      string          `json:"reference"`
}

// MenuService returns the current catalog.
type MenuService interface {
	Menu(ctx context.Context) (Menu, error)
}

// OrderPersister stores a ticket snapshot and assigns it an order id.
type OrderPersister interface {
	SaveOrder(ctx context.Context, snap ticket.Snapshot) (OrderReceipt, error)
}

// PaymentAuthorizer settles a confirmed order.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, req PaymentRequest) (Settlement, error)
}

// RemoteError is an application-level rejection from a collaborator,
// carrying the message it sent back.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: status %d", e.StatusCode)
	}
	return e.Message
}

// Describe returns the collaborator's own message when err carries one, and
// fallback otherwise.
func Describe(err error, fallback string) string {
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return fallback
}
