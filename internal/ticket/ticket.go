package ticket

import (
	"errors"

	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/money"
	"github.com/shopspring/decimal"
)

// Errors returned by ticket setters.
var (
	ErrNegativeTip      = errors.New("tip must be >= 0")
	ErrNegativeDiscount = errors.New("discount must be >= 0")
	ErrInvalidOrderType = errors.New("invalid order_type")
)

// Details are the order-level fields that live alongside the line items.
type Details struct {
	Tip             decimal.Decimal
	Discount        decimal.Decimal
	OrderType       string
	Label           string
	DeliveryAddress string
	DeliveryContact string
}

// Snapshot is an immutable copy of a ticket, as sent to order persistence.
type Snapshot struct {
	Details
	Items []catalog.LineItem
}

// Ticket is the in-progress order for the current customer.
//
// Every mutation except Clear fires the change hook so the owner can drop a
// confirmed order that no longer matches. Not safe for concurrent use; the
// order lifecycle serializes access.
type Ticket struct {
	items    []catalog.LineItem
	details  Details
	onChange func()
}

// New creates a ticket with initial details. Initialization does not count as
// a mutation. An empty order type defaults to dine-in.
func New(d Details) (*Ticket, error) {
	if d.OrderType == "" {
		d.OrderType = enum.OrderTypeDineIn
	}
	if err := validateDetails(d); err != nil {
		return nil, err
	}
	return &Ticket{details: d}, nil
}

// OnChange installs the hook invoked after every mutation.
func (t *Ticket) OnChange(fn func()) {
	t.onChange = fn
}

func (t *Ticket) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}

// AddItem increments the quantity of an existing line for the same SKU, or
// appends a new line with quantity 1.
func (t *Ticket) AddItem(item catalog.Item) {
	if i := t.indexOf(item.SKU); i >= 0 {
		t.items[i].Quantity++
	} else {
		t.items = append(t.items, catalog.LineItem{Item: item, Quantity: 1})
	}
	t.changed()
}

// AdjustQuantity applies delta to the line for sku. The quantity is floored at
// zero and a zero quantity removes the line. An unknown SKU leaves the lines
// alone but still counts as an edit, so a confirmed order is dropped either way.
func (t *Ticket) AdjustQuantity(sku string, delta int) {
	defer t.changed()
	i := t.indexOf(sku)
	if i < 0 {
		return
	}
	q := t.items[i].Quantity + delta
	if q <= 0 {
		t.items = append(t.items[:i], t.items[i+1:]...)
	} else {
		t.items[i].Quantity = q
	}
}

// Clear empties the line items and keeps the details for receipt display.
// It does not fire the change hook: the save that precedes it already
// consumed the prior state.
func (t *Ticket) Clear() {
	t.items = nil
}

func (t *Ticket) SetTip(tip decimal.Decimal) error {
	if tip.IsNegative() {
		return ErrNegativeTip
	}
	t.details.Tip = tip
	t.changed()
	return nil
}

func (t *Ticket) SetDiscount(discount decimal.Decimal) error {
	if discount.IsNegative() {
		return ErrNegativeDiscount
	}
	t.details.Discount = discount
	t.changed()
	return nil
}

func (t *Ticket) SetOrderType(orderType string) error {
	if !enum.IsOrderType(orderType) {
		return ErrInvalidOrderType
	}
	t.details.OrderType = orderType
	t.changed()
	return nil
}

func (t *Ticket) SetLabel(label string) {
	t.details.Label = label
	t.changed()
}

func (t *Ticket) SetDeliveryAddress(addr string) {
	t.details.DeliveryAddress = addr
	t.changed()
}

func (t *Ticket) SetDeliveryContact(contact string) {
	t.details.DeliveryContact = contact
	t.changed()
}

// SetDetails replaces all order-level fields at once. The whole value is
// validated first; on error nothing changes and the change hook does not fire.
func (t *Ticket) SetDetails(d Details) error {
	if err := validateDetails(d); err != nil {
		return err
	}
	t.details = d
	t.changed()
	return nil
}

// Items returns a copy of the line items in insertion order.
func (t *Ticket) Items() []catalog.LineItem {
	out := make([]catalog.LineItem, len(t.items))
	copy(out, t.items)
	return out
}

func (t *Ticket) Details() Details {
	return t.details
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (t *Ticket) Snapshot() Snapshot {
	items := make([]catalog.LineItem, len(t.items))
	for i, it := range t.items {
		items[i] = it
		if it.Tags != nil {
			items[i].Tags = append([]string(nil), it.Tags...)
		}
	}
	return Snapshot{Details: t.details, Items: items}
}

// Totals recomputes the ticket totals at the given tax rate.
func (t *Ticket) Totals(taxRate decimal.Decimal) money.Totals {
	return money.ComputeTotals(t.items, taxRate, t.details.Tip, t.details.Discount)
}

func (t *Ticket) indexOf(sku string) int {
	for i := range t.items {
		if t.items[i].SKU == sku {
			return i
		}
	}
	return -1
}

func validateDetails(d Details) error {
	if d.Tip.IsNegative() {
		return ErrNegativeTip
	}
	if d.Discount.IsNegative() {
		return ErrNegativeDiscount
	}
	if !enum.IsOrderType(d.OrderType) {
		return ErrInvalidOrderType
	}
	return nil
}
