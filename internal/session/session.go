package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/gateway"
	"github.com/kiwari-pos/terminal/internal/money"
	"github.com/kiwari-pos/terminal/internal/order"
	"github.com/kiwari-pos/terminal/internal/tender"
	"github.com/kiwari-pos/terminal/internal/ticket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const menuFailedMessage = "unable to load menu"

// Errors returned by the session.
var (
	ErrUnknownSKU   = errors.New("item is not on the menu")
	ErrMenuInFlight = errors.New("menu is already loading")
)

// MenuError reports a failed menu fetch.
type MenuError struct {
	Err error
}

func (e *MenuError) Error() string { return gateway.Describe(e.Err, menuFailedMessage) }
func (e *MenuError) Unwrap() error { return e.Err }

// Collaborators are the external services a session talks to.
type Collaborators struct {
	Menu     gateway.MenuService
	Orders   gateway.OrderPersister
	Payments gateway.PaymentAuthorizer
}

// Options configure a session. TaxRate is fixed for the session's lifetime.
type Options struct {
	TaxRate          decimal.Decimal
	MenuTimeout      time.Duration
	OrderSaveTimeout time.Duration
	PaymentTimeout   time.Duration
	Details          ticket.Details
}

// DetailsPatch updates order-level ticket fields. Nil fields are left alone.
type DetailsPatch struct {
	Tip             *decimal.Decimal
	Discount        *decimal.Decimal
	OrderType       *string
	Label           *string
	DeliveryAddress *string
	DeliveryContact *string
}

func (p DetailsPatch) empty() bool {
	return p.Tip == nil && p.Discount == nil && p.OrderType == nil &&
		p.Label == nil && p.DeliveryAddress == nil && p.DeliveryContact == nil
}

// View is everything a front end needs to render the terminal.
type View struct {
	TerminalID uuid.UUID          `json:"terminal_id"`
	Items      []catalog.LineItem `json:"items"`
	Details    DetailsView        `json:"details"`
	Totals     money.Totals       `json:"totals"`
	State      order.State        `json:"state"`
	Saving     bool               `json:"saving"`
	Confirmed  *order.Confirmed   `json:"confirmed_order"`
	Tender     tender.Snapshot    `json:"tender"`
	Error      string             `json:"error,omitempty"`
}

// DetailsView is the JSON shape of ticket.Details.
type DetailsView struct {
	Tip             decimal.Decimal `json:"tip"`
	Discount        decimal.Decimal `json:"discount"`
	OrderType       string          `json:"order_type"`
	Label           string          `json:"label"`
	DeliveryAddress string          `json:"delivery_address"`
	DeliveryContact string          `json:"delivery_contact"`
}

// Session is one terminal's order-entry state: a single working ticket, the
// confirmed order derived from it and the tender panel that settles it. All
// front-end commands go through its methods.
type Session struct {
	id        uuid.UUID
	taxRate   decimal.Decimal
	collab    Collaborators
	lifecycle *order.Lifecycle
	tender    *tender.Workflow
	notifier  Notifier
	logger    *zap.Logger

	menuTimeout time.Duration

	mu          sync.Mutex
	menu        gateway.Menu
	index       map[string]catalog.Item
	menuLoading bool
	lastErr     error
}

// New creates a session. The notifier may be nil.
func New(id uuid.UUID, collab Collaborators, opts Options, notifier Notifier, logger *zap.Logger) (*Session, error) {
	tk, err := ticket.New(opts.Details)
	if err != nil {
		return nil, fmt.Errorf("new ticket: %w", err)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	logger = logger.With(zap.String("terminal_id", id.String()))

	lc := order.NewLifecycle(tk, collab.Orders, opts.OrderSaveTimeout, logger)
	return &Session{
		id:          id,
		taxRate:     opts.TaxRate,
		collab:      collab,
		lifecycle:   lc,
		tender:      tender.NewWorkflow(lc, collab.Payments, opts.PaymentTimeout, logger),
		notifier:    notifier,
		logger:      logger,
		menuTimeout: opts.MenuTimeout,
		index:       map[string]catalog.Item{},
	}, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

// LoadMenu fetches the catalog. A failed fetch keeps the previous menu.
func (s *Session) LoadMenu(ctx context.Context) (gateway.Menu, error) {
	s.mu.Lock()
	if s.menuLoading {
		s.mu.Unlock()
		return gateway.Menu{}, ErrMenuInFlight
	}
	s.menuLoading = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.menuTimeout)
	menu, err := s.collab.Menu.Menu(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.menuLoading = false
	if err != nil {
		s.logger.Warn("menu fetch failed", zap.Error(err))
		merr := &MenuError{Err: err}
		s.lastErr = merr
		return gateway.Menu{}, merr
	}
	s.menu = menu
	s.index = catalog.Index(menu.Categories)
	s.lastErr = nil
	return menu, nil
}

// Menu returns the last loaded catalog.
func (s *Session) Menu() gateway.Menu {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.menu
}

// Categories returns the loaded category names in a stable order.
func (s *Session) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.menu.Categories))
	for name := range s.menu.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddItem puts one more of sku on the ticket.
func (s *Session) AddItem(sku string) error {
	s.mu.Lock()
	item, ok := s.index[sku]
	s.mu.Unlock()
	if !ok {
		return s.fail(ErrUnknownSKU)
	}
	return s.edit(func(t *ticket.Ticket) error {
		t.AddItem(item)
		return nil
	})
}

// AdjustQuantity changes the quantity of sku by delta.
func (s *Session) AdjustQuantity(sku string, delta int) error {
	return s.edit(func(t *ticket.Ticket) error {
		t.AdjustQuantity(sku, delta)
		return nil
	})
}

// UpdateDetails applies the non-nil fields of p as one edit. The patch is
// validated as a whole: a bad field rejects it and nothing is applied.
func (s *Session) UpdateDetails(p DetailsPatch) error {
	return s.edit(func(t *ticket.Ticket) error {
		if p.empty() {
			return nil
		}
		d := t.Details()
		if p.Tip != nil {
			d.Tip = *p.Tip
		}
		if p.Discount != nil {
			d.Discount = *p.Discount
		}
		if p.OrderType != nil {
			d.OrderType = *p.OrderType
		}
		if p.Label != nil {
			d.Label = *p.Label
		}
		if p.DeliveryAddress != nil {
			d.DeliveryAddress = *p.DeliveryAddress
		}
		if p.DeliveryContact != nil {
			d.DeliveryContact = *p.DeliveryContact
		}
		return t.SetDetails(d)
	})
}

func (s *Session) edit(fn func(t *ticket.Ticket) error) error {
	wasConfirmed := s.lifecycle.State() == order.StateConfirmed
	if err := s.lifecycle.Edit(fn); err != nil {
		err = s.fail(err)
		if wasConfirmed && s.lifecycle.State() == order.StateEditing {
			s.publish(enum.EventOrderInvalidated)
		}
		return err
	}
	s.clearError()
	s.publish(enum.EventTicketUpdated)
	if wasConfirmed && s.lifecycle.State() == order.StateEditing {
		s.publish(enum.EventOrderInvalidated)
	}
	return nil
}

// Totals recomputes the ticket totals.
func (s *Session) Totals() money.Totals {
	var totals money.Totals
	s.lifecycle.View(func(t *ticket.Ticket) {
		totals = t.Totals(s.taxRate)
	})
	return totals
}

// SubmitOrder sends the ticket to the backend.
func (s *Session) SubmitOrder(ctx context.Context) (order.Confirmed, error) {
	c, err := s.lifecycle.Save(ctx)
	if err != nil {
		return order.Confirmed{}, s.fail(err)
	}
	s.clearError()
	s.publish(enum.EventOrderConfirmed)
	return c, nil
}

// OpenTender opens the payment panel for the confirmed order.
func (s *Session) OpenTender() error {
	if err := s.tender.Open(); err != nil {
		return s.fail(err)
	}
	s.clearError()
	s.publish(enum.EventTenderOpened)
	return nil
}

func (s *Session) SelectMethod(method string) error {
	if err := s.tender.SelectMethod(method); err != nil {
		return s.fail(err)
	}
	s.publish(enum.EventTenderUpdated)
	return nil
}

func (s *Session) SetCashTendered(amount decimal.Decimal) error {
	if err := s.tender.SetCashTendered(amount); err != nil {
		return s.fail(err)
	}
	s.publish(enum.EventTenderUpdated)
	return nil
}

// SubmitTender takes payment. On success the tender closes and the ticket is
// ready for the next customer.
func (s *Session) SubmitTender(ctx context.Context) (gateway.Settlement, error) {
	settlement, err := s.tender.Submit(ctx)
	if err != nil {
		s.publish(enum.EventTenderUpdated)
		return gateway.Settlement{}, s.fail(err)
	}
	s.clearError()
	s.publish(enum.EventPaymentSettled)
	return settlement, nil
}

// CloseTender dismisses the payment panel without touching the order.
func (s *Session) CloseTender() error {
	if err := s.tender.Close(); err != nil {
		return s.fail(err)
	}
	s.publish(enum.EventTenderClosed)
	return nil
}

// View returns a consistent-enough picture of the session for display. Totals
// are always recomputed from the current ticket.
func (s *Session) View() View {
	v := View{TerminalID: s.id}
	s.lifecycle.View(func(t *ticket.Ticket) {
		v.Items = t.Items()
		d := t.Details()
		v.Details = DetailsView{
			Tip:             d.Tip,
			Discount:        d.Discount,
			OrderType:       d.OrderType,
			Label:           d.Label,
			DeliveryAddress: d.DeliveryAddress,
			DeliveryContact: d.DeliveryContact,
		}
		v.Totals = t.Totals(s.taxRate)
	})
	v.State = s.lifecycle.State()
	v.Saving = s.lifecycle.Saving()
	if c, ok := s.lifecycle.Confirmed(); ok {
		v.Confirmed = &c
	}
	v.Tender = s.tender.Snapshot()

	s.mu.Lock()
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	s.mu.Unlock()
	return v
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

func (s *Session) clearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Session) publish(eventType string) {
	s.notifier.Notify(s.id, Event{Type: eventType, View: s.View()})
}
