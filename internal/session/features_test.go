package session_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/gateway"
	"github.com/kiwari-pos/terminal/internal/money"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/tender"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type terminalTestContext struct {
	backend *fakeBackend
	taxRate decimal.Decimal
	session *session.Session
	err     error
	settled gateway.Settlement
}

func (c *terminalTestContext) reset() {
	c.backend = newFakeBackend()
	c.taxRate = decimal.Zero
	c.session = nil
	c.err = nil
	c.settled = gateway.Settlement{}
}

// terminal builds the session on first use so Background steps can finish
// configuring the fakes.
func (c *terminalTestContext) terminal() (*session.Session, error) {
	if c.session != nil {
		return c.session, nil
	}
	c.backend.taxRate = c.taxRate
	s, err := session.New(uuid.New(), c.backend.collaborators(), session.Options{
		TaxRate:          c.taxRate,
		MenuTimeout:      time.Second,
		OrderSaveTimeout: time.Second,
		PaymentTimeout:   time.Second,
	}, nil, zap.NewNop())
	if err != nil {
		return nil, err
	}
	if _, err := s.LoadMenu(context.Background()); err != nil {
		return nil, err
	}
	c.session = s
	return s, nil
}

func (c *terminalTestContext) theTaxRateIs(rate string) error {
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return err
	}
	c.taxRate = d
	return nil
}

func (c *terminalTestContext) theMenuHasItemPriced(sku, price string) error {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	c.backend.menu["Mains"] = append(c.backend.menu["Mains"], catalog.Item{SKU: sku, Name: sku, Price: d})
	return nil
}

func (c *terminalTestContext) theBackendAssignsOrderID(id string) error {
	c.backend.nextOrderID = id
	return nil
}

func (c *terminalTestContext) thePaymentServiceRejectsWith(msg string) error {
	c.backend.paymentErr = &gateway.RemoteError{StatusCode: http.StatusPaymentRequired, Message: msg}
	return nil
}

func (c *terminalTestContext) iAddTimes(sku string, n int) error {
	s, err := c.terminal()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := s.AddItem(sku); err != nil {
			return err
		}
	}
	return nil
}

func (c *terminalTestContext) iSetTheTipTo(amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	s, err := c.terminal()
	if err != nil {
		return err
	}
	return s.UpdateDetails(session.DetailsPatch{Tip: &d})
}

func (c *terminalTestContext) iSetTheDiscountTo(amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	s, err := c.terminal()
	if err != nil {
		return err
	}
	return s.UpdateDetails(session.DetailsPatch{Discount: &d})
}

func (c *terminalTestContext) aTicketOfWithTipAndDiscount(n int, sku, tip, discount string) error {
	if err := c.iAddTimes(sku, n); err != nil {
		return err
	}
	if err := c.iSetTheTipTo(tip); err != nil {
		return err
	}
	return c.iSetTheDiscountTo(discount)
}

func (c *terminalTestContext) iSendTheOrder() error {
	s, err := c.terminal()
	if err != nil {
		return err
	}
	_, err = s.SubmitOrder(context.Background())
	return err
}

func (c *terminalTestContext) iAdjustBy(sku string, delta int) error {
	s, err := c.terminal()
	if err != nil {
		return err
	}
	return s.AdjustQuantity(sku, delta)
}

func (c *terminalTestContext) iOpenTheTender() error {
	s, err := c.terminal()
	if err != nil {
		return err
	}
	c.err = s.OpenTender()
	return nil
}

func (c *terminalTestContext) iSelect(method string) error {
	s, err := c.terminal()
	if err != nil {
		return err
	}
	return s.SelectMethod(method)
}

func (c *terminalTestContext) iTenderInCash(amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	s, err := c.terminal()
	if err != nil {
		return err
	}
	return s.SetCashTendered(d)
}

func (c *terminalTestContext) iSubmitThePayment() error {
	s, err := c.terminal()
	if err != nil {
		return err
	}
	c.settled, c.err = s.SubmitTender(context.Background())
	return nil
}

func (c *terminalTestContext) theSubtotalIs(want string) error {
	return c.checkTotal("subtotal", want, func(t money.Totals) decimal.Decimal { return t.Subtotal })
}

func (c *terminalTestContext) theTaxIs(want string) error {
	return c.checkTotal("tax", want, func(t money.Totals) decimal.Decimal { return t.Tax })
}

func (c *terminalTestContext) theTotalIs(want string) error {
	return c.checkTotal("total", want, func(t money.Totals) decimal.Decimal { return t.Total })
}

func (c *terminalTestContext) checkTotal(name, want string, field func(money.Totals) decimal.Decimal) error {
	s, err := c.terminal()
	if err != nil {
		return err
	}
	got := field(s.Totals())
	if !got.Equal(decimal.RequireFromString(want)) {
		return fmt.Errorf("expected %s %s, got %s", name, want, got)
	}
	return nil
}

func (c *terminalTestContext) theConfirmedOrderIsFor(id, total string) error {
	v := c.session.View()
	if v.Confirmed == nil {
		return errors.New("expected a confirmed order")
	}
	if v.Confirmed.ID != id {
		return fmt.Errorf("expected order id %s, got %s", id, v.Confirmed.ID)
	}
	if !v.Confirmed.Total.Equal(decimal.RequireFromString(total)) {
		return fmt.Errorf("expected order total %s, got %s", total, v.Confirmed.Total)
	}
	return nil
}

func (c *terminalTestContext) thereIsNoConfirmedOrder() error {
	if v := c.session.View(); v.Confirmed != nil {
		return fmt.Errorf("expected no confirmed order, got %s", v.Confirmed.ID)
	}
	return nil
}

func (c *terminalTestContext) theCommandFailsWith(msg string) error {
	if c.err == nil {
		return errors.New("expected an error")
	}
	if c.err.Error() != msg {
		return fmt.Errorf("expected error %q, got %q", msg, c.err.Error())
	}
	if v := c.session.View(); v.Error != msg {
		return fmt.Errorf("expected view error %q, got %q", msg, v.Error)
	}
	return nil
}

func (c *terminalTestContext) theTenderIsClosed() error {
	return c.tenderState(tender.StateClosed)
}

func (c *terminalTestContext) theTenderIsOpen() error {
	return c.tenderState(tender.StateOpen)
}

func (c *terminalTestContext) tenderState(want tender.State) error {
	if got := c.session.View().Tender.State; got != want {
		return fmt.Errorf("expected tender %s, got %s", want, got)
	}
	return nil
}

func (c *terminalTestContext) thePaymentServiceWasCalledTimes(n int) error {
	if got := len(c.backend.payments); got != n {
		return fmt.Errorf("expected %d payment calls, got %d", n, got)
	}
	return nil
}

func (c *terminalTestContext) theLastPaymentTendered(amount string) error {
	if len(c.backend.payments) == 0 {
		return errors.New("no payment was sent")
	}
	got := c.backend.payments[len(c.backend.payments)-1].AmountTendered
	if !got.Equal(decimal.RequireFromString(amount)) {
		return fmt.Errorf("expected tendered %s, got %s", amount, got)
	}
	return nil
}

func (c *terminalTestContext) thePaymentSucceedsWithChange(change string) error {
	if c.err != nil {
		return fmt.Errorf("expected payment to succeed but got error: %v", c.err)
	}
	if !c.settled.ChangeDue.Equal(decimal.RequireFromString(change)) {
		return fmt.Errorf("expected change %s, got %s", change, c.settled.ChangeDue)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &terminalTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the tax rate is ([\d.]+)$`, tc.theTaxRateIs)
	ctx.Step(`^the menu has item "([^"]*)" priced ([\d.]+)$`, tc.theMenuHasItemPriced)
	ctx.Step(`^the backend assigns order id "([^"]*)"$`, tc.theBackendAssignsOrderID)
	ctx.Step(`^the payment service rejects with "([^"]*)"$`, tc.thePaymentServiceRejectsWith)
	ctx.Step(`^a ticket of (\d+) "([^"]*)" with tip ([\d.]+) and discount ([\d.]+)$`, tc.aTicketOfWithTipAndDiscount)

	// When steps
	ctx.Step(`^I add "([^"]*)" (\d+) times$`, tc.iAddTimes)
	ctx.Step(`^I set the tip to ([\d.]+)$`, tc.iSetTheTipTo)
	ctx.Step(`^I set the discount to ([\d.]+)$`, tc.iSetTheDiscountTo)
	ctx.Step(`^I send the order$`, tc.iSendTheOrder)
	ctx.Step(`^I adjust "([^"]*)" by (-?\d+)$`, tc.iAdjustBy)
	ctx.Step(`^I open the tender$`, tc.iOpenTheTender)
	ctx.Step(`^I select "([^"]*)"$`, tc.iSelect)
	ctx.Step(`^I tender ([\d.]+) in cash$`, tc.iTenderInCash)
	ctx.Step(`^I submit the payment$`, tc.iSubmitThePayment)

	// Then steps
	ctx.Step(`^the subtotal is ([\d.]+)$`, tc.theSubtotalIs)
	ctx.Step(`^the tax is ([\d.]+)$`, tc.theTaxIs)
	ctx.Step(`^the total is ([\d.]+)$`, tc.theTotalIs)
	ctx.Step(`^the confirmed order is "([^"]*)" for ([\d.]+)$`, tc.theConfirmedOrderIsFor)
	ctx.Step(`^there is no confirmed order$`, tc.thereIsNoConfirmedOrder)
	ctx.Step(`^the command fails with "([^"]*)"$`, tc.theCommandFailsWith)
	ctx.Step(`^the tender is closed$`, tc.theTenderIsClosed)
	ctx.Step(`^the tender is open$`, tc.theTenderIsOpen)
	ctx.Step(`^the payment service was called (\d+) times$`, tc.thePaymentServiceWasCalledTimes)
	ctx.Step(`^the last payment tendered ([\d.]+)$`, tc.theLastPaymentTendered)
	ctx.Step(`^the payment succeeds with change ([\d.]+)$`, tc.thePaymentSucceedsWithChange)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/terminal.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
