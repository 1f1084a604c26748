package order

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/gateway"
	"github.com/kiwari-pos/terminal/internal/ticket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Fakes ---

type fakePersister struct {
	calls   []ticket.Snapshot
	receipt gateway.OrderReceipt
	err     error
	block   chan struct{} // when set, SaveOrder waits on it
	started chan struct{}
}

func (f *fakePersister) SaveOrder(ctx context.Context, snap ticket.Snapshot) (gateway.OrderReceipt, error) {
	f.calls = append(f.calls, snap)
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return gateway.OrderReceipt{}, ctx.Err()
		}
	}
	return f.receipt, f.err
}

func burger() catalog.Item {
	return catalog.Item{SKU: "burger", Name: "Burger", Price: decimal.RequireFromString("10.00")}
}

func newLifecycle(t *testing.T, p *fakePersister) *Lifecycle {
	t.Helper()
	tk, err := ticket.New(ticket.Details{})
	require.NoError(t, err)
	return NewLifecycle(tk, p, time.Second, zap.NewNop())
}

func addBurger(l *Lifecycle) error {
	return l.Edit(func(t *ticket.Ticket) error {
		t.AddItem(burger())
		return nil
	})
}

// --- Tests ---

func TestSave_Success(t *testing.T) {
	p := &fakePersister{receipt: gateway.OrderReceipt{OrderID: "5", Total: decimal.RequireFromString("22.60")}}
	l := newLifecycle(t, p)
	require.NoError(t, addBurger(l))
	require.NoError(t, l.Edit(func(t *ticket.Ticket) error { return t.SetTip(decimal.NewFromInt(2)) }))

	c, err := l.Save(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "5", c.ID)
	assert.Equal(t, StateConfirmed, l.State())
	require.Len(t, p.calls, 1)
	assert.Len(t, p.calls[0].Items, 1)

	l.View(func(tk *ticket.Ticket) {
		assert.Empty(t, tk.Items(), "line items cleared after save")
		assert.True(t, tk.Details().Tip.Equal(decimal.NewFromInt(2)), "tip kept for receipt")
	})
}

func TestSave_EmptyTicketAllowed(t *testing.T) {
	p := &fakePersister{receipt: gateway.OrderReceipt{OrderID: "9", Total: decimal.Zero}}
	l := newLifecycle(t, p)

	_, err := l.Save(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, l.State())
}

func TestSave_RemoteErrorShownVerbatim(t *testing.T) {
	p := &fakePersister{err: &gateway.RemoteError{StatusCode: http.StatusBadRequest, Message: "kitchen closed"}}
	l := newLifecycle(t, p)
	require.NoError(t, addBurger(l))

	_, err := l.Save(context.Background())

	var se *SaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "kitchen closed", err.Error())
	assert.Equal(t, StateEditing, l.State())
	l.View(func(tk *ticket.Ticket) {
		assert.Len(t, tk.Items(), 1, "ticket untouched on failure")
	})
}

func TestSave_TransportErrorUsesGenericMessage(t *testing.T) {
	p := &fakePersister{err: errors.New("dial tcp: connection refused")}
	l := newLifecycle(t, p)

	_, err := l.Save(context.Background())

	require.Error(t, err)
	assert.Equal(t, "unable to save order", err.Error())
}

func TestSave_RetryAfterFailure(t *testing.T) {
	p := &fakePersister{err: errors.New("timeout")}
	l := newLifecycle(t, p)
	require.NoError(t, addBurger(l))

	_, err := l.Save(context.Background())
	require.Error(t, err)

	p.err = nil
	p.receipt = gateway.OrderReceipt{OrderID: "7", Total: decimal.RequireFromString("10")}
	c, err := l.Save(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "7", c.ID)
	require.Len(t, p.calls, 2)
	assert.Equal(t, p.calls[0].Items, p.calls[1].Items, "same working ticket resent")
}

func TestEdit_InvalidatesConfirmedOrder(t *testing.T) {
	p := &fakePersister{receipt: gateway.OrderReceipt{OrderID: "5", Total: decimal.RequireFromString("22.60")}}
	l := newLifecycle(t, p)
	require.NoError(t, addBurger(l))
	_, err := l.Save(context.Background())
	require.NoError(t, err)

	// The lines were cleared by the save; adjusting still drops the order.
	require.NoError(t, l.Edit(func(t *ticket.Ticket) error {
		t.AdjustQuantity("burger", 1)
		return nil
	}))
	assert.Equal(t, StateEditing, l.State())
	_, ok := l.Confirmed()
	assert.False(t, ok)
}

func TestEdit_ReadOnlyFnKeepsConfirmedOrder(t *testing.T) {
	p := &fakePersister{receipt: gateway.OrderReceipt{OrderID: "5", Total: decimal.RequireFromString("22.60")}}
	l := newLifecycle(t, p)
	_, err := l.Save(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Edit(func(t *ticket.Ticket) error {
		_ = t.Items()
		return nil
	}))
	assert.Equal(t, StateConfirmed, l.State())

	require.NoError(t, l.Edit(func(t *ticket.Ticket) error {
		t.SetLabel("Table 2")
		return nil
	}))
	assert.Equal(t, StateEditing, l.State())
}

func TestSave_RejectsOverlappingCall(t *testing.T) {
	p := &fakePersister{
		receipt: gateway.OrderReceipt{OrderID: "1"},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	l := newLifecycle(t, p)

	done := make(chan error, 1)
	go func() {
		_, err := l.Save(context.Background())
		done <- err
	}()
	<-p.started

	_, err := l.Save(context.Background())
	assert.ErrorIs(t, err, ErrSaveInFlight)
	assert.ErrorIs(t, addBurger(l), ErrSaveInFlight)
	assert.True(t, l.Saving())

	close(p.block)
	require.NoError(t, <-done)
	assert.Len(t, p.calls, 1)
}

func TestSave_Timeout(t *testing.T) {
	p := &fakePersister{block: make(chan struct{})}
	tk, err := ticket.New(ticket.Details{})
	require.NoError(t, err)
	l := NewLifecycle(tk, p, 20*time.Millisecond, zap.NewNop())

	_, err = l.Save(context.Background())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "unable to save order", err.Error())
	assert.False(t, l.Saving())
}

func TestSettlementGate(t *testing.T) {
	p := &fakePersister{receipt: gateway.OrderReceipt{OrderID: "5", Total: decimal.RequireFromString("22.60")}}
	l := newLifecycle(t, p)

	assert.ErrorIs(t, l.BeginSettlement("5"), ErrNoConfirmedOrder)

	_, err := l.Save(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, l.BeginSettlement("6"), ErrNoConfirmedOrder)
	require.NoError(t, l.BeginSettlement("5"))
	assert.ErrorIs(t, l.BeginSettlement("5"), ErrSettlementInFlight)
	assert.ErrorIs(t, addBurger(l), ErrSettlementInFlight)
	_, err = l.Save(context.Background())
	assert.ErrorIs(t, err, ErrSettlementInFlight)

	// A failed payment keeps the order.
	l.EndSettlement("5", false)
	assert.Equal(t, StateConfirmed, l.State())

	require.NoError(t, l.BeginSettlement("5"))
	l.EndSettlement("5", true)
	assert.Equal(t, StateEditing, l.State())
	assert.NoError(t, addBurger(l))
}
