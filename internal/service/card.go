package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrCardAmount is returned by a processor asked to charge a negative amount.
	ErrCardAmount = errors.New("card amount must be >= 0")
	// ErrCardUnavailable wraps any processor failure where the outcome is unknown.
	ErrCardUnavailable = errors.New("card processor unavailable")
)

// CardCharge asks the card processor to take exactly Amount for an order.
type CardCharge struct {
	OrderID string
	Amount  decimal.Decimal
}

// CardResult is the processor's verdict. A decline is not an error.
type CardResult struct {
	Approved  bool
	Reference string
}

// CardProcessor is the provider-agnostic interface a card acquirer adapter
// implements. Errors mean the outcome is unknown.
type CardProcessor interface {
	Charge(ctx context.Context, c CardCharge) (CardResult, error)
}

// SandboxCardProcessor approves every charge up to Limit. A zero Limit
// approves everything. Swap it for a real acquirer adapter in production.
type SandboxCardProcessor struct {
	Limit decimal.Decimal
	now   func() time.Time
}

func NewSandboxCardProcessor(limit decimal.Decimal) *SandboxCardProcessor {
	return &SandboxCardProcessor{Limit: limit, now: time.Now}
}

func (p *SandboxCardProcessor) Charge(ctx context.Context, c CardCharge) (CardResult, error) {
	if err := ctx.Err(); err != nil {
		return CardResult{}, err
	}
	if c.Amount.IsNegative() {
		return CardResult{}, ErrCardAmount
	}
	ref := p.reference()
	if !p.Limit.IsZero() && c.Amount.GreaterThan(p.Limit) {
		return CardResult{Approved: false, Reference: ref}, nil
	}
	return CardResult{Approved: true, Reference: ref}, nil
}

func (p *SandboxCardProcessor) reference() string {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("CARD-%s-%s", now().UTC().Format("20060102150405"), suffix)
}
