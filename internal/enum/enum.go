package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusOpen = "OPEN"
	OrderStatusPaid = "PAID"
)

const (
	SettlementStatusApproved = "APPROVED"
	SettlementStatusDeclined = "DECLINED"
)

// ── Group B: Domain values (CHECK constrained in DB) ──

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeTakeout  = "TAKEOUT"
	OrderTypeDelivery = "DELIVERY"
)

const (
	PaymentMethodCash = "CASH"
	PaymentMethodCard = "CARD"
)

// ── Group C: Event types (websocket + message bus) ──

const (
	EventTicketUpdated    = "ticket.updated"
	EventOrderConfirmed   = "order.confirmed"
	EventOrderInvalidated = "order.invalidated"
	EventTenderOpened     = "tender.opened"
	EventTenderUpdated    = "tender.updated"
	EventTenderClosed     = "tender.closed"
	EventPaymentSettled   = "payment.settled"

	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
)

// IsOrderType reports whether s is a known order type.
func IsOrderType(s string) bool {
	switch s {
	case OrderTypeDineIn, OrderTypeTakeout, OrderTypeDelivery:
		return true
	}
	return false
}

// IsPaymentMethod reports whether s is a known tender method.
func IsPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodCard:
		return true
	}
	return false
}
