package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// OrderStore defines the database methods needed by the order read handler.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrderByNumber(ctx context.Context, orderNumber int64) (database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	store  OrderStore
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, logger: logger}
}

// RegisterRoutes registers order endpoints, mounted at /order.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
}

// --- Request / Response types ---

type createOrderRequest struct {
	OrderType       string                   `json:"orderType"`
	Label           string                   `json:"label"`
	DeliveryAddress string                   `json:"deliveryAddress"`
	DeliveryContact string                   `json:"deliveryContact"`
	Tip             *decimal.Decimal         `json:"tip"`
	Discount        *decimal.Decimal         `json:"discount"`
	Items           []createOrderItemRequest `json:"items"`
}

// createOrderItemRequest ignores the name and price the terminal sends along.
type createOrderItemRequest struct {
	SKU      string `json:"sku"`
	Quantity int32  `json:"quantity"`
}

type createOrderResponse struct {
	OrderID string          `json:"orderId"`
	Total   decimal.Decimal `json:"total"`
}

type orderDetailResponse struct {
	OrderID         string              `json:"orderId"`
	OrderType       string              `json:"orderType"`
	Label           string              `json:"label"`
	DeliveryAddress *string             `json:"deliveryAddress"`
	DeliveryContact *string             `json:"deliveryContact"`
	Status          string              `json:"status"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	TaxRate         decimal.Decimal     `json:"taxRate"`
	Tax             decimal.Decimal     `json:"tax"`
	Tip             decimal.Decimal     `json:"tip"`
	Discount        decimal.Decimal     `json:"discount"`
	Total           decimal.Decimal     `json:"total"`
	CreatedAt       time.Time           `json:"createdAt"`
	PaidAt          *time.Time          `json:"paidAt"`
	Items           []orderItemResponse `json:"items"`
	Payments        []paymentResponse   `json:"payments"`
}

type orderItemResponse struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int32           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type paymentResponse struct {
	Method         string          `json:"method"`
	Status         string          `json:"status"`
	AmountTendered decimal.Decimal `json:"amountTendered"`
	ChangeDue      decimal.Decimal `json:"changeDue"`
	Reference      string          `json:"reference"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// --- Handlers ---

// Create handles POST /order.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svcReq := service.CreateOrderRequest{
		OrderType:       req.OrderType,
		Label:           req.Label,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryContact: req.DeliveryContact,
		Items:           make([]service.CreateOrderItemRequest, 0, len(req.Items)),
	}
	if req.Tip != nil {
		svcReq.Tip = *req.Tip
	}
	if req.Discount != nil {
		svcReq.Discount = *req.Discount
	}
	for _, item := range req.Items {
		svcReq.Items = append(svcReq.Items, service.CreateOrderItemRequest{
			SKU:      item.SKU,
			Quantity: item.Quantity,
		})
	}

	result, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		if isOrderValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("create order", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID: service.PublicOrderID(result.Order),
		Total:   result.Totals.Total,
	})
}

// Get handles GET /order/{id}: the stored order with its items and payments.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	number, ok := service.ParseOrderID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.store.GetOrderByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("get order", zap.Int64("order_number", number), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	items, err := h.store.ListOrderItems(r.Context(), order.ID)
	if err != nil {
		h.logger.Error("list order items", zap.Int64("order_number", number), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), order.ID)
	if err != nil {
		h.logger.Error("list payments", zap.Int64("order_number", number), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(order, items, payments))
}

// --- Helpers ---

func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrInvalidOrderType) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrDuplicateSKU) ||
		errors.Is(err, service.ErrSKUNotFound) ||
		errors.Is(err, service.ErrNegativeTip) ||
		errors.Is(err, service.ErrNegativeDiscount)
}

func toOrderDetailResponse(o database.Order, items []database.OrderItem, payments []database.Payment) orderDetailResponse {
	resp := orderDetailResponse{
		OrderID:   service.PublicOrderID(o),
		OrderType: o.OrderType,
		Label:     o.Label,
		Status:    o.Status,
		Subtotal:  service.NumericToDecimal(o.Subtotal),
		TaxRate:   service.NumericToDecimal(o.TaxRate),
		Tax:       service.NumericToDecimal(o.TaxAmount),
		Tip:       service.NumericToDecimal(o.Tip),
		Discount:  service.NumericToDecimal(o.Discount),
		Total:     service.NumericToDecimal(o.TotalAmount),
		CreatedAt: o.CreatedAt.Time,
		Items:     make([]orderItemResponse, 0, len(items)),
		Payments:  make([]paymentResponse, 0, len(payments)),
	}
	if o.DeliveryAddress.Valid {
		resp.DeliveryAddress = &o.DeliveryAddress.String
	}
	if o.DeliveryContact.Valid {
		resp.DeliveryContact = &o.DeliveryContact.String
	}
	if o.PaidAt.Valid {
		t := o.PaidAt.Time
		resp.PaidAt = &t
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			SKU:       it.Sku,
			Name:      it.Name,
			UnitPrice: service.NumericToDecimal(it.UnitPrice),
			Quantity:  it.Quantity,
			Subtotal:  service.NumericToDecimal(it.Subtotal),
		})
	}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, paymentResponse{
			Method:         p.Method,
			Status:         p.Status,
			AmountTendered: service.NumericToDecimal(p.AmountTendered),
			ChangeDue:      service.NumericToDecimal(p.ChangeDue),
			Reference:      p.Reference,
			CreatedAt:      p.CreatedAt.Time,
		})
	}
	return resp
}
