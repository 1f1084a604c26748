package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/terminal/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentServicer defines the service methods needed by the payment handler.
// Satisfied by *service.PaymentService.
type PaymentServicer interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.SettleResult, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc    PaymentServicer
	logger *zap.Logger
}

func NewPaymentHandler(svc PaymentServicer, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers payment endpoints, mounted at /payment.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
}

// --- Request / Response types ---

type createPaymentRequest struct {
	OrderID        string           `json:"orderId"`
	Method         string           `json:"method"`
	AmountTendered *decimal.Decimal `json:"amountTendered"`
}

type settlementResponse struct {
	OrderID        string          `json:"orderId"`
	Method         string          `json:"method"`
	AmountTendered decimal.Decimal `json:"amountTendered"`
	ChangeDue      decimal.Decimal `json:"changeDue"`
	Status         string          `json:"status"`
	Reference      string          `json:"reference"`
}

// --- Handlers ---

// Create handles POST /payment. A declined card is a 200 with status
// DECLINED; the caller decides what a decline means.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId is required")
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, "method is required")
		return
	}
	if req.AmountTendered == nil {
		writeError(w, http.StatusBadRequest, "amountTendered is required")
		return
	}

	result, err := h.svc.Settle(r.Context(), service.SettleRequest{
		OrderID:        req.OrderID,
		Method:         req.Method,
		AmountTendered: *req.AmountTendered,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrderID),
			errors.Is(err, service.ErrInvalidMethod),
			errors.Is(err, service.ErrNegativeTendered),
			errors.Is(err, service.ErrInsufficientCash),
			errors.Is(err, service.ErrCardAmountMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrOrderAlreadyPaid):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrCardUnavailable):
			h.logger.Warn("card processor failed", zap.String("order_id", req.OrderID), zap.Error(err))
			writeError(w, http.StatusBadGateway, service.ErrCardUnavailable.Error())
		default:
			h.logger.Error("settle payment", zap.String("order_id", req.OrderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, settlementResponse{
		OrderID:        result.OrderID,
		Method:         result.Payment.Method,
		AmountTendered: service.NumericToDecimal(result.Payment.AmountTendered),
		ChangeDue:      service.NumericToDecimal(result.Payment.ChangeDue),
		Status:         result.Payment.Status,
		Reference:      result.Payment.Reference,
	})
}
