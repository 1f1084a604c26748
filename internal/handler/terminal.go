package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/order"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/tender"
	"github.com/kiwari-pos/terminal/internal/ticket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SessionProvider returns the session for a terminal, creating it on first
// use. Satisfied by *session.Registry.
type SessionProvider interface {
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
}

// TerminalHandler exposes the terminal session commands over HTTP. Every
// successful command answers with the full session view.
type TerminalHandler struct {
	sessions SessionProvider
	logger   *zap.Logger
}

func NewTerminalHandler(sessions SessionProvider, logger *zap.Logger) *TerminalHandler {
	return &TerminalHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers the command API. Expected to be mounted inside a
// terminal-scoped subrouter (/terminals/{tid}) behind middleware.RequireTerminal.
func (h *TerminalHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.View)
	r.Get("/menu", h.Menu)
	r.Post("/menu/refresh", h.RefreshMenu)
	r.Post("/ticket/items", h.AddItem)
	r.Patch("/ticket/items/{sku}", h.AdjustQuantity)
	r.Patch("/ticket", h.UpdateDetails)
	r.Post("/order", h.SubmitOrder)
	r.Post("/tender", h.OpenTender)
	r.Put("/tender/method", h.SelectMethod)
	r.Put("/tender/cash", h.SetCashTendered)
	r.Post("/tender/submit", h.SubmitTender)
	r.Delete("/tender", h.CloseTender)
}

// --- Request types ---

type addItemRequest struct {
	SKU string `json:"sku"`
}

type adjustQuantityRequest struct {
	Delta *int `json:"delta"`
}

type updateDetailsRequest struct {
	Tip             *decimal.Decimal `json:"tip"`
	Discount        *decimal.Decimal `json:"discount"`
	OrderType       *string          `json:"order_type"`
	Label           *string          `json:"label"`
	DeliveryAddress *string          `json:"delivery_address"`
	DeliveryContact *string          `json:"delivery_contact"`
}

type selectMethodRequest struct {
	Method string `json:"method"`
}

type setCashRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// --- Handlers ---

// View handles GET /terminals/{tid}.
func (h *TerminalHandler) View(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// Menu handles GET /terminals/{tid}/menu: the last loaded catalog.
func (h *TerminalHandler) Menu(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Menu())
}

// RefreshMenu handles POST /terminals/{tid}/menu/refresh.
func (h *TerminalHandler) RefreshMenu(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	menu, err := s.LoadMenu(r.Context())
	if err != nil {
		h.writeCommandError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

// AddItem handles POST /terminals/{tid}/ticket/items.
func (h *TerminalHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SKU == "" {
		writeError(w, http.StatusBadRequest, "sku is required")
		return
	}
	h.respond(w, s, s.AddItem(req.SKU))
}

// AdjustQuantity handles PATCH /terminals/{tid}/ticket/items/{sku}.
func (h *TerminalHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req adjustQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == nil {
		writeError(w, http.StatusBadRequest, "delta is required")
		return
	}
	h.respond(w, s, s.AdjustQuantity(chi.URLParam(r, "sku"), *req.Delta))
}

// UpdateDetails handles PATCH /terminals/{tid}/ticket.
func (h *TerminalHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req updateDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, s, s.UpdateDetails(session.DetailsPatch{
		Tip:             req.Tip,
		Discount:        req.Discount,
		OrderType:       req.OrderType,
		Label:           req.Label,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryContact: req.DeliveryContact,
	}))
}

// SubmitOrder handles POST /terminals/{tid}/order.
func (h *TerminalHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	_, err := s.SubmitOrder(r.Context())
	h.respond(w, s, err)
}

// OpenTender handles POST /terminals/{tid}/tender.
func (h *TerminalHandler) OpenTender(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.OpenTender())
}

// SelectMethod handles PUT /terminals/{tid}/tender/method.
func (h *TerminalHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, s, s.SelectMethod(req.Method))
}

// SetCashTendered handles PUT /terminals/{tid}/tender/cash.
func (h *TerminalHandler) SetCashTendered(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req setCashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	h.respond(w, s, s.SetCashTendered(*req.Amount))
}

// SubmitTender handles POST /terminals/{tid}/tender/submit.
func (h *TerminalHandler) SubmitTender(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	_, err := s.SubmitTender(r.Context())
	h.respond(w, s, err)
}

// CloseTender handles DELETE /terminals/{tid}/tender.
func (h *TerminalHandler) CloseTender(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.CloseTender())
}

// --- Helpers ---

func (h *TerminalHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	tid, ok := mw.TerminalIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing terminal ID")
		return nil, false
	}
	s, err := h.sessions.Get(r.Context(), tid)
	if err != nil {
		h.logger.Error("open terminal session", zap.String("terminal_id", tid.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return s, true
}

func (h *TerminalHandler) respond(w http.ResponseWriter, s *session.Session, err error) {
	if err != nil {
		h.writeCommandError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *TerminalHandler) writeCommandError(w http.ResponseWriter, s *session.Session, err error) {
	status := commandErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("terminal command", zap.String("terminal_id", s.ID().String()), zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// commandErrorStatus maps session errors to HTTP statuses. A collaborator
// failure is 502 and a declined card is 402.
func commandErrorStatus(err error) int {
	var (
		saveErr    *order.SaveError
		paymentErr *tender.PaymentError
		menuErr    *session.MenuError
	)
	switch {
	case errors.Is(err, tender.ErrDeclined):
		return http.StatusPaymentRequired
	case errors.As(err, &saveErr), errors.As(err, &paymentErr), errors.As(err, &menuErr):
		return http.StatusBadGateway
	case errors.Is(err, order.ErrSaveInFlight),
		errors.Is(err, order.ErrSettlementInFlight),
		errors.Is(err, tender.ErrAuthorizationInFlight),
		errors.Is(err, session.ErrMenuInFlight):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnknownSKU),
		errors.Is(err, ticket.ErrNegativeTip),
		errors.Is(err, ticket.ErrNegativeDiscount),
		errors.Is(err, ticket.ErrInvalidOrderType),
		errors.Is(err, order.ErrNoConfirmedOrder),
		errors.Is(err, tender.ErrNoMethod),
		errors.Is(err, tender.ErrInvalidMethod),
		errors.Is(err, tender.ErrInsufficientCash),
		errors.Is(err, tender.ErrNegativeTendered),
		errors.Is(err, tender.ErrTenderClosed):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
