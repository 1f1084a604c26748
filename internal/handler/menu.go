package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/service"
	"go.uber.org/zap"
)

// MenuStore defines the database methods needed by the menu handler.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	ListActiveMenuItems(ctx context.Context) ([]database.MenuItem, error)
}

// MenuHandler serves the catalog to terminals.
type MenuHandler struct {
	store  MenuStore
	logger *zap.Logger
}

func NewMenuHandler(store MenuStore, logger *zap.Logger) *MenuHandler {
	return &MenuHandler{store: store, logger: logger}
}

// RegisterRoutes registers menu endpoints, mounted at /menu.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
}

type menuResponse struct {
	Categories map[string][]catalog.Item `json:"categories"`
}

// Get handles GET /menu. Items are grouped by category and keep the store's
// position order inside each category.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListActiveMenuItems(r.Context())
	if err != nil {
		h.logger.Error("list menu items", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := menuResponse{Categories: make(map[string][]catalog.Item)}
	for _, row := range rows {
		tags := row.Tags
		if tags == nil {
			tags = []string{}
		}
		resp.Categories[row.Category] = append(resp.Categories[row.Category], catalog.Item{
			SKU:         row.Sku,
			Name:        row.Name,
			Description: row.Description,
			Price:       service.NumericToDecimal(row.Price),
			Tags:        tags,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
