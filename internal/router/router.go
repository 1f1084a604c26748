package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/handler"
	mw "github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/service"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/ws"
	"go.uber.org/zap"
)

// NewTerminal creates the router for the terminal process: per-terminal
// session commands plus the WebSocket event stream.
func NewTerminal(cfg *config.Config, sessions *session.Registry, hub *ws.Hub, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Browser front ends call the terminal directly
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", health)

	// WebSocket event stream, one room per terminal
	r.With(mw.RequireTerminal).Get("/ws/terminals/{tid}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	// Terminal-scoped session commands
	terminalHandler := handler.NewTerminalHandler(sessions, logger)
	r.Route("/terminals/{tid}", func(r chi.Router) {
		r.Use(mw.RequireTerminal)
		terminalHandler.RegisterRoutes(r)
	})

	return r
}

// NewBackend creates the router for the reference backend: the menu, order
// and payment endpoints the terminal's collaborators call.
func NewBackend(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, card service.CardProcessor, publisher events.Publisher, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", health)

	menuHandler := handler.NewMenuHandler(queries, logger)
	r.Route("/menu", menuHandler.RegisterRoutes)

	// Orders
	orderService := service.NewOrderService(
		pool,
		func(db database.DBTX) service.OrderStore {
			return database.New(db)
		},
		cfg.TaxRate,
		publisher,
		logger,
	)
	orderHandler := handler.NewOrderHandler(orderService, queries, logger)
	r.Route("/order", orderHandler.RegisterRoutes)

	// Payments
	paymentService := service.NewPaymentService(
		pool,
		func(db database.DBTX) service.PaymentStore {
			return database.New(db)
		},
		card,
		publisher,
		logger,
	)
	paymentHandler := handler.NewPaymentHandler(paymentService, logger)
	r.Route("/payment", paymentHandler.RegisterRoutes)

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
}
