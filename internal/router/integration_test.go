//go:build integration

package router_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/terminal/internal/client"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/router"
	"github.com/kiwari-pos/terminal/internal/service"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/ws"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// TestIntegrationFlow runs a terminal against the real backend on PostgreSQL:
// ring up, save, a declined card, then cash.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	queries := database.New(pool)
	seedMenuItem(t, ctx, queries, "burger", "Burger", "Mains", "10.00")
	seedMenuItem(t, ctx, queries, "cola", "Cola", "Drinks", "2.50")

	cfg := &config.Config{
		TaxRate:        decimal.RequireFromString("0.08"),
		AllowedOrigins: []string{"http://localhost:5173"},
	}

	// Backend: cards above 15.00 are declined
	card := service.NewSandboxCardProcessor(decimal.NewFromInt(15))
	backend := httptest.NewServer(router.NewBackend(cfg, queries, pool, card, events.Noop{}, zap.NewNop()))
	defer backend.Close()

	// Terminal
	c := client.New(backend.URL, backend.Client())
	hub := ws.NewHub(zap.NewNop())
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	registry := session.NewRegistry(
		session.Collaborators{Menu: c, Orders: c, Payments: c},
		session.Options{
			TaxRate:          cfg.TaxRate,
			MenuTimeout:      5 * time.Second,
			OrderSaveTimeout: 5 * time.Second,
			PaymentTimeout:   5 * time.Second,
		},
		hub,
		zap.NewNop(),
	)
	terminal := httptest.NewServer(router.NewTerminal(cfg, registry, hub, zap.NewNop()))
	defer terminal.Close()

	base := "/terminals/" + uuid.New().String()

	// --- 1. Menu is loaded from the backend ---
	status, menu := call(t, terminal, "GET", base+"/menu", nil)
	if status != http.StatusOK {
		t.Fatalf("menu: got %d %v", status, menu)
	}
	if cats := menu["categories"].(map[string]interface{}); len(cats) != 2 {
		t.Fatalf("categories: got %v", cats)
	}

	// --- 2. Ring up two burgers ---
	mustOK(t, terminal, "POST", base+"/ticket/items", map[string]string{"sku": "burger"})
	view := mustOK(t, terminal, "POST", base+"/ticket/items", map[string]string{"sku": "burger"})
	totals := view["totals"].(map[string]interface{})
	if !decimalAt(t, totals["total"]).Equal(decimal.RequireFromString("21.60")) {
		t.Fatalf("ticket total: got %v, want 21.60", totals["total"])
	}

	// --- 3. Save ---
	view = mustOK(t, terminal, "POST", base+"/order", nil)
	confirmed := view["confirmed_order"].(map[string]interface{})
	orderID, _ := confirmed["orderId"].(string)
	if orderID == "" {
		t.Fatalf("no order id in %v", confirmed)
	}
	if !decimalAt(t, confirmed["total"]).Equal(decimal.RequireFromString("21.60")) {
		t.Fatalf("saved total: got %v, want 21.60", confirmed["total"])
	}

	// --- 4. Card over the sandbox limit is declined ---
	mustOK(t, terminal, "POST", base+"/tender", nil)
	mustOK(t, terminal, "PUT", base+"/tender/method", map[string]string{"method": "CARD"})
	status, body := call(t, terminal, "POST", base+"/tender/submit", nil)
	if status != http.StatusPaymentRequired {
		t.Fatalf("declined card: got %d %v", status, body)
	}

	// --- 5. Cash settles the same order ---
	mustOK(t, terminal, "PUT", base+"/tender/method", map[string]string{"method": "CASH"})
	mustOK(t, terminal, "PUT", base+"/tender/cash", map[string]string{"amount": "25"})
	view = mustOK(t, terminal, "POST", base+"/tender/submit", nil)
	settlement := view["tender"].(map[string]interface{})["settlement"].(map[string]interface{})
	if settlement["status"] != "APPROVED" {
		t.Fatalf("settlement: got %v", settlement)
	}
	if !decimalAt(t, settlement["changeDue"]).Equal(decimal.RequireFromString("3.40")) {
		t.Errorf("changeDue: got %v, want 3.40", settlement["changeDue"])
	}

	// --- 6. Backend shows the order paid with both attempts recorded ---
	status, order := call(t, backend, "GET", "/order/"+orderID, nil)
	if status != http.StatusOK {
		t.Fatalf("get order: got %d %v", status, order)
	}
	if order["status"] != "PAID" {
		t.Errorf("order status: got %v, want PAID", order["status"])
	}
	payments := order["payments"].([]interface{})
	if len(payments) != 2 {
		t.Fatalf("payments: got %d, want 2", len(payments))
	}
	if p := payments[0].(map[string]interface{}); p["status"] != "DECLINED" || p["method"] != "CARD" {
		t.Errorf("first payment: got %v", p)
	}

	// --- 7. A second payment is refused ---
	status, body = call(t, backend, "POST", "/payment", map[string]string{
		"orderId": orderID, "method": "CASH", "amountTendered": "30",
	})
	if status != http.StatusConflict {
		t.Errorf("second payment: got %d %v", status, body)
	}
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
}

func seedMenuItem(t *testing.T, ctx context.Context, q *database.Queries, sku, name, category, price string) {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(price); err != nil {
		t.Fatalf("price %s: %v", price, err)
	}
	if _, err := q.UpsertMenuItem(ctx, database.UpsertMenuItemParams{
		Sku:      sku,
		Name:     name,
		Category: category,
		Position: 1,
		Price:    n,
		Tags:     []string{},
	}); err != nil {
		t.Fatalf("seed %s: %v", sku, err)
	}
}

func mustOK(t *testing.T, srv *httptest.Server, method, path string, body interface{}) map[string]interface{} {
	t.Helper()
	status, out := call(t, srv, method, path, body)
	if status != http.StatusOK {
		t.Fatalf("%s %s: status %d, body: %v", method, path, status, out)
	}
	return out
}
