package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/logging"
	"github.com/kiwari-pos/terminal/internal/router"
	"github.com/kiwari-pos/terminal/internal/service"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrateUp(cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("ping database", zap.Error(err))
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.Dial(cfg.RabbitMQURL, "pos-backend", logger)
		if err != nil {
			logger.Fatal("connect to rabbitmq", zap.Error(err))
		}
		defer amqpPub.Close()
		publisher = amqpPub
	} else {
		logger.Info("RABBITMQ_URL not set, events are not published")
	}

	card := service.NewSandboxCardProcessor(cfg.CardLimit)
	handler := router.NewBackend(cfg, database.New(pool), pool, card, publisher, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.BackendPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting backend",
		zap.String("port", cfg.BackendPort),
		zap.String("tax_rate", cfg.TaxRate.String()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// migrateUp runs the embedded migrations over a short-lived lib/pq handle.
func migrateUp(url string) error {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return database.Migrate(db)
}
