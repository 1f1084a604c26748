package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiwari-pos/terminal/internal/client"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/logging"
	"github.com/kiwari-pos/terminal/internal/router"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/ws"
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

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	backend := client.New(cfg.BackendURL, &http.Client{})
	registry := session.NewRegistry(
		session.Collaborators{Menu: backend, Orders: backend, Payments: backend},
		session.Options{
			TaxRate:          cfg.TaxRate,
			MenuTimeout:      cfg.MenuTimeout,
			OrderSaveTimeout: cfg.OrderSaveTimeout,
			PaymentTimeout:   cfg.PaymentTimeout,
		},
		hub,
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router.NewTerminal(cfg, registry, hub, logger),
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

	logger.Info("starting terminal",
		zap.String("port", cfg.Port),
		zap.String("backend_url", cfg.BackendURL),
		zap.String("tax_rate", cfg.TaxRate.String()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
