package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/alex-brain/marketplace-backend/handlers"
	"github.com/alex-brain/marketplace-backend/internal/auth"
	"github.com/alex-brain/marketplace-backend/internal/cart"
	"github.com/alex-brain/marketplace-backend/internal/consul"
	"github.com/alex-brain/marketplace-backend/internal/inventory"
	"github.com/alex-brain/marketplace-backend/internal/orders"
	"github.com/alex-brain/marketplace-backend/internal/stores/kafka"
	"github.com/alex-brain/marketplace-backend/internal/stores/postgres"
	"github.com/alex-brain/marketplace-backend/pkg/logkey"
)

const serviceName = "marketplace-backend"

func main() {
	if err := startApp(); err != nil {
		slog.Error("service stopped", slog.String(logkey.ERROR, err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment")
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := postgres.OpenDB()
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	ledger, err := inventory.NewLedger(db)
	if err != nil {
		return err
	}
	carts, err := cart.NewConf(db, ledger)
	if err != nil {
		return err
	}
	orderWorkflow, err := orders.NewConf(db, carts, ledger)
	if err != nil {
		return err
	}

	keys, err := loadAuthKeys()
	if err != nil {
		return fmt.Errorf("loading auth keys: %w", err)
	}

	kafkaConf, err := kafka.NewConf()
	if err != nil {
		slog.Warn("kafka unavailable, order events disabled", slog.String(logkey.ERROR, err.Error()))
		kafkaConf = nil
	} else {
		defer kafkaConf.Close()
	}

	host := os.Getenv("SERVICE_HOST")
	if host == "" {
		host = "localhost"
	}
	portStr := os.Getenv("SERVICE_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid SERVICE_PORT %q: %w", portStr, err)
	}

	consulClient, err := consul.NewClient()
	if err != nil {
		slog.Warn("consul unavailable, skipping registration", slog.String(logkey.ERROR, err.Error()))
	} else {
		if err := consul.RegisterService(consulClient, serviceName, host, port); err != nil {
			slog.Warn("consul registration failed", slog.String(logkey.ERROR, err.Error()))
		} else {
			defer func() {
				if err := consul.DeregisterService(consulClient, serviceName, host, port); err != nil {
					slog.Error("consul deregistration failed", slog.String(logkey.ERROR, err.Error()))
				}
			}()
		}
	}

	prefix := os.Getenv("SERVICE_ENDPOINT_PREFIX")
	if prefix == "" {
		prefix = "/api"
	}

	api := handlers.API(prefix, keys, carts, orderWorkflow, kafkaConf)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}

func loadAuthKeys() (*auth.Keys, error) {
	publicPath := os.Getenv("AUTH_PUBLIC_KEY_PATH")
	if publicPath == "" {
		return nil, fmt.Errorf("AUTH_PUBLIC_KEY_PATH is not set")
	}
	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	// Private key is optional: tokens are normally issued by the identity
	// service, not here.
	var privatePEM []byte
	if privatePath := os.Getenv("AUTH_PRIVATE_KEY_PATH"); privatePath != "" {
		privatePEM, err = os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
	}

	return auth.NewKeys(privatePEM, publicPEM)
}
