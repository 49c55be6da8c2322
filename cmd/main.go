package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comanda-pos/comanda/internal/adapter/catalog"
	"github.com/comanda-pos/comanda/internal/adapter/logger"
	"github.com/comanda-pos/comanda/internal/adapter/postgres"
	"github.com/comanda-pos/comanda/internal/adapter/provider"
	"github.com/comanda-pos/comanda/internal/adapter/rabbitmq"
	"github.com/comanda-pos/comanda/internal/app/cashdrawer"
	"github.com/comanda-pos/comanda/internal/app/order"
	"github.com/comanda-pos/comanda/internal/app/payment"
	"github.com/comanda-pos/comanda/internal/config"

	httpAdapter "github.com/comanda-pos/comanda/internal/adapter/http"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx := context.Background()
	lgr := logger.New("order-core")

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})

	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mqConn.Close()

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})

	// Repositories and adapters.
	orderRepo := postgres.NewOrderRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	drawerRepo := postgres.NewCashDrawerRepository(db)
	allocator := postgres.NewNumberAllocator(db)
	publisher := rabbitmq.NewPublisher(mqConn)
	providerClient := provider.New(cfg.Payments)
	catalogClient := catalog.New(cfg.Catalog)

	// Services.
	orderService := order.NewService(orderRepo, allocator, catalogClient, publisher, lgr, cfg.Orders.NumberWidth)
	paymentService := payment.NewService(paymentRepo, orderRepo, providerClient, publisher, lgr, cfg.Payments.Currency)
	drawerService := cashdrawer.NewService(drawerRepo, lgr)

	// HTTP surface.
	mux := http.NewServeMux()
	httpAdapter.NewOrderHandler(orderService, lgr).Register(mux)
	httpAdapter.NewPaymentHandler(paymentService, lgr).Register(mux)
	httpAdapter.NewCashDrawerHandler(drawerService, lgr).Register(mux)

	handler := httpAdapter.LoggingMiddleware(lgr)(mux)
	handler = httpAdapter.RecoveryMiddleware(lgr)(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lgr.Info("service_started", fmt.Sprintf("Order core started on port %d", cfg.Server.Port), "startup", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		lgr.Info("shutdown_initiated", "Shutting down", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lgr.Error("server_error", "Server error", "runtime", nil, err)
	}
}
