package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"kcd-ticketing/internal/config"
	"kcd-ticketing/internal/discount"
	"kcd-ticketing/internal/inventory"
	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/order"
	"kcd-ticketing/internal/order/db"
	orderkafka "kcd-ticketing/internal/order/kafka"
	"kcd-ticketing/internal/order/order_api"
	rediswrap "kcd-ticketing/internal/order/redis"
	"kcd-ticketing/internal/payment"
	"kcd-ticketing/internal/tickets/qr"
)

func main() {
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("failed to connect to Postgres: %v", err))
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	db.Migrate(bunDB)

	// --- Redis Setup ---
	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("failed to connect to Redis: %v", err))
	}

	// --- Kafka Setup ---
	var publisher order.EventPublisher
	if cfg.Kafka.Enabled {
		if err := orderkafka.EnsureTopicExists(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("topic setup: %v", err))
		}
		producer := orderkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
	}

	// --- Initialize Dependencies ---
	database := &db.DB{Bun: bunDB}
	inventoryLedger := inventory.NewLedger(log)
	discountService := discount.NewService(log)
	orderService := order.NewOrderService(database, inventoryLedger, discountService,
		publisher, cfg.Orders.ReservationWindow, cfg.Orders.Currency, log)

	providerClient := payment.NewClient(cfg.Provider, log)
	locks := rediswrap.NewLocks(redisClient)
	reconciler := payment.NewReconciler(orderService, providerClient, locks, log)

	qrGen := qr.NewGenerator(cfg.Orders.QRSecret)
	handler := order_api.NewHandler(orderService, reconciler, qrGen, cfg.Provider.StatusPageURL, log)

	// --- Setup Router ---
	r := chi.NewRouter()

	r.Get("/api/v1/tiers", handler.ListTiers)
	r.Post("/api/v1/orders", handler.CreateOrder)
	r.Get("/api/v1/orders/{orderId}", handler.GetOrder)
	r.Delete("/api/v1/orders/{orderId}", handler.CancelOrder)
	r.Post("/api/v1/orders/{orderId}/payment-link", handler.RequestPaymentLink)
	r.Get("/api/v1/orders/{orderId}/confirmation", handler.GetConfirmation)
	r.Post("/api/v1/payments/webhook", handler.PaymentWebhook)
	r.Get("/api/v1/payments/result", handler.PaymentResult)

	// --- Expiry Sweep ---
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := order.NewSweeper(orderService, cfg.Orders.SweepInterval, log)
	go sweeper.Run(sweepCtx)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("ticketing service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "shutdown signal received")

	stopSweep()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "server exited gracefully")
}
