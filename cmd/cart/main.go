package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront-cart/internal/cart"
	"github.com/fjod/go_cart/storefront-cart/internal/config"
	"github.com/fjod/go_cart/storefront-cart/internal/health"
	carthttp "github.com/fjod/go_cart/storefront-cart/internal/http"
	"github.com/fjod/go_cart/storefront-cart/internal/inventory"
	"github.com/fjod/go_cart/storefront-cart/internal/logger"
	"github.com/fjod/go_cart/storefront-cart/internal/notify"
	"github.com/fjod/go_cart/storefront-cart/internal/poller"
	"github.com/fjod/go_cart/storefront-cart/internal/storage"
	"github.com/fjod/go_cart/storefront-cart/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.InitTracerProvider(ctx, "storefront-cart", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Persistence
	backend, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer backend.Close()
	log.Infof("Using %s storage for cart snapshots", cfg.Storage.Backend)

	// Notifications
	recorder := notify.NewRecorder(50)
	notifiers := notify.Multi{notify.NewLog(log), recorder}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := notify.NewKafka(cfg.CartKey, cfg.NotificationTopic, log, cfg.KafkaBrokers...)
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
	}

	inventoryClient := inventory.NewClient(cfg.InventoryURL, cfg.InventoryTimeout)
	log.Infof("Inventory API at %s", cfg.InventoryURL)

	store := cart.NewStore(ctx, cfg.CartKey, inventoryClient, backend, notifiers, log)
	log.Infof("Loaded cart %q with %d items", store.Key(), store.Cart().Size())

	// Checkout consumer
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(store, cfg.CheckoutTopic, log, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Infof("Consuming %s from %v", cfg.CheckoutTopic, cfg.KafkaBrokers)
	}

	// gRPC health
	checker := health.NewChecker(backend, cfg.HealthInterval, log)
	go checker.Run(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, checker.Server())
	reflection.Register(grpcServer)

	go func() {
		log.Infof("Health service listening on port %s", cfg.GRPCHealthPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// HTTP API
	handler := carthttp.NewCartHandler(store, recorder, cfg.RequestTimeout, log)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      carthttp.NewRouter(handler, cfg.RequestTimeout, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Cart API listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down cart service...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Errorf("Error shutting down tracer provider: %v", err)
	}
	log.Info("Cart service stopped")
}
