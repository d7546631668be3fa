package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront-cart/internal/config"
	"github.com/fjod/go_cart/storefront-cart/internal/domain"
	"github.com/fjod/go_cart/storefront-cart/internal/inventory"
	"github.com/fjod/go_cart/storefront-cart/internal/logger"
	"github.com/shopspring/decimal"
)

const imageBase = "https://rocketseat-cdn.s3-sa-east-1.amazonaws.com/modulo-redux/"

// Seed catalog for local development
var seedProducts = []struct {
	product domain.Product
	stock   int
}{
	{domain.Product{ID: 1, Title: "Tênis de Caminhada Leve Confortável", Price: decimal.RequireFromString("179.9"), Image: imageBase + "tenis1.jpg"}, 3},
	{domain.Product{ID: 2, Title: "Tênis VR Caminhada Confortável Detalhes Couro Masculino", Price: decimal.RequireFromString("139.9"), Image: imageBase + "tenis2.jpg"}, 5},
	{domain.Product{ID: 3, Title: "Tênis Adidas Duramo Lite 2.0", Price: decimal.RequireFromString("219.9"), Image: imageBase + "tenis3.jpg"}, 2},
	{domain.Product{ID: 5, Title: "Tênis VR Caminhada Confortável Detalhes Couro Masculino", Price: decimal.RequireFromString("139.9"), Image: imageBase + "tenis2.jpg"}, 5},
	{domain.Product{ID: 6, Title: "Tênis Adidas Duramo Lite 2.0", Price: decimal.RequireFromString("219.9"), Image: imageBase + "tenis3.jpg"}, 10},
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	catalog := inventory.NewCatalog()
	for _, seed := range seedProducts {
		catalog.SetProduct(seed.product)
		if err := catalog.SetStock(seed.product.ID, seed.stock); err != nil {
			log.Fatalf("Failed to set initial stock for product %d: %v", seed.product.ID, err)
		}
	}
	log.Infof("Initialized stock for %d products", catalog.Len())

	srv := &http.Server{
		Addr:         ":" + cfg.InventoryPort,
		Handler:      inventory.NewServer(catalog),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Inventory stub listening on :%s", cfg.InventoryPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down inventory stub...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}
	log.Info("Inventory stub stopped")
}
