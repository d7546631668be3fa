// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront-cart/internal/cart"
	"github.com/fjod/go_cart/storefront-cart/internal/storage"
)

type Config struct {
	HTTPPort         string
	GRPCHealthPort   string
	InventoryURL     string
	InventoryTimeout time.Duration
	InventoryPort    string

	CartKey string
	Storage storage.Options

	KafkaBrokers      []string
	CheckoutTopic     string
	NotificationTopic string

	OTLPEndpoint string
	LogLevel     string
	LogFormat    string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	HealthInterval  time.Duration
}

// Load collects configuration from environment with defaults.
func Load() *Config {
	return &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		GRPCHealthPort:   getEnv("GRPC_HEALTH_PORT", "50060"),
		InventoryURL:     getEnv("INVENTORY_URL", "http://localhost:3333"),
		InventoryTimeout: positiveDurEnvMs("INVENTORY_TIMEOUT_MS", 5000),
		InventoryPort:    getEnv("INVENTORY_PORT", "3333"),

		CartKey: getEnv("CART_KEY", cart.DefaultKey),
		Storage: storage.Options{
			Backend:       getEnv("STORAGE_BACKEND", storage.BackendSQLite),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisTTL:      durEnvS("REDIS_TTL_S", 0),
			MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),
			SQLitePath:    getEnv("SQLITE_PATH", "cart.db"),
		},

		KafkaBrokers:      listEnv("KAFKA_BROKERS"),
		CheckoutTopic:     getEnv("CHECKOUT_TOPIC", "checkout-outbox"),
		NotificationTopic: getEnv("NOTIFICATION_TOPIC", "cart-notifications"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),

		RequestTimeout:  positiveDurEnvS("REQUEST_TIMEOUT_S", 30),
		ShutdownTimeout: positiveDurEnvS("SHUTDOWN_TIMEOUT_S", 10),
		HealthInterval:  positiveDurEnvS("HEALTH_INTERVAL_S", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func atoiEnv(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durEnvMs(key string, defMs int) time.Duration {
	return time.Duration(atoiEnv(key, defMs)) * time.Millisecond
}

func durEnvS(key string, defSec int) time.Duration {
	return time.Duration(atoiEnv(key, defSec)) * time.Second
}

func positiveDurEnvMs(key string, defMs int) time.Duration {
	if d := durEnvMs(key, defMs); d > 0 {
		return d
	}
	return time.Duration(defMs) * time.Millisecond
}

// positiveDurEnvS is durEnvS for values that must be > 0, such as ticker intervals.
func positiveDurEnvS(key string, defSec int) time.Duration {
	if d := durEnvS(key, defSec); d > 0 {
		return d
	}
	return time.Duration(defSec) * time.Second
}

// listEnv splits a comma-separated value, dropping empty entries.
func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
