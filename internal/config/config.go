package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	// Empty disables CORS handling.
	CORSAllowOrigins []string

	InventoryURL     string
	InventoryTimeout time.Duration

	Storage     string
	RedisAddr   string
	PostgresDSN string

	CartKey        string
	ResetOnCorrupt bool

	// OTLP gRPC endpoint; empty keeps spans in-process.
	OTLPEndpoint string
	NotifyBuffer int
}

func Load() Config {
	return Config{
		ServiceName: getenv("SERVICE_NAME", "minishop-cart"),
		Env:         getenv("ENV", "dev"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFile:     getenv("LOG_FILE", ""),

		CORSAllowOrigins: splitCSV(getenv("CORS_ALLOW_ORIGINS", "")),

		InventoryURL:     getenv("INVENTORY_URL", "http://localhost:3333"),
		InventoryTimeout: parseDuration(getenv("INVENTORY_TIMEOUT", "5s"), 5*time.Second),

		Storage:     strings.ToLower(getenv("STORAGE", StorageMemory)),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		PostgresDSN: getenv("POSTGRES_DSN", ""),

		CartKey:        getenv("CART_KEY", "@minishop:cart"),
		ResetOnCorrupt: getenvBool("CART_RESET_ON_CORRUPT", false),

		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		NotifyBuffer: getenvInt("NOTIFY_BUFFER", 256),
	}
}

// Validate reports settings the daemon cannot start with.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageRedis:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: POSTGRES_DSN is required for storage %q", c.Storage)
		}
	default:
		return fmt.Errorf("config: unknown storage %q", c.Storage)
	}
	if c.InventoryURL == "" {
		return fmt.Errorf("config: INVENTORY_URL is required")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	n, err := strconv.Atoi(getenv(k, ""))
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string, def bool) bool {
	b, err := strconv.ParseBool(getenv(k, ""))
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
