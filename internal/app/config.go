package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Paging modes select where the table is sorted and paged.
const (
	PagingClient = "client"
	PagingServer = "server"
)

// Config holds runtime configuration for the console.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	InventoryAPIURL       string        `envconfig:"INVENTORY_API_URL" default:"http://localhost:9090"`
	InventoryAPITimeout   time.Duration `envconfig:"INVENTORY_API_TIMEOUT" default:"15s"`
	InventoryPagingMode   string        `envconfig:"INVENTORY_PAGING_MODE" default:"client"`
	InventoryPageSize     int           `envconfig:"INVENTORY_PAGE_SIZE" default:"10"`
	InventoryStockTimeout time.Duration `envconfig:"INVENTORY_STOCK_TIMEOUT" default:"10s"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the console cannot run with.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if c.InventoryAPIURL == "" {
		return errors.New("inventory api url must be provided")
	}
	switch c.InventoryPagingMode {
	case PagingClient, PagingServer:
	default:
		return fmt.Errorf("invalid paging mode %q: want %s or %s", c.InventoryPagingMode, PagingClient, PagingServer)
	}
	if c.InventoryPageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.InventoryPageSize)
	}
	if c.InventoryStockTimeout <= 0 {
		return errors.New("stock timeout must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// ServerPaging reports whether sorting and paging are delegated to the API.
func (c *Config) ServerPaging() bool {
	return c != nil && c.InventoryPagingMode == PagingServer
}
