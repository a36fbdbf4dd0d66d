package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port   string `env:"PORT" envDefault:"8080"`
	Mode   string `env:"GIN_MODE" envDefault:"debug"`
	APIKey string `env:"API_KEY"`

	// Logging configuration
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Database configuration
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"inapppay.db"`

	// Redis configuration, empty disables the response cache
	RedisURL         string        `env:"REDIS_URL"`
	ResponseCacheTTL time.Duration `env:"RESPONSE_CACHE_TTL" envDefault:"5m"`

	// Receipt verification
	Verify Verify

	// Purchase defaults
	SharedSecret        string        `env:"SHARED_SECRET"`
	UseSandbox          bool          `env:"USE_SANDBOX" envDefault:"true"`
	RestoreMode         string        `env:"RESTORE_MODE" envDefault:"latest"`
	PurchaseWaitTimeout time.Duration `env:"PURCHASE_WAIT_TIMEOUT" envDefault:"2m"`

	// Simulated device
	ReceiptPath string `env:"RECEIPT_PATH" envDefault:"receipt.bin"`
	CatalogPath string `env:"CATALOG_PATH"`

	// Outcome hooks
	WebhookURL    string `env:"WEBHOOK_URL"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// Brevo email configuration
	BrevoAPIKey    string `env:"BREVO_API_KEY"`
	BrevoFromEmail string `env:"BREVO_FROM_EMAIL"`
	BrevoFromName  string `env:"BREVO_FROM_NAME" envDefault:"InAppPay"`
	AlertEmail     string `env:"ALERT_EMAIL"`
}

type Verify struct {
	SandboxURL    string        `env:"VERIFY_SANDBOX_URL" envDefault:"https://sandbox.itunes.apple.com/verifyReceipt"`
	ProductionURL string        `env:"VERIFY_PRODUCTION_URL" envDefault:"https://buy.itunes.apple.com/verifyReceipt"`
	Timeout       time.Duration `env:"VERIFY_TIMEOUT" envDefault:"30s"`
	MaxAttempts   int           `env:"VERIFY_MAX_ATTEMPTS" envDefault:"3"`
}

var AppConfig *Config

// InitConfig loads .env (when present) and the environment into AppConfig
func InitConfig() error {
	// Ignore error if .env file doesn't exist
	_ = godotenv.Load()

	cfg, err := Load()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load parses the current environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Verify.MaxAttempts < 1 {
		return nil, fmt.Errorf("VERIFY_MAX_ATTEMPTS must be at least 1, got %d", cfg.Verify.MaxAttempts)
	}
	switch cfg.RestoreMode {
	case "latest", "each":
	default:
		return nil, fmt.Errorf("RESTORE_MODE must be latest or each, got %q", cfg.RestoreMode)
	}
	return cfg, nil
}
