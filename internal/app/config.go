package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config is the full application configuration, loadable from environment
// variables (STORE_ prefix), flags, or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	TaxRate  string `default:"0" usage:"Tax rate applied to the discounted subtotal, e.g. 0.1 for 10%" flag:"tax-rate"`
	Shipping ShippingConfig
	Referral ReferralConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig

	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// ShippingConfig controls the flat-rate shipping calculator.
type ShippingConfig struct {
	Method   string `default:"standard" usage:"Shipping method name"`
	Rate     string `default:"4.99" usage:"Flat shipping rate"`
	FreeOver string `default:"50" usage:"Subtotal threshold for free shipping; 0 disables" flag:"free-over"`
}

// ReferralConfig controls commission attribution.
type ReferralConfig struct {
	Window time.Duration `default:"720h" usage:"How old a referral click may be and still earn a commission"`
}

// KafkaConfig controls event publishing. With no brokers configured, events
// are logged instead.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses; empty disables Kafka publishing"`
	Topic   string   `default:"storefront.events" usage:"Kafka topic for storefront events"`
}

// OutboxConfig controls the outbox relay.
type OutboxConfig struct {
	Interval  time.Duration `default:"1s" usage:"Outbox poll interval"`
	BatchSize int           `default:"100" usage:"Max events published per poll" flag:"batch-size"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls allowed cross-origin request origins.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// ParsedTaxRate returns the tax rate as a decimal.
func (c *Config) ParsedTaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() {
		return decimal.Zero, errors.Errorf("tax rate %q is negative", c.TaxRate)
	}
	return rate, nil
}

// LoadConfig loads configuration from environment, YAML files, and platform
// defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the standard environment variable names hosting
// platforms provide (DATABASE_URL, PORT) onto the STORE_-prefixed config.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = "0.0.0.0:" + port
	}
}
