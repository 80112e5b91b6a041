package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Supabase SupabaseConfig
	Catalog  CatalogConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	Events   EventsConfig
	Outbox   OutboxConfig
	Metrics  MetricsConfig
	Cron     CronConfig

	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	// Comma separated list of storefront origins allowed by CORS.
	AllowedOrigins []string `envconfig:"STOREFRONT_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this at warn level; 0 disables.
	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	// CartTTL bounds how long an untouched cart survives; 0 keeps it forever.
	CartTTL time.Duration `envconfig:"STOREFRONT_REDIS_CART_TTL" default:"720h"`
}

// JWTConfig validates access tokens minted by the auth backend.
type JWTConfig struct {
	Secret   string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"STOREFRONT_JWT_ISSUER"`
	Audience string `envconfig:"STOREFRONT_JWT_AUDIENCE" default:"authenticated"`
}

type SupabaseConfig struct {
	URL            string        `envconfig:"STOREFRONT_SUPABASE_URL" required:"true"`
	AnonKey        string        `envconfig:"STOREFRONT_SUPABASE_ANON_KEY" required:"true"`
	Timeout        time.Duration `envconfig:"STOREFRONT_SUPABASE_TIMEOUT" default:"15s"`
	BreakerMaxFail uint32        `envconfig:"STOREFRONT_SUPABASE_BREAKER_MAX_FAILURES" default:"5"`
	BreakerTimeout time.Duration `envconfig:"STOREFRONT_SUPABASE_BREAKER_TIMEOUT" default:"30s"`
}

type CatalogConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_CATALOG_URL" required:"true"`
	PublishableKey string        `envconfig:"STOREFRONT_CATALOG_PUBLISHABLE_KEY"`
	Timeout        time.Duration `envconfig:"STOREFRONT_CATALOG_TIMEOUT" default:"10s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether enough Stripe credentials are present to build a client.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type CheckoutConfig struct {
	// DefaultTaxRatePercent applies when store settings carry no tax rate.
	DefaultTaxRatePercent float64       `envconfig:"STOREFRONT_CHECKOUT_DEFAULT_TAX_PERCENT" default:"25"`
	Currency              string        `envconfig:"STOREFRONT_CHECKOUT_CURRENCY" default:"NOK"`
	Locale                string        `envconfig:"STOREFRONT_CHECKOUT_LOCALE" default:"nb-NO"`
	CurrencyLocale        string        `envconfig:"STOREFRONT_CHECKOUT_CURRENCY_LOCALE" default:"de-DE"`
	AddressDebounce       time.Duration `envconfig:"STOREFRONT_CHECKOUT_ADDRESS_DEBOUNCE" default:"1s"`
	FallbackShippingPrice float64       `envconfig:"STOREFRONT_CHECKOUT_FALLBACK_SHIPPING" default:"99"`
	PublicBaseURL         string        `envconfig:"STOREFRONT_PUBLIC_BASE_URL" required:"true"`
	PaymentMode           string        `envconfig:"STOREFRONT_PAYMENT_MODE" default:"function"`
}

func (c CheckoutConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.PaymentMode)) {
	case PaymentModeFunction, PaymentModeStripe:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPaymentMode, PaymentModeFunction, PaymentModeStripe)
	}
	if c.DefaultTaxRatePercent < 0 {
		return fmt.Errorf("%s must be non-negative", EnvDefaultTaxPercent)
	}
	if c.FallbackShippingPrice <= 0 {
		return fmt.Errorf("%s must be positive", EnvFallbackShipping)
	}
	return nil
}

// DefaultTaxRate converts the configured percent into a fraction.
func (c CheckoutConfig) DefaultTaxRate() float64 {
	return c.DefaultTaxRatePercent / 100
}

type EventsConfig struct {
	Brokers []string `envconfig:"STOREFRONT_KAFKA_BROKERS"`
	Topic   string   `envconfig:"STOREFRONT_KAFKA_ORDERS_TOPIC" default:"storefront.orders"`
}

// Enabled reports whether order events should be published.
func (e EventsConfig) Enabled() bool {
	return len(e.Brokers) > 0
}

// OutboxConfig tunes the relay that drains outbox_events into the broker.
type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// RateLimitConfig bounds credential stuffing on auth routes and checkout spam.
// A zero limit disables that dimension.
type RateLimitConfig struct {
	AuthWindow      time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_AUTH_WINDOW" default:"15m"`
	AuthIPLimit     int           `envconfig:"STOREFRONT_RATE_LIMIT_AUTH_IP" default:"30"`
	AuthEmailLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_AUTH_EMAIL" default:"5"`
	CheckoutWindow  time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_IP" default:"10"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1h"`
	// PendingOrderTTL cancels orders whose payment never completed. Hosted
	// payment sessions expire after 24h.
	PendingOrderTTL     time.Duration `envconfig:"STOREFRONT_CRON_PENDING_ORDER_TTL" default:"25h"`
	OutboxRetentionDays int           `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"STOREFRONT_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"STOREFRONT_METRICS_PATH" default:"/metrics"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
