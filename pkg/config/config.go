package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "STAGEPASS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	Checkout CheckoutConfig
	Stripe   StripeConfig
	Leads    LeadsConfig
	Tracking TrackingConfig
	Redis    RedisConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STAGEPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"STAGEPASS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STAGEPASS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STAGEPASS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// CheckoutConfig describes the single product tier sold through the modal.
type CheckoutConfig struct {
	TicketPriceCents int64         `envconfig:"STAGEPASS_TICKET_PRICE_CENTS" required:"true"`
	Currency         string        `envconfig:"STAGEPASS_CURRENCY" default:"eur"`
	Locale           string        `envconfig:"STAGEPASS_LOCALE" default:"pt"`
	SuccessURL       string        `envconfig:"STAGEPASS_SUCCESS_URL" required:"true"`
	RedirectDelay    time.Duration `envconfig:"STAGEPASS_REDIRECT_DELAY" default:"2s"`
	PrewarmDebounce  time.Duration `envconfig:"STAGEPASS_PREWARM_DEBOUNCE" default:"1200ms"`
	PreparingHint    time.Duration `envconfig:"STAGEPASS_PREPARING_HINT" default:"4s"`
	SessionTTL       time.Duration `envconfig:"STAGEPASS_SESSION_TTL" default:"30m"`
	GatewayTimeout   time.Duration `envconfig:"STAGEPASS_GATEWAY_TIMEOUT" default:"15s"`
	AllowedOrigins   []string      `envconfig:"STAGEPASS_ALLOWED_ORIGINS" default:"*"`
}

func (c CheckoutConfig) validate() error {
	if c.TicketPriceCents <= 0 {
		return fmt.Errorf("ticket price must be positive, got %d", c.TicketPriceCents)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code, got %q", c.Currency)
	}
	if c.PrewarmDebounce <= 0 {
		return fmt.Errorf("prewarm debounce must be positive")
	}
	return nil
}

type StripeConfig struct {
	APIKey string `envconfig:"STAGEPASS_STRIPE_API_KEY"`
	Env    string `envconfig:"STAGEPASS_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// LeadsConfig points at the lead-capture collaborator.
type LeadsConfig struct {
	BaseURL string        `envconfig:"STAGEPASS_LEADS_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"STAGEPASS_LEADS_TIMEOUT" default:"8s"`
}

// TrackingConfig points at the analytics collector. Delivery is best effort.
type TrackingConfig struct {
	CollectorURL string        `envconfig:"STAGEPASS_TRACKING_COLLECTOR_URL"`
	Timeout      time.Duration `envconfig:"STAGEPASS_TRACKING_TIMEOUT" default:"3s"`
	MaxAttempts  uint64        `envconfig:"STAGEPASS_TRACKING_MAX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STAGEPASS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STAGEPASS_REDIS_ADDR"`
	Password     string        `envconfig:"STAGEPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"STAGEPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STAGEPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STAGEPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STAGEPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STAGEPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STAGEPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
}
