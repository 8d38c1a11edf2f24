package app

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/payment"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis URL for idempotency keys; empty disables replay (CHECKOUT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Stripe      StripeConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
	Idempotency IdempotencyConfig
}

// StripeConfig holds payment processor settings.
type StripeConfig struct {
	SuccessURL      string        `usage:"Redirect after a completed hosted checkout" flag:"stripe-success-url"`
	CancelURL       string        `usage:"Redirect after a cancelled hosted checkout" flag:"stripe-cancel-url"`
	DefaultCurrency string        `default:"usd" usage:"Currency whose account owns tax rates and empty orders"`
	PaymentMode     string        `default:"checkout_session" usage:"Single item purchase mode: checkout_session or payment_intent"`
	Timeout         time.Duration `default:"10s" usage:"Stripe API call timeout"`
	APIURL          string        `usage:"Override the Stripe API base URL (stripe-mock)" flag:"stripe-api-url"`
	USD             KeyPair
	EUR             KeyPair
}

// KeyPair is the key pair of one Stripe account.
type KeyPair struct {
	SecretKey      string
	PublishableKey string
}

// RateLimitConfig controls the per-client limit on buy endpoints.
type RateLimitConfig struct {
	Max    int           `default:"30" usage:"Max buy requests per window; 0 disables"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// IdempotencyConfig controls stored buy responses.
type IdempotencyConfig struct {
	TTL time.Duration `default:"24h" usage:"How long a buy response is replayed for the same Idempotency-Key"`
}

// LoadConfig reads .env when present, then environment variables, flags and
// YAML config files, applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults fills unset values from the conventional unprefixed
// variables: DATABASE_URL, PORT and REDIS_URL from hosting platforms, and the
// STRIPE_* names used by earlier deployments.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}

	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.RedisURL, "REDIS_URL")
	fallback(&c.Stripe.SuccessURL, "STRIPE_SUCCESS_URL")
	fallback(&c.Stripe.CancelURL, "STRIPE_CANCEL_URL")
	fallback(&c.Stripe.USD.SecretKey, "STRIPE_USD_SECRET_KEY")
	fallback(&c.Stripe.USD.PublishableKey, "STRIPE_USD_PUBLISHABLE_KEY")
	fallback(&c.Stripe.EUR.SecretKey, "STRIPE_EUR_SECRET_KEY")
	fallback(&c.Stripe.EUR.PublishableKey, "STRIPE_EUR_PUBLISHABLE_KEY")

	// Defaults are always set, so legacy names override them only when the
	// prefixed variable is absent.
	if v := os.Getenv("STRIPE_CURRENCY_DEFAULT"); v != "" && os.Getenv("CHECKOUT_STRIPE_DEFAULT_CURRENCY") == "" {
		c.Stripe.DefaultCurrency = v
	}
	if v := os.Getenv("STRIPE_PAYMENT_MODE"); v != "" && os.Getenv("CHECKOUT_STRIPE_PAYMENT_MODE") == "" {
		c.Stripe.PaymentMode = v
	}
	if port := os.Getenv("PORT"); port != "" && (c.Addr == "" || c.Addr == defaultAddr) {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate rejects a configuration the server cannot run with. It normalizes
// the payment mode and default currency.
func (c *Config) Validate() error {
	var missing []string
	for _, req := range []struct{ value, name string }{
		{c.DatabaseURL, "CHECKOUT_DATABASE_URL"},
		{c.Stripe.SuccessURL, "CHECKOUT_STRIPE_SUCCESS_URL"},
		{c.Stripe.CancelURL, "CHECKOUT_STRIPE_CANCEL_URL"},
		{c.Stripe.USD.SecretKey, "CHECKOUT_STRIPE_USD_SECRET_KEY"},
		{c.Stripe.USD.PublishableKey, "CHECKOUT_STRIPE_USD_PUBLISHABLE_KEY"},
		{c.Stripe.EUR.SecretKey, "CHECKOUT_STRIPE_EUR_SECRET_KEY"},
		{c.Stripe.EUR.PublishableKey, "CHECKOUT_STRIPE_EUR_PUBLISHABLE_KEY"},
	} {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Stripe.Timeout <= 0 {
		return errors.Errorf("stripe timeout must be positive, got %s", c.Stripe.Timeout)
	}
	if c.Idempotency.TTL <= 0 {
		return errors.Errorf("idempotency TTL must be positive, got %s", c.Idempotency.TTL)
	}

	mode, err := payment.ParseMode(c.Stripe.PaymentMode)
	if err != nil {
		return errors.Wrap(err, "invalid stripe payment mode")
	}
	c.Stripe.PaymentMode = string(mode)

	currency := money.ParseCurrency(c.Stripe.DefaultCurrency)
	if !currency.Supported() {
		return errors.Errorf("unsupported default currency %q", c.Stripe.DefaultCurrency)
	}
	c.Stripe.DefaultCurrency = currency.String()

	return nil
}

// Keyring returns the per-currency processor credentials.
func (c *Config) Keyring() payment.Keyring {
	return payment.Keyring{
		USD: payment.Credentials{SecretKey: c.Stripe.USD.SecretKey, PublishableKey: c.Stripe.USD.PublishableKey},
		EUR: payment.Credentials{SecretKey: c.Stripe.EUR.SecretKey, PublishableKey: c.Stripe.EUR.PublishableKey},
	}
}

// Mode returns the validated payment mode.
func (c *Config) Mode() payment.Mode {
	return payment.Mode(c.Stripe.PaymentMode)
}

// DefaultCurrency returns the validated default currency.
func (c *Config) DefaultCurrency() money.Currency {
	return money.Currency(c.Stripe.DefaultCurrency)
}
