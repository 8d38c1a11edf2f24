package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/payment"
)

func validConfig() Config {
	return Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/checkout",
		Stripe: StripeConfig{
			SuccessURL:      "https://shop.test/payments/result/success",
			CancelURL:       "https://shop.test/payments/result/cancel",
			DefaultCurrency: "usd",
			PaymentMode:     "checkout_session",
			Timeout:         10 * time.Second,
			USD:             KeyPair{SecretKey: "sk_usd", PublishableKey: "pk_usd"},
			EUR:             KeyPair{SecretKey: "sk_eur", PublishableKey: "pk_eur"},
		},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
	}
}

// clearEnv blanks the unprefixed variables the loader falls back to.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DATABASE_URL", "REDIS_URL", "PORT",
		"STRIPE_SUCCESS_URL", "STRIPE_CANCEL_URL", "STRIPE_CURRENCY_DEFAULT", "STRIPE_PAYMENT_MODE",
		"STRIPE_USD_SECRET_KEY", "STRIPE_USD_PUBLISHABLE_KEY",
		"STRIPE_EUR_SECRET_KEY", "STRIPE_EUR_PUBLISHABLE_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestValidate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "Valid",
			mutate: func(*Config) {},
		},
		{
			name:    "MissingDatabase",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "CHECKOUT_DATABASE_URL",
		},
		{
			name: "MissingKeysListed",
			mutate: func(c *Config) {
				c.Stripe.EUR = KeyPair{}
				c.Stripe.SuccessURL = "  "
			},
			wantErr: "CHECKOUT_STRIPE_SUCCESS_URL, CHECKOUT_STRIPE_EUR_SECRET_KEY, CHECKOUT_STRIPE_EUR_PUBLISHABLE_KEY",
		},
		{
			name:    "InvalidMode",
			mutate:  func(c *Config) { c.Stripe.PaymentMode = "invoice" },
			wantErr: "invalid stripe payment mode",
		},
		{
			name:    "ZeroStripeTimeout",
			mutate:  func(c *Config) { c.Stripe.Timeout = 0 },
			wantErr: "stripe timeout must be positive",
		},
		{
			name:    "NegativeIdempotencyTTL",
			mutate:  func(c *Config) { c.Idempotency.TTL = -time.Minute },
			wantErr: "idempotency TTL must be positive",
		},
		{
			name:    "UnsupportedCurrency",
			mutate:  func(c *Config) { c.Stripe.DefaultCurrency = "gbp" },
			wantErr: `unsupported default currency "gbp"`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := validConfig()
	cfg.Stripe.DefaultCurrency = " EUR "
	cfg.Stripe.PaymentMode = "payment_intent"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, money.EUR, cfg.DefaultCurrency())
	assert.Equal(t, payment.ModePaymentIntent, cfg.Mode())
}

func TestApplyPlatformDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("STRIPE_SUCCESS_URL", "https://legacy.test/ok")
	t.Setenv("STRIPE_USD_SECRET_KEY", "sk_legacy")
	t.Setenv("STRIPE_CURRENCY_DEFAULT", "eur")
	t.Setenv("STRIPE_PAYMENT_MODE", "payment_intent")

	cfg := Config{
		Addr:     defaultAddr,
		RedisURL: "redis://explicit:6379/1",
		Stripe: StripeConfig{
			CancelURL:       "https://explicit.test/cancel",
			DefaultCurrency: "usd",
			PaymentMode:     "checkout_session",
		},
	}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, "redis://explicit:6379/1", cfg.RedisURL, "explicit value kept")
	assert.Equal(t, "https://legacy.test/ok", cfg.Stripe.SuccessURL)
	assert.Equal(t, "https://explicit.test/cancel", cfg.Stripe.CancelURL)
	assert.Equal(t, "sk_legacy", cfg.Stripe.USD.SecretKey)
	assert.Equal(t, "eur", cfg.Stripe.DefaultCurrency)
	assert.Equal(t, "payment_intent", cfg.Stripe.PaymentMode)
}

func TestApplyPlatformDefaults_PrefixedWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRIPE_PAYMENT_MODE", "payment_intent")
	t.Setenv("CHECKOUT_STRIPE_PAYMENT_MODE", "checkout_session")

	cfg := Config{Addr: "127.0.0.1:8000", Stripe: StripeConfig{PaymentMode: "checkout_session"}}
	t.Setenv("PORT", "9090")
	cfg.applyPlatformDefaults()

	assert.Equal(t, "checkout_session", cfg.Stripe.PaymentMode)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr, "custom addr is not replaced by PORT")
}

func TestLoadConfig_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECKOUT_DATABASE_URL", "postgres://env/db")
	t.Setenv("CHECKOUT_STRIPE_SUCCESS_URL", "https://shop.test/ok")
	t.Setenv("CHECKOUT_STRIPE_CANCEL_URL", "https://shop.test/cancel")
	t.Setenv("CHECKOUT_STRIPE_USD_SECRET_KEY", "sk_usd")
	t.Setenv("CHECKOUT_STRIPE_USD_PUBLISHABLE_KEY", "pk_usd")
	t.Setenv("STRIPE_EUR_SECRET_KEY", "sk_eur")
	t.Setenv("STRIPE_EUR_PUBLISHABLE_KEY", "pk_eur")

	cfg, err := loadConfig(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		SkipFlags: true,
		SkipFiles: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, payment.ModeCheckoutSession, cfg.Mode())
	assert.Equal(t, money.USD, cfg.DefaultCurrency())

	keys := cfg.Keyring()
	assert.Equal(t, "sk_eur", keys.ForCurrency("eur").SecretKey)
	assert.Equal(t, "pk_usd", keys.ForCurrency("usd").PublishableKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECKOUT_DATABASE_URL", "")

	_, err := loadConfig(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		SkipFlags: true,
		SkipFiles: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required configuration")
}
