// Package payment defines the boundary to the external payment processor.
//
// Credentials are passed explicitly with every call; implementations must not
// keep a process-wide "active" key.
package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// ErrRemoteNotFound is returned by lookups when the processor reports that
// the object does not exist.
var ErrRemoteNotFound = errors.New("remote object not found")

// Credentials is a processor account key pair.
type Credentials struct {
	SecretKey      string
	PublishableKey string
}

// Keyring maps currencies to processor accounts.
type Keyring struct {
	USD Credentials
	EUR Credentials
}

// ForCurrency returns the EUR pair for "eur" (any case, surrounding spaces
// ignored) and the USD pair for everything else, unknown codes included.
func (k Keyring) ForCurrency(currency string) Credentials {
	if money.ParseCurrency(currency) == money.EUR {
		return k.EUR
	}
	return k.USD
}

// CouponDuration mirrors the processor's coupon duration values.
type CouponDuration string

// DurationOnce applies the coupon to a single payment.
const DurationOnce CouponDuration = "once"

// CouponParams describes a coupon to create. Exactly one of PercentOff and
// AmountOff is set; Currency accompanies AmountOff.
type CouponParams struct {
	Name       string
	PercentOff *decimal.Decimal
	AmountOff  *int64
	Currency   money.Currency
	Duration   CouponDuration
}

// TaxRateParams describes a tax rate to create.
type TaxRateParams struct {
	DisplayName string
	Percentage  decimal.Decimal
	Inclusive   bool
}

// LineItem is one line of a hosted checkout session with inline price data.
type LineItem struct {
	Name        string
	Description string
	Currency    money.Currency
	UnitAmount  int64
	Quantity    int64
	TaxRates    []string
}

// SessionParams describes a hosted checkout session in payment mode.
type SessionParams struct {
	LineItems  []LineItem
	CouponIDs  []string
	SuccessURL string
	CancelURL  string
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string
	URL string
}

// IntentParams describes a client-confirmed payment intent with automatic
// payment methods.
type IntentParams struct {
	Amount      int64
	Currency    money.Currency
	Description string
}

// Intent is a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// Processor is the capability set the checkout workflow needs from the
// payment processor.
type Processor interface {
	// RetrieveCoupon checks that the coupon exists. It returns an error
	// wrapping ErrRemoteNotFound when it does not.
	RetrieveCoupon(ctx context.Context, creds Credentials, id string) error
	CreateCoupon(ctx context.Context, creds Credentials, p CouponParams) (string, error)
	// RetrieveTaxRate checks that the tax rate exists. It returns an error
	// wrapping ErrRemoteNotFound when it does not.
	RetrieveTaxRate(ctx context.Context, creds Credentials, id string) error
	CreateTaxRate(ctx context.Context, creds Credentials, p TaxRateParams) (string, error)
	CreateCheckoutSession(ctx context.Context, creds Credentials, p SessionParams) (*Session, error)
	CreatePaymentIntent(ctx context.Context, creds Credentials, p IntentParams) (*Intent, error)
}

// Mode selects between hosted checkout sessions and payment intents for
// single-item purchases. It is a deployment-wide setting.
type Mode string

const (
	ModeCheckoutSession Mode = "checkout_session"
	ModePaymentIntent   Mode = "payment_intent"
)

// ParseMode normalizes s and rejects unknown modes.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCheckoutSession, ModePaymentIntent:
		return m, nil
	default:
		return "", errors.Errorf("payment mode must be %q or %q, got %q", ModeCheckoutSession, ModePaymentIntent, s)
	}
}
