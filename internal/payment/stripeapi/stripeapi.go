// Package stripeapi implements payment.Processor on top of stripe-go.
package stripeapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/payment"
)

var _ payment.Processor = (*Processor)(nil)

// Config holds transport settings for the Stripe API.
type Config struct {
	// Timeout bounds every API call, including reading the response.
	Timeout time.Duration
	// URL overrides the API base URL. Empty means the Stripe default.
	URL string

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Processor talks to Stripe. It holds no account key: a client bound to the
// caller's credentials is created for every call over shared backends.
type Processor struct {
	backends *stripe.Backends
}

// New creates a Processor. Automatic network retries are disabled.
func New(cfg Config, lg *zap.Logger) *Processor {
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	bc := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     lg.Named("stripe").Sugar(),
	}
	if cfg.URL != "" {
		bc.URL = stripe.String(cfg.URL)
	}

	return &Processor{backends: stripe.NewBackendsWithConfig(bc)}
}

func (p *Processor) client(creds payment.Credentials) *client.API {
	return client.New(creds.SecretKey, p.backends)
}

// RetrieveCoupon implements payment.Processor.
func (p *Processor) RetrieveCoupon(ctx context.Context, creds payment.Credentials, id string) error {
	params := &stripe.CouponParams{}
	params.Context = ctx

	if _, err := p.client(creds).Coupons.Get(id, params); err != nil {
		return lookupError("retrieve coupon", id, err)
	}
	return nil
}

// CreateCoupon implements payment.Processor.
func (p *Processor) CreateCoupon(ctx context.Context, creds payment.Credentials, cp payment.CouponParams) (string, error) {
	params := &stripe.CouponParams{
		Name:     stripe.String(cp.Name),
		Duration: stripe.String(string(cp.Duration)),
	}
	params.Context = ctx
	switch {
	case cp.PercentOff != nil:
		params.PercentOff = stripe.Float64(cp.PercentOff.InexactFloat64())
	case cp.AmountOff != nil:
		params.AmountOff = stripe.Int64(*cp.AmountOff)
		params.Currency = stripe.String(cp.Currency.String())
	}

	c, err := p.client(creds).Coupons.New(params)
	if err != nil {
		return "", errors.Wrap(err, "create coupon")
	}
	return c.ID, nil
}

// RetrieveTaxRate implements payment.Processor.
func (p *Processor) RetrieveTaxRate(ctx context.Context, creds payment.Credentials, id string) error {
	params := &stripe.TaxRateParams{}
	params.Context = ctx

	if _, err := p.client(creds).TaxRates.Get(id, params); err != nil {
		return lookupError("retrieve tax rate", id, err)
	}
	return nil
}

// CreateTaxRate implements payment.Processor.
func (p *Processor) CreateTaxRate(ctx context.Context, creds payment.Credentials, tp payment.TaxRateParams) (string, error) {
	params := &stripe.TaxRateParams{
		DisplayName: stripe.String(tp.DisplayName),
		Percentage:  stripe.Float64(tp.Percentage.InexactFloat64()),
		Inclusive:   stripe.Bool(tp.Inclusive),
	}
	params.Context = ctx

	r, err := p.client(creds).TaxRates.New(params)
	if err != nil {
		return "", errors.Wrap(err, "create tax rate")
	}
	return r.ID, nil
}

// CreateCheckoutSession implements payment.Processor.
func (p *Processor) CreateCheckoutSession(ctx context.Context, creds payment.Credentials, sp payment.SessionParams) (*payment.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(sp.SuccessURL),
		CancelURL:  stripe.String(sp.CancelURL),
		LineItems:  make([]*stripe.CheckoutSessionLineItemParams, 0, len(sp.LineItems)),
	}
	params.Context = ctx

	for _, li := range sp.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		// Stripe rejects an empty description, so it is only sent when set.
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(li.Currency.String()),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: product,
			},
		}
		if len(li.TaxRates) > 0 {
			line.TaxRates = stripe.StringSlice(li.TaxRates)
		}
		params.LineItems = append(params.LineItems, line)
	}
	for _, id := range sp.CouponIDs {
		params.Discounts = append(params.Discounts, &stripe.CheckoutSessionDiscountParams{
			Coupon: stripe.String(id),
		})
	}

	s, err := p.client(creds).CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return &payment.Session{ID: s.ID, URL: s.URL}, nil
}

// CreatePaymentIntent implements payment.Processor.
func (p *Processor) CreatePaymentIntent(ctx context.Context, creds payment.Credentials, ip payment.IntentParams) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ip.Amount),
		Currency: stripe.String(ip.Currency.String()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if ip.Description != "" {
		params.Description = stripe.String(ip.Description)
	}

	pi, err := p.client(creds).PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return &payment.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// lookupError marks "resource missing" responses with payment.ErrRemoteNotFound
// and keeps every other failure (network, auth, 5xx) unmarked.
func lookupError(op, id string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound) {
		return fmt.Errorf("%s %q: %w: %w", op, id, payment.ErrRemoteNotFound, err)
	}
	return fmt.Errorf("%s %q: %w", op, id, err)
}
