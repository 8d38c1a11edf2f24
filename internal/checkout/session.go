package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/tax"
	"github.com/xenking/kart-checkout/internal/payment"
)

// Result is what the client needs to continue with the processor: either a
// hosted session id or a payment intent client secret, plus the publishable
// key of the account that owns it.
type Result struct {
	SessionID      string
	SessionURL     string
	ClientSecret   string
	PublishableKey string
}

// RemoteProvisioner ensures processor-side coupons and tax rates exist.
type RemoteProvisioner interface {
	EnsureCoupon(ctx context.Context, d *discount.Discount, currency money.Currency) (string, error)
	EnsureTaxRate(ctx context.Context, t *tax.Tax) (string, error)
}

var _ RemoteProvisioner = (*Provisioner)(nil)

// SessionBuilder turns items and orders into processor requests.
type SessionBuilder struct {
	processor   payment.Processor
	keys        payment.Keyring
	provisioner RemoteProvisioner
	successURL  string
	cancelURL   string
}

// NewSessionBuilder creates a SessionBuilder redirecting to successURL and
// cancelURL after hosted checkout.
func NewSessionBuilder(
	processor payment.Processor,
	keys payment.Keyring,
	provisioner RemoteProvisioner,
	successURL, cancelURL string,
) *SessionBuilder {
	return &SessionBuilder{
		processor:   processor,
		keys:        keys,
		provisioner: provisioner,
		successURL:  successURL,
		cancelURL:   cancelURL,
	}
}

// ItemSession creates a hosted session for a single unit of it.
func (b *SessionBuilder) ItemSession(ctx context.Context, it *item.Item) (*Result, error) {
	creds := b.keys.ForCurrency(it.Currency.String())

	s, err := b.processor.CreateCheckoutSession(ctx, creds, payment.SessionParams{
		LineItems:  []payment.LineItem{lineItem(it, 1)},
		SuccessURL: b.successURL,
		CancelURL:  b.cancelURL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "checkout session for item %d", it.ID)
	}
	return &Result{SessionID: s.ID, SessionURL: s.URL, PublishableKey: creds.PublishableKey}, nil
}

// OrderSession creates a hosted session with one line per order line. The
// order discount becomes the session discount and the order tax is attached
// to every line.
func (b *SessionBuilder) OrderSession(ctx context.Context, o *order.Order) (*Result, error) {
	if len(o.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	currency := o.Currency()
	creds := b.keys.ForCurrency(currency.String())

	lines := make([]payment.LineItem, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = lineItem(&l.Item, l.Quantity)
	}

	var coupons []string
	if o.Discount != nil {
		id, err := b.provisioner.EnsureCoupon(ctx, o.Discount, currency)
		if err != nil {
			return nil, errors.Wrap(err, "provision discount")
		}
		coupons = []string{id}
	}

	if o.Tax != nil {
		id, err := b.provisioner.EnsureTaxRate(ctx, o.Tax)
		if err != nil {
			return nil, errors.Wrap(err, "provision tax")
		}
		for i := range lines {
			lines[i].TaxRates = []string{id}
		}
	}

	s, err := b.processor.CreateCheckoutSession(ctx, creds, payment.SessionParams{
		LineItems:  lines,
		CouponIDs:  coupons,
		SuccessURL: b.successURL,
		CancelURL:  b.cancelURL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "checkout session for order %d", o.ID)
	}
	return &Result{SessionID: s.ID, SessionURL: s.URL, PublishableKey: creds.PublishableKey}, nil
}

// ItemIntent creates a client-confirmed payment intent for one unit of it.
func (b *SessionBuilder) ItemIntent(ctx context.Context, it *item.Item) (*Result, error) {
	creds := b.keys.ForCurrency(it.Currency.String())

	pi, err := b.processor.CreatePaymentIntent(ctx, creds, payment.IntentParams{
		Amount:      money.ToMinor(it.Price),
		Currency:    it.Currency,
		Description: it.Description,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "payment intent for item %d", it.ID)
	}
	return &Result{ClientSecret: pi.ClientSecret, PublishableKey: creds.PublishableKey}, nil
}

func lineItem(it *item.Item, quantity int) payment.LineItem {
	return payment.LineItem{
		Name:        it.Name,
		Description: it.Description,
		Currency:    it.Currency,
		UnitAmount:  money.ToMinor(it.Price),
		Quantity:    int64(quantity),
	}
}
