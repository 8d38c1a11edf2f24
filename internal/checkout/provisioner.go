package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/tax"
	"github.com/xenking/kart-checkout/internal/payment"
)

// Provisioner makes sure discounts and taxes have a counterpart at the payment
// processor, creating it on first use and caching its id on the local row.
//
// Two requests may both find no valid cached id and both create a remote
// object. The cached id is written with a compare-and-swap on the previous
// value, so only one id is kept; the other remote object is logged as
// orphaned and left in place.
type Provisioner struct {
	processor       payment.Processor
	keys            payment.Keyring
	defaultCurrency money.Currency
	discounts       discount.Repository
	taxes           tax.Repository
	metrics         *Metrics
}

// NewProvisioner creates a Provisioner. Tax rates are always provisioned on
// the account of defaultCurrency.
func NewProvisioner(
	processor payment.Processor,
	keys payment.Keyring,
	defaultCurrency money.Currency,
	discounts discount.Repository,
	taxes tax.Repository,
	metrics *Metrics,
) *Provisioner {
	return &Provisioner{
		processor:       processor,
		keys:            keys,
		defaultCurrency: defaultCurrency,
		discounts:       discounts,
		taxes:           taxes,
		metrics:         metrics,
	}
}

// EnsureCoupon returns a processor coupon id for d on the account of
// currency. A cached id is reused if the processor still knows it; otherwise
// a new one-time coupon is created and cached together with currency.
func (p *Provisioner) EnsureCoupon(ctx context.Context, d *discount.Discount, currency money.Currency) (string, error) {
	lg := zctx.From(ctx).With(zap.Int64("discount_id", d.ID), zap.Stringer("currency", currency))
	creds := p.keys.ForCurrency(currency.String())

	cached := d.RemoteCouponID
	if cached != "" {
		err := p.processor.RetrieveCoupon(ctx, creds, cached)
		if err == nil {
			return cached, nil
		}
		logLookupFailure(lg, "coupon", cached, err)
	}

	params, err := couponParams(d, currency)
	if err != nil {
		return "", err
	}

	id, err := p.processor.CreateCoupon(ctx, creds, params)
	if err != nil {
		return "", errors.Wrapf(err, "create coupon for discount %d", d.ID)
	}
	p.metrics.created(ctx, "coupon")
	lg.Info("Created coupon", zap.String("coupon_id", id))

	stored, err := p.discounts.SetRemoteCoupon(ctx, d.ID, cached, id, currency)
	if err != nil {
		return "", errors.Wrap(err, "save coupon id")
	}
	if stored {
		d.RemoteCouponID = id
		d.Currency = currency
		return id, nil
	}

	// Lost the race: prefer the id another request stored if it belongs to
	// the same account.
	current, err := p.discounts.GetByID(ctx, d.ID)
	if err != nil {
		return "", errors.Wrap(err, "reload discount")
	}
	if current.RemoteCouponID != "" && current.Currency == currency {
		lg.Warn("Coupon provisioned concurrently, keeping stored id",
			zap.String("coupon_id", current.RemoteCouponID),
			zap.String("orphaned_coupon_id", id),
		)
		*d = *current
		return current.RemoteCouponID, nil
	}
	lg.Warn("Coupon id not cached after concurrent update", zap.String("coupon_id", id))
	return id, nil
}

// EnsureTaxRate returns a processor tax rate id for t, reusing the cached id
// when the processor still knows it.
func (p *Provisioner) EnsureTaxRate(ctx context.Context, t *tax.Tax) (string, error) {
	lg := zctx.From(ctx).With(zap.Int64("tax_id", t.ID))
	creds := p.keys.ForCurrency(p.defaultCurrency.String())

	cached := t.RemoteTaxRateID
	if cached != "" {
		err := p.processor.RetrieveTaxRate(ctx, creds, cached)
		if err == nil {
			return cached, nil
		}
		logLookupFailure(lg, "tax rate", cached, err)
	}

	id, err := p.processor.CreateTaxRate(ctx, creds, payment.TaxRateParams{
		DisplayName: t.Name,
		Percentage:  t.Percentage,
		Inclusive:   t.Inclusive,
	})
	if err != nil {
		return "", errors.Wrapf(err, "create tax rate for tax %d", t.ID)
	}
	p.metrics.created(ctx, "tax_rate")
	lg.Info("Created tax rate", zap.String("tax_rate_id", id))

	stored, err := p.taxes.SetRemoteTaxRate(ctx, t.ID, cached, id)
	if err != nil {
		return "", errors.Wrap(err, "save tax rate id")
	}
	if stored {
		t.RemoteTaxRateID = id
		return id, nil
	}

	current, err := p.taxes.GetByID(ctx, t.ID)
	if err != nil {
		return "", errors.Wrap(err, "reload tax")
	}
	if current.RemoteTaxRateID != "" {
		lg.Warn("Tax rate provisioned concurrently, keeping stored id",
			zap.String("tax_rate_id", current.RemoteTaxRateID),
			zap.String("orphaned_tax_rate_id", id),
		)
		*t = *current
		return current.RemoteTaxRateID, nil
	}
	return id, nil
}

// couponParams builds creation parameters. PercentOff wins when both amounts
// are set.
func couponParams(d *discount.Discount, currency money.Currency) (payment.CouponParams, error) {
	params := payment.CouponParams{
		Name:     d.Name,
		Duration: payment.DurationOnce,
	}
	switch {
	case d.PercentOff != nil:
		params.PercentOff = d.PercentOff
	case d.AmountOff != nil:
		minor := money.ToMinor(*d.AmountOff)
		params.AmountOff = &minor
		params.Currency = currency
	default:
		return payment.CouponParams{}, ErrDiscountWithoutAmount
	}
	return params, nil
}

// logLookupFailure records why a cached id is being replaced. A missing
// object is expected after account resets; anything else may be transient
// and is still treated as "recreate".
func logLookupFailure(lg *zap.Logger, kind, id string, err error) {
	if errors.Is(err, payment.ErrRemoteNotFound) {
		lg.Info("Cached remote object missing, recreating",
			zap.String("kind", kind), zap.String("remote_id", id))
		return
	}
	lg.Warn("Remote lookup failed, recreating",
		zap.String("kind", kind), zap.String("remote_id", id), zap.Error(err))
}
