package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/payment"
)

// ItemPage is the data behind an item detail page.
type ItemPage struct {
	Item           *item.Item
	PublishableKey string
	Mode           payment.Mode
}

// OrderPage is the data behind an order detail page.
type OrderPage struct {
	Order          *order.Order
	Currency       money.Currency
	Subtotal       decimal.Decimal
	PublishableKey string
}

// Service exposes the checkout workflow to the HTTP surface.
type Service struct {
	items   item.Repository
	orders  order.Repository
	keys    payment.Keyring
	builder *SessionBuilder
	mode    payment.Mode
	tracer  trace.Tracer
	metrics *Metrics
}

// NewService creates a checkout Service. mode selects how single items are
// purchased.
func NewService(
	items item.Repository,
	orders order.Repository,
	keys payment.Keyring,
	builder *SessionBuilder,
	mode payment.Mode,
	tracer trace.Tracer,
	metrics *Metrics,
) *Service {
	return &Service{
		items:   items,
		orders:  orders,
		keys:    keys,
		builder: builder,
		mode:    mode,
		tracer:  tracer,
		metrics: metrics,
	}
}

// Mode returns the configured payment mode.
func (s *Service) Mode() payment.Mode {
	return s.mode
}

// GetItemPageData loads an item with the publishable key of its currency.
func (s *Service) GetItemPageData(ctx context.Context, id int64) (_ *ItemPage, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.GetItemPageData",
		trace.WithAttributes(attribute.Int64("item.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load item")
	}
	return &ItemPage{
		Item:           it,
		PublishableKey: s.keys.ForCurrency(it.Currency.String()).PublishableKey,
		Mode:           s.mode,
	}, nil
}

// StartItemPurchase creates a hosted session or a payment intent for one unit
// of the item, depending on the configured mode.
func (s *Service) StartItemPurchase(ctx context.Context, id int64) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.StartItemPurchase",
		trace.WithAttributes(attribute.Int64("item.id", id), attribute.String("payment.mode", string(s.mode))),
	)
	defer func() {
		s.metrics.purchase(ctx, "item", string(s.mode), rerr)
		endSpan(span, rerr)
	}()

	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load item")
	}
	if s.mode == payment.ModePaymentIntent {
		return s.builder.ItemIntent(ctx, it)
	}
	return s.builder.ItemSession(ctx, it)
}

// GetOrderPageData loads an order with its lines, derived totals and the
// publishable key of its currency.
func (s *Service) GetOrderPageData(ctx context.Context, id int64) (_ *OrderPage, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.GetOrderPageData",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer func() { endSpan(span, rerr) }()

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	span.SetAttributes(attribute.Int("order.lines", len(o.Lines)))
	currency := o.Currency()
	return &OrderPage{
		Order:          o,
		Currency:       currency,
		Subtotal:       o.Subtotal(),
		PublishableKey: s.keys.ForCurrency(currency.String()).PublishableKey,
	}, nil
}

// StartOrderPurchase creates a hosted session for the whole order. Orders
// always use hosted checkout regardless of the configured mode.
func (s *Service) StartOrderPurchase(ctx context.Context, id int64) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.StartOrderPurchase",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer func() {
		s.metrics.purchase(ctx, "order", string(payment.ModeCheckoutSession), rerr)
		endSpan(span, rerr)
	}()

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	span.SetAttributes(attribute.Int("order.lines", len(o.Lines)))
	return s.builder.OrderSession(ctx, o)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
