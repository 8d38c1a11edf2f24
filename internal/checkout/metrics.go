package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Metrics holds the checkout counters.
type Metrics struct {
	purchases     metric.Int64Counter
	remoteCreated metric.Int64Counter
}

// NewMetrics registers the checkout instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	purchases, err := meter.Int64Counter("checkout.purchases",
		metric.WithDescription("Purchase attempts by kind, payment mode and outcome"),
		metric.WithUnit("{purchase}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "purchases counter")
	}
	remoteCreated, err := meter.Int64Counter("checkout.remote_objects.created",
		metric.WithDescription("Coupons and tax rates created at the payment processor"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "remote objects counter")
	}
	return &Metrics{purchases: purchases, remoteCreated: remoteCreated}, nil
}

func (m *Metrics) purchase(ctx context.Context, kind, mode string, err error) {
	m.purchases.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("mode", mode),
		attribute.String("outcome", outcome(err)),
	))
}

func (m *Metrics) created(ctx context.Context, kind string) {
	m.remoteCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func outcome(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, item.ErrNotFound), errors.Is(err, order.ErrNotFound):
		return "not_found"
	case errors.As(err, &vErr):
		return "invalid"
	default:
		return "error"
	}
}
