// Package handler serves the storefront pages and the purchase endpoints.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xenking/kart-checkout/internal/checkout"
	"github.com/xenking/kart-checkout/internal/idempotency"
	"github.com/xenking/kart-checkout/internal/payment"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Checkout is the workflow behind the HTTP surface.
type Checkout interface {
	Mode() payment.Mode
	GetItemPageData(ctx context.Context, id int64) (*checkout.ItemPage, error)
	StartItemPurchase(ctx context.Context, id int64) (*checkout.Result, error)
	GetOrderPageData(ctx context.Context, id int64) (*checkout.OrderPage, error)
	StartOrderPurchase(ctx context.Context, id int64) (*checkout.Result, error)
}

var _ Checkout = (*checkout.Service)(nil)

// Options configures optional behaviour of the Handler.
type Options struct {
	// Idempotency enables Idempotency-Key replay on buy endpoints when set.
	Idempotency idempotency.Store
	// BuyLimit wraps the buy endpoints, typically a rate limiter.
	BuyLimit httpmiddleware.Middleware
}

// Handler serves the checkout routes.
type Handler struct {
	svc      Checkout
	idem     idempotency.Store
	buyLimit httpmiddleware.Middleware
}

// New creates a Handler.
func New(svc Checkout, opts Options) *Handler {
	buyLimit := opts.BuyLimit
	if buyLimit == nil {
		buyLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{svc: svc, idem: opts.Idempotency, buyLimit: buyLimit}
}

// Register adds the checkout routes to mux. Every route also matches with a
// trailing slash.
func (h *Handler) Register(mux *http.ServeMux) {
	h.handle(mux, "GET /item/{id}", http.HandlerFunc(h.itemPage))
	h.handle(mux, "GET /order/{id}", http.HandlerFunc(h.orderPage))
	h.handle(mux, "GET /payments/result/{status}", http.HandlerFunc(h.resultPage))

	h.handle(mux, "GET /buy/{id}", h.buyLimit(http.HandlerFunc(h.buyItem)))
	h.handle(mux, "GET /buy-order/{id}", h.buyLimit(http.HandlerFunc(h.buyOrder)))

	h.handle(mux, "GET /api/items/{id}", http.HandlerFunc(h.getItem))
	h.handle(mux, "GET /api/orders/{id}", http.HandlerFunc(h.getOrder))
}

func (h *Handler) handle(mux *http.ServeMux, pattern string, handler http.Handler) {
	mux.Handle(pattern, httpmiddleware.Route(pattern, handler))
	mux.Handle(pattern+"/{$}", httpmiddleware.Route(pattern, handler))
}

// pathID parses the {id} wildcard. Anything but a plain decimal number is
// reported as not found.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 63)
	if err != nil {
		return 0, false
	}
	return int64(id), true
}
