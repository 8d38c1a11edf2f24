package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/checkout"
	"github.com/xenking/kart-checkout/internal/idempotency"
	"github.com/xenking/kart-checkout/internal/payment"
)

type itemView struct {
	*checkout.ItemPage
	Intent bool
}

func (h *Handler) itemPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	page, err := h.svc.GetItemPageData(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render(w, r, "item.html", itemView{ItemPage: page, Intent: page.Mode == payment.ModePaymentIntent})
}

func (h *Handler) orderPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	page, err := h.svc.GetOrderPageData(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render(w, r, "order.html", page)
}

func (h *Handler) resultPage(w http.ResponseWriter, r *http.Request) {
	status := r.PathValue("status")
	title, ok := resultStatuses[status]
	if !ok {
		notFound(w)
		return
	}
	render(w, r, "result.html", struct{ Status, Title string }{status, title})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	page, err := h.svc.GetItemPageData(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeItemPage(page))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	page, err := h.svc.GetOrderPageData(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrderPage(page))
}

func (h *Handler) buyItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	h.purchase(w, r, "buy:"+strconv.FormatInt(id, 10), func() (*checkout.Result, error) {
		return h.svc.StartItemPurchase(r.Context(), id)
	})
}

func (h *Handler) buyOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	h.purchase(w, r, "buy-order:"+strconv.FormatInt(id, 10), func() (*checkout.Result, error) {
		return h.svc.StartOrderPurchase(r.Context(), id)
	})
}

// purchase runs start and writes its result. With an Idempotency-Key and a
// configured store, a stored response for the same key and scope is
// replayed instead, and a fresh successful response is stored.
func (h *Handler) purchase(w http.ResponseWriter, r *http.Request, scope string, start func() (*checkout.Result, error)) {
	ctx := r.Context()
	key := idempotency.Key(r)
	if h.idem == nil || key == "" {
		res, err := start()
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, encodeResult(res))
		return
	}

	lg := zctx.From(ctx).With(zap.String("idempotency_key", key), zap.String("scope", scope))
	stored, found, err := h.idem.Get(ctx, scope, key)
	switch {
	case errors.Is(err, idempotency.ErrInvalidKey):
		writeServiceError(w, r, err)
		return
	case err != nil:
		lg.Warn("Idempotency lookup failed, continuing without replay", zap.Error(err))
	case found:
		lg.Debug("Replaying stored response")
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, stored)
		return
	}

	res, err := start()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	body := encodeResult(res)
	ok, err := h.idem.Put(ctx, scope, key, body)
	switch {
	case err != nil:
		lg.Warn("Store idempotent response", zap.Error(err))
	case !ok:
		// A concurrent request with the same key stored first; answer with
		// its body so every caller sees one session.
		winner, found, err := h.idem.Get(ctx, scope, key)
		if err == nil && found {
			lg.Warn("Concurrent purchase with same key, replaying stored response")
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, winner)
			return
		}
		lg.Warn("Stored response vanished after lost write", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, body)
}
