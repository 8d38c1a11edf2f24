package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/checkout"
	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/idempotency"
)

// writeServiceError maps workflow errors to HTTP responses. Details of
// unexpected errors are logged and never sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *checkout.ValidationError
	switch {
	case errors.Is(err, item.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Reason)
	case errors.Is(err, idempotency.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
