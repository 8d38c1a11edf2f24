package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// resultStatuses are the payment outcomes the processor redirects back with.
var resultStatuses = map[string]string{
	"success": "Payment successful",
	"cancel":  "Payment cancelled",
}

// render executes a page into a buffer first so template errors still
// produce a clean 500.
func render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		zctx.From(r.Context()).Error("Render page", zap.String("template", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
