package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	writeJSON(w, status, e.Bytes())
}

// encodeResult renders a purchase result: {"id","url","publishable_key"} for
// hosted sessions or {"client_secret","publishable_key"} for intents.
func encodeResult(res *checkout.Result) []byte {
	var e jx.Encoder
	e.ObjStart()
	if res.ClientSecret != "" {
		e.FieldStart("client_secret")
		e.Str(res.ClientSecret)
	} else {
		e.FieldStart("id")
		e.Str(res.SessionID)
		if res.SessionURL != "" {
			e.FieldStart("url")
			e.Str(res.SessionURL)
		}
	}
	e.FieldStart("publishable_key")
	e.Str(res.PublishableKey)
	e.ObjEnd()
	return e.Bytes()
}

func encodeItemPage(p *checkout.ItemPage) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.Item.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Item.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Item.Description) })
		e.Field("price", func(e *jx.Encoder) { e.Str(p.Item.Price.StringFixed(2)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(p.Item.Currency.String()) })
		e.Field("publishable_key", func(e *jx.Encoder) { e.Str(p.PublishableKey) })
		e.Field("payment_mode", func(e *jx.Encoder) { e.Str(string(p.Mode)) })
	})
	return e.Bytes()
}

func encodeOrderPage(p *checkout.OrderPage) []byte {
	o := p.Order
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(o.Name) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency.String()) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(p.Subtotal.StringFixed(2)) })
		e.Field("publishable_key", func(e *jx.Encoder) { e.Str(p.PublishableKey) })
		e.Field("discount", func(e *jx.Encoder) {
			if o.Discount == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(o.Discount.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(o.Discount.Name) })
				if o.Discount.PercentOff != nil {
					e.Field("percent_off", func(e *jx.Encoder) { e.Str(o.Discount.PercentOff.String()) })
				}
				if o.Discount.AmountOff != nil {
					e.Field("amount_off", func(e *jx.Encoder) { e.Str(o.Discount.AmountOff.StringFixed(2)) })
				}
			})
		})
		e.Field("tax", func(e *jx.Encoder) {
			if o.Tax == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(o.Tax.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(o.Tax.Name) })
				e.Field("percentage", func(e *jx.Encoder) { e.Str(o.Tax.Percentage.String()) })
				e.Field("inclusive", func(e *jx.Encoder) { e.Bool(o.Tax.Inclusive) })
			})
		})
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					encodeLine(e, l)
				}
			})
		})
	})
	return e.Bytes()
}

func encodeLine(e *jx.Encoder, l order.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("item_id", func(e *jx.Encoder) { e.Int64(l.Item.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Item.Name) })
		e.Field("price", func(e *jx.Encoder) { e.Str(l.Item.Price.StringFixed(2)) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("total", func(e *jx.Encoder) { e.Str(l.Total().StringFixed(2)) })
	})
}
