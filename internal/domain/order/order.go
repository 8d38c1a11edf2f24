package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/tax"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidQuantity is returned when a line quantity is below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Order groups line items with an optional discount and tax.
type Order struct {
	ID        int64
	Name      string
	Discount  *discount.Discount
	Tax       *tax.Tax
	CreatedAt time.Time

	// Lines are kept in insertion order.
	Lines []Line
}

// Line is one (item, quantity) pairing within an order. An item appears at
// most once per order.
type Line struct {
	ID       int64
	Item     item.Item
	Quantity int
}

// Total returns unit price × quantity.
func (l Line) Total() decimal.Decimal {
	return l.Item.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Currency returns the currency of the first line, or money.Default for an
// order without lines.
func (o *Order) Currency() money.Currency {
	if len(o.Lines) == 0 {
		return money.Default
	}
	return o.Lines[0].Item.Currency
}

// Subtotal returns the exact sum of all line totals.
func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.New(0, -2)
	for _, l := range o.Lines {
		total = total.Add(l.Total())
	}
	return total
}

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	// GetByID loads the order with its lines, discount and tax.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// Create stores the order header. Discount and Tax are referenced by ID.
	Create(ctx context.Context, o *Order) error
	// SetItem adds itemID to the order or updates the quantity of the
	// existing line for it.
	SetItem(ctx context.Context, orderID, itemID int64, quantity int) error
}
