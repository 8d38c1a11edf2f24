package item

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// ErrNotFound is returned when a requested item does not exist.
var ErrNotFound = errors.New("item not found")

// Item is a sellable product with a fixed price in a single currency.
type Item struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    money.Currency
}

// Repository defines persistence operations for items.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Item, error)
	Create(ctx context.Context, it *Item) error
}
