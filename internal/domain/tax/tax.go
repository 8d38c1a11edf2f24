package tax

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested tax does not exist.
var ErrNotFound = errors.New("tax not found")

// Tax is a rate applied uniformly to every line of an order.
type Tax struct {
	ID         int64
	Name       string
	Percentage decimal.Decimal
	Inclusive  bool

	// RemoteTaxRateID caches the processor-side tax rate. Empty means none yet.
	RemoteTaxRateID string
}

// Repository defines persistence operations for taxes.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Tax, error)
	Create(ctx context.Context, t *Tax) error
	// SetRemoteTaxRate stores newID only if the stored id still equals prevID.
	// It reports whether the row was updated.
	SetRemoteTaxRate(ctx context.Context, id int64, prevID, newID string) (bool, error)
}
