package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// ErrNotFound is returned when a requested discount does not exist.
var ErrNotFound = errors.New("discount not found")

// Discount is an order-level reduction, either a percentage or a fixed amount.
// Only one of PercentOff and AmountOff is expected to be set; this is checked
// when the discount is provisioned, not when it is stored.
type Discount struct {
	ID         int64
	Name       string
	PercentOff *decimal.Decimal
	AmountOff  *decimal.Decimal
	Currency   money.Currency

	// RemoteCouponID caches the processor-side coupon. Empty means none yet.
	RemoteCouponID string
}

// Repository defines persistence operations for discounts.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Discount, error)
	Create(ctx context.Context, d *Discount) error
	// SetRemoteCoupon stores newID and currency only if the stored coupon id
	// still equals prevID. It reports whether the row was updated.
	SetRemoteCoupon(ctx context.Context, id int64, prevID, newID string, currency money.Currency) (bool, error)
}
