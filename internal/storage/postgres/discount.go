package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

const (
	getDiscountByIDSQL = `SELECT id, name, percent_off, amount_off, currency, remote_coupon_id
		FROM discounts WHERE id = $1`

	createDiscountSQL = `INSERT INTO discounts (name, percent_off, amount_off, currency, remote_coupon_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	// The previous id guards against overwriting a coupon stored by a
	// concurrent request.
	setRemoteCouponSQL = `UPDATE discounts SET remote_coupon_id = $3, currency = $4
		WHERE id = $1 AND remote_coupon_id = $2`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// GetByID returns a single discount by its identifier.
func (r *DiscountRepository) GetByID(ctx context.Context, id int64) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %d: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %d: %w", id, err)
	}
	return &d, nil
}

// Create inserts d and sets its ID.
func (r *DiscountRepository) Create(ctx context.Context, d *discount.Discount) error {
	currency := d.Currency
	if currency == "" {
		currency = money.Default
	}
	err := r.pool.QueryRow(ctx, createDiscountSQL,
		d.Name, nullDecimal(d.PercentOff), nullDecimal(d.AmountOff), currency.String(), d.RemoteCouponID,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("creating discount %q: %w", d.Name, err)
	}
	d.Currency = currency
	return nil
}

// SetRemoteCoupon stores newID and currency if the stored id still equals
// prevID.
func (r *DiscountRepository) SetRemoteCoupon(ctx context.Context, id int64, prevID, newID string, currency money.Currency) (bool, error) {
	tag, err := r.pool.Exec(ctx, setRemoteCouponSQL, id, prevID, newID, currency.String())
	if err != nil {
		return false, fmt.Errorf("setting coupon for discount %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d                     discount.Discount
		percentOff, amountOff decimal.NullDecimal
		currency              string
	)
	err := row.Scan(&d.ID, &d.Name, &percentOff, &amountOff, &currency, &d.RemoteCouponID)
	d.PercentOff = decimalPtr(percentOff)
	d.AmountOff = decimalPtr(amountOff)
	d.Currency = money.Currency(currency)
	return d, err
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
