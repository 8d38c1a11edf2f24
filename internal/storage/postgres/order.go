package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/tax"
)

const (
	getOrderSQL = `SELECT o.id, o.name, o.created_at,
			d.id, d.name, d.percent_off, d.amount_off, d.currency, d.remote_coupon_id,
			t.id, t.name, t.percentage, t.inclusive, t.remote_tax_rate_id
		FROM orders o
		LEFT JOIN discounts d ON d.id = o.discount_id
		LEFT JOIN taxes t ON t.id = o.tax_id
		WHERE o.id = $1`

	getOrderLinesSQL = `SELECT oi.id, oi.quantity, i.id, i.name, i.description, i.price, i.currency
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	createOrderSQL = `INSERT INTO orders (name, discount_id, tax_id)
		VALUES ($1, $2, $3) RETURNING id, created_at`

	upsertOrderItemSQL = `INSERT INTO order_items (order_id, item_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, item_id) DO UPDATE SET quantity = EXCLUDED.quantity`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID loads the order header, its discount and tax, and its lines in
// insertion order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	o, err := r.getHeader(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %d: %w", id, err)
	}
	lines, err := pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("getting lines of order %d: %w", id, err)
	}
	o.Lines = lines

	return o, nil
}

func (r *OrderRepository) getHeader(ctx context.Context, id int64) (*order.Order, error) {
	var (
		o order.Order

		discountID                *int64
		discountName, discountCur *string
		discountCoupon            *string
		percentOff, amountOff     decimal.NullDecimal
		taxID                     *int64
		taxName, taxRemote        *string
		taxPercentage             decimal.NullDecimal
		taxInclusive              *bool
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.Name, &o.CreatedAt,
		&discountID, &discountName, &percentOff, &amountOff, &discountCur, &discountCoupon,
		&taxID, &taxName, &taxPercentage, &taxInclusive, &taxRemote,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	if discountID != nil {
		o.Discount = &discount.Discount{
			ID:             *discountID,
			Name:           deref(discountName),
			PercentOff:     decimalPtr(percentOff),
			AmountOff:      decimalPtr(amountOff),
			Currency:       money.Currency(deref(discountCur)),
			RemoteCouponID: deref(discountCoupon),
		}
	}
	if taxID != nil {
		o.Tax = &tax.Tax{
			ID:              *taxID,
			Name:            deref(taxName),
			Percentage:      taxPercentage.Decimal,
			Inclusive:       taxInclusive != nil && *taxInclusive,
			RemoteTaxRateID: deref(taxRemote),
		}
	}
	return &o, nil
}

// Create inserts the order header and sets its ID and creation time. Lines
// are added with SetItem.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	var discountID, taxID *int64
	if o.Discount != nil {
		discountID = &o.Discount.ID
	}
	if o.Tax != nil {
		taxID = &o.Tax.ID
	}

	err := r.pool.QueryRow(ctx, createOrderSQL, o.Name, discountID, taxID).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Name, err)
	}
	return nil
}

// SetItem adds itemID to the order, or replaces the quantity when the item is
// already on it.
func (r *OrderRepository) SetItem(ctx context.Context, orderID, itemID int64, quantity int) error {
	if quantity < 1 {
		return order.ErrInvalidQuantity
	}

	_, err := r.pool.Exec(ctx, upsertOrderItemSQL, orderID, itemID, quantity)
	if err != nil {
		switch code, constraint := pgErrorCode(err); {
		case code == codeForeignKeyViolation && strings.Contains(constraint, "order_id"):
			return order.ErrNotFound
		case code == codeForeignKeyViolation:
			return item.ErrNotFound
		case code == codeCheckViolation:
			return order.ErrInvalidQuantity
		}
		return fmt.Errorf("setting item %d on order %d: %w", itemID, orderID, err)
	}
	return nil
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l        order.Line
		currency string
	)
	err := row.Scan(
		&l.ID, &l.Quantity,
		&l.Item.ID, &l.Item.Name, &l.Item.Description, &l.Item.Price, &currency,
	)
	l.Item.Currency = money.Currency(currency)
	return l, err
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
