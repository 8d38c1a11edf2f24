package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/tax"
)

const (
	getTaxByIDSQL = `SELECT id, name, percentage, inclusive, remote_tax_rate_id FROM taxes WHERE id = $1`

	createTaxSQL = `INSERT INTO taxes (name, percentage, inclusive, remote_tax_rate_id)
		VALUES ($1, $2, $3, $4) RETURNING id`

	setRemoteTaxRateSQL = `UPDATE taxes SET remote_tax_rate_id = $3
		WHERE id = $1 AND remote_tax_rate_id = $2`
)

var _ tax.Repository = (*TaxRepository)(nil)

// TaxRepository implements tax.Repository backed by PostgreSQL.
type TaxRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRepository returns a TaxRepository that uses the given pool.
func NewTaxRepository(pool *pgxpool.Pool) *TaxRepository {
	return &TaxRepository{pool: pool}
}

// GetByID returns a single tax by its identifier.
func (r *TaxRepository) GetByID(ctx context.Context, id int64) (*tax.Tax, error) {
	rows, err := r.pool.Query(ctx, getTaxByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting tax %d: %w", id, err)
	}

	t, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (tax.Tax, error) {
		var t tax.Tax
		err := row.Scan(&t.ID, &t.Name, &t.Percentage, &t.Inclusive, &t.RemoteTaxRateID)
		return t, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tax.ErrNotFound
		}
		return nil, fmt.Errorf("getting tax %d: %w", id, err)
	}
	return &t, nil
}

// Create inserts t and sets its ID.
func (r *TaxRepository) Create(ctx context.Context, t *tax.Tax) error {
	err := r.pool.QueryRow(ctx, createTaxSQL,
		t.Name, t.Percentage, t.Inclusive, t.RemoteTaxRateID,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("creating tax %q: %w", t.Name, err)
	}
	return nil
}

// SetRemoteTaxRate stores newID if the stored id still equals prevID.
func (r *TaxRepository) SetRemoteTaxRate(ctx context.Context, id int64, prevID, newID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, setRemoteTaxRateSQL, id, prevID, newID)
	if err != nil {
		return false, fmt.Errorf("setting tax rate for tax %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}
