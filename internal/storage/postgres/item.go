package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

const (
	getItemByIDSQL = `SELECT id, name, description, price, currency FROM items WHERE id = $1`

	createItemSQL = `INSERT INTO items (name, description, price, currency)
		VALUES ($1, $2, $3, $4) RETURNING id`

	listItemKeysSQL = `SELECT name, currency FROM items`
)

var _ item.Repository = (*ItemRepository)(nil)

// ItemRepository implements item.Repository backed by PostgreSQL.
type ItemRepository struct {
	pool *pgxpool.Pool
}

// NewItemRepository returns an ItemRepository that uses the given pool.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// GetByID returns a single item by its identifier.
func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*item.Item, error) {
	rows, err := r.pool.Query(ctx, getItemByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting item %d: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, item.ErrNotFound
		}
		return nil, fmt.Errorf("getting item %d: %w", id, err)
	}
	return &it, nil
}

// Create inserts it and sets its ID.
func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	err := r.pool.QueryRow(ctx, createItemSQL,
		it.Name, it.Description, it.Price, it.Currency.String(),
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("creating item %q: %w", it.Name, err)
	}
	return nil
}

// CopyItems bulk-inserts items with the COPY protocol and returns the number
// of rows written. IDs are not populated.
func (r *ItemRepository) CopyItems(ctx context.Context, items []item.Item) (int64, error) {
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"items"},
		[]string{"name", "description", "price", "currency"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{it.Name, it.Description, it.Price, it.Currency.String()}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copying %d items: %w", len(items), err)
	}
	return n, nil
}

// ItemKey identifies a catalog entry by name within a currency.
type ItemKey struct {
	Name     string
	Currency money.Currency
}

// ListKeys returns the (name, currency) pair of every stored item.
func (r *ItemRepository) ListKeys(ctx context.Context) (map[ItemKey]struct{}, error) {
	rows, err := r.pool.Query(ctx, listItemKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("listing item keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[ItemKey]struct{})
	for rows.Next() {
		var name, currency string
		if err := rows.Scan(&name, &currency); err != nil {
			return nil, fmt.Errorf("scanning item key: %w", err)
		}
		keys[ItemKey{Name: name, Currency: money.Currency(currency)}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing item keys: %w", err)
	}
	return keys, nil
}

func scanItem(row pgx.CollectableRow) (item.Item, error) {
	var (
		it       item.Item
		currency string
	)
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &currency)
	it.Currency = money.Currency(currency)
	return it, err
}
