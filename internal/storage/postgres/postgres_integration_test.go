//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/tax"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkout",
				"POSTGRES_PASSWORD": "checkout",
				"POSTGRES_DB":       "checkout",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://checkout:checkout@%s:%s/checkout?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Running twice must be harmless.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func createItem(t *testing.T, name, price string, cur money.Currency) item.Item {
	t.Helper()
	it := item.Item{Name: name, Description: name + " desc", Price: decimal.RequireFromString(price), Currency: cur}
	require.NoError(t, NewItemRepository(testPool).Create(context.Background(), &it))
	require.NotZero(t, it.ID)
	return it
}

func TestItemRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(testPool)

	created := createItem(t, "Mug", "12.99", money.EUR)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mug", got.Name)
	assert.Equal(t, money.EUR, got.Currency)
	assert.True(t, decimal.RequireFromString("12.99").Equal(got.Price))

	_, err = repo.GetByID(ctx, -1)
	require.ErrorIs(t, err, item.ErrNotFound)
}

func TestItemRepository_CopyItems(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(testPool)

	n, err := repo.CopyItems(ctx, []item.Item{
		{Name: "Copied A", Price: decimal.RequireFromString("1.00"), Currency: money.USD},
		{Name: "Copied B", Price: decimal.RequireFromString("2.50"), Currency: money.EUR},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, ItemKey{Name: "Copied A", Currency: money.USD})
	assert.Contains(t, keys, ItemKey{Name: "Copied B", Currency: money.EUR})
}

func TestDiscountRepository_SetRemoteCoupon(t *testing.T) {
	ctx := context.Background()
	repo := NewDiscountRepository(testPool)

	pct := decimal.RequireFromString("12.50")
	d := discount.Discount{Name: "Spring", PercentOff: &pct}
	require.NoError(t, repo.Create(ctx, &d))
	assert.Equal(t, money.Default, d.Currency)

	ok, err := repo.SetRemoteCoupon(ctx, d.ID, "", "co_1", money.EUR)
	require.NoError(t, err)
	assert.True(t, ok)

	// A writer holding a stale previous id loses.
	ok, err = repo.SetRemoteCoupon(ctx, d.ID, "", "co_2", money.USD)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "co_1", got.RemoteCouponID)
	assert.Equal(t, money.EUR, got.Currency)
	require.NotNil(t, got.PercentOff)
	assert.True(t, pct.Equal(*got.PercentOff))
	assert.Nil(t, got.AmountOff)
}

func TestTaxRepository_SetRemoteTaxRate(t *testing.T) {
	ctx := context.Background()
	repo := NewTaxRepository(testPool)

	tx := tax.Tax{Name: "VAT", Percentage: decimal.RequireFromString("19.125"), Inclusive: true}
	require.NoError(t, repo.Create(ctx, &tx))

	ok, err := repo.SetRemoteTaxRate(ctx, tx.ID, "", "txr_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetRemoteTaxRate(ctx, tx.ID, "txr_stale", "txr_2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "txr_1", got.RemoteTaxRateID)
	assert.True(t, got.Inclusive)
	assert.True(t, decimal.RequireFromString("19.125").Equal(got.Percentage))

	_, err = repo.GetByID(ctx, -1)
	require.ErrorIs(t, err, tax.ErrNotFound)
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	amount := decimal.RequireFromString("5.00")
	d := discount.Discount{Name: "Five off", AmountOff: &amount, Currency: money.USD}
	require.NoError(t, NewDiscountRepository(testPool).Create(ctx, &d))
	tx := tax.Tax{Name: "Sales", Percentage: decimal.RequireFromString("8.875")}
	require.NoError(t, NewTaxRepository(testPool).Create(ctx, &tx))

	mug := createItem(t, "Order Mug", "10.00", money.USD)
	hat := createItem(t, "Order Hat", "5.50", money.USD)

	o := order.Order{Name: "Lunch", Discount: &d, Tax: &tx}
	require.NoError(t, repo.Create(ctx, &o))
	require.NotZero(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())

	require.NoError(t, repo.SetItem(ctx, o.ID, mug.ID, 1))
	require.NoError(t, repo.SetItem(ctx, o.ID, hat.ID, 1))
	// Re-adding updates the existing line instead of adding another.
	require.NoError(t, repo.SetItem(ctx, o.ID, mug.ID, 2))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, mug.ID, got.Lines[0].Item.ID)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	assert.Equal(t, hat.ID, got.Lines[1].Item.ID)
	assert.True(t, decimal.RequireFromString("25.50").Equal(got.Subtotal()))

	require.NotNil(t, got.Discount)
	assert.Equal(t, "Five off", got.Discount.Name)
	require.NotNil(t, got.Discount.AmountOff)
	assert.Nil(t, got.Discount.PercentOff)
	require.NotNil(t, got.Tax)
	assert.True(t, decimal.RequireFromString("8.875").Equal(got.Tax.Percentage))

	err = repo.SetItem(ctx, o.ID, mug.ID, 0)
	require.ErrorIs(t, err, order.ErrInvalidQuantity)

	err = repo.SetItem(ctx, o.ID, -1, 1)
	require.ErrorIs(t, err, item.ErrNotFound)

	err = repo.SetItem(ctx, -1, mug.ID, 1)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_Empty(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := order.Order{Name: "Empty"}
	require.NoError(t, repo.Create(ctx, &o))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Lines)
	assert.Nil(t, got.Discount)
	assert.Nil(t, got.Tax)
	assert.Equal(t, money.Default, got.Currency())

	_, err = repo.GetByID(ctx, -1)
	require.ErrorIs(t, err, order.ErrNotFound)
}
