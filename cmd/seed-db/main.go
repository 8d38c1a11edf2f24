package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/tax"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type itemJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
}

func main() {
	var (
		databaseURL string
		itemsFile   string
		demo        bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&itemsFile, "items-file", "", "path to items JSON file (defaults to the embedded catalog)")
	flag.BoolVar(&demo, "demo", true, "create a demo discount, tax and order")
	flag.Parse()

	_ = godotenv.Load()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("CHECKOUT_DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, itemsFile, demo); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, itemsFile string, demo bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.SeedItems
	if itemsFile != "" {
		slog.Info("reading items file", slog.String("path", itemsFile))
		if data, err = os.ReadFile(itemsFile); err != nil {
			return errors.Wrap(err, "read items file")
		}
	}

	items, err := parseItems(data)
	if err != nil {
		return errors.Wrap(err, "parse items")
	}

	itemRepo := postgres.NewItemRepository(pool)
	seeded, err := seedItems(ctx, itemRepo, items)
	if err != nil {
		return errors.Wrap(err, "seed items")
	}

	if !demo || len(seeded) == 0 {
		return nil
	}
	if err := seedDemoOrder(ctx, pool, seeded); err != nil {
		return errors.Wrap(err, "seed demo order")
	}

	return nil
}

// parseItems decodes a JSON array of items and rejects unsupported currencies.
func parseItems(data []byte) ([]item.Item, error) {
	var raw []itemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode items JSON")
	}

	items := make([]item.Item, 0, len(raw))
	for i, r := range raw {
		cur := money.ParseCurrency(r.Currency)
		if !cur.Supported() {
			return nil, errors.Errorf("item %d (%s): unsupported currency %q", i, r.Name, r.Currency)
		}
		if r.Name == "" {
			return nil, errors.Errorf("item %d: empty name", i)
		}
		items = append(items, item.Item{
			Name:        r.Name,
			Description: r.Description,
			Price:       r.Price,
			Currency:    cur,
		})
	}
	return items, nil
}

// seedItems inserts items whose (name, currency) is not stored yet and
// returns the inserted ones.
func seedItems(ctx context.Context, repo *postgres.ItemRepository, items []item.Item) ([]item.Item, error) {
	existing, err := repo.ListKeys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list existing items")
	}

	slog.Info("inserting items", slog.Int("count", len(items)), slog.Int("existing", len(existing)))

	var seeded []item.Item
	for _, it := range items {
		if _, ok := existing[postgres.ItemKey{Name: it.Name, Currency: it.Currency}]; ok {
			slog.Info("item exists, skipping", slog.String("name", it.Name), slog.String("currency", it.Currency.String()))
			continue
		}
		if err := repo.Create(ctx, &it); err != nil {
			return nil, errors.Wrapf(err, "create item %s", it.Name)
		}
		seeded = append(seeded, it)

		slog.Info("inserted item", slog.Int64("id", it.ID), slog.String("name", it.Name))
	}

	return seeded, nil
}

// seedDemoOrder creates a discount, a tax and an order holding the seeded
// items of the first item's currency.
func seedDemoOrder(ctx context.Context, pool *pgxpool.Pool, items []item.Item) error {
	percent := decimal.NewFromInt(10)
	d := &discount.Discount{Name: "Welcome 10%", PercentOff: &percent, Currency: money.Default}
	if err := postgres.NewDiscountRepository(pool).Create(ctx, d); err != nil {
		return errors.Wrap(err, "create discount")
	}
	slog.Info("created discount", slog.Int64("id", d.ID), slog.String("name", d.Name))

	t := &tax.Tax{Name: "Sales tax", Percentage: decimal.RequireFromString("8.875"), Inclusive: false}
	if err := postgres.NewTaxRepository(pool).Create(ctx, t); err != nil {
		return errors.Wrap(err, "create tax")
	}
	slog.Info("created tax", slog.Int64("id", t.ID), slog.String("name", t.Name))

	orders := postgres.NewOrderRepository(pool)
	o := &order.Order{Name: "Demo order", Discount: d, Tax: t}
	if err := orders.Create(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}

	currency := items[0].Currency
	for i, it := range items {
		if it.Currency != currency {
			continue
		}
		if err := orders.SetItem(ctx, o.ID, it.ID, i+1); err != nil {
			return errors.Wrapf(err, "add item %d", it.ID)
		}
	}

	slog.Info("created order", slog.Int64("id", o.ID), slog.String("currency", currency.String()))
	return nil
}
