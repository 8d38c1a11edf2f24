// Command catalog-import bulk-loads items from gzipped JSON-lines feeds.
//
// Items listed by two or more feeds under the same (name, currency) are
// treated as conflicting: they are skipped and reported instead of inserted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		capacity    uint
		batchSize   int
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "capacity", 1_000_000, "expected items per feed, sizes the bloom filters")
	flag.IntVar(&batchSize, "batch-size", 5_000, "items per COPY batch")
	flag.BoolVar(&dryRun, "dry-run", false, "report conflicts without writing to the database")
	flag.Parse()

	_ = godotenv.Load()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, capacity, batchSize, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, capacity uint, batchSize int, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz feeds in %s", dataDir)
	}
	if len(files) > maxFeeds {
		return errors.Errorf("too many feeds: %d (max %d)", len(files), maxFeeds)
	}
	sort.Strings(files)

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find keys listed by 2+ feeds.
	slog.Info("pass 2: finding conflicting items")

	conflicts, err := findConflicts(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}

	slog.Info("conflicting items found", slog.Int("count", len(conflicts)))
	for _, k := range sortedKeys(conflicts) {
		slog.Warn("conflicting item skipped",
			slog.String("name", k.Name),
			slog.String("currency", k.Currency.String()),
			slog.Any("feeds", conflicts[k]),
		)
	}

	if dryRun {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Pass 3: Insert the remaining items.
	stats, err := importItems(ctx, postgres.NewItemRepository(pool), files, conflicts, batchSize)
	if err != nil {
		return errors.Wrap(err, "import items")
	}

	slog.Info("import summary",
		slog.Int64("inserted", stats.inserted),
		slog.Int("existing", stats.existing),
		slog.Int("conflicting", stats.conflicting),
		slog.Int("duplicate", stats.duplicate),
	)

	return nil
}
