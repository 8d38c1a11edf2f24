package main

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	maxFeeds      = bits.UintSize
	progressEvery = 1_000_000
	maxLineBytes  = 1 << 20
)

// catalog is the part of the item store the import writes to.
type catalog interface {
	ListKeys(ctx context.Context) (map[postgres.ItemKey]struct{}, error)
	CopyItems(ctx context.Context, items []item.Item) (int64, error)
}

var _ catalog = (*postgres.ItemRepository)(nil)

// fileResult holds candidate keys found in a single feed during pass 2.
type fileResult struct {
	candidates map[postgres.ItemKey]uint
}

type importStats struct {
	inserted    int64
	existing    int
	conflicting int
	duplicate   int
}

func keyOf(it item.Item) postgres.ItemKey {
	return postgres.ItemKey{Name: it.Name, Currency: it.Currency}
}

func bloomKey(k postgres.ItemKey) []byte {
	return []byte(k.Name + "\x00" + k.Currency.String())
}

// parseRecord decodes one feed line. Prices may be JSON strings or numbers.
func parseRecord(line []byte) (item.Item, error) {
	var (
		it       item.Item
		currency string
		hasPrice bool
	)
	d := jx.DecodeBytes(line)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			v, err := d.Str()
			it.Name = strings.TrimSpace(v)
			return err
		case "description":
			v, err := d.Str()
			it.Description = v
			return err
		case "currency":
			v, err := d.Str()
			currency = v
			return err
		case "price":
			var raw string
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				raw = v
			case jx.Number:
				n, err := d.Num()
				if err != nil {
					return err
				}
				raw = n.String()
			default:
				return errors.Errorf("price: unexpected %s", d.Next())
			}
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			it.Price = price
			hasPrice = true
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return item.Item{}, errors.Wrap(err, "decode record")
	}

	switch {
	case it.Name == "":
		return item.Item{}, errors.New("empty name")
	case !hasPrice:
		return item.Item{}, errors.New("missing price")
	case it.Price.IsNegative():
		return item.Item{}, errors.Errorf("negative price %s", it.Price)
	case !it.Price.Equal(it.Price.Round(2)):
		return item.Item{}, errors.Errorf("price %s has more than 2 decimal places", it.Price)
	}
	it.Currency = money.ParseCurrency(currency)
	if !it.Currency.Supported() {
		return item.Item{}, errors.Errorf("unsupported currency %q", currency)
	}
	it.Price = it.Price.Round(2)
	return it, nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			count, err := streamFeed(ctx, f, func(it item.Item) {
				filter.Add(bloomKey(keyOf(it)))
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", filepath.Base(f))
			}

			slog.Info("pass 1 complete", slog.String("feed", filepath.Base(f)), slog.Uint64("items", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

// findConflicts re-streams each feed and checks keys against the OTHER feeds'
// filters. A key is conflicting when it is a candidate in two or more feeds,
// which rules out single-feed bloom false positives. The result maps each
// conflicting key to the feeds listing it.
func findConflicts(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[postgres.ItemKey][]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			candidates := make(map[postgres.ItemKey]uint)
			fileBit := uint(1) << uint(i)

			count, err := streamFeed(ctx, f, func(it item.Item) {
				k := keyOf(it)
				bk := bloomKey(k)
				for j, other := range filters {
					if j != i && other.Test(bk) {
						candidates[k] |= fileBit
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s for conflicts", filepath.Base(f))
			}

			slog.Info("pass 2 complete",
				slog.String("feed", filepath.Base(f)),
				slog.Uint64("items", count),
				slog.Int("candidates", len(candidates)),
			)
			results[i] = fileResult{candidates: candidates}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all feeds.
	merged := make(map[postgres.ItemKey]uint)
	for _, r := range results {
		for k, mask := range r.candidates {
			merged[k] |= mask
		}
	}

	conflicts := make(map[postgres.ItemKey][]string)
	for k, mask := range merged {
		if bits.OnesCount(mask) < 2 {
			continue
		}
		for i, f := range files {
			if mask&(1<<uint(i)) != 0 {
				conflicts[k] = append(conflicts[k], filepath.Base(f))
			}
		}
	}

	return conflicts, nil
}

// importItems streams the feeds once more and copies every item that is not
// conflicting, not stored yet and not already seen in this run.
func importItems(
	ctx context.Context,
	cat catalog,
	files []string,
	conflicts map[postgres.ItemKey][]string,
	batchSize int,
) (importStats, error) {
	var stats importStats
	if batchSize <= 0 {
		batchSize = 1
	}

	seen, err := cat.ListKeys(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "list existing items")
	}

	skippedConflicts := make(map[postgres.ItemKey]struct{})
	batch := make([]item.Item, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := cat.CopyItems(ctx, batch)
		if err != nil {
			return errors.Wrapf(err, "copy %d items", len(batch))
		}
		stats.inserted += n
		batch = batch[:0]
		slog.Info("write progress", slog.Int64("inserted", stats.inserted))
		return nil
	}

	existing := len(seen)
	for _, f := range files {
		var writeErr error
		_, err := streamFeed(ctx, f, func(it item.Item) {
			if writeErr != nil {
				return
			}
			k := keyOf(it)
			if _, ok := conflicts[k]; ok {
				skippedConflicts[k] = struct{}{}
				return
			}
			if _, ok := seen[k]; ok {
				stats.duplicate++
				return
			}
			seen[k] = struct{}{}
			batch = append(batch, it)
			if len(batch) >= batchSize {
				writeErr = flush()
			}
		})
		if err != nil {
			return stats, errors.Wrapf(err, "import %s", filepath.Base(f))
		}
		if writeErr != nil {
			return stats, writeErr
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	stats.conflicting = len(skippedConflicts)
	stats.existing = existing
	return stats, nil
}

// streamFeed opens a gzip-compressed JSON-lines feed and calls fn for each
// valid record. Blank lines are ignored; invalid records are logged and
// skipped. It returns the number of valid records.
func streamFeed(ctx context.Context, path string, fn func(it item.Item)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var count, line uint64
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		line++

		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		it, err := parseRecord(raw)
		if err != nil {
			slog.Debug("invalid record skipped",
				slog.String("feed", filepath.Base(path)),
				slog.Uint64("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}

		fn(it)
		count++
		if count%progressEvery == 0 {
			slog.Info("feed progress", slog.String("feed", filepath.Base(path)), slog.Uint64("items", count))
		}
	}

	if err := scanner.Err(); err != nil {
		return count, errors.Wrapf(err, "scan %s", path)
	}

	return count, nil
}

func sortedKeys(m map[postgres.ItemKey][]string) []postgres.ItemKey {
	keys := make([]postgres.ItemKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Currency < keys[j].Currency
	})
	return keys
}
