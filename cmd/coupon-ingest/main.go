// Command coupon-ingest loads bulk voucher batches into the coupons table.
//
// Each input is a gzip file with one code per line. Codes listed in the
// optional revocation file are skipped; it is held in a bloom filter since
// revocation lists run into the tens of millions.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	_ "github.com/joho/godotenv/autoload"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/storage/postgres"
)

const (
	bloomCapacity = 20_000_000
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 16
)

type options struct {
	databaseURL  string
	revokedFile  string
	discountType string
	value        string
	maxUses      int
	validUntil   string
	description  string
	files        []string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.revokedFile, "revoked", "", "gzip file of revoked codes to skip")
	flag.StringVar(&opts.discountType, "type", string(coupon.DiscountPercent), "discount type: percent or fixed")
	flag.StringVar(&opts.value, "value", "10", "discount value")
	flag.IntVar(&opts.maxUses, "max-uses", 1, "uses allowed per code, 0 for unlimited")
	flag.StringVar(&opts.validUntil, "valid-until", "", "expiry date (YYYY-MM-DD), empty for none")
	flag.StringVar(&opts.description, "description", "Voucher", "coupon description")
	flag.Parse()
	opts.files = flag.Args()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if len(opts.files) == 0 {
		lg.Fatal("No voucher files given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	template, err := ruleTemplate(opts)
	if err != nil {
		return err
	}

	var revoked *bloom.BloomFilter
	if opts.revokedFile != "" {
		revoked, err = loadRevoked(ctx, lg, opts.revokedFile)
		if err != nil {
			return errors.Wrap(err, "load revoked codes")
		}
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	repo := postgres.NewCouponRepository(pool)

	var stats ingestStats
	codes := make(chan string, batchSize)

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for _, path := range opts.files {
		readers.Go(func() error {
			return readVouchers(rctx, lg, path, revoked, codes, &stats)
		})
	}
	g.Go(func() error {
		defer close(codes)
		return readers.Wait()
	})
	g.Go(func() error {
		return writeCoupons(gctx, repo, template, codes, &stats)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("Ingest summary",
		zap.Int64("read", stats.read.Load()),
		zap.Int64("invalid", stats.invalid.Load()),
		zap.Int64("revoked", stats.revoked.Load()),
		zap.Int64("written", stats.written.Load()),
	)
	return nil
}

type ingestStats struct {
	read    atomic.Int64
	invalid atomic.Int64
	revoked atomic.Int64
	written atomic.Int64
}

func ruleTemplate(opts options) (coupon.Rule, error) {
	rule := coupon.Rule{
		DiscountType: coupon.DiscountType(opts.discountType),
		Description:  opts.description,
		Active:       true,
		MaxUses:      opts.maxUses,
	}
	switch rule.DiscountType {
	case coupon.DiscountPercent, coupon.DiscountFixed:
	default:
		return rule, errors.Errorf("unknown discount type %q", opts.discountType)
	}

	v, err := decimal.NewFromString(opts.value)
	if err != nil {
		return rule, errors.Wrap(err, "parse value")
	}
	if v.IsNegative() || (rule.DiscountType == coupon.DiscountPercent && v.GreaterThan(decimal.NewFromInt(100))) {
		return rule, errors.Errorf("value %s out of range", v)
	}
	rule.Value = v

	if opts.validUntil != "" {
		t, err := time.Parse(time.DateOnly, opts.validUntil)
		if err != nil {
			return rule, errors.Wrap(err, "parse valid-until")
		}
		rule.ValidUntil = &t
	}
	return rule, nil
}

func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func loadRevoked(ctx context.Context, lg *zap.Logger, path string) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var n uint64
	err := streamGzFile(ctx, path, func(line string) {
		if code := coupon.Normalize(line); code != "" {
			filter.AddString(code)
			n++
		}
	})
	if err != nil {
		return nil, err
	}
	lg.Info("Loaded revoked codes", zap.Uint64("count", n), zap.String("path", path))
	return filter, nil
}

// readVouchers streams one voucher file into codes.
func readVouchers(
	ctx context.Context,
	lg *zap.Logger,
	path string,
	revoked *bloom.BloomFilter,
	codes chan<- string,
	stats *ingestStats,
) error {
	var sendErr error
	err := streamGzFile(ctx, path, func(line string) {
		if sendErr != nil {
			return
		}
		if n := stats.read.Add(1); n%progressEvery == 0 {
			lg.Info("Ingest progress", zap.Int64("read", n))
		}

		code := coupon.Normalize(line)
		if !validCode(code) {
			stats.invalid.Add(1)
			return
		}
		if revoked != nil && revoked.TestString(code) {
			stats.revoked.Add(1)
			return
		}
		select {
		case codes <- code:
		case <-ctx.Done():
			sendErr = ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	return sendErr
}

// writeCoupons drains codes and upserts them in batches.
func writeCoupons(
	ctx context.Context,
	repo *postgres.CouponRepository,
	template coupon.Rule,
	codes <-chan string,
	stats *ingestStats,
) error {
	batch := make([]coupon.Rule, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := repo.UpsertBatch(ctx, batch); err != nil {
			return err
		}
		stats.written.Add(int64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for code := range codes {
		rule := template
		rule.Code = code
		batch = append(batch, rule)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
