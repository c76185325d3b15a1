package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/coupon"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		menuFile     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or BISTRO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BISTRO_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("BISTRO_SEED_API_KEY")
	}
	if apiKey == "" {
		lg.Fatal("API key is required: set --api-key or BISTRO_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BISTRO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, menuFile, apiKey, apiKeyPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, menuFile, apiKey, pepper string) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, lg, postgres.NewProductRepository(pool), menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}
	if err := seedCoupons(ctx, lg, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, lg, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedMenu(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, menuFile string) error {
	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	var products []product.Snapshot
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	lg.Info("Upserting products", zap.Int("count", len(products)), zap.String("path", menuFile))

	for i, p := range products {
		if !p.Mode.Valid() {
			return errors.Errorf("product %s: unknown pricing mode %q", p.ID, p.Mode)
		}
		if err := repo.Upsert(ctx, p, i); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *postgres.CouponRepository) error {
	summerEnd := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	rules := []coupon.Rule{
		{
			Code:         "WELCOME10",
			DiscountType: coupon.DiscountPercent,
			Value:        decimal.NewFromInt(10),
			Description:  "10% off your first order",
			Active:       true,
		},
		{
			Code:         "BURGER20",
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(20),
			Description:  "20.00 off any order",
			Active:       true,
			MaxUses:      500,
		},
		{
			Code:         "SUMMER15",
			DiscountType: coupon.DiscountPercent,
			Value:        decimal.NewFromInt(15),
			Description:  "Summer: 15% off",
			Active:       true,
			ValidUntil:   &summerEnd,
		},
	}

	if err := repo.UpsertBatch(ctx, rules); err != nil {
		return err
	}
	lg.Info("Upserted coupons", zap.Int("count", len(rules)))
	return nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "Kitchen display",
		Scopes:  []string{auth.ScopeOrdersWrite},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	lg.Info("Upserted API key", zap.String("id", info.ID), zap.String("name", info.Name))
	return nil
}
