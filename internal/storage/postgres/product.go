package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/product"
)

const (
	productColumns = `id, name, category, price, pricing_mode, modifiers,
		image_thumbnail, image_mobile, image_tablet, image_desktop`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY sort_order, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (id, name, category, price, pricing_mode, modifiers,
		image_thumbnail, image_mobile, image_tablet, image_desktop, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price,
			pricing_mode = EXCLUDED.pricing_mode, modifiers = EXCLUDED.modifiers,
			image_thumbnail = EXCLUDED.image_thumbnail, image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet, image_desktop = EXCLUDED.image_desktop,
			sort_order = EXCLUDED.sort_order`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole menu in display order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Snapshot, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Snapshot, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Snapshot, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or replaces a menu product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Snapshot, sortOrder int) error {
	modifiers, err := json.Marshal(p.Modifiers)
	if err != nil {
		return errors.Wrap(err, "marshal modifiers")
	}
	_, err = r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Category, p.UnitPrice.Decimal(), string(p.Mode), modifiers,
		p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop, sortOrder,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Snapshot, error) {
	var (
		p         product.Snapshot
		price     decimal.Decimal
		mode      string
		modifiers []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Category, &price, &mode, &modifiers,
		&p.Image.Thumbnail, &p.Image.Mobile, &p.Image.Tablet, &p.Image.Desktop,
	); err != nil {
		return p, err
	}

	unit, err := toMoney(price)
	if err != nil {
		return p, err
	}
	p.UnitPrice = unit
	p.Mode = product.PricingMode(mode)
	if len(modifiers) > 0 {
		if err := json.Unmarshal(modifiers, &p.Modifiers); err != nil {
			return p, errors.Wrapf(err, "decode modifiers of %q", p.ID)
		}
	}
	return p, nil
}
