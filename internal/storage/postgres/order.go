package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/reward"
)

const (
	orderColumns = `id, number, business_date::text, client_order_id, customer_id, guest_name, guest_phone,
		lines, delivery_option, address, subtotal, discount, delivery_fee, total, coupon_code, reward,
		status, payment_status, payment, history, created_at, updated_at, paid_at`

	createOrderSQL = `INSERT INTO orders (id, number, business_date, client_order_id, customer_id,
		guest_name, guest_phone, lines, delivery_option, address, subtotal, discount, delivery_fee,
		total, coupon_code, reward, status, payment_status, payment, history, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		$19, $20, $21, $22)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByClientIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE client_order_id = $1`

	// atomicUpdateOrderSQL is the compare-and-set used for every status and
	// payment change. Empty or NULL patch values leave the column unchanged.
	atomicUpdateOrderSQL = `UPDATE orders SET
		status = COALESCE(NULLIF($4::text, ''), status),
		payment_status = COALESCE(NULLIF($5::text, ''), payment_status),
		payment = COALESCE($6::jsonb, payment),
		paid_at = COALESCE($7::timestamptz, paid_at),
		history = history || COALESCE($8::jsonb, '[]'::jsonb),
		updated_at = COALESCE($9::timestamptz, updated_at)
		WHERE id = $1 AND status = $2 AND ($3::text = '' OR payment_status = $3::text)`

	clientOrderIDConstraint = "orders_client_order_id_key"
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

// Create persists a new order. Lines, payment details and history are
// serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal order lines")
	}
	payment, err := json.Marshal(o.Payment)
	if err != nil {
		return errors.Wrap(err, "marshal payment details")
	}
	history := o.History
	if history == nil {
		history = []order.StatusChange{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return errors.Wrap(err, "marshal status history")
	}

	var guestName, guestPhone string
	if o.Guest != nil {
		guestName, guestPhone = o.Guest.Name, o.Guest.Phone
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.BusinessDate, o.ClientOrderID, o.CustomerID,
		guestName, guestPhone, lines, string(o.DeliveryOption), o.Address,
		o.Subtotal.Decimal(), o.Discount.Decimal(), o.DeliveryFee.Decimal(), o.Total.Decimal(),
		o.CouponCode, string(o.Reward), string(o.Status), string(o.PaymentStatus),
		payment, historyJSON, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, clientOrderIDConstraint) {
			return order.ErrDuplicateClientOrderID
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByID returns an order by its id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByClientOrderID returns an order by the id the client generated for it.
func (r *OrderRepository) GetByClientOrderID(ctx context.Context, clientOrderID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByClientIDSQL, clientOrderID)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", arg)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", arg)
	}
	return o, nil
}

// AtomicUpdate applies patch in a single conditional UPDATE.
func (r *OrderRepository) AtomicUpdate(ctx context.Context, id string, expect order.Expectation, patch order.Patch) (bool, error) {
	var payment, change []byte
	if patch.Payment != nil {
		b, err := json.Marshal(patch.Payment)
		if err != nil {
			return false, errors.Wrap(err, "marshal payment details")
		}
		payment = b
	}
	if patch.Change != nil {
		b, err := json.Marshal([]order.StatusChange{*patch.Change})
		if err != nil {
			return false, errors.Wrap(err, "marshal status change")
		}
		change = b
	}
	var updatedAt *time.Time
	if !patch.UpdatedAt.IsZero() {
		updatedAt = &patch.UpdatedAt
	}

	tag, err := r.pool.Exec(ctx, atomicUpdateOrderSQL,
		id, string(expect.Status), string(expect.PaymentStatus),
		string(patch.Status), string(patch.PaymentStatus),
		payment, patch.PaidAt, change, updatedAt,
	)
	if err != nil {
		return false, errors.Wrapf(err, "update order %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                                    order.Order
		guestName, guestPhone                string
		lines, payment, history              []byte
		deliveryOption, rewardKind           string
		status, paymentStatus                string
		subtotal, discount, deliveryFee, tot decimal.Decimal
	)
	if err := row.Scan(
		&o.ID, &o.Number, &o.BusinessDate, &o.ClientOrderID, &o.CustomerID, &guestName, &guestPhone,
		&lines, &deliveryOption, &o.Address, &subtotal, &discount, &deliveryFee, &tot,
		&o.CouponCode, &rewardKind, &status, &paymentStatus, &payment, &history,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	); err != nil {
		return nil, err
	}

	if guestName != "" || guestPhone != "" {
		o.Guest = &order.Guest{Name: guestName, Phone: guestPhone}
	}
	o.DeliveryOption = pricing.DeliveryOption(deliveryOption)
	o.Reward = reward.Kind(rewardKind)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)

	var err error
	if o.Subtotal, err = toMoney(subtotal); err != nil {
		return nil, err
	}
	if o.Discount, err = toMoney(discount); err != nil {
		return nil, err
	}
	if o.DeliveryFee, err = toMoney(deliveryFee); err != nil {
		return nil, err
	}
	if o.Total, err = toMoney(tot); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, errors.Wrap(err, "decode order lines")
	}
	if err := json.Unmarshal(payment, &o.Payment); err != nil {
		return nil, errors.Wrap(err, "decode payment details")
	}
	if err := json.Unmarshal(history, &o.History); err != nil {
		return nil, errors.Wrap(err, "decode status history")
	}
	return &o, nil
}
