package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/pkg/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores orders in Postgres and writes lifecycle events
// into the order_outbox table in the same transaction as the row change.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

const orderColumns = `id, order_number, buyer_id, seller_id, product_id, quantity,
	unit_price, total_amount, status, payment_method, payment_status,
	provider_reference, refund_reference, paid_at, shipping_address,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &o.ProductID, &o.Quantity,
		&o.UnitPrice, &o.TotalAmount, &o.Status, &o.Payment.Method, &o.Payment.Status,
		&o.Payment.ProviderReference, &o.Payment.RefundReference, &o.Payment.PaidAt,
		&o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.OrderNumber, o.BuyerID, o.SellerID, o.ProductID, o.Quantity,
		o.UnitPrice, o.TotalAmount, o.Status, o.Payment.Method, o.Payment.Status,
		o.Payment.ProviderReference, o.Payment.RefundReference, o.Payment.PaidAt,
		o.ShippingAddress, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return unavailable("insert order", err)
	}

	event := contracts.OrderCreatedEvent{
		EventID:     uuid.NewString(),
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		BuyerID:     o.BuyerID.String(),
		SellerID:    o.SellerID.String(),
		ProductID:   o.ProductID.String(),
		Quantity:    o.Quantity,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
	}
	if err := insertOutbox(ctx, tx, event.EventID, contracts.OrderCreatedType, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, unavailable("get order", err)
	}
	return o, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, unavailable("query orders", err)
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, unavailable("scan order", err)
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate orders", err)
	}
	return result, nil
}

// UpdateStatus serializes concurrent mutations of one order with a row
// lock: the second writer blocks until the first commits, then sees the
// committed status and fails transition validation instead of silently
// overwriting it.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, apply func(o *Order) error) (*Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, unavailable("lock order", err)
	}

	prev := *o
	if err := apply(o); err != nil {
		return nil, err
	}
	if o.Status == prev.Status && o.Payment == prev.Payment {
		// Nothing to write; release the lock.
		if err := tx.Commit(ctx); err != nil {
			return nil, unavailable("commit", err)
		}
		return o, nil
	}

	now := time.Now().UTC()
	o.UpdatedAt = now
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, paid_at = $4, updated_at = $5
		WHERE id = $1`,
		o.ID, o.Status, o.Payment.Status, o.Payment.PaidAt, now)
	if err != nil {
		return nil, unavailable("update order status", err)
	}

	if o.Status != prev.Status {
		event := contracts.OrderStatusChangedEvent{
			EventID:   uuid.NewString(),
			OrderID:   o.ID.String(),
			From:      string(prev.Status),
			To:        string(o.Status),
			ChangedAt: now,
		}
		if err := insertOutbox(ctx, tx, event.EventID, contracts.OrderStatusChangedType, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit", err)
	}
	return o, nil
}

func (r *PostgresRepository) RecordRefund(ctx context.Context, id uuid.UUID, refundReference string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $2, refund_reference = $3, updated_at = NOW()
		WHERE id = $1`,
		id, PaymentRefunded, refundReference)
	if err != nil {
		return unavailable("record refund", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PostgresRepository) Aggregate(ctx context.Context, f AggregateFilter) (Aggregate, error) {
	query := `
		SELECT COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM orders
		WHERE status = $1`
	args := []any{f.Status}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	var agg Aggregate
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&agg.TotalAmount, &agg.OrderCount); err != nil {
		return Aggregate{}, unavailable("aggregate orders", err)
	}
	return agg, nil
}

func (r *PostgresRepository) MonthlyAggregate(ctx context.Context, from time.Time) ([]MonthlyAggregate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT EXTRACT(YEAR FROM created_at)::int,
		       EXTRACT(MONTH FROM created_at)::int,
		       COUNT(*),
		       COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE status = $1 AND created_at >= $2
		GROUP BY 1, 2
		ORDER BY 1, 2`,
		StatusDelivered, from)
	if err != nil {
		return nil, unavailable("query monthly aggregate", err)
	}
	defer rows.Close()

	var result []MonthlyAggregate
	for rows.Next() {
		var m MonthlyAggregate
		if err := rows.Scan(&m.Year, &m.Month, &m.OrderCount, &m.TotalAmount); err != nil {
			return nil, unavailable("scan monthly aggregate", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate monthly aggregate", err)
	}
	return result, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventID, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		eventID, eventType, payload)
	if err != nil {
		return unavailable("insert outbox", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
