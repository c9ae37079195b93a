package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AggregateFilter bounds an aggregate query. Zero From/To mean unbounded.
type AggregateFilter struct {
	Status Status
	From   time.Time
	To     time.Time
}

type Aggregate struct {
	TotalAmount int64 `json:"total_amount"`
	OrderCount  int64 `json:"order_count"`
}

type MonthlyAggregate struct {
	Year        int   `json:"year"`
	Month       int   `json:"month"`
	OrderCount  int64 `json:"order_count"`
	TotalAmount int64 `json:"total_amount"`
}

// Repository persists orders and answers the aggregate queries the revenue
// path runs over the same records. Implementations must serialize
// concurrent UpdateStatus calls on one order and expose at least
// read-committed isolation so aggregates never observe a half-written row.
type Repository interface {
	// Create inserts the order and its creation event atomically.
	Create(ctx context.Context, o *Order) error

	Get(ctx context.Context, id uuid.UUID) (*Order, error)

	// ListForUser returns orders where the user is buyer or seller,
	// newest first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error)

	// UpdateStatus loads the order under a row lock, applies the mutation
	// and persists whatever it changed; a status change also records a
	// status-changed event in the same transaction. An error from apply
	// aborts without writing. The returned order reflects the final row.
	UpdateStatus(ctx context.Context, id uuid.UUID, apply func(o *Order) error) (*Order, error)

	// RecordRefund marks the payment sub-record refunded.
	RecordRefund(ctx context.Context, id uuid.UUID, refundReference string) error

	Aggregate(ctx context.Context, f AggregateFilter) (Aggregate, error)

	// MonthlyAggregate groups delivered orders by calendar month from the
	// given instant, chronological ascending.
	MonthlyAggregate(ctx context.Context, from time.Time) ([]MonthlyAggregate, error)
}
