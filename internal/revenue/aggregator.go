// Package revenue is the read-only reporting path over order records. It
// never mutates an order and is only as fresh as the repository's last
// committed state.
package revenue

import (
	"context"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/order"
)

// Repository is the aggregate-query slice of the order repository.
type Repository interface {
	Aggregate(ctx context.Context, f order.AggregateFilter) (order.Aggregate, error)
	MonthlyAggregate(ctx context.Context, from time.Time) ([]order.MonthlyAggregate, error)
}

// Filter bounds a revenue query. A zero Status means delivered orders, the
// default reporting scope. Zero From/To mean unbounded.
type Filter struct {
	Status order.Status
	From   time.Time
	To     time.Time
}

type Aggregator struct {
	repo Repository
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// TotalRevenue sums total_amount over matching orders. An empty result set
// is zero totals, not an error.
func (a *Aggregator) TotalRevenue(ctx context.Context, f Filter) (order.Aggregate, error) {
	status := f.Status
	if status == "" {
		status = order.StatusDelivered
	}
	return a.repo.Aggregate(ctx, order.AggregateFilter{
		Status: status,
		From:   f.From,
		To:     f.To,
	})
}

// MonthlyRevenue groups delivered orders by calendar month over the
// trailing window, chronological ascending. yearsBack below 1 is clamped
// to 1.
func (a *Aggregator) MonthlyRevenue(ctx context.Context, yearsBack int) ([]order.MonthlyAggregate, error) {
	if yearsBack < 1 {
		yearsBack = 1
	}
	now := time.Now().UTC()
	from := time.Date(now.Year()-yearsBack, now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return a.repo.MonthlyAggregate(ctx, from)
}
