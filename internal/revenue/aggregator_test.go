package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRepo struct {
	lastFilter order.AggregateFilter
	lastFrom   time.Time
	aggregate  order.Aggregate
	monthly    []order.MonthlyAggregate
	err        error
}

func (r *recordingRepo) Aggregate(ctx context.Context, f order.AggregateFilter) (order.Aggregate, error) {
	r.lastFilter = f
	return r.aggregate, r.err
}

func (r *recordingRepo) MonthlyAggregate(ctx context.Context, from time.Time) ([]order.MonthlyAggregate, error) {
	r.lastFrom = from
	return r.monthly, r.err
}

func TestTotalRevenueDefaultsToDelivered(t *testing.T) {
	repo := &recordingRepo{aggregate: order.Aggregate{TotalAmount: 1200, OrderCount: 4}}
	agg := NewAggregator(repo)

	got, err := agg.TotalRevenue(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, repo.lastFilter.Status)
	assert.Equal(t, int64(1200), got.TotalAmount)
	assert.Equal(t, int64(4), got.OrderCount)
}

func TestTotalRevenuePassesExplicitFilter(t *testing.T) {
	repo := &recordingRepo{}
	agg := NewAggregator(repo)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := agg.TotalRevenue(context.Background(), Filter{
		Status: order.StatusCancelled,
		From:   from,
		To:     to,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, repo.lastFilter.Status)
	assert.Equal(t, from, repo.lastFilter.From)
	assert.Equal(t, to, repo.lastFilter.To)
}

func TestTotalRevenueEmptyIsZero(t *testing.T) {
	repo := &recordingRepo{}
	agg := NewAggregator(repo)

	got, err := agg.TotalRevenue(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Zero(t, got.TotalAmount)
	assert.Zero(t, got.OrderCount)
}

func TestMonthlyRevenueWindow(t *testing.T) {
	repo := &recordingRepo{monthly: []order.MonthlyAggregate{
		{Year: 2025, Month: 1, OrderCount: 2, TotalAmount: 400},
		{Year: 2025, Month: 2, OrderCount: 1, TotalAmount: 150},
	}}
	agg := NewAggregator(repo)

	got, err := agg.MonthlyRevenue(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	now := time.Now().UTC()
	want := time.Date(now.Year()-2, now.Month(), 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, repo.lastFrom, "window starts at the first of the month")
	assert.Less(t, got[0].Month, got[1].Month, "chronological ascending")
}

func TestMonthlyRevenueClampsYearsBack(t *testing.T) {
	repo := &recordingRepo{}
	agg := NewAggregator(repo)

	_, err := agg.MonthlyRevenue(context.Background(), 0)
	require.NoError(t, err)

	now := time.Now().UTC()
	want := time.Date(now.Year()-1, now.Month(), 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, repo.lastFrom)
}

func TestRepositoryErrorPropagates(t *testing.T) {
	repo := &recordingRepo{err: order.ErrUnavailable}
	agg := NewAggregator(repo)

	_, err := agg.TotalRevenue(context.Background(), Filter{})
	require.ErrorIs(t, err, order.ErrUnavailable)

	_, err = agg.MonthlyRevenue(context.Background(), 1)
	require.ErrorIs(t, err, order.ErrUnavailable)
}
