package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/directory"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/order"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/payment"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/revenue"
	"github.com/mohitraj1509/kishan-unati-project-sub000/pkg/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[uuid.UUID]*order.Order)}
}

func (r *memRepo) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *memRepo) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []order.Order
	for _, o := range r.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, apply func(o *order.Order) error) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *stored
	if err := apply(&cp); err != nil {
		return nil, err
	}
	r.orders[id] = &cp
	out := cp
	return &out, nil
}

func (r *memRepo) RecordRefund(ctx context.Context, id uuid.UUID, refundReference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Payment.Status = order.PaymentRefunded
	o.Payment.RefundReference = refundReference
	return nil
}

func (r *memRepo) Aggregate(ctx context.Context, f order.AggregateFilter) (order.Aggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var agg order.Aggregate
	for _, o := range r.orders {
		if o.Status == f.Status {
			agg.TotalAmount += o.TotalAmount
			agg.OrderCount++
		}
	}
	return agg, nil
}

func (r *memRepo) MonthlyAggregate(ctx context.Context, from time.Time) ([]order.MonthlyAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var agg order.MonthlyAggregate
	for _, o := range r.orders {
		if o.Status == order.StatusDelivered {
			agg.Year = o.CreatedAt.Year()
			agg.Month = int(o.CreatedAt.Month())
			agg.OrderCount++
			agg.TotalAmount += o.TotalAmount
		}
	}
	if agg.OrderCount == 0 {
		return nil, nil
	}
	return []order.MonthlyAggregate{agg}, nil
}

type staticDirectory struct {
	products map[uuid.UUID]directory.Product
}

func (d *staticDirectory) ResolveProduct(ctx context.Context, id uuid.UUID) (directory.Product, error) {
	p, ok := d.products[id]
	if !ok {
		return directory.Product{}, directory.ErrProductNotFound
	}
	return p, nil
}

const adminToken = "test-admin-token"

type testEnv struct {
	server *Server
	repo   *memRepo

	buyerID   uuid.UUID
	sellerID  uuid.UUID
	productID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:      newMemRepo(),
		buyerID:   uuid.New(),
		sellerID:  uuid.New(),
		productID: uuid.New(),
	}

	dir := &staticDirectory{products: map[uuid.UUID]directory.Product{
		env.productID: {ID: env.productID, SellerID: env.sellerID, UnitPrice: 100, Listed: true},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	gateway := payment.NewDefaultGateway(logger)
	svc := order.NewService(env.repo, gateway, dir, time.Second, logger, m)
	agg := revenue.NewAggregator(env.repo)

	env.server = NewServer(svc, agg, adminToken, logger, m)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	return w
}

func (env *testEnv) createOrder(t *testing.T) order.Order {
	t.Helper()
	w := env.do(t, http.MethodPost, "/orders", env.buyerID.String(), map[string]any{
		"product_id":       env.productID,
		"quantity":         2,
		"payment_method":   "card",
		"shipping_address": "Village Rampur, Dist. Sitapur, UP",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var o order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	return o
}

func TestCreateOrderEndpoint(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	assert.Equal(t, int64(200), o.TotalAmount)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, order.PaymentCompleted, o.Payment.Status)
	assert.Equal(t, env.sellerID, o.SellerID)
	assert.Regexp(t, `^ORD-\d{6}-[A-Z0-9]{6}$`, o.OrderNumber)
}

func TestCreateOrderMissingUserHeader(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/orders", "", map[string]any{
		"product_id": env.productID, "quantity": 1, "payment_method": "card",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/orders", env.buyerID.String(), map[string]any{
		"product_id": uuid.New(), "quantity": 1, "payment_method": "card",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestCreateOrderSelfPurchase(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/orders", env.sellerID.String(), map[string]any{
		"product_id": env.productID, "quantity": 1, "payment_method": "card",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_operation")
}

func TestCreateOrderUnsupportedMethod(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/orders", env.buyerID.String(), map[string]any{
		"product_id": env.productID, "quantity": 1, "payment_method": "cheque",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported_method")
}

func TestUpdateStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	w := env.do(t, http.MethodPut, "/orders/"+o.ID.String()+"/status", env.sellerID.String(),
		map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, order.StatusProcessing, updated.Status)
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	w := env.do(t, http.MethodPut, "/orders/"+o.ID.String()+"/status", env.sellerID.String(),
		map[string]string{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_transition")
}

func TestUpdateStatusStranger(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	w := env.do(t, http.MethodPut, "/orders/"+o.ID.String()+"/status", uuid.NewString(),
		map[string]string{"status": "processing"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateStatusMissingOrder(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPut, "/orders/"+uuid.NewString()+"/status", env.buyerID.String(),
		map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelOrderRefundsPayment(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	w := env.do(t, http.MethodPut, "/orders/"+o.ID.String()+"/status", env.buyerID.String(),
		map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, order.StatusCancelled, updated.Status)
	assert.Equal(t, order.PaymentRefunded, updated.Payment.Status)
}

func TestListOrdersEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t)
	env.createOrder(t)

	w := env.do(t, http.MethodGet, "/orders", env.buyerID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []order.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 2)
}

func TestGetOrderScoping(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	w := env.do(t, http.MethodGet, "/orders/"+o.ID.String(), env.buyerID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/orders/"+o.ID.String(), uuid.NewString(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRevenueRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/admin/revenue", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/revenue", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRevenueTotals(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	// Walk the order to delivered so it counts as revenue.
	for _, next := range []string{"processing", "shipped", "delivered"} {
		w := env.do(t, http.MethodPut, "/orders/"+o.ID.String()+"/status", env.sellerID.String(),
			map[string]string{"status": next})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/revenue?years=1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		TotalAmount int64                    `json:"total_amount"`
		OrderCount  int64                    `json:"order_count"`
		Monthly     []order.MonthlyAggregate `json:"monthly"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(200), resp.TotalAmount)
	assert.Equal(t, int64(1), resp.OrderCount)
	require.Len(t, resp.Monthly, 1)
	assert.Equal(t, int64(200), resp.Monthly[0].TotalAmount)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
