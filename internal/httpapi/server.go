package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/directory"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/order"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/payment"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/revenue"
	"github.com/mohitraj1509/kishan-unati-project-sub000/pkg/metrics"

	"github.com/google/uuid"
)

type Server struct {
	orderSvc   *order.Service
	revenue    *revenue.Aggregator
	adminToken string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	mux        *http.ServeMux
}

func NewServer(orderSvc *order.Service, agg *revenue.Aggregator, adminToken string, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		orderSvc:   orderSvc,
		revenue:    agg,
		adminToken: adminToken,
		logger:     logger,
		metrics:    m,
		mux:        http.NewServeMux(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /orders", s.instrument("create_order", s.createOrder))
	s.mux.HandleFunc("GET /orders", s.instrument("list_orders", s.listOrders))
	s.mux.HandleFunc("GET /orders/{orderID}", s.instrument("get_order", s.getOrder))
	s.mux.HandleFunc("PUT /orders/{orderID}/status", s.instrument("update_status", s.updateStatus))
	s.mux.HandleFunc("GET /admin/revenue", s.instrument("admin_revenue", s.adminRevenue))
	s.mux.HandleFunc("GET /healthz", s.healthz)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// HandleFunc lets the app attach extra routes (the websocket endpoint).
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPLatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	buyerID, err := s.userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var req struct {
		ProductID       uuid.UUID      `json:"product_id"`
		Quantity        int            `json:"quantity"`
		PaymentMethod   payment.Method `json:"payment_method"`
		ShippingAddress string         `json:"shipping_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	o, err := s.orderSvc.Create(r.Context(), order.CreateRequest{
		BuyerID:         buyerID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		Method:          req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid order id")
		return
	}

	admin := s.isAdmin(r)
	actorID, err := s.userIDFromRequest(r)
	if err != nil && !admin {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var req struct {
		Status order.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	o, err := s.orderSvc.UpdateStatus(r.Context(), orderID, actorID, req.Status, admin)
	if err != nil {
		if errors.Is(err, order.ErrRefundPending) {
			// Status committed, refund not yet confirmed. The caller
			// retries the same call to re-drive the refund.
			writeJSON(w, http.StatusAccepted, map[string]any{
				"order":          o,
				"refund_pending": true,
			})
			return
		}
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	orders, err := s.orderSvc.ListForUser(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid order id")
		return
	}

	admin := s.isAdmin(r)
	actorID, err := s.userIDFromRequest(r)
	if err != nil && !admin {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	o, err := s.orderSvc.Get(r.Context(), orderID, actorID, admin)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (s *Server) adminRevenue(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "administrative capability required")
		return
	}

	total, err := s.revenue.TotalRevenue(r.Context(), revenue.Filter{})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"total_amount": total.TotalAmount,
		"order_count":  total.OrderCount,
	}

	if raw := r.URL.Query().Get("years"); raw != "" {
		years, err := strconv.Atoi(raw)
		if err != nil || years < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "years must be a positive integer")
			return
		}
		monthly, err := s.revenue.MonthlyRevenue(r.Context(), years)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resp["monthly"] = monthly
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	value := r.Header.Get("X-User-ID")
	if value == "" {
		return uuid.Nil, errors.New("missing X-User-ID header")
	}
	return uuid.Parse(value)
}

func (s *Server) isAdmin(r *http.Request) bool {
	if s.adminToken == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, directory.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, order.ErrInvalidQuantity), errors.Is(err, order.ErrSelfPurchase):
		writeError(w, http.StatusBadRequest, "invalid_operation", err.Error())
	case errors.Is(err, payment.ErrUnsupportedMethod):
		writeError(w, http.StatusBadRequest, "unsupported_method", err.Error())
	case errors.Is(err, order.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, "payment_failed", err.Error())
	case errors.Is(err, order.ErrPaymentTimeout):
		writeError(w, http.StatusGatewayTimeout, "payment_timeout", err.Error())
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, order.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, order.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage unavailable, retry with backoff")
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"kind": kind, "message": msg},
	})
}
