package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/directory"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/payment"
	"github.com/mohitraj1509/kishan-unati-project-sub000/pkg/metrics"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrSelfPurchase      = errors.New("cannot buy your own product")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrPaymentTimeout    = errors.New("payment gateway timed out")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRefundPending     = errors.New("refund pending")
	ErrNotParticipant    = errors.New("actor is not a party to the order")
	ErrUnavailable       = errors.New("order storage unavailable")
)

// Gateway is the slice of the payment gateway the order service uses.
type Gateway interface {
	Charge(ctx context.Context, method payment.Method, req payment.ChargeRequest) (payment.Outcome, error)
	Refund(ctx context.Context, method payment.Method, req payment.RefundRequest) (payment.RefundOutcome, error)
}

// Service orchestrates the order lifecycle: it validates purchase requests,
// charges through the gateway, persists orders and applies status
// transitions. It holds no mutable state between calls; everything lives in
// the repository.
type Service struct {
	repo           Repository
	gateway        Gateway
	products       directory.ProductDirectory
	paymentTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

func NewService(repo Repository, gateway Gateway, products directory.ProductDirectory, paymentTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:           repo,
		gateway:        gateway,
		products:       products,
		paymentTimeout: paymentTimeout,
		logger:         logger,
		metrics:        m,
	}
}

// CreateRequest is a purchase attempt by a buyer.
type CreateRequest struct {
	BuyerID         uuid.UUID
	ProductID       uuid.UUID
	Quantity        int
	Method          payment.Method
	ShippingAddress string
}

// Create charges the buyer and persists the order. The charge is synchronous
// and bounded by the payment timeout; on decline or timeout no order row is
// written, so the whole call is safe to retry.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: %q", payment.ErrUnsupportedMethod, req.Method)
	}

	product, err := s.products.ResolveProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, directory.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve product: %w", err)
	}
	if product.SellerID == req.BuyerID {
		return nil, ErrSelfPurchase
	}

	// Snapshot: price and total are fixed now, catalog changes after this
	// point never touch the order.
	total := product.UnitPrice * int64(req.Quantity)

	chargeCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()
	outcome, err := s.gateway.Charge(chargeCtx, req.Method, payment.ChargeRequest{
		Amount:         total,
		PayerReference: req.BuyerID.String(),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.metrics.ChargeFailed.WithLabelValues(string(req.Method), "timeout").Inc()
			return nil, fmt.Errorf("%w after %s", ErrPaymentTimeout, s.paymentTimeout)
		}
		if errors.Is(err, payment.ErrUnsupportedMethod) {
			return nil, err
		}
		return nil, fmt.Errorf("charge: %w", err)
	}
	if !outcome.Succeeded {
		s.metrics.ChargeFailed.WithLabelValues(string(req.Method), "declined").Inc()
		return nil, fmt.Errorf("%w: %s", ErrPaymentDeclined, outcome.Reason)
	}

	now := time.Now().UTC()
	pay := Payment{
		Method:            req.Method,
		Status:            PaymentCompleted,
		ProviderReference: outcome.ProviderReference,
	}
	if outcome.PendingDelivery {
		pay.Status = PaymentPendingDelivery
	} else {
		paidAt := outcome.PaidAt
		pay.PaidAt = &paidAt
	}

	o := &Order{
		ID:              uuid.New(),
		OrderNumber:     NewOrderNumber(now),
		BuyerID:         req.BuyerID,
		SellerID:        product.SellerID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		UnitPrice:       product.UnitPrice,
		TotalAmount:     total,
		Status:          StatusConfirmed,
		Payment:         pay,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.OrdersCreated.WithLabelValues(string(req.Method)).Inc()
	s.logger.Info("order created",
		"order_id", o.ID, "order_number", o.OrderNumber,
		"buyer_id", o.BuyerID, "seller_id", o.SellerID,
		"total_amount", o.TotalAmount, "method", req.Method)
	return o, nil
}

// UpdateStatus applies one lifecycle transition. Only the buyer, the seller
// or an administrative actor may mutate an order. On cancellation or refund
// of a completed payment the gateway refund is issued after the status
// commit; a failed refund keeps the new status and surfaces ErrRefundPending
// together with the order so the caller can retry.
func (s *Service) UpdateStatus(ctx context.Context, orderID, actorID uuid.UUID, next Status, admin bool) (*Order, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	refundDue := false
	updated, err := s.repo.UpdateStatus(ctx, orderID, func(o *Order) error {
		if !admin && o.BuyerID != actorID && o.SellerID != actorID {
			return ErrNotParticipant
		}
		// Retrying a cancellation/refund whose refund is still pending is
		// not a transition; it re-drives the refund only.
		if next == o.Status && refundable(next) && o.Payment.Status == PaymentCompleted {
			refundDue = true
			return nil
		}
		if !o.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
		}
		if refundable(next) && o.Payment.Status == PaymentCompleted {
			refundDue = true
		}
		o.Status = next
		// Cash settles at handover.
		if next == StatusDelivered && o.Payment.Status == PaymentPendingDelivery {
			now := time.Now().UTC()
			o.Payment.Status = PaymentCompleted
			o.Payment.PaidAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusChanged.WithLabelValues(string(next)).Inc()

	if !refundDue {
		return updated, nil
	}

	out, err := s.gateway.Refund(ctx, updated.Payment.Method, payment.RefundRequest{
		ProviderReference: updated.Payment.ProviderReference,
		Amount:            updated.TotalAmount,
		Reason:            "order " + string(next),
	})
	if err != nil || !out.Succeeded {
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = out.Reason
		}
		s.logger.Warn("refund not confirmed", "order_id", updated.ID, "reason", reason)
		return updated, fmt.Errorf("%w: order %s", ErrRefundPending, updated.ID)
	}

	if err := s.repo.RecordRefund(ctx, updated.ID, out.RefundReference); err != nil {
		return updated, fmt.Errorf("record refund: %w", err)
	}
	updated.Payment.Status = PaymentRefunded
	updated.Payment.RefundReference = out.RefundReference

	s.logger.Info("order refunded", "order_id", updated.ID, "refund_reference", out.RefundReference)
	return updated, nil
}

func refundable(s Status) bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Get returns the order when the actor is the buyer, the seller or an admin.
func (s *Service) Get(ctx context.Context, orderID, actorID uuid.UUID, admin bool) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && o.BuyerID != actorID && o.SellerID != actorID {
		return nil, ErrNotParticipant
	}
	return o, nil
}

// ListForUser returns the orders the user participates in, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return s.repo.ListForUser(ctx, userID)
}
