package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeclineRule lets a simulator decline charges, returning a non-empty
// reason. Sandbox providers typically key this off magic amounts.
type DeclineRule func(ChargeRequest) string

// Simulator stands in for a synchronous card/upi/net-banking/wallet
// provider. Refunds are deduplicated by an idempotency key derived from the
// provider reference and amount, so a retried refund never debits twice.
type Simulator struct {
	prefix  string
	decline DeclineRule

	mu      sync.Mutex
	refunds map[string]RefundOutcome
}

func NewSimulator(prefix string, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		prefix:  prefix,
		decline: func(ChargeRequest) string { return "" },
		refunds: make(map[string]RefundOutcome),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SimulatorOption func(*Simulator)

func WithDeclineRule(rule DeclineRule) SimulatorOption {
	return func(s *Simulator) {
		if rule != nil {
			s.decline = rule
		}
	}
}

func (s *Simulator) Charge(ctx context.Context, req ChargeRequest) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if req.Amount <= 0 {
		return Outcome{Reason: "non_positive_amount"}, nil
	}
	if reason := s.decline(req); reason != "" {
		return Outcome{Reason: reason}, nil
	}
	return Outcome{
		Succeeded:         true,
		ProviderReference: fmt.Sprintf("%s_%s", s.prefix, uuid.NewString()),
		PaidAt:            time.Now().UTC(),
	}, nil
}

func (s *Simulator) Refund(ctx context.Context, req RefundRequest) (RefundOutcome, error) {
	if err := ctx.Err(); err != nil {
		return RefundOutcome{}, err
	}
	if req.ProviderReference == "" {
		return RefundOutcome{Reason: "missing_provider_reference"}, nil
	}

	key := refundKey(req.ProviderReference, req.Amount)
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, ok := s.refunds[key]; ok {
		return out, nil
	}
	out := RefundOutcome{
		Succeeded:       true,
		RefundReference: fmt.Sprintf("re_%s", uuid.NewString()),
	}
	s.refunds[key] = out
	return out, nil
}

func refundKey(providerRef string, amount int64) string {
	return fmt.Sprintf("%s:%d", providerRef, amount)
}

// CashOnDelivery never charges at creation time: the charge "succeeds"
// immediately but settlement happens at handover, so the order service
// records the payment as pending_delivery instead of completed. Nothing was
// collected up front, so a refund is a successful no-op.
type CashOnDelivery struct{}

func (CashOnDelivery) Charge(ctx context.Context, req ChargeRequest) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if req.Amount <= 0 {
		return Outcome{Reason: "non_positive_amount"}, nil
	}
	return Outcome{
		Succeeded:         true,
		ProviderReference: fmt.Sprintf("cod_%s", uuid.NewString()),
		PendingDelivery:   true,
	}, nil
}

func (CashOnDelivery) Refund(ctx context.Context, req RefundRequest) (RefundOutcome, error) {
	if err := ctx.Err(); err != nil {
		return RefundOutcome{}, err
	}
	return RefundOutcome{Succeeded: true, RefundReference: "cod_noop"}, nil
}
