package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Method selects the provider strategy for a charge.
type Method string

const (
	MethodCard       Method = "card"
	MethodUPI        Method = "upi"
	MethodNetBanking Method = "net_banking"
	MethodWallet     Method = "wallet"
	MethodCOD        Method = "cod"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodNetBanking, MethodWallet, MethodCOD:
		return true
	}
	return false
}

var ErrUnsupportedMethod = errors.New("unsupported payment method")

type ChargeRequest struct {
	Amount         int64
	PayerReference string
}

// Outcome is the normalized result of a charge attempt. PendingDelivery is
// set by the cod strategy, which collects the money at handover.
type Outcome struct {
	Succeeded         bool
	ProviderReference string
	PaidAt            time.Time
	PendingDelivery   bool
	Reason            string
}

type RefundRequest struct {
	ProviderReference string
	Amount            int64
	Reason            string
}

type RefundOutcome struct {
	Succeeded       bool
	RefundReference string
	Reason          string
}

// Strategy is one provider integration. Charge must return a definitive
// outcome synchronously; Refund must be safe to retry with the same
// provider reference and amount.
type Strategy interface {
	Charge(ctx context.Context, req ChargeRequest) (Outcome, error)
	Refund(ctx context.Context, req RefundRequest) (RefundOutcome, error)
}

// Gateway dispatches charge and refund calls to the strategy registered for
// the requested method.
type Gateway struct {
	strategies map[Method]Strategy
	logger     *slog.Logger
}

func NewGateway(strategies map[Method]Strategy, logger *slog.Logger) (*Gateway, error) {
	if len(strategies) == 0 {
		return nil, errors.New("at least one payment strategy is required")
	}
	copied := make(map[Method]Strategy, len(strategies))
	for m, s := range strategies {
		if !m.Valid() || s == nil {
			return nil, fmt.Errorf("invalid strategy registration for method %q", m)
		}
		copied[m] = s
	}
	return &Gateway{strategies: copied, logger: logger}, nil
}

// NewDefaultGateway registers the built-in provider simulators for every
// supported method.
func NewDefaultGateway(logger *slog.Logger) *Gateway {
	gw, _ := NewGateway(map[Method]Strategy{
		MethodCard:       NewSimulator("card"),
		MethodUPI:        NewSimulator("upi"),
		MethodNetBanking: NewSimulator("nb"),
		MethodWallet:     NewSimulator("wallet"),
		MethodCOD:        CashOnDelivery{},
	}, logger)
	return gw
}

func (g *Gateway) strategy(m Method) (Strategy, error) {
	s, ok := g.strategies[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, m)
	}
	return s, nil
}

func (g *Gateway) Charge(ctx context.Context, method Method, req ChargeRequest) (Outcome, error) {
	s, err := g.strategy(method)
	if err != nil {
		return Outcome{}, err
	}
	out, err := s.Charge(ctx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("charge via %s: %w", method, err)
	}
	if !out.Succeeded {
		g.logger.Info("charge declined", "method", method, "reason", out.Reason)
	}
	return out, nil
}

func (g *Gateway) Refund(ctx context.Context, method Method, req RefundRequest) (RefundOutcome, error) {
	s, err := g.strategy(method)
	if err != nil {
		return RefundOutcome{}, err
	}
	out, err := s.Refund(ctx, req)
	if err != nil {
		return RefundOutcome{}, fmt.Errorf("refund via %s: %w", method, err)
	}
	return out, nil
}
