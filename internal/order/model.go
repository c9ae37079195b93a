package order

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/payment"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions is the full order lifecycle. A status missing from the map is
// terminal. Illegal edges are rejected before anything touches the row.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	// PaymentPendingDelivery marks cash-on-delivery orders: the charge
	// settles when the courier hands over the goods, not at creation.
	PaymentPendingDelivery PaymentStatus = "pending_delivery"
	PaymentCompleted       PaymentStatus = "completed"
	PaymentFailed          PaymentStatus = "failed"
	PaymentRefunded        PaymentStatus = "refunded"
)

// Payment is the payment sub-record folded into the order at creation.
type Payment struct {
	Method            payment.Method `json:"method"`
	Status            PaymentStatus  `json:"status"`
	ProviderReference string         `json:"provider_reference,omitempty"`
	RefundReference   string         `json:"refund_reference,omitempty"`
	PaidAt            *time.Time     `json:"paid_at,omitempty"`
}

// Order is the transactional record of a single purchase. UnitPrice and
// TotalAmount are snapshots taken at creation; later catalog changes never
// alter a placed order. Amounts are in minor currency units.
type Order struct {
	ID              uuid.UUID `json:"id"`
	OrderNumber     string    `json:"order_number"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	ProductID       uuid.UUID `json:"product_id"`
	Quantity        int       `json:"quantity"`
	UnitPrice       int64     `json:"unit_price"`
	TotalAmount     int64     `json:"total_amount"`
	Status          Status    `json:"status"`
	Payment         Payment   `json:"payment"`
	ShippingAddress string    `json:"shipping_address"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber builds the human-readable code
// ORD-<6-digit-time-suffix>-<6-char-random-suffix>. It is a display label
// only; the uuid id stays authoritative for lookups.
func NewOrderNumber(now time.Time) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%06d-%s", now.Unix()%1_000_000, buf)
}
