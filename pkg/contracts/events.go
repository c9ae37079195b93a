package contracts

import "time"

const (
	OrderCreatedType       = "order.created"
	OrderStatusChangedType = "order.status_changed"
)

type OrderCreatedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     string    `json:"buyer_id"`
	SellerID    string    `json:"seller_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	TotalAmount int64     `json:"total_amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderStatusChangedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}
