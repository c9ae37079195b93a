package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/order"

	"github.com/google/uuid"
	gw "github.com/gorilla/websocket"
)

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades order-status subscriptions. Only a party to the order
// may subscribe; the ownership check reuses the order service.
type Handler struct {
	hub      *Hub
	orderSvc *order.Service
	logger   *slog.Logger
}

func NewHandler(hub *Hub, orderSvc *order.Service, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, orderSvc: orderSvc, logger: logger}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	orderIDStr := r.PathValue("orderID")
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	actorID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		http.Error(w, "missing X-User-ID header", http.StatusBadRequest)
		return
	}

	o, err := h.orderSvc.Get(r.Context(), orderID, actorID, false)
	if err != nil {
		http.Error(w, "order not accessible", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "order_id", orderIDStr, "err", err)
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		orderID: orderIDStr,
	}

	client.hub.register <- client
	go client.writePump()
	go client.readPump()

	// Seed the subscriber with the current state.
	upd := StatusUpdate{OrderID: orderIDStr, Status: string(o.Status)}
	if b, err := json.Marshal(upd); err == nil {
		select {
		case client.send <- b:
		case <-time.After(1 * time.Second):
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
