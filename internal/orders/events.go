package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/woolstore/storefront/internal/kafka"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockLow           = "StockLow"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Lines      []Line `json:"lines"`
	TotalCents int    `json:"total_cents"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	Lines   []Line `json:"lines"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type StockLowPayload struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

// Emitter publishes order lifecycle events, one producer per topic.
type Emitter struct {
	Created   *kafkax.Producer
	Cancelled *kafkax.Producer
	Status    *kafkax.Producer
	Service   string
}

func (e *Emitter) emit(ctx context.Context, p *kafkax.Producer, eventType, orderID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (e *Emitter) OrderCreated(ctx context.Context, o Order) {
	e.emit(ctx, e.Created, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID: o.ID, CustomerID: o.CustomerID, Lines: o.Lines, TotalCents: o.TotalCents,
	})
}

func (e *Emitter) OrderCancelled(ctx context.Context, o Order) {
	e.emit(ctx, e.Cancelled, EventOrderCancelled, o.ID, OrderCancelledPayload{
		OrderID: o.ID, Lines: o.Lines,
	})
}

func (e *Emitter) OrderStatusChanged(ctx context.Context, o Order, from Status) {
	e.emit(ctx, e.Status, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID, From: from, To: o.Status,
	})
}
