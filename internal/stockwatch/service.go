// Package stockwatch consumes order events and raises stock.low alerts
// once a product dips under the restock threshold. It is advisory: the
// ordering path never depends on it.
package stockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/catalog"
	kafkax "github.com/woolstore/storefront/internal/kafka"
	"github.com/woolstore/storefront/internal/orders"
	"github.com/woolstore/storefront/internal/redisx"
)

type Catalog interface {
	FindByID(ctx context.Context, id string) (catalog.Product, error)
}

type Service struct {
	Catalog     Catalog
	Redis       *redis.Client
	Producer    *kafkax.Producer // stock.low
	ServiceName string
	Threshold   int
}

// HandleOrderCreated is wired as the consumer handler.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	// dedup by event id so consumer-group rebalances don't double-alert
	dkey := fmt.Sprintf(redisx.KeyDedup, "stockwatch", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, ln := range p.Lines {
		prod, err := s.Catalog.FindByID(ctx, ln.ProductID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			continue // deleted since the order; nothing to watch
		}
		if err != nil {
			return err
		}
		if prod.Stock <= s.Threshold {
			s.publishStockLow(prod, env.TraceID)
		}
	}
	return nil
}

func (s *Service) publishStockLow(p catalog.Product, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockLow,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: p.ID,
		Payload:       kafkax.MustMarshal(orders.StockLowPayload{ProductID: p.ID, Stock: p.Stock}),
	}
	s.Producer.Publish([]byte(p.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockLow)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	log.Printf("stock low: product=%s stock=%d", p.ID, p.Stock)
}
