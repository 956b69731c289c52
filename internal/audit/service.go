package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shopcore/storefront/internal/cache"
	kafkax "github.com/shopcore/storefront/internal/kafka"
	"github.com/shopcore/storefront/internal/orders"
)

type Entry struct {
	EventID    string
	OrderID    string
	Action     string
	Payload    []byte
	OccurredAt time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type PGRecorder struct{ DB *pgxpool.Pool }

// Record is an upsert keyed by event id, so redelivered events collapse
// into one row even when the Redis dedup missed them.
func (r *PGRecorder) Record(ctx context.Context, e Entry) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_audit(event_id, order_id, action, payload, occurred_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.OrderID, e.Action, e.Payload, e.OccurredAt)
	return err
}

// Service consumes order events and keeps the audit trail.
type Service struct {
	Rec   Recorder
	Cache cache.Cache
	Name  string
}

// HandleOrderEvent is installed as the consumer handler for both order
// topics.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	switch env.EventType {
	case orders.EventOrderPlaced, orders.EventOrderCancelled:
	default:
		return nil // ignore
	}

	// dedup via Redis; cache failure falls through to the DB upsert
	dkey := fmt.Sprintf(cache.KeyDedup, "audit", env.EventID)
	if claimed, err := s.Cache.SetNX(ctx, dkey, "1", cache.TTLDedup); err == nil && !claimed {
		return nil
	}

	orderID := env.CorrelationID
	if orderID == "" {
		// correlation id is normally the order id; fall back to the payload
		if p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload); err == nil {
			orderID = p.OrderID
		}
	}

	return s.Rec.Record(ctx, Entry{
		EventID:    env.EventID,
		OrderID:    orderID,
		Action:     env.EventType,
		Payload:    env.Payload,
		OccurredAt: env.OccurredAt,
	})
}
