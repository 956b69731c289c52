package checkout

import (
	"time"

	"github.com/google/uuid"

	kafkax "github.com/shopcore/storefront/internal/kafka"
	"github.com/shopcore/storefront/internal/orders"
)

func (s *Service) publishPlaced(o *orders.Order, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID:    o.ID,
			ExternalID: o.ExternalID,
			Email:      o.Customer.Email,
			Items:      o.Items,
			TotalCents: o.TotalCents,
		}),
	}
	s.PlacedEvents.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(orders.EventOrderPlaced, 1)...)
}

func (s *Service) publishCancelled(o *orders.Order, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCancelledPayload{
			OrderID: o.ID,
			Items:   o.Items,
		}),
	}
	s.CancelEvents.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(orders.EventOrderCancelled, 1)...)
}
