package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/cloudevents"
	"github.com/lms-platform/shipping-core/pkg/kafka"
	"github.com/lms-platform/shipping-core/pkg/outbox"
	outboxMongo "github.com/lms-platform/shipping-core/pkg/outbox/mongodb"
)

// eventWriter turns domain events into outbox records inside the caller's transaction
type eventWriter struct {
	outbox   *outboxMongo.OutboxRepository
	factory  *cloudevents.EventFactory
	tracking *cloudevents.EventFactory
	wallet   *cloudevents.EventFactory
	remit    *cloudevents.EventFactory
}

func newEventWriter(db *mongo.Database) *eventWriter {
	return &eventWriter{
		outbox:   outboxMongo.NewOutboxRepository(db),
		factory:  cloudevents.NewEventFactory(cloudevents.SourceShipping),
		tracking: cloudevents.NewEventFactory(cloudevents.SourceTracking),
		wallet:   cloudevents.NewEventFactory(cloudevents.SourceWallet),
		remit:    cloudevents.NewEventFactory(cloudevents.SourceRemittance),
	}
}

// write stores events for one aggregate. sessCtx must be the transaction's session context.
func (w *eventWriter) write(sessCtx context.Context, aggregateID, aggregateType string, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]*outbox.Record, 0, len(events))
	for _, event := range events {
		var (
			ce    *cloudevents.Event
			topic string
		)
		switch e := event.(type) {
		case *domain.ShipmentCreatedEvent:
			ce = w.factory.CreateEvent(sessCtx, e.EventType(), "shipment/"+e.ShipmentID, e).WithUser(e.UserID)
			topic = kafka.Topics.ShipmentEvents
		case *domain.ShipmentStatusChangedEvent:
			ce = w.tracking.CreateEvent(sessCtx, e.EventType(), "shipment/"+e.ShipmentID, e).WithUser(e.UserID).WithAWB(e.AWB)
			topic = kafka.Topics.ShipmentEvents
		case *domain.NDREvent:
			ce = w.tracking.CreateEvent(sessCtx, e.EventType(), "ndr/"+e.AWB, e).WithUser(e.UserID).WithAWB(e.AWB)
			topic = kafka.Topics.NDREvents
		case *domain.WalletMovedEvent:
			ce = w.wallet.CreateEvent(sessCtx, e.EventType(), "wallet/"+e.UserID, e).WithUser(e.UserID)
			topic = kafka.Topics.WalletEvents
		case *domain.RemittanceEvent:
			ce = w.remit.CreateEvent(sessCtx, e.EventType(), "remittance/"+e.RequestID, e).WithUser(e.UserID)
			topic = kafka.Topics.RemittanceEvents
		default:
			continue
		}

		record, err := outbox.NewRecord(aggregateID, aggregateType, topic, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox record: %w", err)
		}
		records = append(records, record)
	}

	if err := w.outbox.SaveAll(sessCtx, records); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// Outbox returns the outbox repository the publisher relays from
func (w *eventWriter) Outbox() outbox.Repository {
	return w.outbox
}
