// Package outbox stores domain events in the same transaction as the
// aggregate change and relays them to Kafka afterwards.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
)

// DefaultMaxRetries is the number of failed relays after which an event is parked
const DefaultMaxRetries = 10

// Record is one serialised envelope bound for a topic. Published rows keep
// PublishedAt and expire through a TTL index; parked rows stay for inspection.
type Record struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewRecord queues event on topic for the given aggregate
func NewRecord(aggregateID, aggregateType, topic string, event *cloudevents.Event) (*Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("outbox: encode %s: %w", event.Type, err)
	}

	r := &Record{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     event.Type,
		Topic:         topic,
		Payload:       payload,
		MaxRetries:    DefaultMaxRetries,
	}
	r.CreatedAt = time.Now().UTC()
	return r, nil
}

// Parked reports whether the relay has given up on r
func (r *Record) Parked() bool {
	return r.PublishedAt == nil && r.RetryCount >= r.MaxRetries
}

// Envelope decodes the stored payload
func (r *Record) Envelope() (*cloudevents.Event, error) {
	event := new(cloudevents.Event)
	if err := json.Unmarshal(r.Payload, event); err != nil {
		return nil, fmt.Errorf("outbox: decode %s: %w", r.ID, err)
	}
	return event, nil
}
