package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lms-platform/shipping-core/pkg/logging"
)

// EventFactory stamps envelopes for a single source
type EventFactory struct {
	source string
	now    func() time.Time
}

func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent wraps data for subject. A correlation id on ctx is carried over.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *Event {
	correlationID, _ := ctx.Value(logging.CorrelationIDKey).(string)

	return &Event{
		ID:              uuid.NewString(),
		SpecVersion:     "1.0",
		Source:          f.source,
		Type:            eventType,
		Subject:         subject,
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		CorrelationID:   correlationID,
		Data:            data,
	}
}
