package mongodb

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"

	"github.com/lms-platform/shipping-core/pkg/metrics"
)

// NewCommandMonitor records every command's collection, name, outcome and
// latency into m. Session and handshake commands carry no collection and
// are recorded under "admin".
func NewCommandMonitor(m *metrics.Metrics) *event.CommandMonitor {
	var inflight sync.Map // requestID -> collection

	finish := func(requestID int64, command string, nanos int64, success bool) {
		collection := "admin"
		if v, ok := inflight.LoadAndDelete(requestID); ok {
			collection = v.(string)
		}
		m.RecordMongoDBOperation(collection, command, success, time.Duration(nanos))
	}

	return &event.CommandMonitor{
		Started: func(_ context.Context, evt *event.CommandStartedEvent) {
			if coll, ok := evt.Command.Lookup(evt.CommandName).StringValueOK(); ok {
				inflight.Store(evt.RequestID, coll)
			}
		},
		Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
			finish(evt.RequestID, evt.CommandName, evt.DurationNanos, true)
		},
		Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
			finish(evt.RequestID, evt.CommandName, evt.DurationNanos, false)
		},
	}
}
