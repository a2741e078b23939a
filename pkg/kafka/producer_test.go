package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w *recordingWriter) *Producer {
	p := NewProducer(DefaultConfig(), nil, logging.NewNop())
	p.newWriter = func(string) messageWriter { return w }
	return p
}

func headerMap(msg kafka.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestPublishEvent_SetsCloudEventHeaders(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	event := &cloudevents.Event{
		SpecVersion:     "1.0",
		Type:            cloudevents.ShipmentDelivered,
		Source:          cloudevents.SourceTracking,
		Subject:         "shipment/s-1",
		ID:              "evt-1",
		Time:            time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DataContentType: "application/json",
		AWB:             "AWB-77",
	}

	require.NoError(t, p.PublishEvent(context.Background(), Topics.ShipmentEvents, event))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "shipment/s-1", string(msg.Key))

	headers := headerMap(msg)
	assert.Equal(t, cloudevents.ShipmentDelivered, headers["ce-type"])
	assert.Equal(t, "evt-1", headers["ce-id"])
	assert.Equal(t, "2026-03-01T10:00:00Z", headers["ce-time"])
	assert.Equal(t, "AWB-77", headers["ce-lmsawb"])
	_, hasUser := headers["ce-lmsuserid"]
	assert.False(t, hasUser)
}

func TestPublishEvent_WrapsWriterErrorAndCountsFailure(t *testing.T) {
	p := newTestProducer(&recordingWriter{err: errors.New("leader not available")})
	p.metrics = metrics.New(metrics.DefaultConfig("shipping-worker"))

	err := p.PublishEvent(context.Background(), Topics.WalletEvents, &cloudevents.Event{ID: "e", Type: cloudevents.WalletDebited})
	assert.ErrorContains(t, err, Topics.WalletEvents)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.KafkaEventsPublished.WithLabelValues("shipping-worker", Topics.WalletEvents, cloudevents.WalletDebited, "error")))
}

func TestClose_ClosesWriters(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, p.PublishEvent(context.Background(), Topics.NDREvents, &cloudevents.Event{ID: id}))
	}

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.Len(t, w.messages, 2)
}
