// Package kafka publishes CloudEvents to Kafka, one writer per topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
	"github.com/lms-platform/shipping-core/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes CloudEvents, recording a span, a metric and a debug
// line per event
type Producer struct {
	config  *Config
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu        sync.Mutex
	writers   map[string]messageWriter
	newWriter func(topic string) messageWriter
}

// NewProducer creates a producer. m may be nil.
func NewProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) *Producer {
	p := &Producer{
		config:  config,
		metrics: m,
		logger:  logger.WithComponent("kafka-producer"),
		writers: make(map[string]messageWriter),
	}
	p.newWriter = p.kafkaWriter
	return p
}

func (p *Producer) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		WriteTimeout: p.config.WriteTimeout,
		Transport:    &kafka.Transport{ClientID: p.config.ClientID},
	}
}

func (p *Producer) writer(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = p.newWriter(topic)
		p.writers[topic] = w
	}
	return w
}

// PublishEvent writes event to topic keyed by its subject, so the events of
// one shipment or wallet stay ordered on a partition.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.Event) (err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, topic+" publish", trace.SpanKindProducer,
		semconv.MessagingSystemKey.String("kafka"),
		semconv.MessagingDestinationNameKey.String(topic),
		semconv.MessagingOperationKey.String("publish"),
		semconv.MessagingMessageIDKey.String(event.ID),
		attribute.String("lms.event_type", event.Type),
	)
	defer func() {
		tracing.End(span, err)
		p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, time.Since(start))
	}()

	msg, err := toMessage(event)
	if err != nil {
		return err
	}
	if err = p.writer(topic).WriteMessages(ctx, msg); err != nil {
		p.logger.WithError(err).Warn("Kafka publish failed", "topic", topic, "eventType", event.Type, "eventId", event.ID)
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}

	p.logger.Debug("Kafka event published", "topic", topic, "eventType", event.Type, "durationMs", time.Since(start).Milliseconds())
	return nil
}

func toMessage(event *cloudevents.Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	headers := []kafka.Header{
		header("ce-specversion", event.SpecVersion),
		header("ce-type", event.Type),
		header("ce-source", event.Source),
		header("ce-id", event.ID),
		header("ce-time", event.Time.Format(time.RFC3339)),
		header("content-type", event.DataContentType),
	}
	for name, value := range event.Extensions() {
		headers = append(headers, header("ce-"+name, value))
	}

	return kafka.Message{
		Key:     []byte(event.Subject),
		Value:   data,
		Headers: headers,
		Time:    event.Time,
	}, nil
}

func header(key, value string) kafka.Header {
	return kafka.Header{Key: key, Value: []byte(value)}
}

// Close closes every writer, returning the last error seen
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
