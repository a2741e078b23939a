package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
)

// EventPublisher sends one envelope to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.Event) error
}

// PublisherConfig holds configuration for the outbox publisher
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    100,
	}
}

// Publisher relays outbox records to Kafka
type Publisher struct {
	repo      Repository
	producer  EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	publishedCnt int
	failedCnt    int
}

// NewPublisher creates a new outbox publisher
func NewPublisher(repo Repository, producer EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger.WithComponent("outbox-publisher"),
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start starts the polling loop
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("publisher already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	p.logger.Info("Starting outbox publisher", "interval", p.interval, "batchSize", p.batchSize)

	go p.run(ctx, p.stopCh, p.stoppedCh)
	return nil
}

// Stop stops the polling loop and waits for the in-flight batch
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher not running")
	}
	stopCh, stoppedCh := p.stopCh, p.stoppedCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	<-stoppedCh

	stats := p.Stats()
	p.logger.Info("Outbox publisher stopped", "published", stats["published"], "failed", stats["failed"])
	return nil
}

func (p *Publisher) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				p.logger.WithError(err).Error("Failed to find unpublished events")
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending relays one batch and returns how many records were published
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	records, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}

	p.metrics.SetOutboxPending(len(records))
	if len(records) == 0 {
		return 0, nil
	}

	published := 0
	for _, record := range records {
		if err := p.publish(ctx, record); err != nil {
			p.logger.WithError(err).Error("Failed to publish event",
				"eventId", record.ID,
				"eventType", record.EventType,
				"aggregateId", record.AggregateID,
			)
			p.count(false)
			p.metrics.RecordOutboxPublish(record.EventType, false)
			p.metrics.RecordOutboxRetry(record.EventType)

			if err := p.repo.IncrementRetry(ctx, record.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("Failed to increment retry count", "eventId", record.ID)
				continue
			}
			record.RetryCount++
			if record.Parked() {
				p.logger.Warn("Outbox event parked", "eventId", record.ID, "eventType", record.EventType, "retries", record.RetryCount)
			}
			continue
		}

		published++
		p.count(true)
		p.metrics.RecordOutboxPublish(record.EventType, true)

		if err := p.repo.MarkPublished(ctx, record.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark event as published", "eventId", record.ID)
		}
	}

	return published, nil
}

func (p *Publisher) publish(ctx context.Context, record *Record) error {
	event, err := record.Envelope()
	if err != nil {
		return fmt.Errorf("failed to decode outbox payload: %w", err)
	}

	if err := p.producer.PublishEvent(ctx, record.Topic, event); err != nil {
		return fmt.Errorf("failed to publish to Kafka: %w", err)
	}

	p.logger.Debug("Published event from outbox",
		"eventId", record.ID,
		"eventType", record.EventType,
		"topic", record.Topic,
		"aggregateId", record.AggregateID,
	)
	return nil
}

func (p *Publisher) count(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if success {
		p.publishedCnt++
	} else {
		p.failedCnt++
	}
}

// IsRunning returns whether the publisher is running
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns publisher statistics
func (p *Publisher) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int{
		"published": p.publishedCnt,
		"failed":    p.failedCnt,
	}
}
