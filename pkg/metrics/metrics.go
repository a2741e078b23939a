package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all shipping-core metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
	OutboxRetries   *prometheus.CounterVec

	// Temporal activity metrics
	ActivitiesCompleted *prometheus.CounterVec
	ActivityDuration    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Carrier gateway metrics
	CarrierQuotes       *prometheus.CounterVec
	CarrierCallDuration *prometheus.HistogramVec
	CarrierTokenRefresh *prometheus.CounterVec

	// Business metrics
	ShipmentsCreated    *prometheus.CounterVec
	ShipmentTransitions *prometheus.CounterVec
	WalletMovements     *prometheus.CounterVec
	WalletAmount        *prometheus.CounterVec
	TrackingSweeps      *prometheus.CounterVec
	TrackingUpdates     *prometheus.CounterVec
	NDRRaised           *prometheus.CounterVec
	RemittanceDecisions *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "lms",
	}
}

// New creates a new Metrics instance backed by a private registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "method", "path"})

	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_requests_in_flight", Help: "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published",
	}, []string{"service", "topic", "event_type", "status"})

	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "kafka_publish_duration_seconds", Help: "Kafka publish duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "topic"})

	m.MongoDBOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "mongodb_operations_total", Help: "Total number of MongoDB operations",
	}, []string{"service", "collection", "operation", "status"})

	m.MongoDBOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "mongodb_operation_duration_seconds", Help: "MongoDB operation duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"service", "collection", "operation"})

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "outbox_pending_events", Help: "Unpublished events seen by the last outbox poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.OutboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_events_published_total", Help: "Outbox events relayed to Kafka",
	}, []string{"service", "event_type", "status"})

	m.OutboxRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_retries_total", Help: "Outbox publish retries",
	}, []string{"service", "event_type"})

	m.ActivitiesCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "temporal_activities_completed_total", Help: "Total number of Temporal activities completed",
	}, []string{"service", "activity_type", "status"})

	m.ActivityDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "temporal_activity_duration_seconds", Help: "Temporal activity duration in seconds",
		Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
	}, []string{"service", "activity_type"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})

	m.CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Total number of circuit breaker trips",
	}, []string{"service", "name"})

	m.CarrierQuotes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "carrier_quotes_total", Help: "Quotes produced per source and outcome",
	}, []string{"service", "carrier", "outcome"})

	m.CarrierCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "carrier_call_duration_seconds", Help: "Outbound carrier API call duration",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10},
	}, []string{"service", "carrier", "operation"})

	m.CarrierTokenRefresh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "carrier_token_refresh_total", Help: "Carrier bearer token refreshes",
	}, []string{"service", "carrier", "status"})

	m.ShipmentsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "shipments_created_total", Help: "Shipments booked with a carrier",
	}, []string{"service", "carrier", "direction"})

	m.ShipmentTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "shipment_transitions_total", Help: "Shipment status transitions",
	}, []string{"service", "from", "to"})

	m.WalletMovements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "wallet_movements_total", Help: "Wallet movements by kind and outcome",
	}, []string{"service", "kind", "status"})

	m.WalletAmount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "wallet_amount_rupees_total", Help: "Rupees moved through wallets",
	}, []string{"service", "kind"})

	m.TrackingSweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "tracking_sweeps_total", Help: "Tracking sweep runs by outcome",
	}, []string{"service", "outcome"})

	m.TrackingUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "tracking_updates_total", Help: "Per-AWB tracking results",
	}, []string{"service", "carrier", "outcome"})

	m.NDRRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "ndr_raised_total", Help: "Non-delivery reports raised",
	}, []string{"service", "carrier", "reason"})

	m.RemittanceDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "remittance_decisions_total", Help: "Remittance requests by decision",
	}, []string{"service", "decision"})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxRetries,
		m.ActivitiesCompleted,
		m.ActivityDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.CarrierQuotes,
		m.CarrierCallDuration,
		m.CarrierTokenRefresh,
		m.ShipmentsCreated,
		m.ShipmentTransitions,
		m.WalletMovements,
		m.WalletAmount,
		m.TrackingSweeps,
		m.TrackingUpdates,
		m.NDRRaised,
		m.RemittanceDecisions,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, statusLabel(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// SetOutboxPending sets the pending outbox gauge
func (m *Metrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records a relayed outbox event
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Inc()
}

// RecordOutboxRetry records an outbox retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	if m == nil {
		return
	}
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordActivityCompleted records an activity completion
func (m *Metrics) RecordActivityCompleted(activityType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActivitiesCompleted.WithLabelValues(m.serviceName, activityType, statusLabel(success)).Inc()
	m.ActivityDuration.WithLabelValues(m.serviceName, activityType).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// Quote outcomes
const (
	QuoteOK          = "ok"
	QuoteUnavailable = "unavailable"
	QuoteError       = "error"
	QuoteTimeout     = "timeout"
)

// RecordCarrierQuote records the outcome of one quote source in an aggregation
func (m *Metrics) RecordCarrierQuote(carrier, outcome string) {
	if m == nil {
		return
	}
	m.CarrierQuotes.WithLabelValues(m.serviceName, carrier, outcome).Inc()
}

// RecordCarrierCall records the latency of an outbound carrier call
func (m *Metrics) RecordCarrierCall(carrier, operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CarrierCallDuration.WithLabelValues(m.serviceName, carrier, operation).Observe(duration.Seconds())
}

// RecordTokenRefresh records a bearer token refresh
func (m *Metrics) RecordTokenRefresh(carrier string, success bool) {
	if m == nil {
		return
	}
	m.CarrierTokenRefresh.WithLabelValues(m.serviceName, carrier, statusLabel(success)).Inc()
}

// RecordShipmentCreated records a booked shipment
func (m *Metrics) RecordShipmentCreated(carrier, direction string) {
	if m == nil {
		return
	}
	m.ShipmentsCreated.WithLabelValues(m.serviceName, carrier, direction).Inc()
}

// RecordShipmentTransition records a shipment status change
func (m *Metrics) RecordShipmentTransition(from, to string) {
	if m == nil {
		return
	}
	m.ShipmentTransitions.WithLabelValues(m.serviceName, from, to).Inc()
}

// RecordWalletMovement records a debit, refund or credit. rupees is only added on success.
func (m *Metrics) RecordWalletMovement(kind string, success bool, rupees float64) {
	if m == nil {
		return
	}
	m.WalletMovements.WithLabelValues(m.serviceName, kind, statusLabel(success)).Inc()
	if success && rupees > 0 {
		m.WalletAmount.WithLabelValues(m.serviceName, kind).Add(rupees)
	}
}

// Sweep outcomes
const (
	SweepCompleted = "completed"
	SweepSkipped   = "skipped"
	SweepFailed    = "failed"
)

// RecordTrackingSweep records one sweep invocation
func (m *Metrics) RecordTrackingSweep(outcome string) {
	if m == nil {
		return
	}
	m.TrackingSweeps.WithLabelValues(m.serviceName, outcome).Inc()
}

// RecordTrackingUpdate records the outcome for one AWB within a sweep
func (m *Metrics) RecordTrackingUpdate(carrier, outcome string) {
	if m == nil {
		return
	}
	m.TrackingUpdates.WithLabelValues(m.serviceName, carrier, outcome).Inc()
}

// RecordNDRRaised records a new non-delivery report
func (m *Metrics) RecordNDRRaised(carrier, reason string) {
	if m == nil {
		return
	}
	m.NDRRaised.WithLabelValues(m.serviceName, carrier, reason).Inc()
}

// RecordRemittanceDecision records an approval or rejection
func (m *Metrics) RecordRemittanceDecision(decision string) {
	if m == nil {
		return
	}
	m.RemittanceDecisions.WithLabelValues(m.serviceName, decision).Inc()
}
