package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lms-platform/shipping-core/internal/activities"
	"github.com/lms-platform/shipping-core/internal/application"
	"github.com/lms-platform/shipping-core/internal/carriers"
	"github.com/lms-platform/shipping-core/internal/domain"
	mongoRepo "github.com/lms-platform/shipping-core/internal/infrastructure/mongodb"
	"github.com/lms-platform/shipping-core/internal/workflows"
	"github.com/lms-platform/shipping-core/pkg/kafka"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
	"github.com/lms-platform/shipping-core/pkg/mongodb"
	"github.com/lms-platform/shipping-core/pkg/outbox"
	"github.com/lms-platform/shipping-core/pkg/resilience"
	"github.com/lms-platform/shipping-core/pkg/temporal"
	"github.com/lms-platform/shipping-core/pkg/tracing"
)

const serviceName = "shipping-worker"

func main() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := run(context.Background(), signalCh); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, signalCh <-chan os.Signal) error {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting shipping worker")

	config := loadConfig()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB, mongodb.NewCommandMonitor(m))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return err
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	producer := kafka.NewProducer(config.Kafka, m, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	registry := carriers.NewRegistryFromConfig(config.Carriers, carriers.Deps{
		HTTPClient: &http.Client{},
		Logger:     logger,
		Metrics:    m,
		Breakers:   resilience.NewCircuitBreakerRegistry(logger.Logger),
	})
	logger.Info("Carrier adapters registered", "carriers", registry.Names())

	db := mongoClient.Database()
	orderRepo := mongoRepo.NewOrderRepository(db)
	shipmentRepo := mongoRepo.NewShipmentRepository(db)
	ndrRepo := mongoRepo.NewNDRRepository(db)
	metricsRepo := mongoRepo.NewUserMetricsRepository(db)

	// every repository writes to the same outbox collection
	publisher := outbox.NewPublisher(shipmentRepo.OutboxRepository(), producer, logger, m, outbox.DefaultPublisherConfig())
	if err := publisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		return err
	}
	defer func() {
		if err := publisher.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop outbox publisher")
		}
	}()
	logger.Info("Outbox publisher started")

	trackingService := application.NewTrackingService(shipmentRepo, ndrRepo, registry, config.Tracking, config.SweepBatchSize, logger, m)
	userMetricsService := application.NewUserMetricsService(shipmentRepo, ndrRepo, orderRepo, metricsRepo, logger)
	jobActivities := activities.NewJobActivities(trackingService, userMetricsService, logger, m)

	temporalClient, err := temporal.NewClient(ctx, config.Temporal, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		return err
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort, "namespace", config.Temporal.Namespace)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Shipping))
	w.RegisterWorkflow(workflows.TrackingSweepWorkflow)
	w.RegisterWorkflow(workflows.UserMetricsRecomputeWorkflow)
	w.RegisterActivity(jobActivities)
	logger.Info("Registered workflows", "workflows", []string{
		temporal.WorkflowNames.TrackingSweep,
		temporal.WorkflowNames.UserMetricsRecompute,
	})

	schedules := []temporal.ScheduleSpec{
		{
			ID:           workflows.TrackingSweepScheduleID,
			Every:        workflows.TrackingSweepInterval,
			WorkflowName: temporal.WorkflowNames.TrackingSweep,
			TaskQueue:    temporal.TaskQueues.Shipping,
			Args:         []interface{}{workflows.TrackingSweepInput{}},
		},
		{
			ID:           workflows.UserMetricsScheduleID,
			Every:        workflows.UserMetricsInterval,
			WorkflowName: temporal.WorkflowNames.UserMetricsRecompute,
			TaskQueue:    temporal.TaskQueues.Shipping,
			Args:         []interface{}{workflows.UserMetricsInput{}},
		},
	}
	for _, spec := range schedules {
		if err := temporalClient.EnsureSchedule(ctx, spec); err != nil {
			logger.WithError(err).Error("Failed to register schedule", "schedule", spec.ID)
			return err
		}
		logger.Info("Schedule registered", "schedule", spec.ID, "every", spec.Every.String())
	}

	if err := w.Start(); err != nil {
		logger.WithError(err).Error("Failed to start worker")
		return err
	}
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Shipping)

	metricsSrv := &http.Server{
		Addr:        config.MetricsAddr,
		Handler:     m.Handler(),
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server error")
		}
	}()

	<-signalCh
	logger.Info("Shutting down worker...")

	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Metrics server forced to shutdown")
	}

	logger.Info("Worker stopped")
	return nil
}

// Config holds worker configuration
type Config struct {
	MetricsAddr    string
	SweepBatchSize int
	Tracking       domain.TrackingPolicy
	MongoDB        *mongodb.Config
	Kafka          *kafka.Config
	Temporal       *temporal.Config
	Carriers       *carriers.Config
}

func loadConfig() *Config {
	policy := domain.DefaultTrackingPolicy()
	policy.RTOAfterAttempts = getEnvInt("TRACKING_RTO_AFTER_ATTEMPTS", policy.RTOAfterAttempts)
	policy.NDRAfterAttempts = getEnvInt("TRACKING_NDR_AFTER_ATTEMPTS", policy.NDRAfterAttempts)

	mongoConfig := mongodb.FromEnv(os.Getenv)
	mongoConfig.MaxPoolSize = 50
	mongoConfig.MinPoolSize = 5

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}
	kafkaConfig.ClientID = serviceName

	return &Config{
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		SweepBatchSize: getEnvInt("TRACKING_BATCH_SIZE", application.DefaultSweepBatchSize),
		Tracking:       policy,
		MongoDB:        mongoConfig,
		Kafka:          kafkaConfig,
		Temporal: &temporal.Config{
			HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			Identity:  serviceName,
		},
		Carriers: carriers.FromEnv(os.Getenv),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}
