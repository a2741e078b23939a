package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lms-platform/shipping-core/internal/api/handlers"
	"github.com/lms-platform/shipping-core/internal/application"
	"github.com/lms-platform/shipping-core/internal/carriers"
	mongoRepo "github.com/lms-platform/shipping-core/internal/infrastructure/mongodb"
	"github.com/lms-platform/shipping-core/internal/pricing"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
	"github.com/lms-platform/shipping-core/pkg/middleware"
	"github.com/lms-platform/shipping-core/pkg/mongodb"
	"github.com/lms-platform/shipping-core/pkg/resilience"
	"github.com/lms-platform/shipping-core/pkg/tracing"
)

const serviceName = "shipping-api"

var newMetrics = metrics.New

var initTracing = tracing.Initialize

var startHTTPServer = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

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

	logger.Info("Starting shipping API")

	config := loadConfig()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := initTracing(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := newMetrics(metrics.DefaultConfig(serviceName))

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB, mongodb.NewCommandMonitor(m))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return err
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	table, err := loadRateTable(config.RateCardPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load rate cards", "path", config.RateCardPath)
		return err
	}
	catalog := pricing.NewCatalog(table)
	logger.Info("Rate cards loaded", "version", table.Version())

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)
	defer signal.Stop(reloadCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				_ = reloadRateTable(catalog, config.RateCardPath, logger)
			}
		}
	}()

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
	walletRepo := mongoRepo.NewWalletRepository(db)
	remittanceRepo := mongoRepo.NewRemittanceRepository(db)
	warehouseRepo := mongoRepo.NewWarehouseRepository(db)
	metricsRepo := mongoRepo.NewUserMetricsRepository(db)

	rateService := application.NewRateService(catalog, registry, config.Carriers.Timeout, logger, m)
	shippingService := application.NewShippingService(orderRepo, shipmentRepo, walletRepo, warehouseRepo, rateService, registry, logger, m)
	ndrService := application.NewNDRService(ndrRepo, registry, logger)
	remittanceService := application.NewRemittanceService(orderRepo, remittanceRepo, logger, m)
	userMetricsService := application.NewUserMetricsService(shipmentRepo, ndrRepo, orderRepo, metricsRepo, logger)
	walletService := application.NewWalletService(walletRepo)

	shippingHandler := handlers.NewShippingHandler(rateService, walletService, shippingService, logger)
	operationsHandler := handlers.NewOperationsHandler(ndrService, remittanceService, walletService, userMetricsService, logger)

	router := gin.New()
	middlewareConfig := middleware.DefaultConfig(serviceName, logger)
	middlewareConfig.AllowOrigins = config.AllowOrigins
	middleware.Setup(router, middlewareConfig)
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	handlers.RegisterRoutes(router.Group("/api/v1"), shippingHandler, operationsHandler)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := startHTTPServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	<-signalCh
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
	return nil
}

func loadRateTable(path string) (*pricing.Table, error) {
	if path == "" {
		return pricing.DefaultTable()
	}
	return pricing.LoadFile(path)
}

// reloadRateTable publishes a freshly loaded table. A table that fails to
// load or validate leaves the current one in place.
func reloadRateTable(catalog *pricing.Catalog, path string, logger *logging.Logger) error {
	table, err := loadRateTable(path)
	if err != nil {
		logger.WithError(err).Error("Rate card reload rejected", "path", path)
		return err
	}
	previous, err := catalog.Publish(table)
	if err != nil {
		return err
	}
	logger.Info("Rate cards published", "version", table.Version(), "previousVersion", previous.Version())
	return nil
}

// Config holds application configuration
type Config struct {
	ServerAddr   string
	RateCardPath string
	MongoDB      *mongodb.Config
	Carriers     *carriers.Config
	AllowOrigins []string
}

func loadConfig() *Config {
	mongoConfig := mongodb.FromEnv(os.Getenv)
	mongoConfig.MaxPoolSize = 100
	mongoConfig.MinPoolSize = 10

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		RateCardPath: os.Getenv("RATECARD_PATH"),
		MongoDB:      mongoConfig,
		Carriers:     carriers.FromEnv(os.Getenv),
		AllowOrigins: splitList(os.Getenv("CORS_ALLOW_ORIGINS")),
	}
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
