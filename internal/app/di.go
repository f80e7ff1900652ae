// Package app provides the dependency injection container for assembling
// application components. The same container wires both the edge-node
// processes (worker, status API) and the central gateway process.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/edgepos/edgesync/internal/config"
	conflictUsecase "github.com/edgepos/edgesync/internal/conflict/usecase"
	"github.com/edgepos/edgesync/internal/connectivity"
	"github.com/edgepos/edgesync/internal/critical"
	"github.com/edgepos/edgesync/internal/database"
	gatewayUsecase "github.com/edgepos/edgesync/internal/gateway/usecase"
	internalHTTP "github.com/edgepos/edgesync/internal/http"
	"github.com/edgepos/edgesync/internal/metrics"
	outboxUsecase "github.com/edgepos/edgesync/internal/outbox/usecase"
	"github.com/edgepos/edgesync/internal/replica"
	"github.com/edgepos/edgesync/internal/syncer"
	"github.com/edgepos/edgesync/internal/transport"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB
	clock  clockwork.Clock

	// Managers
	txManager database.TxManager

	// Metrics
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	metricsServer   *internalHTTP.MetricsServer

	// Node-side repositories
	entryRepo       outboxUsecase.EntryRepository
	idempotencyRepo outboxUsecase.IdempotencyRepository
	criticalRepo    outboxUsecase.CriticalRepository
	watermarkRepo   outboxUsecase.WatermarkRepository
	conflictRepo    conflictUsecase.ConflictRepository
	replicaStore    replica.Store

	// Node-side use cases and engines
	outboxUseCase   outboxUsecase.OutboxUseCase
	conflictUseCase conflictUsecase.ConflictUseCase
	gatewayClient   transport.Transport
	monitor         *connectivity.HTTPMonitor
	criticalEngine  *critical.Engine
	replicaApplier  *replica.Applier
	syncEngine      *syncer.Engine
	statusServer    *internalHTTP.Server

	// Gateway-side repositories and use cases
	nodeRepo      gatewayUsecase.NodeRepository
	changeRepo    gatewayUsecase.ChangeRepository
	versionRepo   gatewayUsecase.VersionRepository
	keyService    gatewayUsecase.KeyService
	nodeUseCase   gatewayUsecase.NodeUseCase
	syncUseCase   gatewayUsecase.SyncUseCase
	gatewayServer *internalHTTP.Server

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	clockInit           sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	metricsServerInit   sync.Once
	entryRepoInit       sync.Once
	idempotencyRepoInit sync.Once
	criticalRepoInit    sync.Once
	watermarkRepoInit   sync.Once
	conflictRepoInit    sync.Once
	replicaStoreInit    sync.Once
	outboxUseCaseInit   sync.Once
	conflictUseCaseInit sync.Once
	gatewayClientInit   sync.Once
	monitorInit         sync.Once
	criticalEngineInit  sync.Once
	replicaApplierInit  sync.Once
	syncEngineInit      sync.Once
	statusServerInit    sync.Once
	nodeRepoInit        sync.Once
	changeRepoInit      sync.Once
	versionRepoInit     sync.Once
	keyServiceInit      sync.Once
	nodeUseCaseInit     sync.Once
	syncUseCaseInit     sync.Once
	gatewayServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Clock returns the wall clock shared by all components.
func (c *Container) Clock() clockwork.Clock {
	c.clockInit.Do(func() {
		c.clock = clockwork.NewRealClock()
	})
	return c.clock
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the OpenTelemetry metrics provider.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. When metrics are
// disabled a no-op recorder is returned so callers never need to branch.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// MetricsServer returns the Prometheus scrape endpoint server, or nil when
// metrics are disabled.
func (c *Container) MetricsServer() (*internalHTTP.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.statusServer != nil {
		if err := c.statusServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("status server shutdown: %w", err))
		}
	}

	if c.gatewayServer != nil {
		if err := c.gatewayServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("gateway server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler).With(slog.String("node_id", c.config.NodeID))
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

// initMetricsServer creates the metrics scrape server when metrics are enabled.
func (c *Container) initMetricsServer() (*internalHTTP.MetricsServer, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	return internalHTTP.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
	), nil
}

// retryPolicy builds the shared backoff policy from configuration.
func (c *Container) retryPolicy() syncer.RetryPolicy {
	return syncer.RetryPolicy{
		InitialInterval: c.config.RetryInitialInterval,
		MaxInterval:     c.config.RetryMaxInterval,
		MaxAttempts:     c.config.RetryMaxAttempts,
	}
}
