package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	conflictRepository "github.com/edgepos/edgesync/internal/conflict/repository"
	conflictUsecase "github.com/edgepos/edgesync/internal/conflict/usecase"
	"github.com/edgepos/edgesync/internal/connectivity"
	"github.com/edgepos/edgesync/internal/critical"
	internalHTTP "github.com/edgepos/edgesync/internal/http"
	outboxRepository "github.com/edgepos/edgesync/internal/outbox/repository"
	outboxUsecase "github.com/edgepos/edgesync/internal/outbox/usecase"
	"github.com/edgepos/edgesync/internal/replica"
	"github.com/edgepos/edgesync/internal/syncer"
	"github.com/edgepos/edgesync/internal/transport"
)

// EntryRepository returns the outbox entry repository based on database driver.
func (c *Container) EntryRepository() (outboxUsecase.EntryRepository, error) {
	var err error
	c.entryRepoInit.Do(func() {
		c.entryRepo, err = c.initEntryRepository()
		if err != nil {
			c.initErrors["entryRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["entryRepo"]; exists {
		return nil, storedErr
	}
	return c.entryRepo, nil
}

// IdempotencyRepository returns the applied-change ledger repository.
func (c *Container) IdempotencyRepository() (outboxUsecase.IdempotencyRepository, error) {
	var err error
	c.idempotencyRepoInit.Do(func() {
		c.idempotencyRepo, err = c.initIdempotencyRepository()
		if err != nil {
			c.initErrors["idempotencyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["idempotencyRepo"]; exists {
		return nil, storedErr
	}
	return c.idempotencyRepo, nil
}

// CriticalRepository returns the critical submission repository.
func (c *Container) CriticalRepository() (outboxUsecase.CriticalRepository, error) {
	var err error
	c.criticalRepoInit.Do(func() {
		c.criticalRepo, err = c.initCriticalRepository()
		if err != nil {
			c.initErrors["criticalRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["criticalRepo"]; exists {
		return nil, storedErr
	}
	return c.criticalRepo, nil
}

// WatermarkRepository returns the inbound feed cursor repository.
func (c *Container) WatermarkRepository() (outboxUsecase.WatermarkRepository, error) {
	var err error
	c.watermarkRepoInit.Do(func() {
		c.watermarkRepo, err = c.initWatermarkRepository()
		if err != nil {
			c.initErrors["watermarkRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["watermarkRepo"]; exists {
		return nil, storedErr
	}
	return c.watermarkRepo, nil
}

// ConflictRepository returns the conflict record repository.
func (c *Container) ConflictRepository() (conflictUsecase.ConflictRepository, error) {
	var err error
	c.conflictRepoInit.Do(func() {
		c.conflictRepo, err = c.initConflictRepository()
		if err != nil {
			c.initErrors["conflictRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["conflictRepo"]; exists {
		return nil, storedErr
	}
	return c.conflictRepo, nil
}

// ReplicaStore returns the local master-data mirror store.
func (c *Container) ReplicaStore() (replica.Store, error) {
	var err error
	c.replicaStoreInit.Do(func() {
		c.replicaStore, err = c.initReplicaStore()
		if err != nil {
			c.initErrors["replicaStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["replicaStore"]; exists {
		return nil, storedErr
	}
	return c.replicaStore, nil
}

// OutboxUseCase returns the outbox use case instance.
func (c *Container) OutboxUseCase() (outboxUsecase.OutboxUseCase, error) {
	var err error
	c.outboxUseCaseInit.Do(func() {
		c.outboxUseCase, err = c.initOutboxUseCase()
		if err != nil {
			c.initErrors["outboxUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxUseCase"]; exists {
		return nil, storedErr
	}
	return c.outboxUseCase, nil
}

// ConflictUseCase returns the conflict resolver use case.
func (c *Container) ConflictUseCase() (conflictUsecase.ConflictUseCase, error) {
	var err error
	c.conflictUseCaseInit.Do(func() {
		c.conflictUseCase, err = c.initConflictUseCase()
		if err != nil {
			c.initErrors["conflictUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["conflictUseCase"]; exists {
		return nil, storedErr
	}
	return c.conflictUseCase, nil
}

// GatewayClient returns the HTTP transport to the central gateway.
func (c *Container) GatewayClient() (transport.Transport, error) {
	var err error
	c.gatewayClientInit.Do(func() {
		c.gatewayClient, err = c.initGatewayClient()
		if err != nil {
			c.initErrors["gatewayClient"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["gatewayClient"]; exists {
		return nil, storedErr
	}
	return c.gatewayClient, nil
}

// ConnectivityMonitor returns the gateway reachability monitor.
func (c *Container) ConnectivityMonitor() (*connectivity.HTTPMonitor, error) {
	var err error
	c.monitorInit.Do(func() {
		c.monitor, err = c.initConnectivityMonitor()
		if err != nil {
			c.initErrors["monitor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["monitor"]; exists {
		return nil, storedErr
	}
	return c.monitor, nil
}

// CriticalEngine returns the query-before-retry delivery engine.
func (c *Container) CriticalEngine() (*critical.Engine, error) {
	var err error
	c.criticalEngineInit.Do(func() {
		c.criticalEngine, err = c.initCriticalEngine()
		if err != nil {
			c.initErrors["criticalEngine"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["criticalEngine"]; exists {
		return nil, storedErr
	}
	return c.criticalEngine, nil
}

// ReplicaApplier returns the inbound change applier.
func (c *Container) ReplicaApplier() (*replica.Applier, error) {
	var err error
	c.replicaApplierInit.Do(func() {
		c.replicaApplier, err = c.initReplicaApplier()
		if err != nil {
			c.initErrors["replicaApplier"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["replicaApplier"]; exists {
		return nil, storedErr
	}
	return c.replicaApplier, nil
}

// SyncEngine returns the sync worker engine.
func (c *Container) SyncEngine() (*syncer.Engine, error) {
	var err error
	c.syncEngineInit.Do(func() {
		c.syncEngine, err = c.initSyncEngine()
		if err != nil {
			c.initErrors["syncEngine"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["syncEngine"]; exists {
		return nil, storedErr
	}
	return c.syncEngine, nil
}

// StatusServer returns the node-local status API server.
func (c *Container) StatusServer() (*internalHTTP.Server, error) {
	var err error
	c.statusServerInit.Do(func() {
		c.statusServer, err = c.initStatusServer()
		if err != nil {
			c.initErrors["statusServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["statusServer"]; exists {
		return nil, storedErr
	}
	return c.statusServer, nil
}

// initEntryRepository creates the outbox entry repository based on the database driver.
func (c *Container) initEntryRepository() (outboxUsecase.EntryRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for entry repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return outboxRepository.NewSQLiteEntryRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLEntryRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initIdempotencyRepository creates the idempotency ledger repository.
func (c *Container) initIdempotencyRepository() (outboxUsecase.IdempotencyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for idempotency repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return outboxRepository.NewSQLiteIdempotencyRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLIdempotencyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initCriticalRepository creates the critical submission repository.
func (c *Container) initCriticalRepository() (outboxUsecase.CriticalRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for critical repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return outboxRepository.NewSQLiteCriticalRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLCriticalRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initWatermarkRepository creates the watermark repository.
func (c *Container) initWatermarkRepository() (outboxUsecase.WatermarkRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for watermark repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return outboxRepository.NewSQLiteWatermarkRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLWatermarkRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initConflictRepository creates the conflict record repository.
func (c *Container) initConflictRepository() (conflictUsecase.ConflictRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for conflict repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return conflictRepository.NewSQLiteConflictRepository(db), nil
	case "postgres":
		return conflictRepository.NewPostgreSQLConflictRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initReplicaStore creates the master-data mirror store.
func (c *Container) initReplicaStore() (replica.Store, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for replica store: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return replica.NewSQLiteStore(db), nil
	case "postgres":
		return replica.NewPostgreSQLStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxUseCase creates the outbox use case with all its dependencies.
func (c *Container) initOutboxUseCase() (outboxUsecase.OutboxUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}

	entryRepo, err := c.EntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry repository for outbox use case: %w", err)
	}

	criticalRepo, err := c.CriticalRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get critical repository for outbox use case: %w", err)
	}

	baseUseCase := outboxUsecase.NewOutboxUseCase(
		txManager,
		entryRepo,
		criticalRepo,
		c.Clock(),
		c.config.CriticalEntityTypes,
		c.config.CriticalPriority,
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for outbox use case: %w", err)
		}
		return outboxUsecase.NewOutboxUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initConflictUseCase creates the conflict resolver with the configured policy table.
func (c *Container) initConflictUseCase() (conflictUsecase.ConflictUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for conflict use case: %w", err)
	}

	conflictRepo, err := c.ConflictRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict repository for conflict use case: %w", err)
	}

	entryRepo, err := c.EntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry repository for conflict use case: %w", err)
	}

	policies := conflictDomain.NewPolicyTable(
		c.config.ConflictPolicies,
		conflictDomain.Policy(c.config.ConflictPolicyDefault),
	)

	return conflictUsecase.NewConflictUseCase(
		txManager,
		conflictRepo,
		entryRepo,
		policies,
		c.config.NodeID,
		c.Clock(),
		c.Logger(),
	), nil
}

// initGatewayClient creates the outbound HTTP transport with optional pacing.
func (c *Container) initGatewayClient() (transport.Transport, error) {
	var limiter *rate.Limiter
	if c.config.RateLimitEnabled {
		limiter = rate.NewLimiter(
			rate.Limit(c.config.RateLimitRequestsPerSec),
			c.config.RateLimitBurst,
		)
	}

	return transport.NewHTTPTransport(
		c.config.GatewayURL,
		c.config.NodeID,
		c.config.NodeKey,
		c.config.GatewayTimeout,
		limiter,
	), nil
}

// initConnectivityMonitor creates the gateway reachability monitor.
func (c *Container) initConnectivityMonitor() (*connectivity.HTTPMonitor, error) {
	return connectivity.NewHTTPMonitor(
		c.config.GatewayURL+"/health",
		c.config.ProbeInterval,
		c.config.ProbeTimeout,
		c.config.OfflineAlertAge,
		c.Clock(),
		c.Logger(),
	), nil
}

// initCriticalEngine creates the critical submission engine.
func (c *Container) initCriticalEngine() (*critical.Engine, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for critical engine: %w", err)
	}

	gatewayClient, err := c.GatewayClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway client for critical engine: %w", err)
	}

	entryRepo, err := c.EntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry repository for critical engine: %w", err)
	}

	criticalRepo, err := c.CriticalRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get critical repository for critical engine: %w", err)
	}

	idempotencyRepo, err := c.IdempotencyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency repository for critical engine: %w", err)
	}

	return critical.NewEngine(
		txManager,
		gatewayClient,
		entryRepo,
		criticalRepo,
		idempotencyRepo,
		c.retryPolicy(),
		c.config.CriticalStatusWarnAfter,
		c.config.GatewayCriticalTimeout,
		c.Clock(),
		c.Logger(),
	), nil
}

// initReplicaApplier creates the inbound change applier.
func (c *Container) initReplicaApplier() (*replica.Applier, error) {
	replicaStore, err := c.ReplicaStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get replica store for replica applier: %w", err)
	}

	entryRepo, err := c.EntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry repository for replica applier: %w", err)
	}

	conflictUseCase, err := c.ConflictUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict use case for replica applier: %w", err)
	}

	return replica.NewApplier(
		replicaStore,
		entryRepo,
		conflictUseCase,
		c.Clock(),
		c.Logger(),
	), nil
}

// initSyncEngine creates the sync worker engine with all its dependencies.
func (c *Container) initSyncEngine() (*syncer.Engine, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for sync engine: %w", err)
	}

	entryRepo, err := c.EntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry repository for sync engine: %w", err)
	}

	idempotencyRepo, err := c.IdempotencyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency repository for sync engine: %w", err)
	}

	watermarkRepo, err := c.WatermarkRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark repository for sync engine: %w", err)
	}

	gatewayClient, err := c.GatewayClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway client for sync engine: %w", err)
	}

	conflictUseCase, err := c.ConflictUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict use case for sync engine: %w", err)
	}

	criticalEngine, err := c.CriticalEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to get critical engine for sync engine: %w", err)
	}

	monitor, err := c.ConnectivityMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get connectivity monitor for sync engine: %w", err)
	}

	replicaApplier, err := c.ReplicaApplier()
	if err != nil {
		return nil, fmt.Errorf("failed to get replica applier for sync engine: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for sync engine: %w", err)
	}

	engineConfig := syncer.Config{
		NodeID:              c.config.NodeID,
		PoolSize:            c.config.WorkerPoolSize,
		BatchSize:           c.config.WorkerBatchSize,
		Interval:            c.config.WorkerInterval,
		LeaseDuration:       c.config.WorkerLeaseDuration,
		PullEnabled:         c.config.PullEnabled,
		PullInterval:        c.config.PullInterval,
		CriticalEntityTypes: c.config.CriticalEntityTypes,
		OfflineAlertAge:     c.config.OfflineAlertAge,
		Retry:               c.retryPolicy(),
	}

	return syncer.NewEngine(
		engineConfig,
		txManager,
		entryRepo,
		idempotencyRepo,
		watermarkRepo,
		gatewayClient,
		conflictUseCase,
		criticalEngine,
		monitor,
		replicaApplier,
		c.Clock(),
		c.Logger(),
		businessMetrics,
	), nil
}

// initStatusServer creates the node status API server with all its routes.
func (c *Container) initStatusServer() (*internalHTTP.Server, error) {
	gin.SetMode(c.config.GetGinMode())

	logger := c.Logger()

	outboxUseCase, err := c.OutboxUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox use case for status server: %w", err)
	}

	conflictUseCase, err := c.ConflictUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict use case for status server: %w", err)
	}

	monitor, err := c.ConnectivityMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get connectivity monitor for status server: %w", err)
	}

	corsMiddleware := internalHTTP.CreateCORSMiddleware(
		c.config.CORSEnabled,
		c.config.CORSAllowOrigins,
		logger,
	)

	router := internalHTTP.NewRouter(context.Background(), logger, corsMiddleware)
	statusHandler := internalHTTP.NewStatusHandler(outboxUseCase, conflictUseCase, monitor, logger)
	statusHandler.RegisterRoutes(router)

	return internalHTTP.NewServer(
		c.config.ServerHost,
		c.config.ServerPort,
		logger,
		router,
	), nil
}
