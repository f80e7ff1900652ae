package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	gatewayHTTP "github.com/edgepos/edgesync/internal/gateway/http"
	gatewayRepository "github.com/edgepos/edgesync/internal/gateway/repository"
	gatewayService "github.com/edgepos/edgesync/internal/gateway/service"
	gatewayUsecase "github.com/edgepos/edgesync/internal/gateway/usecase"
	internalHTTP "github.com/edgepos/edgesync/internal/http"
)

// NodeRepository returns the gateway node repository based on database driver.
func (c *Container) NodeRepository() (gatewayUsecase.NodeRepository, error) {
	var err error
	c.nodeRepoInit.Do(func() {
		c.nodeRepo, err = c.initNodeRepository()
		if err != nil {
			c.initErrors["nodeRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["nodeRepo"]; exists {
		return nil, storedErr
	}
	return c.nodeRepo, nil
}

// ChangeRepository returns the gateway applied-change repository.
func (c *Container) ChangeRepository() (gatewayUsecase.ChangeRepository, error) {
	var err error
	c.changeRepoInit.Do(func() {
		c.changeRepo, err = c.initChangeRepository()
		if err != nil {
			c.initErrors["changeRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["changeRepo"]; exists {
		return nil, storedErr
	}
	return c.changeRepo, nil
}

// VersionRepository returns the entity version register repository.
func (c *Container) VersionRepository() (gatewayUsecase.VersionRepository, error) {
	var err error
	c.versionRepoInit.Do(func() {
		c.versionRepo, err = c.initVersionRepository()
		if err != nil {
			c.initErrors["versionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["versionRepo"]; exists {
		return nil, storedErr
	}
	return c.versionRepo, nil
}

// KeyService returns the node key generation and verification service.
func (c *Container) KeyService() (gatewayUsecase.KeyService, error) {
	c.keyServiceInit.Do(func() {
		c.keyService = gatewayService.NewKeyService()
	})
	return c.keyService, nil
}

// NodeUseCase returns the node management use case.
func (c *Container) NodeUseCase() (gatewayUsecase.NodeUseCase, error) {
	var err error
	c.nodeUseCaseInit.Do(func() {
		c.nodeUseCase, err = c.initNodeUseCase()
		if err != nil {
			c.initErrors["nodeUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["nodeUseCase"]; exists {
		return nil, storedErr
	}
	return c.nodeUseCase, nil
}

// SyncUseCase returns the gateway change ingestion use case.
func (c *Container) SyncUseCase() (gatewayUsecase.SyncUseCase, error) {
	var err error
	c.syncUseCaseInit.Do(func() {
		c.syncUseCase, err = c.initSyncUseCase()
		if err != nil {
			c.initErrors["syncUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["syncUseCase"]; exists {
		return nil, storedErr
	}
	return c.syncUseCase, nil
}

// GatewayServer returns the central gateway HTTP server.
func (c *Container) GatewayServer() (*internalHTTP.Server, error) {
	var err error
	c.gatewayServerInit.Do(func() {
		c.gatewayServer, err = c.initGatewayServer()
		if err != nil {
			c.initErrors["gatewayServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["gatewayServer"]; exists {
		return nil, storedErr
	}
	return c.gatewayServer, nil
}

// initNodeRepository creates the node repository based on the database driver.
func (c *Container) initNodeRepository() (gatewayUsecase.NodeRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for node repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return gatewayRepository.NewSQLiteNodeRepository(db), nil
	case "postgres":
		return gatewayRepository.NewPostgreSQLNodeRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initChangeRepository creates the applied-change repository.
func (c *Container) initChangeRepository() (gatewayUsecase.ChangeRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for change repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return gatewayRepository.NewSQLiteChangeRepository(db), nil
	case "postgres":
		return gatewayRepository.NewPostgreSQLChangeRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initVersionRepository creates the entity version repository.
func (c *Container) initVersionRepository() (gatewayUsecase.VersionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for version repository: %w", err)
	}

	switch c.config.DBDriver {
	case "sqlite":
		return gatewayRepository.NewSQLiteVersionRepository(db), nil
	case "postgres":
		return gatewayRepository.NewPostgreSQLVersionRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initNodeUseCase creates the node management use case.
func (c *Container) initNodeUseCase() (gatewayUsecase.NodeUseCase, error) {
	nodeRepo, err := c.NodeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get node repository for node use case: %w", err)
	}

	keyService, err := c.KeyService()
	if err != nil {
		return nil, fmt.Errorf("failed to get key service for node use case: %w", err)
	}

	return gatewayUsecase.NewNodeUseCase(nodeRepo, keyService, c.Clock()), nil
}

// initSyncUseCase creates the change ingestion use case.
func (c *Container) initSyncUseCase() (gatewayUsecase.SyncUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for sync use case: %w", err)
	}

	changeRepo, err := c.ChangeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get change repository for sync use case: %w", err)
	}

	versionRepo, err := c.VersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get version repository for sync use case: %w", err)
	}

	baseUseCase := gatewayUsecase.NewSyncUseCase(
		txManager,
		changeRepo,
		versionRepo,
		c.Clock(),
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for sync use case: %w", err)
		}
		return gatewayUsecase.NewSyncUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initGatewayServer creates the gateway HTTP server with all its routes.
func (c *Container) initGatewayServer() (*internalHTTP.Server, error) {
	gin.SetMode(c.config.GetGinMode())

	logger := c.Logger()

	nodeUseCase, err := c.NodeUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get node use case for gateway server: %w", err)
	}

	syncUseCase, err := c.SyncUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync use case for gateway server: %w", err)
	}

	corsMiddleware := internalHTTP.CreateCORSMiddleware(
		c.config.CORSEnabled,
		c.config.CORSAllowOrigins,
		logger,
	)

	router := internalHTTP.NewRouter(context.Background(), logger, corsMiddleware)
	syncHandler := gatewayHTTP.NewSyncHandler(syncUseCase, logger)
	syncHandler.RegisterRoutes(router, gatewayHTTP.NodeAuthMiddleware(nodeUseCase, logger))

	return internalHTTP.NewServer(
		c.config.GatewayServerHost,
		c.config.GatewayServerPort,
		logger,
		router,
	), nil
}
