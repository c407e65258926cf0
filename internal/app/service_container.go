package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/config"
	"transfer-backend/internal/db"
	"transfer-backend/internal/feed"
	"transfer-backend/internal/handlers"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/router"
	"transfer-backend/internal/services"
	"transfer-backend/internal/tokens"
	"transfer-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const dialTimeout = 15 * time.Second

// ServiceContainer owns every long-lived component of the server
type ServiceContainer struct {
	Config *config.Config

	// Database
	DB *gorm.DB

	// Repositories
	TransactionRepo repository.TransactionRepository
	RecipientRepo   repository.RecipientRepository

	// Chains
	ChainRegistry *utils.ChainRegistry
	TokenRegistry *tokens.Registry
	EVMChains     map[uint64]*clients.EVMChain
	Signers       services.StaticChains // chains with a loaded private key
	Observed      services.StaticChains // every connected chain

	// Change feed
	Transport *feed.Transport

	// Core Services
	Dispatcher       *services.Dispatcher
	LedgerWriter     *services.LedgerWriter
	LedgerStats      *services.LedgerStatsCollector
	ReceiptWatcher   *services.ReceiptWatcher
	TransferService  *services.TransferService
	QueryService     *services.QueryService
	RecipientService *services.RecipientService
	Monitoring       *services.MonitoringService

	// Push
	WebSocketPushService         *services.WebSocketPushService
	WebSocketSubscriptionManager *services.WebSocketSubscriptionManager
}

// NewServiceContainer connects and wires everything; Close releases it
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	logrus.Info("🚀 Initializing Service Container...")
	c := &ServiceContainer{Config: cfg}

	// 1. Database
	gdb, err := db.InitDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = gdb
	c.TransactionRepo = repository.NewTransactionRepository(gdb)
	c.RecipientRepo = repository.NewRecipientRepository(gdb)

	// 2. Chains and tokens
	if err := c.initChains(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize chains: %w", err)
	}

	// 3. Change feed
	transport, err := feed.OpenTransport(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open change feed: %w", err)
	}
	c.Transport = transport

	// 4. Core services
	if err := c.initCoreServices(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize core services: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"chains":    len(c.Observed),
		"signers":   len(c.Signers),
		"transport": transport.Name,
	}).Info("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initChains(ctx context.Context) error {
	c.ChainRegistry = c.Config.ChainRegistry()
	registry, err := tokens.NewRegistry(c.ChainRegistry, c.Config.Tokens)
	if err != nil {
		return err
	}
	c.TokenRegistry = registry

	c.EVMChains = make(map[uint64]*clients.EVMChain)
	c.Signers = services.StaticChains{}
	c.Observed = services.StaticChains{}

	keys := make([]string, 0, len(c.Config.Blockchain.Networks))
	for key := range c.Config.Blockchain.Networks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		network := c.Config.Blockchain.Networks[key]
		if !network.Enabled {
			continue
		}
		info, ok := c.ChainRegistry.Get(network.ChainID)
		if !ok {
			logrus.WithField("network", key).Warn("⚠️ network has no chain id, skipped")
			continue
		}

		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		chain, err := clients.DialEVMChain(dialCtx, info, network, c.Config.Watcher.PollIntervalDuration())
		cancel()
		if err != nil {
			// one unreachable network should not keep the others down
			logrus.WithError(err).WithField("network", key).Error("❌ failed to connect chain")
			continue
		}

		c.EVMChains[info.ChainID] = chain
		c.Observed[info.ChainID] = chain
		if chain.CanSign() {
			c.Signers[info.ChainID] = chain
		}
		logrus.WithFields(logrus.Fields{
			"network":  key,
			"chain_id": info.ChainID,
			"signer":   chain.CanSign(),
		}).Info("🔗 chain connected")
	}

	if len(c.Observed) == 0 {
		logrus.Warn("⚠️ no chain connected, submissions and tracking will fail")
	}
	return nil
}

func (c *ServiceContainer) initCoreServices() error {
	dispatcher, err := services.NewDispatcher(c.TokenRegistry)
	if err != nil {
		return err
	}
	c.Dispatcher = dispatcher

	c.WebSocketPushService = services.NewWebSocketPushService()
	c.WebSocketSubscriptionManager = services.NewWebSocketSubscriptionManager()

	c.LedgerStats = services.NewLedgerStatsCollector()
	c.LedgerWriter = services.NewLedgerWriter(c.TransactionRepo, c.RecipientRepo, c.Transport.Publisher)
	c.LedgerWriter.SetStatsCollector(c.LedgerStats)

	recorder := services.NewNotifyingRecorder(c.LedgerWriter, c.WebSocketPushService)
	c.ReceiptWatcher = services.NewReceiptWatcher(c.Observed, recorder, c.Config.Watcher)

	c.TransferService = services.NewTransferService(c.Signers, c.TokenRegistry, c.Dispatcher, c.ReceiptWatcher)
	c.QueryService = services.NewQueryService(c.TransactionRepo, c.RecipientRepo)
	c.RecipientService = services.NewRecipientService(c.RecipientRepo, c.Transport.Publisher)
	c.Monitoring = services.NewMonitoringService(c.DB, c.Signers)
	return nil
}

// FeedOptions client options from feed config
func (c *ServiceContainer) FeedOptions() feed.ClientOptions {
	return feed.ClientOptions{
		ResubscribeMin: time.Duration(c.Config.Feed.ResubscribeMin) * time.Second,
		ResubscribeMax: time.Duration(c.Config.Feed.ResubscribeMax) * time.Second,
	}
}

// Router builds the HTTP handlers over the container
func (c *ServiceContainer) Router() *gin.Engine {
	auth := handlers.NewAuthHandler(c.Config.Auth, c.ChainRegistry)
	return router.SetupRouter(c.Config, router.Handlers{
		Auth:      auth,
		AdminAuth: handlers.NewAdminAuthHandler(c.Config.Admin),
		AdminMetrics: handlers.NewAdminMetricsHandler(c.ReceiptWatcher, c.LedgerStats,
			c.WebSocketPushService, c.WebSocketSubscriptionManager),
		Health:       handlers.NewHealthHandler(c.DB, c.Transport.Name),
		Chains:       handlers.NewChainConfigHandler(c.ChainRegistry, c.TokenRegistry, c.Signers),
		Transfers:    handlers.NewTransferHandler(c.TransferService, c.ChainRegistry),
		Transactions: handlers.NewTransactionHandler(c.QueryService, c.ChainRegistry),
		Recipients:   handlers.NewRecipientHandler(c.QueryService, c.RecipientService, c.ChainRegistry),
		WebSocket: handlers.NewWebSocketHandler(auth, c.ChainRegistry, c.Transport.Source, c.QueryService,
			c.WebSocketPushService, c.WebSocketSubscriptionManager, c.FeedOptions(), router.OriginChecker(c.Config.CORS)),
	})
}

// StartBackground launches the timer-driven monitors
func (c *ServiceContainer) StartBackground() {
	if c.Monitoring != nil {
		c.Monitoring.Start()
	}
}

// Shutdown stops the watcher; unresolved submissions are abandoned without a record
func (c *ServiceContainer) Shutdown() {
	if c.Monitoring != nil {
		c.Monitoring.Stop()
	}
	if c.ReceiptWatcher != nil {
		inFlight := len(c.ReceiptWatcher.InFlight())
		c.ReceiptWatcher.Shutdown()
		logrus.WithField("abandoned", inFlight).Info("🛑 receipt watcher stopped")
	}
}

// Close releases connections
func (c *ServiceContainer) Close() {
	if c.Transport != nil {
		if err := c.Transport.Close(); err != nil {
			logrus.WithError(err).Warn("⚠️ failed to close change feed")
		}
	}
	for _, chain := range c.EVMChains {
		chain.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
