package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/armada/internal/common"
	"github.com/ternarybob/armada/internal/handlers"
	"github.com/ternarybob/armada/internal/interfaces"
	"github.com/ternarybob/armada/internal/services/audit"
	"github.com/ternarybob/armada/internal/services/auth"
	"github.com/ternarybob/armada/internal/services/broker"
	"github.com/ternarybob/armada/internal/services/orchestrator"
	"github.com/ternarybob/armada/internal/services/sampler"
	"github.com/ternarybob/armada/internal/services/scaler"
	"github.com/ternarybob/armada/internal/services/state"
)

// App holds all application components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Catalog *common.Catalog

	// Core services
	State        *state.SharedState
	AuditStore   interfaces.AuditStore
	Credentials  interfaces.CredentialStore
	Broker       interfaces.BrokerClient
	Orchestrator interfaces.OrchestratorClient
	Controller   *scaler.Controller
	Retention    *audit.Retention

	// HTTP handlers
	ReportHandler  *handlers.ReportHandler
	StatsHandler   *handlers.StatsHandler
	AuditHandler   *handlers.AuditHandler
	LogsHandler    *handlers.LogsHandler
	ClusterHandler *handlers.ClusterHandler
	WSHandler      *handlers.WebSocketHandler
	HealthHandler  *handlers.HealthHandler

	ctx       context.Context
	cancelCtx context.CancelFunc
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		State:  state.New(cfg.Scaler.MaxJobs),
	}

	catalog, err := common.LoadCatalog(cfg.Scaler.Catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load job catalog: %w", err)
	}
	app.Catalog = catalog

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("job_types", catalog.Len()).
		Int("max_jobs", cfg.Scaler.MaxJobs).
		Str("broker_mode", cfg.Broker.Mode).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the audit database and seeds the default dashboard user.
func (a *App) initDatabase() error {
	store, err := audit.Open(a.Config.Database.Path, a.Logger)
	if err != nil {
		return err
	}
	a.AuditStore = store

	creds := auth.NewCredentials(store.DB(), a.Config.Auth.DefaultUser, a.Config.Auth.DefaultPassword, a.Logger)
	if err := creds.SeedDefault(context.Background()); err != nil {
		return fmt.Errorf("failed to seed credentials: %w", err)
	}
	a.Credentials = creds

	a.Retention = audit.NewRetention(store, a.Config.Database.RetentionDays, a.Logger)
	return nil
}

// initServices wires the broker probe, the orchestrator client and the
// scaling controller.
func (a *App) initServices() error {
	switch a.Config.Broker.Mode {
	case "amqp":
		a.Broker = broker.NewAMQPClient(a.Config.Broker, a.Logger)
	case "management", "":
		a.Broker = broker.NewManagementClient(a.Config.Broker, a.Logger)
	default:
		return fmt.Errorf("unknown broker mode %q", a.Config.Broker.Mode)
	}

	orch, err := orchestrator.NewKubernetesClient(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Orchestrator = orch

	a.Controller = scaler.New(
		a.Config,
		a.Catalog,
		a.Broker,
		a.Orchestrator,
		a.AuditStore,
		sampler.NewHostSampler(a.Logger),
		a.State,
		a.Logger,
	)
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	limiter := rate.NewLimiter(
		rate.Limit(a.Config.Report.RateLimit),
		a.Config.Report.RateBurst,
	)

	a.ReportHandler = handlers.NewReportHandler(a.State, a.AuditStore, limiter, a.Logger)
	a.StatsHandler = handlers.NewStatsHandler(a.State, a.Logger)
	a.AuditHandler = handlers.NewAuditHandler(a.AuditStore, a.Config.Orchestrator.LogsHostPath, a.Logger)
	a.LogsHandler = handlers.NewLogsHandler(a.Orchestrator, a.Logger)
	a.ClusterHandler = handlers.NewClusterHandler(a.Orchestrator, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.State, a.Logger)
	a.HealthHandler = handlers.NewHealthHandler()

	// Dashboards get a fresh snapshot after every controller tick.
	a.Controller.OnTick(a.WSHandler.Broadcast)
}

// Start launches the scaling loop and the retention schedule.
func (a *App) Start() error {
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	if err := a.Retention.Start(); err != nil {
		return fmt.Errorf("failed to start retention schedule: %w", err)
	}
	go a.Controller.Run(a.ctx)

	return nil
}

// Close stops background work and releases all resources.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Stopping background loops")
		a.cancelCtx()
	}

	if a.Retention != nil {
		a.Retention.Stop()
	}

	if a.WSHandler != nil {
		a.WSHandler.CloseAll()
	}

	if a.AuditStore != nil {
		if err := a.AuditStore.Close(); err != nil {
			return fmt.Errorf("failed to close audit store: %w", err)
		}
		a.Logger.Info().Msg("Audit store closed")
	}

	return nil
}
