// Package app wires configuration, storage, the event bus and every service
// into one graph shared by the HTTP server and escalationctl.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"complaintengine/config"
	"complaintengine/events"
	"complaintengine/metrics"
	"complaintengine/notification"
	"complaintengine/repository"
	"complaintengine/routes"
	"complaintengine/schema"
	"complaintengine/service"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App holds the wired dependency graph
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Bus      events.Bus
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Services routes.Services

	redis *redis.Client
}

// OpenDB opens and pings the configured database
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if cfg.Driver == schema.DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// LoadResolver reads the SLA table from file when configured, else the built-in defaults
func LoadResolver(cfg config.SLAConfig, logger *zap.Logger) (*service.SLAPolicyResolver, error) {
	table := config.DefaultSLATable()
	if cfg.RulesFile != "" {
		loaded, err := config.LoadSLATable(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		table = loaded
	}
	return service.NewSLAPolicyResolver(table, logger)
}

// New opens storage, ensures the schema and builds every service
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := OpenDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("database connection established", zap.String("driver", cfg.Database.Driver))

	if err := schema.InitializeDatabase(ctx, db, cfg.Database.Driver, logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := schema.ValidateRequiredColumns(ctx, db, cfg.Database.Driver, nil); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, DB: db}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	resolver, err := LoadResolver(cfg.SLA, logger)
	if err != nil {
		return fmt.Errorf("failed to load SLA rules: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bus, err := events.NewRedisBus(ctx, a.redis, cfg.Redis.Channel, logger)
		if err != nil {
			return err
		}
		a.Bus = bus
		logger.Info("using redis event bus", zap.String("addr", cfg.Redis.Addr))
	} else {
		a.Bus = events.NewMemoryBus(logger)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	// Initialize repositories
	complaintRepo := repository.NewComplaintRepository(a.DB)
	categoryRepo := repository.NewCategoryRepository(a.DB)
	employeeRepo := repository.NewEmployeeRepository(a.DB)
	assignmentRepo := repository.NewAssignmentRepository(a.DB)
	escalationRepo := repository.NewEscalationRepository(a.DB)
	userRepo := repository.NewUserRepository(a.DB)
	notificationRepo := repository.NewNotificationRepository(a.DB)
	preferenceRepo := repository.NewPreferenceRepository(a.DB)

	var push notification.PushProvider
	if cfg.Notification.PushProviderURL != "" {
		push = notification.NewHTTPPushProvider(cfg.Notification.PushProviderURL, cfg.Notification.PushProviderKey)
	} else {
		push = notification.NewLogPushProvider(logger)
	}
	senders := []notification.Sender{
		notification.NewEmailSender(cfg.Notification.SendGridAPIKey, cfg.Notification.EmailFrom, logger),
		notification.NewSMSSender(cfg.Notification.SMSGatewayURL, cfg.Notification.SMSAPIKey, logger),
	}

	// Initialize services
	ledger := service.NewLedgerService(a.DB, complaintRepo, assignmentRepo, employeeRepo, resolver, a.Bus, a.Metrics, logger)
	notifications := service.NewNotificationService(
		userRepo,
		preferenceRepo,
		notificationRepo,
		push,
		senders,
		cfg.Notification.Dispatcher(),
		a.Metrics,
		logger,
	)
	a.Services = routes.Services{
		Complaints: service.NewComplaintService(a.DB, complaintRepo, categoryRepo, resolver, a.Metrics, logger).
			WithIntakeLimits(repository.NewAbusePreventionRepository(a.DB), service.IntakeLimits{
				MaxPerDay:       cfg.Intake.MaxPerDay,
				DuplicateWindow: cfg.Intake.DuplicateWindow,
			}),
		Ledger:        ledger,
		Assignments:   service.NewAssignmentService(a.DB, complaintRepo, employeeRepo, assignmentRepo, ledger, a.Bus, a.Metrics, logger, cfg.Assignment.ClaimRetries),
		Escalations:   service.NewEscalationService(a.DB, complaintRepo, employeeRepo, escalationRepo, resolver, a.Bus, a.Metrics, logger),
		Notifications: notifications,
		Analytics:     service.NewAnalyticsService(complaintRepo, escalationRepo, logger),
		Directory:     service.NewDirectoryService(userRepo, employeeRepo, categoryRepo, logger),
		Resolver:      resolver,
		Users:         userRepo,
	}

	service.NewEventSubscriber(notifications, logger).Register(a.Bus)
	return nil
}

// Close releases the bus, redis and database
func (a *App) Close() {
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Logger.Warn("failed to close event bus", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
