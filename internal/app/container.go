// Package app wires repositories, adapters and services into runnable
// containers for the CLI and the worker.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite" // sqlite driver for local mode

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	auditpersistence "github.com/qzwhatnext/qzwhatnext/internal/audit/infrastructure/persistence"
	calendarapp "github.com/qzwhatnext/qzwhatnext/internal/calendar/application"
	calendardomain "github.com/qzwhatnext/qzwhatnext/internal/calendar/domain"
	calendarinfra "github.com/qzwhatnext/qzwhatnext/internal/calendar/infrastructure"
	"github.com/qzwhatnext/qzwhatnext/internal/calendar/infrastructure/google"
	identityapp "github.com/qzwhatnext/qzwhatnext/internal/identity/application"
	identitydomain "github.com/qzwhatnext/qzwhatnext/internal/identity/domain"
	identitypersistence "github.com/qzwhatnext/qzwhatnext/internal/identity/infrastructure/persistence"
	inferenceapp "github.com/qzwhatnext/qzwhatnext/internal/inference/application"
	inferencedomain "github.com/qzwhatnext/qzwhatnext/internal/inference/domain"
	inferenceinfra "github.com/qzwhatnext/qzwhatnext/internal/inference/infrastructure"
	recurrencedomain "github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
	recurrencepersistence "github.com/qzwhatnext/qzwhatnext/internal/recurrence/infrastructure/persistence"
	schedulingapp "github.com/qzwhatnext/qzwhatnext/internal/scheduling/application"
	schedulingdomain "github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	schedulinginfra "github.com/qzwhatnext/qzwhatnext/internal/scheduling/infrastructure"
	schedulingpersistence "github.com/qzwhatnext/qzwhatnext/internal/scheduling/infrastructure/persistence"
	sharedapp "github.com/qzwhatnext/qzwhatnext/internal/shared/application"
	"github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/eventbus"
	"github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/migrations"
	sharedpersistence "github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/persistence"
	taskcommands "github.com/qzwhatnext/qzwhatnext/internal/tasks/application/commands"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
	taskpersistence "github.com/qzwhatnext/qzwhatnext/internal/tasks/infrastructure/persistence"
	"github.com/qzwhatnext/qzwhatnext/pkg/config"
)

// localUserID is the deterministic account used in local mode so tasks
// stored by one run are visible to the next.
var localUserID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("qzwhatnext.local/user"))

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Connections
	DB          *pgxpool.Pool
	SQLiteDB    *sql.DB
	RedisClient *redis.Client

	// Repositories
	Users      identitydomain.UserRepository
	Tokens     identitydomain.AutomationTokenRepository
	Tasks      taskdomain.TaskRepository
	Series     recurrencedomain.SeriesRepository
	TimeBlocks recurrencedomain.TimeBlockRepository
	Blocks     schedulingdomain.BlockRepository
	AuditLog   auditdomain.Repository

	// Messaging
	EventPublisher    eventbus.Publisher
	InProcessEventBus *eventbus.InProcessEventBus

	// Unit of Work
	UnitOfWork sharedapp.UnitOfWork

	// Infrastructure shared by services
	RebuildLock   schedulingapp.RebuildLock
	SnapshotCache calendarapp.SnapshotCache
	ClientSource  calendardomain.ClientSource
	Adapter       inferencedomain.Adapter

	// Services
	Identity        *identityapp.Service
	TaskHandler     *taskcommands.Handler
	Availability    *calendarapp.AvailabilityProvider
	Synchronizer    *calendarapp.Synchronizer
	Pipeline        *schedulingapp.Pipeline
	Coordinator     *schedulingapp.Coordinator
	RebuildConsumer *schedulinginfra.RebuildConsumer

	// DefaultUserID is the account CLI commands act on when no --user
	// flag is given. Nil when unset.
	DefaultUserID uuid.UUID
}

// NewContainer creates the full container against PostgreSQL, Redis and
// RabbitMQ. In development, Redis and RabbitMQ fall back to in-process
// implementations when unreachable.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	c.DB = pool
	logger.Info("connected to database")

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c.Users = identitypersistence.NewPostgresUserRepository(pool)
	c.Tokens = identitypersistence.NewPostgresTokenRepository(pool)
	c.Tasks = taskpersistence.NewPostgresTaskRepository(pool)
	c.Series = recurrencepersistence.NewPostgresSeriesRepository(pool)
	c.TimeBlocks = recurrencepersistence.NewPostgresTimeBlockRepository(pool)
	c.Blocks = schedulingpersistence.NewPostgresBlockRepository(pool)
	c.AuditLog = auditpersistence.NewPostgresAuditRepository(pool)
	c.UnitOfWork = sharedpersistence.NewPgxUnitOfWork(pool)

	// Redis backs the rebuild lock and the availability snapshot cache.
	// Development tolerates its absence; other environments do not.
	if err := c.connectRedis(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if c.RedisClient != nil {
		c.RebuildLock = schedulinginfra.NewRedisRebuildLock(c.RedisClient)
		c.SnapshotCache = calendarinfra.NewRedisSnapshotCache(c.RedisClient)
	} else {
		c.RebuildLock = schedulingapp.NewMemoryRebuildLock()
		c.SnapshotCache = calendarapp.NewMemorySnapshotCache()
	}

	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		c.EventPublisher = eventbus.NewNoopPublisher(logger)
	} else {
		c.EventPublisher = publisher
	}

	c.ClientSource = buildClientSource(cfg, logger)
	c.Adapter = buildAdapter(cfg, logger)
	c.wireServices()

	if cfg.UserID != "" {
		id, err := uuid.Parse(cfg.UserID)
		if err != nil {
			logger.Warn("invalid QZWN_USER_ID, ignoring", "value", cfg.UserID)
		} else {
			c.DefaultUserID = id
		}
	}

	return c, nil
}

// NewLocalContainer creates a container that runs without PostgreSQL,
// Redis or RabbitMQ: tasks persist to SQLite, everything else is held in
// memory and events dispatch in process.
func NewLocalContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	taskRepo := taskpersistence.NewSQLiteTaskRepository(db)
	if err := taskRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize SQLite schema: %w", err)
	}
	c.SQLiteDB = db
	c.Tasks = taskRepo

	c.Users = identitypersistence.NewMemoryUserRepository()
	c.Tokens = identitypersistence.NewMemoryTokenRepository()
	c.Series = recurrencepersistence.NewMemorySeriesRepository()
	c.TimeBlocks = recurrencepersistence.NewMemoryTimeBlockRepository()
	c.Blocks = schedulingpersistence.NewMemoryBlockRepository()
	c.AuditLog = auditpersistence.NewMemoryAuditRepository()
	c.UnitOfWork = sharedpersistence.NoopUnitOfWork{}

	c.RebuildLock = schedulingapp.NewMemoryRebuildLock()
	c.SnapshotCache = calendarapp.NewMemorySnapshotCache()

	c.InProcessEventBus = eventbus.NewInProcessEventBus(logger)
	c.EventPublisher = c.InProcessEventBus

	c.ClientSource = buildClientSource(cfg, logger)
	c.Adapter = buildAdapter(cfg, logger)
	c.wireServices()

	// Task writes trigger rebuilds synchronously in local mode.
	c.InProcessEventBus.RegisterConsumer(c.RebuildConsumer)

	if err := c.ensureLocalUser(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("local mode container initialized", "database", cfg.SQLitePath)
	return c, nil
}

// wireServices builds the application services from whatever repositories
// and infrastructure the mode-specific constructor chose.
func (c *Container) wireServices() {
	cfg := c.Config
	logger := c.Logger

	c.Identity = identityapp.NewService(c.Users, c.Tokens, logger)

	c.TaskHandler = taskcommands.NewHandler(
		c.Tasks,
		c.Blocks,
		auditapp.NewEmitter(c.AuditLog),
		c.UnitOfWork,
		c.EventPublisher,
		logger,
	)

	c.Availability = calendarapp.NewAvailabilityProvider(
		c.ClientSource,
		c.SnapshotCache,
		cfg.AvailabilitySnapshotMaxAge,
		logger,
	)

	c.Synchronizer = calendarapp.NewSynchronizer(
		c.ClientSource,
		c.Blocks,
		c.Tasks,
		auditapp.NewEmitter(c.AuditLog),
		c.UnitOfWork,
		cfg.Horizon(),
		logger,
	)

	c.Pipeline = schedulingapp.NewPipeline(
		schedulingapp.PipelineConfig{
			Horizon:     cfg.Horizon(),
			Granularity: cfg.SchedulingGranularity,
			Tier:        schedulingdomain.TierConfig{ImpactThreshold: cfg.ImpactTierThreshold},
			Policy: inferenceapp.Policy{
				ConfidenceThreshold:        cfg.ConfidenceThreshold,
				TierChangeConfirmThreshold: cfg.TierChangeConfirmThreshold,
			},
		},
		c.Users,
		c.Tasks,
		c.Series,
		c.TimeBlocks,
		c.Blocks,
		c.Adapter,
		c.Availability,
		auditapp.NewEmitter(c.AuditLog),
		c.UnitOfWork,
		logger,
	)

	c.Coordinator = schedulingapp.NewCoordinator(c.Pipeline, c.RebuildLock, cfg.RebuildLockTTL, logger)
	c.RebuildConsumer = schedulinginfra.NewRebuildConsumer(c.Coordinator, logger)
}

// connectRedis establishes the Redis connection. Development downgrades
// failures to a warning and leaves RedisClient nil.
func (c *Container) connectRedis(ctx context.Context) error {
	cfg := c.Config
	if cfg.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, using in-memory lock and cache", "error", err)
		return nil
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, using in-memory lock and cache", "error", err)
		return nil
	}
	c.RedisClient = client
	c.Logger.Info("connected to Redis")
	return nil
}

// ensureLocalUser registers the deterministic local account if this is
// the first run against the in-memory user store.
func (c *Container) ensureLocalUser(ctx context.Context) error {
	if _, err := c.Users.FindByID(ctx, localUserID); err == nil {
		c.DefaultUserID = localUserID
		return nil
	}
	now := time.Now().UTC()
	user, err := identitydomain.RehydrateUser(localUserID, "local@qzwhatnext.local", "Local User", "UTC", now, now)
	if err != nil {
		return fmt.Errorf("failed to build local user: %w", err)
	}
	if err := c.Users.Save(ctx, user); err != nil {
		return fmt.Errorf("failed to create local user: %w", err)
	}
	c.DefaultUserID = localUserID
	return nil
}

// buildClientSource picks the calendar backend. Without an OAuth client
// configured there is no external calendar; an empty in-memory one keeps
// availability reads and sync passes working as no-ops.
func buildClientSource(cfg *config.Config, logger *slog.Logger) calendardomain.ClientSource {
	if cfg.GoogleOAuthClientID != "" && cfg.GoogleOAuthClientSecret != "" {
		return google.NewClientSource(
			google.OAuthConfig(cfg.GoogleOAuthClientID, cfg.GoogleOAuthClientSecret),
			google.NewFileTokenStore(cfg.GoogleOAuthTokenFile),
			cfg.CalendarID,
		)
	}
	logger.Info("no calendar OAuth client configured, using empty in-memory calendar")
	return calendarinfra.NewStaticClientSource(calendarinfra.NewMemoryClient())
}

// buildAdapter picks the inference backend. Without an API key every task
// keeps defaults, which the pipeline records as defaults_applied.
func buildAdapter(cfg *config.Config, logger *slog.Logger) inferencedomain.Adapter {
	if cfg.OpenAIAPIKey != "" {
		return inferenceinfra.NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.InferenceModel, cfg.InferenceTimeout, logger)
	}
	logger.Info("no inference API key configured, attribute inference disabled")
	return inferenceinfra.NewFixedAdapter(nil)
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.SQLiteDB != nil {
		if err := c.SQLiteDB.Close(); err != nil {
			c.Logger.Warn("error closing SQLite connection", "error", err)
		}
	}
}
