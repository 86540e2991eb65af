package infrastructure

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"threadline/internal/config"
	"threadline/internal/domain/ratelimit"
	"threadline/internal/infrastructure/cache"
	"threadline/internal/infrastructure/crontab"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/repository"
	"threadline/internal/infrastructure/database/transaction"
	"threadline/internal/infrastructure/identity"
	"threadline/internal/infrastructure/inference"
	"threadline/internal/infrastructure/logger"
)

const rateLimitMemoryKeys = 100_000

// ProvideConfig loads and provides the application configuration
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideLogger applies LOG_LEVEL and LOG_FORMAT to the process logger.
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log = logger.GetLogger()
		log.Warn().Err(err).Str("level", cfg.LogLevel).Str("format", cfg.LogFormat).Msg("invalid logger settings, keeping defaults")
	}
	return log
}

// ProvideDatabase provides a database connection
func ProvideDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		level = gormlogger.Info
	}
	db, err := database.Connect(database.Config{
		WriteDSN:    cfg.GetDatabaseWriteDSN(),
		ReadDSN:     cfg.DBPostgresqlRead1DSN,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
		LogLevel:    level,
	})
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		log.Info().Msg("Running database migrations...")
		if err := database.AutoMigrate(db); err != nil {
			log.Error().Err(err).Msg("Failed to run database migrations")
			return nil, err
		}
		log.Info().Msg("Database migrations completed successfully")
	}
	return db, nil
}

// ProvideTransactionDatabase provides a transaction database wrapper
func ProvideTransactionDatabase(db *gorm.DB) *transaction.Database {
	return transaction.NewDatabase(db)
}

// ProvideRedisCache connects to Redis when REDIS_URL is set and returns nil otherwise.
func ProvideRedisCache(cfg *config.Config, log zerolog.Logger) (*cache.RedisCache, error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set: rate-limit state and maintenance locks stay in process")
		return nil, nil
	}
	return cache.NewRedisCache(cfg.RedisURL, log)
}

// ProvideRateLimitStateStore shares GCRA state through Redis when available.
func ProvideRateLimitStateStore(redis *cache.RedisCache) (ratelimit.StateStore, error) {
	if redis == nil {
		return ratelimit.NewMemoryStore(rateLimitMemoryKeys)
	}
	return cache.NewGCRAStore(redis), nil
}

// Infrastructure holds the handles the HTTP layer probes for readiness.
type Infrastructure struct {
	DB     *gorm.DB
	Redis  *cache.RedisCache
	Logger zerolog.Logger
}

func NewInfrastructure(db *gorm.DB, redis *cache.RedisCache, logger zerolog.Logger) *Infrastructure {
	return &Infrastructure{DB: db, Redis: redis, Logger: logger}
}

// InfrastructureProvider provides all infrastructure dependencies
var InfrastructureProvider = wire.NewSet(
	// Config
	ProvideConfig,
	ProvideLogger,

	// Database
	ProvideDatabase,
	ProvideTransactionDatabase,

	// Repositories
	repository.RepositoryProvider,

	// Redis
	ProvideRedisCache,
	ProvideRateLimitStateStore,

	// Assistant backend
	inference.ProvideRuntime,

	// Identity provider
	identity.ProvideResolver,

	// Maintenance
	crontab.ProvideLocker,
	crontab.NewCrontab,

	NewInfrastructure,
)
