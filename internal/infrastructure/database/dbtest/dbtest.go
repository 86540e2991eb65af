// Package dbtest provides a migrated Postgres for repository tests.
//
// THREADLINE_TEST_DATABASE_URL selects an existing database. Without it a disposable
// container is started once per test binary; tests are skipped when no container
// runtime is reachable or when running with -short.
package dbtest

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"threadline/internal/domain/user"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
)

const EnvDatabaseURL = "THREADLINE_TEST_DATABASE_URL"

var (
	once    sync.Once
	shared  *gorm.DB
	openErr error
)

// Open returns a handle on the migrated test database.
func Open(t *testing.T) *transaction.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("repository tests need postgres")
	}
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
	}

	once.Do(func() {
		shared, openErr = connect(dsn)
	})
	if openErr != nil {
		t.Fatalf("open test database: %v", openErr)
	}
	return transaction.NewDatabase(shared)
}

func connect(dsn string) (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if dsn == "" {
		ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("threadline"),
			tcpostgres.WithUsername("threadline"),
			tcpostgres.WithPassword("threadline"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute)),
		)
		if err != nil {
			return nil, err
		}
		if dsn, err = ctr.ConnectionString(ctx, "sslmode=disable"); err != nil {
			return nil, err
		}
	}

	db, err := database.Connect(database.Config{
		WriteDSN:    dsn,
		MaxIdle:     2,
		MaxOpen:     16,
		MaxLifetime: time.Minute,
		LogLevel:    gormlogger.Silent,
	})
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewID returns an id that is unique across tests sharing one database.
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:18]
}

// SeedUser inserts a user row for foreign keys.
func SeedUser(t *testing.T, db *transaction.Database) string {
	t.Helper()
	now := time.Now().UTC()
	id := NewID("usr")
	row := dbschema.NewSchemaUser(&user.User{ID: id, Subject: "sub-" + id, CreatedAt: now, UpdatedAt: now})
	if err := db.GetTx(context.Background()).Create(row).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}
