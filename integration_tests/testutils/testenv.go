package testutils

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.opentelemetry.io/otel/trace/noop"

	entrymigrations "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories/migrations"
	scoremigrations "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/judgeboard/integration_tests/containers"
	"github.com/Black-And-White-Club/judgeboard/internal/db/bundb"
)

// TestEnvironment holds the database shared by a package's integration tests.
type TestEnvironment struct {
	Ctx         context.Context
	Cancel      context.CancelFunc
	PgContainer *postgres.PostgresContainer
	DSN         string
	DB          *bun.DB
	Logger      *slog.Logger
}

// Tracer is a no-op tracer for services under test.
var Tracer = noop.NewTracerProvider().Tracer("integration")

// NewTestEnvironment starts Postgres and runs every module's migrations.
func NewTestEnvironment() (*TestEnvironment, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pgContainer, dsn, err := containers.SetupPostgresContainer(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	db, err := bundb.Open(ctx, dsn, logger)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		cancel()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = runMigrations(ctx, db)
	if err == nil {
		err = runRiverMigrations(ctx, dsn)
	}
	if err != nil {
		db.Close()
		_ = pgContainer.Terminate(ctx)
		cancel()
		return nil, err
	}

	return &TestEnvironment{
		Ctx:         ctx,
		Cancel:      cancel,
		PgContainer: pgContainer,
		DSN:         dsn,
		DB:          db,
		Logger:      logger,
	}, nil
}

// runMigrations applies module migrations in dependency order: scores
// reference entries.
func runMigrations(ctx context.Context, db *bun.DB) error {
	ordered := []struct {
		name       string
		migrations *migrate.Migrations
	}{
		{"entry", entrymigrations.Migrations},
		{"score", scoremigrations.Migrations},
	}
	for _, mod := range ordered {
		migrator := migrate.NewMigrator(db, mod.migrations,
			migrate.WithTableName(mod.name+"_migrations"),
			migrate.WithLocksTableName(mod.name+"_migration_locks"),
		)
		if err := migrator.Init(ctx); err != nil {
			return fmt.Errorf("failed to init %s migrations: %w", mod.name, err)
		}
		if _, err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", mod.name, err)
		}
	}
	return nil
}

// runRiverMigrations creates the job tables the score queue needs.
func runRiverMigrations(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("failed to run river migrations: %w", err)
	}
	return nil
}

// Reset empties every table between tests.
func (env *TestEnvironment) Reset(t *testing.T) {
	t.Helper()
	if _, err := env.DB.ExecContext(env.Ctx, `TRUNCATE score_items, scores, categories, entries, events, river_job CASCADE`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// Cleanup releases the database and container.
func (env *TestEnvironment) Cleanup() {
	if env.DB != nil {
		env.DB.Close()
	}
	if env.PgContainer != nil {
		_ = env.PgContainer.Terminate(context.Background())
	}
	env.Cancel()
}

// RunMain starts the shared environment for a package, or skips every test
// when containers are unavailable or -short is set.
func RunMain(m *testing.M, env **TestEnvironment) int {
	flag.Parse()
	if testing.Short() {
		fmt.Println("Skipping integration tests in -short mode")
		return 0
	}
	e, err := NewTestEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Skipping integration tests: %v\n", err)
		return 0
	}
	*env = e
	defer e.Cleanup()
	return m.Run()
}
