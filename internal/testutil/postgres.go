// Package testutil provides test helpers: a throwaway PostgreSQL journal
// database and a raw stream client for driving the table server.
package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/dungeonmaster/internal/config"
	"github.com/cory-johannsen/dungeonmaster/internal/storage/postgres"
	"github.com/cory-johannsen/dungeonmaster/migrations"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "journal"
	pgPassword = "journal"
	pgDatabase = "journal"
)

// JournalDB is a PostgreSQL container holding an empty journal database.
type JournalDB struct {
	Config config.DatabaseConfig
	Pool   *pgxpool.Pool
}

// StartJournalDB runs a PostgreSQL container for the duration of t.
//
// Precondition: Docker must be available.
// Postcondition: Returns a connected pool; the container and pool are
// released by t.Cleanup. Any failure fails the test.
func StartJournalDB(t *testing.T) *JournalDB {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolving container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("resolving container port: %v", err)
	}

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            pgUser,
		Password:        pgPassword,
		Name:            pgDatabase,
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres ready on %s:%d [%s]", cfg.Host, cfg.Port, time.Since(start))
	return &JournalDB{Config: cfg, Pool: pool}
}

// Migrate applies the embedded journal migrations, the same files cmd/migrate runs.
//
// Postcondition: The journal tables exist.
func (db *JournalDB) Migrate(t *testing.T) {
	t.Helper()
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		t.Fatalf("loading migrations: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, db.Config.DSN())
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("applying migrations: %v", err)
	}
}

// NewPool returns a pool on a freshly migrated journal database.
//
// Precondition: Docker must be available.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	db := StartJournalDB(t)
	db.Migrate(t)
	return db.Pool
}
