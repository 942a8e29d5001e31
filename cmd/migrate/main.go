// Package main applies the journal schema to the configured PostgreSQL database.
// The sqlite journal migrates itself when dmserver opens it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/cory-johannsen/dungeonmaster/internal/config"
	"github.com/cory-johannsen/dungeonmaster/migrations"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	start := time.Now()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Journal.Driver != "postgres" {
		log.Fatalf("journal.driver is %q; only the postgres journal is migrated with this tool", cfg.Journal.Driver)
	}

	m, err := newMigrator(cfg.Journal.Database)
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	changed, err := apply(m, *direction, *steps)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	version, dirty, _ := m.Version()
	if !changed {
		fmt.Printf("journal schema unchanged at version %d (dirty=%v) [%s]\n", version, dirty, time.Since(start))
		return
	}
	fmt.Printf("journal schema migrated %s to version %d (dirty=%v) [%s]\n", *direction, version, dirty, time.Since(start))
}

func newMigrator(db config.DatabaseConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, db.DSN())
}

// apply moves the schema steps migrations in direction, or all the way when
// steps is 0. changed is false when the schema was already there.
func apply(m *migrate.Migrate, direction string, steps int) (changed bool, err error) {
	switch {
	case direction == "up" && steps > 0:
		err = m.Steps(steps)
	case direction == "up":
		err = m.Up()
	case direction == "down" && steps > 0:
		err = m.Steps(-steps)
	case direction == "down":
		err = m.Down()
	default:
		return false, fmt.Errorf("invalid direction %q: must be up or down", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	return err == nil, err
}
