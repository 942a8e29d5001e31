package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/config"
	"github.com/cory-johannsen/dungeonmaster/internal/journal"
	"github.com/cory-johannsen/dungeonmaster/internal/storage/postgres"
	"github.com/cory-johannsen/dungeonmaster/internal/storage/sqlite"
)

// openJournal opens the journal backend named by cfg.Driver.
//
// Postcondition: The postgres schema must already be applied with cmd/migrate;
// the sqlite backend migrates itself on open.
func openJournal(ctx context.Context, cfg config.JournalConfig, logger *zap.Logger) (journal.Journal, error) {
	start := time.Now()
	switch cfg.Driver {
	case "memory":
		logger.Warn("journal is in memory; campaign history will not survive a restart")
		return journal.NewInMemory(), nil

	case "sqlite":
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("creating journal directory: %w", err)
			}
		}
		j, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("journal opened",
			zap.String("driver", cfg.Driver),
			zap.String("path", cfg.SQLitePath),
			zap.Duration("elapsed", time.Since(start)),
		)
		return j, nil

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("journal opened",
			zap.String("driver", cfg.Driver),
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(start)),
		)
		return postgres.NewOwnedJournalRepository(pool), nil

	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}
