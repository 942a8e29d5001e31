// Package sqlite provides a SQLite-backed campaign journal.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/dungeonmaster/internal/journal"
	"github.com/cory-johannsen/dungeonmaster/internal/storage/sqlite/migrations"
)

const timeLayout = time.RFC3339Nano

// Journal persists campaign history in a single SQLite file.
type Journal struct {
	db *sql.DB
}

var _ journal.Journal = (*Journal)(nil)

// Open opens (creating if needed) the journal at path and applies embedded
// migrations. The special path ":memory:" opens a private in-memory database.
//
// Postcondition: Returns a migrated Journal or a non-nil error.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite journal: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite journal: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// RecordPlayer upserts p.
func (j *Journal) RecordPlayer(ctx context.Context, p journal.Player) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO players (id, name, character_details, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			character_details = excluded.character_details`,
		p.ID, p.Name, p.Character, journal.Stamp(time.Time{}).Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording player %d: %w", p.ID, err)
	}
	return nil
}

// RecordRoll appends r.
func (j *Journal) RecordRoll(ctx context.Context, r journal.Roll) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO dice_rolls (player_id, action, roll, outcome, rolled_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.PlayerID, r.Action, r.Roll, r.Outcome, journal.Stamp(r.At).Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording roll: %w", err)
	}
	return nil
}

// RecordMemory appends m.
func (j *Journal) RecordMemory(ctx context.Context, m journal.Memory) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO memories (recorded_at, keywords, summary, details)
		VALUES (?, ?, ?, ?)`,
		journal.Stamp(m.At).Format(timeLayout), m.Keywords, m.Summary, m.Details,
	)
	if err != nil {
		return fmt.Errorf("recording memory: %w", err)
	}
	return nil
}

// QueryMemories returns up to limit memories tagged with keyword, newest first.
// A non-positive limit returns every match.
func (j *Journal) QueryMemories(ctx context.Context, keyword string, limit int) ([]journal.Memory, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT recorded_at, keywords, summary, details
		FROM memories
		WHERE lower(keywords) LIKE '%' || lower(?) || '%'
		ORDER BY id DESC
		LIMIT ?`,
		keyword, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var out []journal.Memory
	for rows.Next() {
		var (
			m  journal.Memory
			at string
		)
		if err := rows.Scan(&at, &m.Keywords, &m.Summary, &m.Details); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		if m.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parsing memory time %q: %w", at, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
