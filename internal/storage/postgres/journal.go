package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dungeonmaster/internal/journal"
)

// JournalRepository provides campaign journal persistence.
type JournalRepository struct {
	db *pgxpool.Pool
	// owned is true when Close also closes db.
	owned bool
}

var _ journal.Journal = (*JournalRepository)(nil)

// NewJournalRepository creates a JournalRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db}
}

// NewOwnedJournalRepository creates a JournalRepository that closes db on Close.
func NewOwnedJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db, owned: true}
}

// RecordPlayer upserts p.
//
// Postcondition: The players row for p.ID holds p's name and character.
func (r *JournalRepository) RecordPlayer(ctx context.Context, p journal.Player) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO players (id, name, character_details)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET
		     name = EXCLUDED.name,
		     character_details = EXCLUDED.character_details`,
		p.ID, p.Name, p.Character,
	)
	if err != nil {
		return fmt.Errorf("recording player %d: %w", p.ID, err)
	}
	return nil
}

// RecordRoll appends r.
//
// Precondition: 1 <= r.Roll <= 20.
func (r *JournalRepository) RecordRoll(ctx context.Context, roll journal.Roll) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO dice_rolls (player_id, action, roll, outcome, rolled_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		roll.PlayerID, roll.Action, roll.Roll, roll.Outcome, journal.Stamp(roll.At),
	)
	if err != nil {
		return fmt.Errorf("recording roll: %w", err)
	}
	return nil
}

// RecordMemory appends m.
func (r *JournalRepository) RecordMemory(ctx context.Context, m journal.Memory) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO memories (recorded_at, keywords, summary, details)
		 VALUES ($1, $2, $3, $4)`,
		journal.Stamp(m.At), m.Keywords, m.Summary, m.Details,
	)
	if err != nil {
		return fmt.Errorf("recording memory: %w", err)
	}
	return nil
}

// QueryMemories returns up to limit memories whose keywords contain keyword,
// newest first. A non-positive limit returns every match.
func (r *JournalRepository) QueryMemories(ctx context.Context, keyword string, limit int) ([]journal.Memory, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.db.Query(ctx,
		`SELECT recorded_at, keywords, summary, details
		 FROM memories
		 WHERE keywords ILIKE '%' || $1::text || '%'
		 ORDER BY id DESC
		 LIMIT $2`,
		keyword, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var out []journal.Memory
	for rows.Next() {
		var m journal.Memory
		if err := rows.Scan(&m.At, &m.Keywords, &m.Summary, &m.Details); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		m.At = m.At.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return out, nil
}

// Close releases the pool if this repository owns it.
func (r *JournalRepository) Close() error {
	if r.owned {
		r.db.Close()
	}
	return nil
}
