// Package journal defines the append-only record of a campaign: registered
// players, every die roll, and keyword-tagged memories the narrator can
// recall.
package journal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultMemoryLimit is the number of memories recalled for one prompt.
const DefaultMemoryLimit = 5

// Player is a registered participant as recorded in the journal.
type Player struct {
	ID        int
	Name      string
	Character string
}

// Roll is one resolved die roll.
type Roll struct {
	PlayerID int
	Action   string
	Roll     int
	Outcome  string
	At       time.Time
}

// Memory is a keyword-tagged event the narrator may recall later.
type Memory struct {
	// Keywords is a comma-separated tag list, e.g. "action,Aria".
	Keywords string
	Summary  string
	Details  string
	At       time.Time
}

// Journal records campaign history.
//
// Implementations MUST be safe for concurrent use.
type Journal interface {
	// RecordPlayer stores or replaces the player with p.ID.
	RecordPlayer(ctx context.Context, p Player) error
	// RecordRoll appends a roll.
	RecordRoll(ctx context.Context, r Roll) error
	// RecordMemory appends a memory.
	RecordMemory(ctx context.Context, m Memory) error
	// QueryMemories returns at most limit memories whose keywords contain
	// keyword, case-insensitively, newest first.
	QueryMemories(ctx context.Context, keyword string, limit int) ([]Memory, error)
	// Close releases the journal's resources.
	Close() error
}

// FormatMemories renders memories as the recall block of a narration prompt.
//
// Postcondition: Returns "" when mems is empty.
func FormatMemories(mems []Memory) string {
	if len(mems) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, m := range mems {
		fmt.Fprintf(&b, "- %s: %s\n", m.Keywords, m.Summary)
	}
	return b.String()
}

// Stamp returns t in UTC, or the current time when t is zero.
func Stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
