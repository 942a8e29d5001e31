// Package action resolves a single player action: the die outcome and the
// items the narration grants.
package action

import (
	"fmt"
	"strings"
	"unicode"
)

// Outcome is the die-determined result of an action.
type Outcome string

const (
	// Success is an automatic success on a natural 20.
	Success Outcome = "Success"
	// Failure is an automatic failure on a natural 1.
	Failure Outcome = "Failure"
	// Pending leaves the result to the narration.
	Pending Outcome = "Pending"
)

// Classify maps a d20 roll to its Outcome.
//
// Postcondition: Success iff roll == 20, Failure iff roll == 1, Pending otherwise.
func Classify(roll int) Outcome {
	switch roll {
	case 20:
		return Success
	case 1:
		return Failure
	default:
		return Pending
	}
}

// Record is the ephemeral result of one accepted turn. It is folded into the
// session log and discarded.
type Record struct {
	PlayerID  int
	Player    string
	Character string
	Action    string
	Roll      int
	Outcome   Outcome
	Narration string
	ImageRef  string
	Items     []string
}

const pickupMarker = "finds a"

// ExtractItems applies the legacy pickup heuristic to narration: the token
// following the last "finds a" or "finds an" becomes one granted item.
//
// The token is taken verbatim up to the next whitespace, so trailing
// punctuation is kept ("finds a sword." grants "sword.").
//
// Postcondition: Returns nil when the marker is absent or no token follows it.
func ExtractItems(narration string) []string {
	idx := strings.LastIndex(narration, pickupMarker)
	if idx < 0 {
		return nil
	}
	rest := narration[idx+len(pickupMarker):]
	if len(rest) >= 2 && rest[0] == 'n' && unicode.IsSpace(rune(rest[1])) {
		rest = rest[1:]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil
	}
	return []string{fields[0]}
}

// Summary renders the log line for an accepted turn.
func (r Record) Summary() string {
	who := r.Player
	if r.Character != "" {
		who = fmt.Sprintf("%s (%s)", r.Player, r.Character)
	}
	return fmt.Sprintf("%s rolled %d: %s -> %s\nDM: %s", who, r.Roll, r.Action, r.Outcome, r.Narration)
}
