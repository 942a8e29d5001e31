// Package turn decides whose action the table accepts. It holds no state of
// its own and performs no I/O; every function operates on a session.State
// the caller already holds exclusively.
//
// The rotation is the connected players in roster order. The cursor is reduced
// modulo the rotation size only when read, so Advance never needs to know how
// many players are seated. Roster changes re-anchor the cursor on the player
// who held the turn before the change.
//
// State.TurnHolder names the player the turn belongs to. While that player is
// connected they are the current player. When they are not, the cursor picks
// among the connected players and the turn returns to the holder on rejoin,
// unless another player has taken a turn in the meantime.
package turn

import (
	"errors"

	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
)

// ErrNotYourTurn is returned when a player acts out of turn.
var ErrNotYourTurn = errors.New("not your turn")

// Rotation returns the players eligible to act, in turn order.
func Rotation(st *session.State) []*session.Player {
	return st.Connected()
}

// CurrentPlayer returns the player whose action is accepted next.
//
// Postcondition: Returns (nil, false) when no player is connected.
func CurrentPlayer(st *session.State) (*session.Player, bool) {
	rot := Rotation(st)
	if len(rot) == 0 {
		return nil, false
	}
	return rot[index(st.TurnCursor, len(rot))], true
}

// Advance passes the turn to the next player in the rotation.
//
// Postcondition: TurnHolder names the new current player.
func Advance(st *session.State) {
	st.TurnCursor++
	if cur, ok := CurrentPlayer(st); ok {
		st.TurnHolder = cur.ID
	}
}

// IsPlayersTurn reports whether id holds the current turn.
func IsPlayersTurn(st *session.State, id int) bool {
	cur, ok := CurrentPlayer(st)
	return ok && cur.ID == id
}

// Check returns ErrNotYourTurn unless id holds the current turn.
func Check(st *session.State, id int) error {
	if !IsPlayersTurn(st, id) {
		return ErrNotYourTurn
	}
	return nil
}

// Join seats a newly registered player at the end of the rotation.
//
// Postcondition: The current player, if any, is unchanged.
func Join(st *session.State, name, character string, sink session.Sink) *session.Player {
	var p *session.Player
	preserve(st, func() {
		p = st.AddPlayer(name, character, sink)
	})
	return p
}

// Rejoin re-attaches a connection to a disconnected player.
//
// Postcondition: Returns session.ErrPlayerNotFound or session.ErrAlreadyConnected
// without side effects; on success the current player, if any, is unchanged.
func Rejoin(st *session.State, id int, sink session.Sink) (*session.Player, error) {
	p, ok := st.Player(id)
	if !ok {
		return nil, session.ErrPlayerNotFound
	}
	if p.Connected() {
		return nil, session.ErrAlreadyConnected
	}
	preserve(st, func() {
		p.Attach(sink)
	})
	return p, nil
}

// Leave removes id from the rotation by detaching its connection. The player
// record stays on the roster.
//
// Postcondition: If another player held the turn, that player still holds it.
// If id held the turn, the player after it in the rotation holds it. When id
// was the last connected player, TurnHolder is kept for the next rejoin.
func Leave(st *session.State, id int) {
	rot := Rotation(st)
	pos := position(rot, id)
	if pos < 0 {
		return
	}
	cur := index(st.TurnCursor, len(rot))
	rot[pos].Detach()

	remaining := len(rot) - 1
	switch {
	case remaining == 0:
		st.TurnCursor = 0
	case pos < cur:
		st.TurnCursor = cur - 1
	case pos == cur:
		st.TurnCursor = cur % remaining
	default:
		st.TurnCursor = cur
	}
	if remaining > 0 && id == st.TurnHolder {
		next, _ := CurrentPlayer(st)
		st.TurnHolder = next.ID
	}
}

// preserve applies mutate and re-anchors the cursor: on TurnHolder when that
// player is connected, otherwise on the player current before mutate, otherwise
// on the front of the rotation.
//
// Postcondition: TurnHolder names a roster player whenever anyone is connected.
func preserve(st *session.State, mutate func()) {
	prev, had := CurrentPlayer(st)
	mutate()

	rot := Rotation(st)
	st.TurnCursor = 0
	if i := position(rot, st.TurnHolder); i >= 0 {
		st.TurnCursor = i
	} else if had {
		if i := position(rot, prev.ID); i >= 0 {
			st.TurnCursor = i
		}
	}

	if _, known := st.Player(st.TurnHolder); !known && len(rot) > 0 {
		st.TurnHolder = rot[st.TurnCursor].ID
	}
}

func position(rot []*session.Player, id int) int {
	for i, p := range rot {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func index(cursor, n int) int {
	i := cursor % n
	if i < 0 {
		i += n
	}
	return i
}
