// Package session holds the in-memory model of a table session: the player
// roster, the turn cursor, inventories, avatars, the running log, and the
// shared map.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPlayerNotFound is returned when a lookup names an unknown player id.
var ErrPlayerNotFound = errors.New("player not found")

// ErrAlreadyConnected is returned when attaching a connection to a player
// that already has one.
var ErrAlreadyConnected = errors.New("player already connected")

// Sink receives serialized messages for one connected player.
//
// Implementations MUST NOT block; a full or closed sink returns an error.
type Sink interface {
	Push(data []byte) error
}

// LogKind classifies a log entry.
type LogKind string

const (
	LogSystem LogKind = "system"
	LogTurn   LogKind = "turn"
	LogChat   LogKind = "chat"
)

// LogEntry is one line of the running session log.
// It serializes as a two-element array: ["kind", "text"].
type LogEntry struct {
	Kind LogKind
	Text string
}

// MarshalJSON encodes the entry as [kind, text].
func (e LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{string(e.Kind), e.Text})
}

// UnmarshalJSON decodes an entry from [kind, text].
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding log entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decoding log entry: want 2 elements, got %d", len(pair))
	}
	e.Kind = LogKind(pair[0])
	e.Text = pair[1]
	return nil
}

// Player is a registered participant. Players are never removed from the
// roster; a disconnected player keeps its id and inventory with a nil sink.
type Player struct {
	// ID is assigned sequentially from 1 and never reused.
	ID int
	// Name is the display name given at registration.
	Name string
	// Character is the free-text character description.
	Character string
	// Inventory holds item names in the order they were granted.
	Inventory []string

	sink Sink
}

// Connected reports whether the player currently has a live connection.
func (p *Player) Connected() bool {
	return p.sink != nil
}

// Sink returns the player's connection sink, or nil when disconnected.
func (p *Player) Sink() Sink {
	return p.sink
}

// Attach binds a connection sink to the player.
func (p *Player) Attach(s Sink) {
	p.sink = s
}

// Detach clears the player's connection sink.
func (p *Player) Detach() {
	p.sink = nil
}

// State is the whole session model. State is not safe for concurrent use;
// Manager serializes all access.
type State struct {
	// Players is the roster in registration order, which is also turn order.
	Players []*Player
	// TurnCursor selects the current player modulo the live rotation size.
	TurnCursor int
	// TurnHolder is the id of the player the turn belongs to, or 0 before the
	// first registration. It survives the holder disconnecting, so the turn can
	// be handed back when they return.
	TurnHolder int
	// Started is set once the opening scene has been announced.
	Started bool
	// Log is the append-only session log.
	Log []LogEntry
	// Avatars maps player id to an opaque image reference.
	Avatars map[int]string
	// CurrentMap is the opaque reference of the shared map, or "".
	CurrentMap string
}

// NewState returns an empty session.
func NewState() *State {
	return &State{Avatars: make(map[int]string)}
}

// NextID returns the id the next registered player will receive.
//
// Postcondition: Returns max(existing ids) + 1, or 1 for an empty roster.
func (s *State) NextID() int {
	next := 1
	for _, p := range s.Players {
		if p.ID >= next {
			next = p.ID + 1
		}
	}
	return next
}

// AddPlayer appends a new connected player to the roster.
//
// Precondition: name must be non-empty.
// Postcondition: The returned player has the next sequential id and an empty inventory.
func (s *State) AddPlayer(name, character string, sink Sink) *Player {
	p := &Player{
		ID:        s.NextID(),
		Name:      name,
		Character: character,
		Inventory: []string{},
		sink:      sink,
	}
	s.Players = append(s.Players, p)
	return p
}

// Player returns the player with the given id.
//
// Postcondition: Returns (player, true) if found, or (nil, false) otherwise.
func (s *State) Player(id int) (*Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// PlayerOrPlaceholder returns the player with the given id, or a detached
// "Unknown" player when the id is not on the roster.
func (s *State) PlayerOrPlaceholder(id int) *Player {
	if p, ok := s.Player(id); ok {
		return p
	}
	return &Player{ID: id, Name: "Unknown", Inventory: []string{}}
}

// Connected returns the connected players in roster order.
func (s *State) Connected() []*Player {
	out := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Connected() {
			out = append(out, p)
		}
	}
	return out
}

// AppendLog adds an entry to the session log.
func (s *State) AppendLog(kind LogKind, text string) {
	s.Log = append(s.Log, LogEntry{Kind: kind, Text: text})
}

// AddItem appends an item to a player's inventory.
//
// Postcondition: Returns ErrPlayerNotFound if id is not on the roster.
func (s *State) AddItem(id int, item string) error {
	p, ok := s.Player(id)
	if !ok {
		return fmt.Errorf("adding item to player %d: %w", id, ErrPlayerNotFound)
	}
	p.Inventory = append(p.Inventory, item)
	return nil
}

// SetAvatar records the avatar reference for a player; "" removes it.
func (s *State) SetAvatar(id int, ref string) {
	if s.Avatars == nil {
		s.Avatars = make(map[int]string)
	}
	if ref == "" {
		delete(s.Avatars, id)
		return
	}
	s.Avatars[id] = ref
}

// LogCopy returns a copy of the log safe to hand to encoders outside the lock.
func (s *State) LogCopy() []LogEntry {
	out := make([]LogEntry, len(s.Log))
	copy(out, s.Log)
	return out
}
