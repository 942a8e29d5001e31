package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
)

// Message types sent by the server in the "type" field.
const (
	TypeRegistered   = "registered"
	TypeGameStart    = "game_start"
	TypeYourTurn     = "your_turn"
	TypeWait         = "wait"
	TypeTurnResult   = "turn_result"
	TypeChat         = "chat"
	TypePlayerUpdate = "player_update"
	TypeGameLog      = "game_log"
	TypeError        = "error"
	TypeMapUpdate    = "map_update"
)

// Registered acknowledges a register or rejoin request. Status duplicates
// Type for clients that key on "status".
type Registered struct {
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	PlayerID int     `json:"player_id"`
	Avatar   *string `json:"avatar"`
}

// Notice carries a single human-readable message: game_start, your_turn,
// wait and error.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TurnResult announces a resolved action.
type TurnResult struct {
	Type       string  `json:"type"`
	Player     string  `json:"player"`
	Roll       int     `json:"roll"`
	Outcome    string  `json:"outcome"`
	DMResponse string  `json:"dm_response"`
	SceneImage *string `json:"scene_image"`
}

// Chat relays a table message.
type Chat struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// PlayerUpdate describes one player's sheet.
type PlayerUpdate struct {
	Type      string   `json:"type"`
	Character string   `json:"character"`
	Inventory []string `json:"inventory"`
	Avatar    *string  `json:"avatar"`
}

// GameLog carries the full session log.
type GameLog struct {
	Type string             `json:"type"`
	Log  []session.LogEntry `json:"log"`
}

// MapUpdate carries the current shared map.
type MapUpdate struct {
	Type     string `json:"type"`
	MapImage string `json:"map_image"`
}

// NewRegistered builds a registered reply; an empty avatar encodes as null.
func NewRegistered(playerID int, avatar string) Registered {
	return Registered{Type: TypeRegistered, Status: TypeRegistered, PlayerID: playerID, Avatar: optional(avatar)}
}

// NewGameStart builds the opening-scene broadcast.
func NewGameStart(opening string) Notice {
	return Notice{Type: TypeGameStart, Message: opening}
}

// NewYourTurn builds the notice sent to the current player.
func NewYourTurn() Notice {
	return Notice{Type: TypeYourTurn, Message: "It's your turn!"}
}

// NewWait builds the notice sent to everyone but the current player.
func NewWait(current string) Notice {
	return Notice{Type: TypeWait, Message: fmt.Sprintf("Waiting for %s to act.", current)}
}

// NewError builds an error reply.
func NewError(message string) Notice {
	return Notice{Type: TypeError, Message: message}
}

// NewTurnResult builds a turn_result broadcast; an empty image encodes as null.
func NewTurnResult(player string, roll int, outcome, narration, image string) TurnResult {
	return TurnResult{
		Type:       TypeTurnResult,
		Player:     player,
		Roll:       roll,
		Outcome:    outcome,
		DMResponse: narration,
		SceneImage: optional(image),
	}
}

// NewChat builds a chat broadcast.
func NewChat(sender, message string) Chat {
	return Chat{Type: TypeChat, Sender: sender, Message: message}
}

// NewPlayerUpdate builds a player_update reply.
//
// Postcondition: A nil inventory encodes as [].
func NewPlayerUpdate(character string, inventory []string, avatar string) PlayerUpdate {
	if inventory == nil {
		inventory = []string{}
	}
	return PlayerUpdate{Type: TypePlayerUpdate, Character: character, Inventory: inventory, Avatar: optional(avatar)}
}

// NewGameLog builds a game_log message.
//
// Postcondition: A nil log encodes as [].
func NewGameLog(log []session.LogEntry) GameLog {
	if log == nil {
		log = []session.LogEntry{}
	}
	return GameLog{Type: TypeGameLog, Log: log}
}

// NewMapUpdate builds a map_update broadcast.
func NewMapUpdate(mapImage string) MapUpdate {
	return MapUpdate{Type: TypeMapUpdate, MapImage: mapImage}
}

// Encode serializes a server message for the wire.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return data, nil
}

// MessageType returns the "type" (or, failing that, "status") of a framed
// server message.
func MessageType(raw []byte) string {
	if t := gjson.GetBytes(raw, "type"); t.Type == gjson.String {
		return t.Str
	}
	return gjson.GetBytes(raw, "status").String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
