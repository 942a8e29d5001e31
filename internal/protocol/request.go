package protocol

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Request actions sent by clients in the "action" field.
const (
	ActionRegister         = "register"
	ActionRejoin           = "rejoin"
	ActionPlay             = "play"
	ActionChat             = "chat"
	ActionRequestInventory = "request_inventory"
	ActionRequestGameLog   = "request_game_log"
)

// ErrMissingAction is returned for an object without a string "action" field.
var ErrMissingAction = errors.New(`missing "action" field`)

// Request is a decoded client request. Fields not carried by a given action
// are left zero.
type Request struct {
	Action       string
	Name         string
	Character    string
	PlayerID     int
	PlayerAction string
	Sender       string
	Message      string
}

// DecodeRequest extracts a Request from one framed JSON object.
//
// Unknown fields are ignored and numeric or string player ids are both accepted.
// Postcondition: Returns ErrMissingAction when "action" is absent or not a string.
func DecodeRequest(raw []byte) (Request, error) {
	if !gjson.ValidBytes(raw) {
		return Request{}, fmt.Errorf("decoding request: invalid json")
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return Request{}, fmt.Errorf("decoding request: %w", ErrNotObject)
	}
	action := res.Get("action")
	if action.Type != gjson.String || action.Str == "" {
		return Request{}, ErrMissingAction
	}
	return Request{
		Action:       action.Str,
		Name:         res.Get("name").String(),
		Character:    res.Get("character").String(),
		PlayerID:     int(res.Get("player_id").Int()),
		PlayerAction: res.Get("player_action").String(),
		Sender:       res.Get("sender").String(),
		Message:      res.Get("message").String(),
	}, nil
}

// Outgoing is the client-side encoding of a Request.
type Outgoing struct {
	Action       string `json:"action"`
	Name         string `json:"name,omitempty"`
	Character    string `json:"character,omitempty"`
	PlayerID     int    `json:"player_id,omitempty"`
	PlayerAction string `json:"player_action,omitempty"`
	Sender       string `json:"sender,omitempty"`
	Message      string `json:"message,omitempty"`
}
