package main

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
)

// parseLine maps one typed line to a request. ok is false for blank lines;
// quit is true for /quit.
func parseLine(line, sender string) (req protocol.Outgoing, quit, ok bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return req, false, false
	case line == "/quit":
		return req, true, false
	case line == "/inv":
		return protocol.Outgoing{Action: protocol.ActionRequestInventory}, false, true
	case line == "/log":
		return protocol.Outgoing{Action: protocol.ActionRequestGameLog}, false, true
	case strings.HasPrefix(line, "/chat "):
		msg := strings.TrimSpace(strings.TrimPrefix(line, "/chat "))
		return protocol.Outgoing{Action: protocol.ActionChat, Sender: sender, Message: msg}, false, msg != ""
	default:
		return protocol.Outgoing{Action: protocol.ActionPlay, PlayerAction: line}, false, true
	}
}

// render formats one server message for the terminal. Image payloads are
// summarized rather than printed.
func render(raw []byte) string {
	msg := gjson.ParseBytes(raw)
	switch protocol.MessageType(raw) {
	case protocol.TypeRegistered:
		return fmt.Sprintf("* registered as player %d%s", msg.Get("player_id").Int(), imageNote(msg.Get("avatar"), "avatar"))
	case protocol.TypeGameStart:
		return "=== " + msg.Get("message").String()
	case protocol.TypeYourTurn, protocol.TypeWait:
		return "* " + msg.Get("message").String()
	case protocol.TypeError:
		return "! " + msg.Get("message").String()
	case protocol.TypeTurnResult:
		return fmt.Sprintf("%s rolled %d (%s)%s\nDM: %s",
			msg.Get("player").String(),
			msg.Get("roll").Int(),
			msg.Get("outcome").String(),
			imageNote(msg.Get("scene_image"), "scene"),
			msg.Get("dm_response").String(),
		)
	case protocol.TypeChat:
		return fmt.Sprintf("<%s> %s", msg.Get("sender").String(), msg.Get("message").String())
	case protocol.TypePlayerUpdate:
		var items []string
		for _, it := range msg.Get("inventory").Array() {
			items = append(items, it.String())
		}
		inv := "empty"
		if len(items) > 0 {
			inv = strings.Join(items, ", ")
		}
		return fmt.Sprintf("* character: %s | inventory: %s", msg.Get("character").String(), inv)
	case protocol.TypeGameLog:
		var b strings.Builder
		b.WriteString("--- log ---")
		for _, e := range msg.Get("log").Array() {
			pair := e.Array()
			if len(pair) != 2 {
				continue
			}
			fmt.Fprintf(&b, "\n[%s] %s", pair[0].String(), pair[1].String())
		}
		return b.String()
	case protocol.TypeMapUpdate:
		return "* the map has changed" + imageNote(msg.Get("map_image"), "map")
	default:
		return ""
	}
}

func imageNote(v gjson.Result, kind string) string {
	if v.Type != gjson.String || v.Str == "" {
		return ""
	}
	return fmt.Sprintf(" [%s image, %d bytes]", kind, len(v.Str))
}
