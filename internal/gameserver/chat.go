package gameserver

import (
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
)

// handleChat relays a table message to every connected player, the sender
// included. Chat is accepted regardless of whose turn it is and never moves
// the turn cursor.
//
// Precondition: c is Registered.
// Postcondition: The message is logged, broadcast with the updated game_log,
// and persisted.
func (s *Server) handleChat(c *client, req protocol.Request) {
	_ = s.sessions.Do(func(st *session.State) error {
		sender := strings.TrimSpace(req.Sender)
		if sender == "" {
			sender = st.PlayerOrPlaceholder(c.playerID).Name
		}
		st.AppendLog(session.LogChat, sender+": "+req.Message)
		c.logger.Debug("chat", zap.String("sender", sender))

		s.broadcast(st, protocol.NewChat(sender, req.Message))
		s.broadcast(st, protocol.NewGameLog(st.LogCopy()))
		s.persist(st)
		return nil
	})
}

// handleInventory replies with a player's sheet. The requester's own sheet is
// returned unless player_id names another player; an unknown id yields an
// empty "Unknown" sheet.
func (s *Server) handleInventory(c *client, req protocol.Request) {
	_ = s.sessions.Do(func(st *session.State) error {
		id := c.playerID
		if req.PlayerID != 0 {
			id = req.PlayerID
		}
		p := st.PlayerOrPlaceholder(id)
		s.reply(c, protocol.NewPlayerUpdate(p.Character, p.Inventory, st.Avatars[p.ID]))
		return nil
	})
}

// handleGameLog replies with the full ordered log.
func (s *Server) handleGameLog(c *client) {
	_ = s.sessions.Do(func(st *session.State) error {
		s.reply(c, protocol.NewGameLog(st.LogCopy()))
		return nil
	})
}
