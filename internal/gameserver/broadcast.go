package gameserver

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/game/turn"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
)

// broadcast encodes msg once and pushes it to every connected player.
// A failed push is logged and does not stop delivery to the others.
func (s *Server) broadcast(st *session.State, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("encoding broadcast", zap.Error(err))
		return
	}
	for _, p := range st.Connected() {
		s.push(p.Sink(), data, p.ID)
	}
}

// send delivers msg to one player's sink.
func (s *Server) send(sink session.Sink, playerID int, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("encoding message", zap.Error(err))
		return
	}
	s.push(sink, data, playerID)
}

// reply delivers msg to the requesting connection.
func (s *Server) reply(c *client, msg any) {
	s.send(c.sink, c.playerID, msg)
}

func (s *Server) push(sink session.Sink, data []byte, playerID int) {
	if sink == nil {
		return
	}
	if err := sink.Push(data); err != nil {
		s.logger.Warn("push to player failed",
			zap.Int("player_id", playerID),
			zap.Error(err),
		)
	}
}

// notifyTurns tells the current player to act and everyone else whom they
// are waiting for. Nothing is sent when no player is connected.
func (s *Server) notifyTurns(st *session.State) {
	cur, ok := turn.CurrentPlayer(st)
	if !ok {
		return
	}
	yours := protocol.NewYourTurn()
	wait := protocol.NewWait(cur.Name)
	for _, p := range st.Connected() {
		if p.ID == cur.ID {
			s.send(p.Sink(), p.ID, yours)
		} else {
			s.send(p.Sink(), p.ID, wait)
		}
	}
}
