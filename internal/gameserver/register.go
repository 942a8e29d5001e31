package gameserver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/game/turn"
	"github.com/cory-johannsen/dungeonmaster/internal/gateway"
	"github.com/cory-johannsen/dungeonmaster/internal/journal"
	"github.com/cory-johannsen/dungeonmaster/internal/observability"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
)

// handleRegister seats a new player.
//
// Postcondition: On success the connection is Registered and receives, in
// order: registered, map_update (if a map exists), game_start (first
// registration only), its turn notice, player_update and game_log.
func (s *Server) handleRegister(ctx context.Context, c *client, req protocol.Request) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.reply(c, protocol.NewError(msgInvalidRequest))
		return
	}
	character := strings.TrimSpace(req.Character)

	_ = s.sessions.Do(func(st *session.State) error {
		p := turn.Join(st, name, character, c.sink)
		c.playerID = p.ID
		c.logger = c.logger.With(observability.PlayerFields(p.ID, p.Name)...)

		avatar := ""
		if prompt, err := s.campaign.AvatarPrompt(character); err != nil {
			c.logger.Warn("rendering avatar prompt", zap.Error(err))
		} else {
			avatar = s.story.Image(ctx, gateway.KindAvatar, prompt)
		}
		st.SetAvatar(p.ID, avatar)

		if err := s.journal.RecordPlayer(ctx, journal.Player{ID: p.ID, Name: p.Name, Character: p.Character}); err != nil {
			c.logger.Warn("journaling player", zap.Error(err))
		}
		c.logger.Info("player registered", zap.Int("connected", len(st.Connected())))

		s.reply(c, protocol.NewRegistered(p.ID, avatar))
		s.welcome(ctx, c, st, p)
		s.persist(st)
		return nil
	})
}

// handleRejoin re-attaches the connection to a disconnected player.
//
// Postcondition: Unknown or connected ids are rejected with an error reply and
// leave the connection Unregistered.
func (s *Server) handleRejoin(ctx context.Context, c *client, req protocol.Request) {
	_ = s.sessions.Do(func(st *session.State) error {
		p, err := turn.Rejoin(st, req.PlayerID, c.sink)
		switch {
		case errors.Is(err, session.ErrPlayerNotFound):
			s.reply(c, protocol.NewError(msgUnknownPlayer))
			return nil
		case errors.Is(err, session.ErrAlreadyConnected):
			s.reply(c, protocol.NewError(msgPlayerConnected))
			return nil
		case err != nil:
			s.reply(c, protocol.NewError(msgInvalidRequest))
			return nil
		}
		c.playerID = p.ID
		c.logger = c.logger.With(observability.PlayerFields(p.ID, p.Name)...)
		c.logger.Info("player rejoined", zap.Int("connected", len(st.Connected())))

		s.reply(c, protocol.NewRegistered(p.ID, st.Avatars[p.ID]))
		s.welcome(ctx, c, st, p)
		s.persist(st)
		return nil
	})
}

// welcome sends the follow-ups shared by register and rejoin.
func (s *Server) welcome(ctx context.Context, c *client, st *session.State, p *session.Player) {
	if st.CurrentMap != "" {
		s.reply(c, protocol.NewMapUpdate(st.CurrentMap))
	}
	if !st.Started {
		s.startGame(ctx, st)
	}
	s.notifyTurns(st)
	s.reply(c, protocol.NewPlayerUpdate(p.Character, p.Inventory, st.Avatars[p.ID]))
	s.reply(c, protocol.NewGameLog(st.LogCopy()))
}

// startGame announces the opening scene. It runs once per session.
func (s *Server) startGame(ctx context.Context, st *session.State) {
	st.Started = true
	opening := s.campaign.OpeningScene
	st.AppendLog(session.LogSystem, opening)
	err := s.journal.RecordMemory(ctx, journal.Memory{
		Keywords: s.campaign.OpeningKeywords,
		Summary:  s.campaign.OpeningSummary,
		Details:  opening,
	})
	if err != nil {
		s.logger.Warn("journaling opening scene", zap.Error(err))
	}
	s.logger.Info("game started", zap.String("campaign", s.campaign.ID))
	s.broadcast(st, protocol.NewGameStart(opening))
}
