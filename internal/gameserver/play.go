package gameserver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/campaign"
	"github.com/cory-johannsen/dungeonmaster/internal/game/action"
	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/game/turn"
	"github.com/cory-johannsen/dungeonmaster/internal/gateway"
	"github.com/cory-johannsen/dungeonmaster/internal/journal"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
	"github.com/cory-johannsen/dungeonmaster/internal/scripting"
)

// handlePlay resolves the acting player's turn. The session lock is held for
// the whole resolution, gateway calls included, so two racing play requests
// can never both be accepted.
//
// Postcondition: Out of turn, the sender receives "not your turn" and the
// session is untouched. Otherwise the turn is logged, broadcast, advanced and
// persisted before the next turn is announced.
func (s *Server) handlePlay(ctx context.Context, c *client, req protocol.Request) {
	_ = s.sessions.Do(func(st *session.State) error {
		if err := turn.Check(st, c.playerID); err != nil {
			c.logger.Debug("rejecting play", zap.Error(err))
			s.reply(c, protocol.NewError(msgNotYourTurn))
			return nil
		}
		p := st.PlayerOrPlaceholder(c.playerID)

		rec := s.resolve(ctx, c, st, p, req.PlayerAction)
		for _, item := range rec.Items {
			if err := st.AddItem(p.ID, item); err != nil {
				c.logger.Error("granting item", zap.String("item", item), zap.Error(err))
			}
		}
		if len(rec.Items) > 0 {
			c.logger.Info("items granted", zap.Strings("items", rec.Items))
		}
		s.reply(c, protocol.NewPlayerUpdate(p.Character, p.Inventory, st.Avatars[p.ID]))

		st.AppendLog(session.LogTurn, rec.Summary())
		s.broadcast(st, protocol.NewTurnResult(rec.Player, rec.Roll, string(rec.Outcome), rec.Narration, rec.ImageRef))
		s.broadcast(st, protocol.NewGameLog(st.LogCopy()))

		turn.Advance(st)
		s.persist(st)
		s.notifyTurns(st)
		return nil
	})
}

// resolve rolls, narrates and illustrates one action. It journals the roll
// and the narration, and may replace the shared map.
func (s *Server) resolve(ctx context.Context, c *client, st *session.State, p *session.Player, act string) action.Record {
	roll := s.roller.D20()
	rec := action.Record{
		PlayerID:  p.ID,
		Player:    p.Name,
		Character: p.Character,
		Action:    act,
		Roll:      roll,
		Outcome:   action.Classify(roll),
	}
	c.logger.Info("action resolved",
		zap.String("action", act),
		zap.Int("roll", rec.Roll),
		zap.String("outcome", string(rec.Outcome)),
	)

	s.journalRoll(ctx, rec)
	s.remember(ctx, "action,"+p.Name, p.Name+" acts", act)

	mems, err := s.journal.QueryMemories(ctx, p.Name, journal.DefaultMemoryLimit)
	if err != nil {
		c.logger.Warn("recalling memories", zap.Error(err))
	}
	tc := campaign.TurnContext{
		Player:    p.Name,
		Character: p.Character,
		Action:    act,
		Roll:      roll,
		Outcome:   string(rec.Outcome),
	}
	user, err := s.campaign.TurnPrompt(tc, journal.FormatMemories(mems))
	if err != nil {
		c.logger.Warn("rendering turn prompt", zap.Error(err))
		user = fmt.Sprintf("%s attempts: %s (rolled %d, %s)", p.Name, act, roll, rec.Outcome)
	}

	n := s.story.Narrate(ctx, gateway.Prompt{System: s.campaign.SystemPrompt, User: user})
	rec.Narration = n.Text
	s.remember(ctx, "dm_response", "DM response to "+p.Name, n.Text)

	if prompt, err := s.campaign.ScenePrompt(n.Text); err != nil {
		c.logger.Warn("rendering scene prompt", zap.Error(err))
	} else {
		rec.ImageRef = s.story.Image(ctx, gateway.KindScene, prompt)
	}
	if s.cfg.MapEveryTurn {
		s.redrawMap(ctx, st, n.Text)
	}

	rec.Items = s.grantItems(n, p)
	return rec
}

// grantItems applies the grant precedence: items the narrator declared, then
// the grant_items script hook, then the "finds a" pickup heuristic.
func (s *Server) grantItems(n gateway.Narration, p *session.Player) []string {
	if n.Structured {
		return n.Items
	}
	if s.scripts != nil {
		info := scripting.PlayerInfo{ID: p.ID, Name: p.Name, Character: p.Character, Inventory: p.Inventory}
		if items, ok := s.scripts.GrantItems(n.Text, info); ok {
			return items
		}
	}
	return action.ExtractItems(n.Text)
}

// redrawMap replaces the shared map and broadcasts it. A failed generation
// keeps the previous map.
func (s *Server) redrawMap(ctx context.Context, st *session.State, narration string) {
	prompt, err := s.campaign.MapPrompt(narration)
	if err != nil {
		s.logger.Warn("rendering map prompt", zap.Error(err))
		return
	}
	ref := s.story.Image(ctx, gateway.KindMap, prompt)
	if ref == "" {
		return
	}
	st.CurrentMap = ref
	s.broadcast(st, protocol.NewMapUpdate(ref))
}

func (s *Server) journalRoll(ctx context.Context, rec action.Record) {
	err := s.journal.RecordRoll(ctx, journal.Roll{
		PlayerID: rec.PlayerID,
		Action:   rec.Action,
		Roll:     rec.Roll,
		Outcome:  string(rec.Outcome),
	})
	if err != nil {
		s.logger.Warn("journaling roll", zap.Error(err))
	}
}

func (s *Server) remember(ctx context.Context, keywords, summary, details string) {
	err := s.journal.RecordMemory(ctx, journal.Memory{Keywords: keywords, Summary: summary, Details: details})
	if err != nil {
		s.logger.Warn("journaling memory", zap.String("keywords", keywords), zap.Error(err))
	}
}
