// Package gameserver runs the table protocol for each connection: it frames
// requests, applies them to the shared session under its lock, and fans the
// results out to every connected player.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/campaign"
	"github.com/cory-johannsen/dungeonmaster/internal/game/dice"
	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/game/turn"
	"github.com/cory-johannsen/dungeonmaster/internal/gateway"
	"github.com/cory-johannsen/dungeonmaster/internal/journal"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
	"github.com/cory-johannsen/dungeonmaster/internal/scripting"
	"github.com/cory-johannsen/dungeonmaster/internal/transport"
)

// Error messages sent to clients.
const (
	msgNotRegistered     = "not registered"
	msgAlreadyRegistered = "already registered"
	msgNotYourTurn       = "not your turn"
	msgUnknownAction     = "unknown action"
	msgInvalidRequest    = "invalid request"
	msgUnknownPlayer     = "unknown player"
	msgPlayerConnected   = "player already connected"
)

const readChunk = 4096

// Persister saves the session after every mutation.
type Persister interface {
	Save(st *session.State) error
}

// Storyteller produces narration and images. Implementations never fail;
// gateway.Guard is the production implementation.
type Storyteller interface {
	Narrate(ctx context.Context, p gateway.Prompt) gateway.Narration
	Image(ctx context.Context, kind gateway.Kind, prompt string) string
}

// ItemGranter decides which items a narration grants when the narrator did
// not say. ok false defers to the pickup heuristic.
type ItemGranter interface {
	GrantItems(narration string, p scripting.PlayerInfo) (items []string, ok bool)
}

// Config tunes per-connection behaviour.
type Config struct {
	// MaxFrameBytes caps buffered, undecoded input per connection.
	MaxFrameBytes int
	// MapEveryTurn regenerates the shared map after each narration.
	MapEveryTurn bool
}

// Deps are the collaborators a Server drives.
type Deps struct {
	Sessions *session.Manager
	Store    Persister
	Story    Storyteller
	Journal  journal.Journal
	Campaign *campaign.Campaign
	Roller   *dice.Roller
	// Scripts is optional.
	Scripts ItemGranter
	Logger  *zap.Logger
}

// Server implements transport.Handler for the table protocol.
type Server struct {
	cfg      Config
	sessions *session.Manager
	store    Persister
	story    Storyteller
	journal  journal.Journal
	campaign *campaign.Campaign
	roller   *dice.Roller
	scripts  ItemGranter
	logger   *zap.Logger
}

// NewServer creates a Server.
//
// Precondition: every Deps field except Scripts must be non-nil.
// Postcondition: Returns a Server ready to handle connections.
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		store:    deps.Store,
		story:    deps.Story,
		journal:  deps.Journal,
		campaign: deps.Campaign,
		roller:   deps.Roller,
		scripts:  deps.Scripts,
		logger:   deps.Logger,
	}
}

// client is the per-connection state. playerID 0 means Unregistered.
type client struct {
	playerID int
	sink     session.Sink
	logger   *zap.Logger
}

func (c *client) registered() bool { return c.playerID != 0 }

// HandleConn serves one accepted connection.
func (s *Server) HandleConn(ctx context.Context, conn *transport.Conn) error {
	return s.Serve(ctx, conn, conn, conn.Logger())
}

// Serve runs the read, frame and dispatch loop for one connection until the
// peer closes it, the input is malformed, or ctx is cancelled.
//
// Precondition: sink delivers to the same peer r reads from.
// Postcondition: A registered player is marked disconnected before Serve
// returns, and the session is persisted. Returns nil on a clean end of stream.
func (s *Server) Serve(ctx context.Context, r io.Reader, sink session.Sink, logger *zap.Logger) error {
	c := &client{sink: sink, logger: logger}
	defer s.disconnect(c)

	framer := protocol.NewFramer(s.cfg.MaxFrameBytes)
	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			msgs, ferr := framer.Feed(buf[:n])
			for _, raw := range msgs {
				s.dispatch(ctx, c, raw)
			}
			if ferr != nil {
				c.logger.Warn("protocol error, closing connection", zap.Error(ferr))
				s.reply(c, protocol.NewError(msgInvalidRequest))
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading: %w", err)
		}
	}
}

// dispatch applies one framed request according to the connection's state.
func (s *Server) dispatch(ctx context.Context, c *client, raw []byte) {
	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		c.logger.Debug("rejecting request", zap.Error(err))
		s.reply(c, protocol.NewError(msgInvalidRequest))
		return
	}

	if !c.registered() {
		switch req.Action {
		case protocol.ActionRegister:
			s.handleRegister(ctx, c, req)
		case protocol.ActionRejoin:
			s.handleRejoin(ctx, c, req)
		default:
			s.reply(c, protocol.NewError(msgNotRegistered))
		}
		return
	}

	switch req.Action {
	case protocol.ActionPlay:
		s.handlePlay(ctx, c, req)
	case protocol.ActionChat:
		s.handleChat(c, req)
	case protocol.ActionRequestInventory:
		s.handleInventory(c, req)
	case protocol.ActionRequestGameLog:
		s.handleGameLog(c)
	case protocol.ActionRegister, protocol.ActionRejoin:
		s.reply(c, protocol.NewError(msgAlreadyRegistered))
	default:
		s.reply(c, protocol.NewError(msgUnknownAction))
	}
}

// disconnect moves a registered connection to Closed.
func (s *Server) disconnect(c *client) {
	if !c.registered() {
		return
	}
	id := c.playerID
	c.playerID = 0
	_ = s.sessions.Do(func(st *session.State) error {
		p, ok := st.Player(id)
		if !ok || p.Sink() != c.sink {
			return nil
		}
		turn.Leave(st, id)
		c.logger.Info("player disconnected", zap.Int("connected", len(st.Connected())))
		s.notifyTurns(st)
		s.persist(st)
		return nil
	})
}

// persist saves st; failures are logged and never reach the client.
func (s *Server) persist(st *session.State) {
	if err := s.store.Save(st); err != nil {
		s.logger.Error("persisting session", zap.Error(err))
	}
}
