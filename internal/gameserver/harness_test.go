package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/dungeonmaster/internal/campaign"
	"github.com/cory-johannsen/dungeonmaster/internal/game/dice"
	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/gateway"
	"github.com/cory-johannsen/dungeonmaster/internal/journal"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
	"github.com/cory-johannsen/dungeonmaster/internal/scripting"
)

// fakeSink records every message pushed to one connection.
type fakeSink struct {
	mu   sync.Mutex
	msgs []json.RawMessage
	err  error
}

func (f *fakeSink) Push(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, append(json.RawMessage(nil), data...))
	return nil
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, protocol.MessageType(m))
	}
	return out
}

// last decodes the most recent message of msgType into a generic map.
func (f *fakeSink) last(t *testing.T, msgType string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if protocol.MessageType(f.msgs[i]) == msgType {
			var out map[string]any
			require.NoError(t, json.Unmarshal(f.msgs[i], &out))
			return out
		}
	}
	t.Fatalf("no %q message among %v", msgType, f.typesLocked())
	return nil
}

func (f *fakeSink) typesLocked() []string {
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, protocol.MessageType(m))
	}
	return out
}

func (f *fakeSink) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

// fakeStore counts saves and can be made to fail.
type fakeStore struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (f *fakeStore) Save(*session.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves++
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// fakeStory returns a fixed narration and per-kind image references.
type fakeStory struct {
	mu        sync.Mutex
	narration gateway.Narration
	images    map[gateway.Kind]string
	prompts   []gateway.Prompt
}

func (f *fakeStory) Narrate(_ context.Context, p gateway.Prompt) gateway.Narration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	return f.narration
}

func (f *fakeStory) Image(_ context.Context, kind gateway.Kind, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[kind]
}

// fakeGranter answers the grant_items hook.
type fakeGranter struct {
	items []string
	ok    bool
	calls int
}

func (f *fakeGranter) GrantItems(string, scripting.PlayerInfo) ([]string, bool) {
	f.calls++
	return f.items, f.ok
}

type harness struct {
	t        *testing.T
	srv      *Server
	sessions *session.Manager
	store    *fakeStore
	story    *fakeStory
	journal  *journal.InMemory
	logs     *observer.ObservedLogs
}

type testConn struct {
	c    *client
	sink *fakeSink
}

func newHarness(t *testing.T, cfg Config, faces ...int) *harness {
	t.Helper()
	if len(faces) == 0 {
		faces = []int{10}
	}
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := &harness{
		t:        t,
		sessions: session.NewManager(session.NewState()),
		store:    &fakeStore{},
		story: &fakeStory{
			narration: gateway.Narration{Text: "The mist thickens.", Structured: true},
			images:    map[gateway.Kind]string{},
		},
		journal: journal.NewInMemory(),
		logs:    logs,
	}
	h.srv = NewServer(cfg, Deps{
		Sessions: h.sessions,
		Store:    h.store,
		Story:    h.story,
		Journal:  h.journal,
		Campaign: campaign.Default(),
		Roller:   dice.NewLoggedRoller(dice.NewSequence(faces...), logger),
		Logger:   logger,
	})
	return h
}

func (h *harness) connect() *testConn {
	sink := &fakeSink{}
	return &testConn{c: &client{sink: sink, logger: h.srv.logger}, sink: sink}
}

func (h *harness) send(tc *testConn, req protocol.Outgoing) {
	h.t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(h.t, err)
	h.srv.dispatch(context.Background(), tc.c, raw)
}

// register connects and registers a player, returning its connection.
func (h *harness) register(name, character string) *testConn {
	h.t.Helper()
	tc := h.connect()
	h.send(tc, protocol.Outgoing{Action: protocol.ActionRegister, Name: name, Character: character})
	require.True(h.t, tc.c.registered(), "register %q", name)
	return tc
}

func (h *harness) play(tc *testConn, act string) {
	h.t.Helper()
	h.send(tc, protocol.Outgoing{Action: protocol.ActionPlay, PlayerAction: act})
}

func (h *harness) state(fn func(st *session.State)) {
	_ = h.sessions.Do(func(st *session.State) error {
		fn(st)
		return nil
	})
}

var errBoom = errors.New("boom")
