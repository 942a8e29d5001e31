package gameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/game/turn"
	"github.com/cory-johannsen/dungeonmaster/internal/gateway"
	"github.com/cory-johannsen/dungeonmaster/internal/journal"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
)

func fingerprint(t *testing.T, h *harness) string {
	t.Helper()
	var out []byte
	h.state(func(st *session.State) {
		inv := map[int][]string{}
		for _, p := range st.Players {
			inv[p.ID] = append([]string(nil), p.Inventory...)
		}
		var err error
		out, err = json.Marshal(struct {
			Cursor  int
			Holder  int
			Started bool
			Log     []session.LogEntry
			Inv     map[int][]string
			Map     string
		}{st.TurnCursor, st.TurnHolder, st.Started, st.Log, inv, st.CurrentMap})
		require.NoError(t, err)
	})
	return string(out)
}

func TestRegister_FirstPlayerFollowUps(t *testing.T) {
	h := newHarness(t, Config{})
	h.story.images[gateway.KindAvatar] = "avatar-data"

	a := h.register("Aria", "elven ranger")

	assert.Equal(t, []string{
		protocol.TypeRegistered,
		protocol.TypeGameStart,
		protocol.TypeYourTurn,
		protocol.TypePlayerUpdate,
		protocol.TypeGameLog,
	}, a.sink.types())

	reg := a.sink.last(t, protocol.TypeRegistered)
	assert.Equal(t, "registered", reg["status"])
	assert.Equal(t, float64(1), reg["player_id"])
	assert.Equal(t, "avatar-data", reg["avatar"])

	start := a.sink.last(t, protocol.TypeGameStart)
	assert.Contains(t, start["message"], "ancient forest")

	upd := a.sink.last(t, protocol.TypePlayerUpdate)
	assert.Equal(t, "elven ranger", upd["character"])
	assert.Equal(t, []any{}, upd["inventory"])

	h.state(func(st *session.State) {
		assert.True(t, st.Started)
		require.Len(t, st.Log, 1)
		assert.Equal(t, session.LogSystem, st.Log[0].Kind)
		assert.Equal(t, "avatar-data", st.Avatars[1])
	})
	assert.Equal(t, 1, h.store.count())
	assert.Equal(t, "Aria", h.journal.Players()[1].Name)
}

func TestRegister_GameStartOnlyOnce(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	a.sink.reset()

	b := h.register("B", "")
	assert.Equal(t, []string{
		protocol.TypeRegistered,
		protocol.TypeWait,
		protocol.TypePlayerUpdate,
		protocol.TypeGameLog,
	}, b.sink.types())
	assert.Equal(t, "Waiting for A to act.", b.sink.last(t, protocol.TypeWait)["message"])
	assert.Equal(t, []string{protocol.TypeYourTurn}, a.sink.types())
	assert.Equal(t, float64(2), b.sink.last(t, protocol.TypeRegistered)["player_id"])
	assert.Nil(t, b.sink.last(t, protocol.TypeRegistered)["avatar"], "no avatar encodes as null")
}

func TestRegister_RejectsBlankName(t *testing.T) {
	h := newHarness(t, Config{})
	tc := h.connect()
	h.send(tc, protocol.Outgoing{Action: protocol.ActionRegister, Name: "  "})
	assert.False(t, tc.c.registered())
	assert.Equal(t, msgInvalidRequest, tc.sink.last(t, protocol.TypeError)["message"])
	assert.Equal(t, 0, h.sessions.PlayerCount())
}

func TestUnregistered_OnlyRegisterAccepted(t *testing.T) {
	h := newHarness(t, Config{})
	tc := h.connect()
	for _, act := range []string{protocol.ActionPlay, protocol.ActionChat, protocol.ActionRequestGameLog, "dance"} {
		tc.sink.reset()
		h.send(tc, protocol.Outgoing{Action: act, Message: "x"})
		assert.Equal(t, msgNotRegistered, tc.sink.last(t, protocol.TypeError)["message"], act)
	}
	assert.Equal(t, 0, h.store.count())
}

func TestRegistered_Errors(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")

	a.sink.reset()
	h.send(a, protocol.Outgoing{Action: "dance"})
	assert.Equal(t, msgUnknownAction, a.sink.last(t, protocol.TypeError)["message"])

	h.send(a, protocol.Outgoing{Action: protocol.ActionRegister, Name: "again"})
	assert.Equal(t, msgAlreadyRegistered, a.sink.last(t, protocol.TypeError)["message"])

	h.srv.dispatch(context.Background(), a.c, []byte(`{"name":"no action"}`))
	assert.Equal(t, msgInvalidRequest, a.sink.last(t, protocol.TypeError)["message"])
	assert.Equal(t, 1, h.sessions.PlayerCount())
}

func TestScenario_ThreePlayersTakeTurnsInOrder(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	b := h.register("B", "")
	c := h.register("C", "")

	before := fingerprint(t, h)
	saves := h.store.count()
	b.sink.reset()
	h.play(b, "I open the gate")
	assert.Equal(t, []string{protocol.TypeError}, b.sink.types())
	assert.Equal(t, msgNotYourTurn, b.sink.last(t, protocol.TypeError)["message"])
	assert.Equal(t, before, fingerprint(t, h), "rejected play must not mutate the session")
	assert.Equal(t, saves, h.store.count())
	assert.Empty(t, h.journal.Rolls())

	for _, tc := range []*testConn{a, b, c} {
		tc.sink.reset()
	}
	h.play(a, "I light a torch")

	h.state(func(st *session.State) {
		assert.Equal(t, 1, st.TurnCursor)
		cur, ok := turn.CurrentPlayer(st)
		require.True(t, ok)
		assert.Equal(t, "B", cur.Name)
	})
	assert.Equal(t, []string{protocol.TypePlayerUpdate, protocol.TypeTurnResult, protocol.TypeGameLog, protocol.TypeWait}, a.sink.types())
	assert.Equal(t, []string{protocol.TypeTurnResult, protocol.TypeGameLog, protocol.TypeYourTurn}, b.sink.types())
	assert.Equal(t, []string{protocol.TypeTurnResult, protocol.TypeGameLog, protocol.TypeWait}, c.sink.types())
	assert.Equal(t, "Waiting for B to act.", a.sink.last(t, protocol.TypeWait)["message"])
	assert.Equal(t, "Waiting for B to act.", c.sink.last(t, protocol.TypeWait)["message"])
	assert.Equal(t, saves+1, h.store.count())

	res := c.sink.last(t, protocol.TypeTurnResult)
	assert.Equal(t, "A", res["player"])
	assert.Equal(t, float64(10), res["roll"])
	assert.Equal(t, "Pending", res["outcome"])
	assert.Equal(t, "The mist thickens.", res["dm_response"])
	assert.Nil(t, res["scene_image"])
}

func TestPlay_OutcomeForEveryRoll(t *testing.T) {
	for roll := 1; roll <= 20; roll++ {
		t.Run(fmt.Sprintf("roll_%d", roll), func(t *testing.T) {
			h := newHarness(t, Config{}, roll)
			a := h.register("A", "")
			h.play(a, "swing")

			want := "Pending"
			switch roll {
			case 1:
				want = "Failure"
			case 20:
				want = "Success"
			}
			res := a.sink.last(t, protocol.TypeTurnResult)
			assert.Equal(t, float64(roll), res["roll"])
			assert.Equal(t, want, res["outcome"])

			rolls := h.journal.Rolls()
			require.Len(t, rolls, 1)
			assert.Equal(t, roll, rolls[0].Roll)
			assert.Equal(t, want, rolls[0].Outcome)
		})
	}
}

func TestPlay_SinglePlayerKeepsTheTurn(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	h.play(a, "one")
	h.play(a, "two")
	h.state(func(st *session.State) {
		assert.Equal(t, 2, st.TurnCursor)
		assert.Len(t, st.Log, 3)
	})
	assert.Equal(t, protocol.TypeYourTurn, a.sink.types()[len(a.sink.types())-1])
}

func TestPlay_PromptCarriesMemoriesAndContext(t *testing.T) {
	h := newHarness(t, Config{}, 20)
	a := h.register("Aria", "ranger")
	h.play(a, "I search the well")

	require.Len(t, h.story.prompts, 1)
	p := h.story.prompts[0]
	assert.Contains(t, p.System, "Dungeon Master")
	assert.Contains(t, p.User, "Relevant memories:")
	assert.Contains(t, p.User, "action,Aria")
	assert.Contains(t, p.User, "Action: I search the well")
	assert.Contains(t, p.User, "Outcome: Success")

	mems, err := h.journal.QueryMemories(context.Background(), "dm_response", 0)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "The mist thickens.", mems[0].Details)
}

func TestPlay_LogEntrySummarizesTurn(t *testing.T) {
	h := newHarness(t, Config{}, 7)
	a := h.register("A", "dwarf")
	h.play(a, "I knock")
	h.state(func(st *session.State) {
		last := st.Log[len(st.Log)-1]
		assert.Equal(t, session.LogTurn, last.Kind)
		assert.Equal(t, "A (dwarf) rolled 7: I knock -> Pending\nDM: The mist thickens.", last.Text)
	})
}

func TestPlay_ItemGrantPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		narration gateway.Narration
		granter   *fakeGranter
		want      []string
	}{
		{
			name:      "declared items",
			narration: gateway.Narration{Text: "You finds a rope", Items: []string{"torch", "map"}, Structured: true},
			granter:   &fakeGranter{items: []string{"ignored"}, ok: true},
			want:      []string{"torch", "map"},
		},
		{
			name:      "declared none",
			narration: gateway.Narration{Text: "Aria finds a coin", Structured: true},
			want:      []string{},
		},
		{
			name:      "script decides",
			narration: gateway.Narration{Text: "Aria finds a coin"},
			granter:   &fakeGranter{items: []string{"gem"}, ok: true},
			want:      []string{"gem"},
		},
		{
			name:      "script defers to heuristic",
			narration: gateway.Narration{Text: "Aria finds an amulet."},
			granter:   &fakeGranter{},
			want:      []string{"amulet."},
		},
		{
			name:      "heuristic without script",
			narration: gateway.Narration{Text: "Aria finds a lantern under the cart"},
			want:      []string{"lantern"},
		},
		{
			name:      "nothing found",
			narration: gateway.Narration{Text: "The door creaks."},
			want:      []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			if tt.granter != nil {
				h.srv.scripts = tt.granter
			}
			h.story.narration = tt.narration
			a := h.register("Aria", "")
			h.play(a, "look around")

			h.state(func(st *session.State) {
				p, ok := st.Player(1)
				require.True(t, ok)
				assert.Equal(t, tt.want, p.Inventory)
			})
			upd := a.sink.last(t, protocol.TypePlayerUpdate)
			assert.Len(t, upd["inventory"], len(tt.want))
		})
	}
}

func TestPlay_ImagesAndMap(t *testing.T) {
	h := newHarness(t, Config{MapEveryTurn: true})
	h.story.images[gateway.KindScene] = "scene-data"
	h.story.images[gateway.KindMap] = "map-data"
	a := h.register("A", "")
	a.sink.reset()

	h.play(a, "climb the tower")
	assert.Equal(t, "scene-data", a.sink.last(t, protocol.TypeTurnResult)["scene_image"])
	assert.Equal(t, "map-data", a.sink.last(t, protocol.TypeMapUpdate)["map_image"])
	h.state(func(st *session.State) {
		assert.Equal(t, "map-data", st.CurrentMap)
	})

	b := h.register("B", "")
	assert.Equal(t, []string{
		protocol.TypeRegistered,
		protocol.TypeMapUpdate,
		protocol.TypeWait,
		protocol.TypePlayerUpdate,
		protocol.TypeGameLog,
	}, b.sink.types())
}

func TestPlay_FailedMapKeepsPrevious(t *testing.T) {
	h := newHarness(t, Config{MapEveryTurn: true})
	h.state(func(st *session.State) { st.CurrentMap = "old-map" })
	a := h.register("A", "")
	a.sink.reset()
	h.play(a, "wait")
	h.state(func(st *session.State) {
		assert.Equal(t, "old-map", st.CurrentMap)
	})
	assert.NotContains(t, a.sink.types(), protocol.TypeMapUpdate)
}

func TestChat_ReachesEveryoneAndKeepsTurn(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	b := h.register("B", "")
	c := h.register("C", "")
	for _, tc := range []*testConn{a, b, c} {
		tc.sink.reset()
	}
	saves := h.store.count()

	h.send(c, protocol.Outgoing{Action: protocol.ActionChat, Message: "hello table"})

	for _, tc := range []*testConn{a, b, c} {
		assert.Equal(t, []string{protocol.TypeChat, protocol.TypeGameLog}, tc.sink.types())
		msg := tc.sink.last(t, protocol.TypeChat)
		assert.Equal(t, "C", msg["sender"])
		assert.Equal(t, "hello table", msg["message"])
	}
	h.state(func(st *session.State) {
		assert.Equal(t, 0, st.TurnCursor)
		last := st.Log[len(st.Log)-1]
		assert.Equal(t, session.LogEntry{Kind: session.LogChat, Text: "C: hello table"}, last)
	})
	assert.Equal(t, saves+1, h.store.count())
}

func TestChat_ExplicitSender(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	h.send(a, protocol.Outgoing{Action: protocol.ActionChat, Sender: "Narrator", Message: "hi"})
	assert.Equal(t, "Narrator", a.sink.last(t, protocol.TypeChat)["sender"])
}

func TestBroadcast_FailedSinkDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	b := h.register("B", "")
	c := h.register("C", "")
	b.sink.err = errBoom
	a.sink.reset()
	c.sink.reset()

	h.send(a, protocol.Outgoing{Action: protocol.ActionChat, Message: "anyone?"})

	assert.Contains(t, a.sink.types(), protocol.TypeChat)
	assert.Contains(t, c.sink.types(), protocol.TypeChat)
	assert.NotZero(t, h.logs.FilterMessage("push to player failed").Len())
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.err = errBoom
	a := h.register("A", "")
	h.play(a, "jump")

	assert.Contains(t, a.sink.types(), protocol.TypeTurnResult)
	h.state(func(st *session.State) {
		assert.Equal(t, 1, st.TurnCursor)
	})
	entries := h.logs.FilterMessage("persisting session").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
}

func TestQueries(t *testing.T) {
	h := newHarness(t, Config{})
	h.story.narration = gateway.Narration{Text: "Found.", Items: []string{"key"}, Structured: true}
	a := h.register("A", "wizard")
	b := h.register("B", "bard")
	h.play(a, "search")

	b.sink.reset()
	h.send(b, protocol.Outgoing{Action: protocol.ActionRequestInventory})
	assert.Equal(t, "bard", b.sink.last(t, protocol.TypePlayerUpdate)["character"])

	h.send(b, protocol.Outgoing{Action: protocol.ActionRequestInventory, PlayerID: 1})
	upd := b.sink.last(t, protocol.TypePlayerUpdate)
	assert.Equal(t, "wizard", upd["character"])
	assert.Equal(t, []any{"key"}, upd["inventory"])

	h.send(b, protocol.Outgoing{Action: protocol.ActionRequestInventory, PlayerID: 99})
	upd = b.sink.last(t, protocol.TypePlayerUpdate)
	assert.Equal(t, "", upd["character"])
	assert.Equal(t, []any{}, upd["inventory"])

	b.sink.reset()
	h.send(b, protocol.Outgoing{Action: protocol.ActionRequestGameLog})
	assert.Equal(t, []string{protocol.TypeGameLog}, b.sink.types())
	log := b.sink.last(t, protocol.TypeGameLog)["log"].([]any)
	require.Len(t, log, 2)
	assert.Equal(t, "system", log[0].([]any)[0])
	assert.Equal(t, "turn", log[1].([]any)[0])
}

func TestDisconnect_CurrentPlayerPassesTurn(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	b := h.register("B", "")
	c := h.register("C", "")
	b.sink.reset()
	c.sink.reset()
	saves := h.store.count()

	h.srv.disconnect(a.c)

	assert.Equal(t, []string{protocol.TypeYourTurn}, b.sink.types())
	assert.Equal(t, "Waiting for B to act.", c.sink.last(t, protocol.TypeWait)["message"])
	assert.Equal(t, saves+1, h.store.count())
	h.state(func(st *session.State) {
		require.Len(t, st.Players, 3, "disconnected players stay on the roster")
		assert.False(t, st.Players[0].Connected())
	})
}

func TestDisconnect_OtherPlayerKeepsTurn(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.register("A", "")
	b := h.register("B", "")
	h.play(a, "go")
	c := h.register("C", "")

	h.srv.disconnect(a.c)
	h.state(func(st *session.State) {
		cur, ok := turn.CurrentPlayer(st)
		require.True(t, ok)
		assert.Equal(t, "B", cur.Name)
	})

	c.sink.reset()
	h.play(c, "sneak")
	assert.Equal(t, msgNotYourTurn, c.sink.last(t, protocol.TypeError)["message"])
	h.play(b, "sneak")
	assert.Contains(t, c.sink.types(), protocol.TypeYourTurn)
}

func TestRejoin(t *testing.T) {
	h := newHarness(t, Config{})
	h.story.images[gateway.KindAvatar] = "face"
	h.story.narration = gateway.Narration{Text: "ok", Items: []string{"rope"}, Structured: true}
	a := h.register("A", "thief")
	b := h.register("B", "")
	h.play(a, "steal")
	h.srv.disconnect(a.c)

	again := h.connect()
	h.send(again, protocol.Outgoing{Action: protocol.ActionRejoin, PlayerID: 2})
	assert.Equal(t, msgPlayerConnected, again.sink.last(t, protocol.TypeError)["message"])
	h.send(again, protocol.Outgoing{Action: protocol.ActionRejoin, PlayerID: 42})
	assert.Equal(t, msgUnknownPlayer, again.sink.last(t, protocol.TypeError)["message"])
	assert.False(t, again.c.registered())

	again.sink.reset()
	b.sink.reset()
	h.send(again, protocol.Outgoing{Action: protocol.ActionRejoin, PlayerID: 1})
	require.True(t, again.c.registered())
	assert.Equal(t, []string{
		protocol.TypeRegistered,
		protocol.TypeWait,
		protocol.TypePlayerUpdate,
		protocol.TypeGameLog,
	}, again.sink.types())
	assert.Equal(t, "face", again.sink.last(t, protocol.TypeRegistered)["avatar"])
	upd := again.sink.last(t, protocol.TypePlayerUpdate)
	assert.Equal(t, []any{"rope"}, upd["inventory"])
	assert.Equal(t, []string{protocol.TypeYourTurn}, b.sink.types(), "B keeps the turn")
}

type ctxKey struct{}

// ctxJournal records the request value carried by each context it sees.
type ctxJournal struct {
	*journal.InMemory
	seen []any
}

func (j *ctxJournal) RecordMemory(ctx context.Context, m journal.Memory) error {
	j.seen = append(j.seen, ctx.Value(ctxKey{}))
	return j.InMemory.RecordMemory(ctx, m)
}

func TestRejoin_UsesConnectionContext(t *testing.T) {
	h := newHarness(t, Config{})
	jr := &ctxJournal{InMemory: journal.NewInMemory()}
	h.srv.journal = jr
	h.state(func(st *session.State) {
		st.Players = []*session.Player{{ID: 1, Name: "A", Inventory: []string{}}}
	})

	tc := h.connect()
	raw, err := json.Marshal(protocol.Outgoing{Action: protocol.ActionRejoin, PlayerID: 1})
	require.NoError(t, err)
	ctx := context.WithValue(context.Background(), ctxKey{}, "conn-7")
	h.srv.dispatch(ctx, tc.c, raw)

	require.True(t, tc.c.registered())
	assert.Contains(t, tc.sink.types(), protocol.TypeGameStart)
	require.NotEmpty(t, jr.seen, "opening scene is journaled on rejoin into an unstarted session")
	for _, v := range jr.seen {
		assert.Equal(t, "conn-7", v)
	}
}

func TestServe_FramesSplitAndConcatenatedRequests(t *testing.T) {
	h := newHarness(t, Config{MaxFrameBytes: 1 << 16})
	sink := &fakeSink{}
	input := `{"action":"register","name":"A"}  {"action":"chat","message":"hi"}` + "\n" +
		`{"action":"request_game_log"}`

	err := h.srv.Serve(context.Background(), &chunkReader{data: []byte(input), size: 3}, sink, h.srv.logger)
	require.NoError(t, err)

	types := sink.types()
	assert.Equal(t, protocol.TypeRegistered, types[0])
	assert.Contains(t, types, protocol.TypeChat)
	assert.Equal(t, protocol.TypeGameLog, types[len(types)-1])
	h.state(func(st *session.State) {
		require.Len(t, st.Players, 1)
		assert.False(t, st.Players[0].Connected(), "EOF disconnects the player")
	})
}

func TestServe_ProtocolErrorClosesConnection(t *testing.T) {
	h := newHarness(t, Config{MaxFrameBytes: 1 << 16})
	sink := &fakeSink{}
	err := h.srv.Serve(context.Background(), strings.NewReader(`{"action":"register","name":"A"}[1,2]`), sink, h.srv.logger)

	var perr *protocol.ProtocolError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, protocol.TypeRegistered, sink.types()[0])
	assert.Equal(t, msgInvalidRequest, sink.last(t, protocol.TypeError)["message"])
	assert.Equal(t, 0, h.sessions.ConnectedCount())
}

func TestServe_OversizedFrame(t *testing.T) {
	h := newHarness(t, Config{MaxFrameBytes: 64})
	sink := &fakeSink{}
	big := `{"action":"chat","message":"` + strings.Repeat("x", 200)
	err := h.srv.Serve(context.Background(), strings.NewReader(big), sink, h.srv.logger)
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
}

func TestServe_CancelledContext(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.srv.Serve(ctx, bytes.NewReader(nil), &fakeSink{}, h.srv.logger)
	assert.ErrorIs(t, err, context.Canceled)
}

// chunkReader returns data size bytes at a time, then io.EOF.
type chunkReader struct {
	data []byte
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestProperty_OnlyCurrentPlayerAdvances(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t, Config{})
		n := rapid.IntRange(1, 5).Draw(rt, "players")
		conns := make([]*testConn, n)
		for i := range conns {
			conns[i] = h.register(fmt.Sprintf("P%d", i+1), "")
		}
		steps := rapid.SliceOfN(rapid.IntRange(0, n-1), 1, 20).Draw(rt, "actors")
		accepted := 0
		for _, who := range steps {
			var expect bool
			h.state(func(st *session.State) {
				expect = turn.IsPlayersTurn(st, conns[who].c.playerID)
			})
			h.play(conns[who], "act")
			if expect {
				accepted++
			}
			h.state(func(st *session.State) {
				if st.TurnCursor != accepted {
					rt.Fatalf("cursor %d after %d accepted plays", st.TurnCursor, accepted)
				}
			})
		}
		if got := len(h.journal.Rolls()); got != accepted {
			rt.Fatalf("journaled %d rolls, accepted %d plays", got, accepted)
		}
	})
}
