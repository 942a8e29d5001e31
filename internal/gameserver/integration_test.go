package gameserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/dungeonmaster/internal/config"
	"github.com/cory-johannsen/dungeonmaster/internal/protocol"
	"github.com/cory-johannsen/dungeonmaster/internal/testutil"
	"github.com/cory-johannsen/dungeonmaster/internal/transport"
)

const readWait = 2 * time.Second

func TestIntegration_TableOverTCP(t *testing.T) {
	h := newHarness(t, Config{MaxFrameBytes: 1 << 16}, 20)
	acc := transport.NewAcceptor(config.ServerConfig{
		Host:         "127.0.0.1",
		WriteTimeout: 5 * time.Second,
		OutboxSize:   32,
	}, h.srv, zaptest.NewLogger(t))
	go func() {
		_ = acc.ListenAndServe()
	}()
	require.Eventually(t, func() bool { return acc.Addr() != "" }, readWait, 10*time.Millisecond)
	defer acc.Stop()

	alice := testutil.NewStreamClient(t, acc.Addr())
	alice.Send(protocol.Outgoing{Action: protocol.ActionRegister, Name: "Alice", Character: "paladin"})
	reg := alice.ReadUntil(protocol.TypeRegistered, readWait)
	assert.Equal(t, int64(1), gjson.GetBytes(reg, "player_id").Int())
	alice.ReadUntil(protocol.TypeYourTurn, readWait)
	alice.ReadUntil(protocol.TypeGameLog, readWait)

	bob := testutil.NewStreamClient(t, acc.Addr())
	// both requests in one write exercise concatenated framing
	bob.SendRaw([]byte(`{"action":"register","name":"Bob"}` + "\n" + `{"action":"play","player_action":"cut in line"}`))
	bob.ReadUntil(protocol.TypeRegistered, readWait)
	errMsg := bob.ReadUntil(protocol.TypeError, readWait)
	assert.Equal(t, msgNotYourTurn, gjson.GetBytes(errMsg, "message").String())

	alice.Send(protocol.Outgoing{Action: protocol.ActionPlay, PlayerAction: "I raise my shield"})
	for _, c := range []*testutil.StreamClient{alice, bob} {
		res := c.ReadUntil(protocol.TypeTurnResult, readWait)
		assert.Equal(t, "Alice", gjson.GetBytes(res, "player").String())
		assert.Equal(t, "Success", gjson.GetBytes(res, "outcome").String())
	}
	bob.ReadUntil(protocol.TypeYourTurn, readWait)
	alice.ReadUntil(protocol.TypeWait, readWait)

	bob.Close()
	alice.ReadUntil(protocol.TypeYourTurn, readWait)
	require.Eventually(t, func() bool { return h.sessions.ConnectedCount() == 1 }, readWait, 10*time.Millisecond)
	assert.Equal(t, 2, h.sessions.PlayerCount())
}

func TestIntegration_MalformedInputClosesOnlyThatConnection(t *testing.T) {
	h := newHarness(t, Config{MaxFrameBytes: 1 << 16})
	acc := transport.NewAcceptor(config.ServerConfig{
		Host:         "127.0.0.1",
		WriteTimeout: 5 * time.Second,
		OutboxSize:   32,
	}, h.srv, zaptest.NewLogger(t))
	go func() {
		_ = acc.ListenAndServe()
	}()
	require.Eventually(t, func() bool { return acc.Addr() != "" }, readWait, 10*time.Millisecond)
	defer acc.Stop()

	good := testutil.NewStreamClient(t, acc.Addr())
	good.Send(protocol.Outgoing{Action: protocol.ActionRegister, Name: "Good"})
	good.ReadUntil(protocol.TypeGameLog, readWait)

	bad := testutil.NewStreamClient(t, acc.Addr())
	bad.SendRaw([]byte(`{"action": oops}`))
	errMsg := bad.ReadUntil(protocol.TypeError, readWait)
	assert.Equal(t, msgInvalidRequest, gjson.GetBytes(errMsg, "message").String())
	bad.ExpectClosed(readWait)

	good.Send(protocol.Outgoing{Action: protocol.ActionChat, Message: "still here"})
	chat := good.ReadUntil(protocol.TypeChat, readWait)
	assert.Equal(t, "still here", gjson.GetBytes(chat, "message").String())
}
