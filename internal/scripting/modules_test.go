package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/dungeonmaster/internal/game/dice"
	"github.com/cory-johannsen/dungeonmaster/internal/scripting"
)

func runScript(t *testing.T, mgr *scripting.Manager, luaSrc, hook string, args ...lua.LValue) lua.LValue {
	t.Helper()
	require.NoError(t, mgr.Load(writeTempLua(t, "test.lua", luaSrc), 0))
	ret, err := mgr.CallHook(hook, args...)
	require.NoError(t, err)
	return ret
}

func TestEngineLog_AllLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	mgr := scripting.NewManager(dice.NewLoggedRoller(dice.NewSequence(1), logger), logger)

	runScript(t, mgr, `
		function do_all_logs()
			engine.log.debug("d")
			engine.log.info("i")
			engine.log.warn("w")
			engine.log.error("e")
		end
	`, "do_all_logs")

	entries := logs.FilterMessage("lua").All()
	require.Len(t, entries, 4)
	got := []string{}
	for _, e := range entries {
		got = append(got, e.Level.String()+":"+e.ContextMap()["msg"].(string))
	}
	assert.Equal(t, []string{"debug:d", "info:i", "warn:w", "error:e"}, got)
}

func TestEngineDice_D20(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `function roll() return engine.dice.d20() end`, "roll")
	assert.Equal(t, lua.LNumber(17), ret)
}
