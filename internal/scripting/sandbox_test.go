package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonmaster/internal/scripting"
)

func TestNewVM_NoHostAccess(t *testing.T) {
	L := scripting.NewVM(0)
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "%s should not be reachable", name)
	}
}

func TestNewVM_StringAndMathAvailable(t *testing.T) {
	L := scripting.NewVM(0)
	defer L.Close()
	require.NoError(t, L.DoString(`result = string.lower("Treasure") .. math.floor(2.5)`))
	assert.Equal(t, lua.LString("treasure2"), L.GetGlobal("result"))
}

func TestNewVM_RunawayLoopStops(t *testing.T) {
	L := scripting.NewVM(10)
	defer L.Close()
	assert.Error(t, L.DoString(`while true do end`))
}

func TestProperty_AnyBudgetStopsRunawayLoop(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := scripting.NewVM(limit)
		defer L.Close()
		if err := L.DoString(`while true do end`); err == nil {
			t.Fatalf("limit %d: runaway loop completed", limit)
		}
	})
}

func TestArm_GivesSpentVMNewBudget(t *testing.T) {
	L := scripting.NewVM(200)
	defer L.Close()
	require.Error(t, L.DoString(`while true do end`))

	cancel := scripting.Arm(L, 200)
	defer cancel()
	assert.NoError(t, L.DoString(`local x = 1 + 1`))
}
