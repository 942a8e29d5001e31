// Package scripting provides a sandboxed GopherLua environment for campaign
// hooks. It has no dependency on session state; hooks receive plain tables
// and return plain values.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget for one script load or hook
// call when no limit is configured.
const DefaultInstructionLimit = 100_000

// unsafeGlobals are removed from every VM after the base library loads.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "collectgarbage", "require"}

// opcodeBudget is a context the VM polls once per opcode. It cancels itself
// when the budget is spent, which aborts the running chunk.
type opcodeBudget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *opcodeBudget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// NewVM returns a Lua state with only the base, table, string and math
// libraries and no file or module loading.
//
// Precondition: instLimit >= 0; 0 selects DefaultInstructionLimit.
// Postcondition: The state carries a fresh opcode budget. The caller must Close it.
func NewVM(instLimit int) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	Arm(L, instLimit)
	return L
}

// Arm replaces L's opcode budget with a fresh one of instLimit opcodes.
//
// Postcondition: The returned func releases the budget.
func Arm(L *lua.LState, instLimit int) context.CancelFunc {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &opcodeBudget{Context: ctx, cancel: cancel}
	b.left.Store(int64(instLimit))
	L.SetContext(b)
	return cancel
}
