package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/game/dice"
)

// HookGrantItems is the Lua global consulted for item grants:
//
//	function grant_items(narration, player) -> { "item", ... } | nil
//
// player is a table with id, name, character and inventory fields.
const HookGrantItems = "grant_items"

// PlayerInfo is a snapshot of a player passed to Lua hooks.
type PlayerInfo struct {
	ID        int
	Name      string
	Character string
	Inventory []string
}

// Manager owns one sandboxed LState holding the campaign's hook scripts.
//
// Manager is safe for concurrent use; calls into the VM are serialized.
type Manager struct {
	mu        sync.Mutex
	L         *lua.LState
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager whose hooks are all undefined.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("scripting: NewManager requires a non-nil roller")
	}
	if logger == nil {
		panic("scripting: NewManager requires a non-nil logger")
	}
	return &Manager{roller: roller, logger: logger}
}

// Load creates a sandboxed VM, registers all engine.* modules, then executes
// path. When path is a directory every *.lua file in it runs in lexicographic
// order. A previously loaded VM is replaced only on success.
//
// Precondition: path must be a readable file or directory.
// Postcondition: Returns error on read or Lua load failure.
func (m *Manager) Load(path string, instLimit int) error {
	files, err := luaFiles(path)
	if err != nil {
		return err
	}

	L := NewVM(instLimit)
	m.RegisterModules(L)
	for _, f := range files {
		cancel := Arm(L, instLimit)
		err := L.DoFile(f)
		cancel()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", f, err)
		}
	}

	m.mu.Lock()
	if m.L != nil {
		m.L.Close()
	}
	m.L = L
	m.instLimit = instLimit
	m.mu.Unlock()

	m.logger.Info("scripts loaded", zap.String("path", path), zap.Int("files", len(files)))
	return nil
}

func luaFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading %q: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading script dir %q: %w", path, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			out = append(out, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// CallHook calls the named Lua global function. Returns (LNil, nil) if no
// script is loaded or the hook is not defined. Lua runtime errors, including
// exhausting the instruction budget, are logged at Warn level and never
// propagated.
//
// Precondition: args must be valid lua.LValue instances not bound to another VM.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	return m.call(hook, func(*lua.LState) []lua.LValue { return args })
}

// call runs hook with arguments built inside the VM lock, so tables can be
// allocated on the VM that receives them.
func (m *Manager) call(hook string, build func(L *lua.LState) []lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return lua.LNil, nil
	}
	L := m.L

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	cancel := Arm(L, m.instLimit)
	defer cancel()

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, build(L)...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// GrantItems consults the grant_items hook.
//
// Postcondition: ok is false when the hook is absent, fails, or returns nil;
// the caller then applies its own rule. Otherwise items is the hook's list,
// possibly empty, with non-string entries skipped.
func (m *Manager) GrantItems(narration string, p PlayerInfo) (items []string, ok bool) {
	ret, _ := m.call(HookGrantItems, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{lua.LString(narration), playerToTable(L, p)}
	})
	tbl, isTable := ret.(*lua.LTable)
	if !isTable {
		return nil, false
	}
	items = []string{}
	tbl.ForEach(func(_, v lua.LValue) {
		if s, isStr := v.(lua.LString); isStr && s != "" {
			items = append(items, string(s))
		}
	})
	return items, true
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}

func playerToTable(L *lua.LState, p PlayerInfo) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LNumber(p.ID))
	L.SetField(t, "name", lua.LString(p.Name))
	L.SetField(t, "character", lua.LString(p.Character))
	inv := L.NewTable()
	for _, item := range p.Inventory {
		inv.Append(lua.LString(item))
	}
	L.SetField(t, "inventory", inv)
	return t
}
