package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"okey/internal/tiles"
)

// chooseFunc is the global a bot script must define. It receives the hand as
// an array of {id, color, value, type} tables and returns a 1-based index.
const chooseFunc = "choose_discard"

const defaultScriptTimeout = 50 * time.Millisecond

var ErrBadChoice = errors.New("script returned an invalid hand index")

// Lua runs a bot discard policy written in Lua.
type Lua struct {
	mu      sync.Mutex
	state   *lua.LState
	name    string
	timeout time.Duration
}

// LoadLua reads and compiles the script at path.
func LoadLua(path string) (*Lua, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot script: %w", err)
	}
	return NewLua(path, string(src))
}

// NewLua compiles src. Only the base, table, string and math libraries are
// available to the script.
func NewLua(name, src string) (*Lua, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua %s: %w", lib.name, err)
		}
	}
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("load bot script %s: %w", name, err)
	}
	if L.GetGlobal(chooseFunc).Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("bot script %s: %s is not defined", name, chooseFunc)
	}
	return &Lua{state: L, name: name, timeout: defaultScriptTimeout}, nil
}

func (s *Lua) Name() string { return "lua:" + s.name }

// ChooseDiscard calls the script. The rng is unused; scripts use math.random.
func (s *Lua) ChooseDiscard(hand []tiles.Tile, _ *rand.Rand) (int, error) {
	if len(hand) == 0 {
		return 0, ErrEmptyHand
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	L := s.state
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	arg := L.NewTable()
	for i, t := range hand {
		tt := L.NewTable()
		L.SetField(tt, "id", lua.LNumber(t.ID))
		L.SetField(tt, "color", lua.LString(t.Color))
		L.SetField(tt, "value", lua.LNumber(t.Value))
		L.SetField(tt, "type", lua.LString(t.Type))
		arg.RawSetInt(i+1, tt)
	}

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(chooseFunc),
		NRet:    1,
		Protect: true,
	}, arg); err != nil {
		return 0, fmt.Errorf("run %s: %w", chooseFunc, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%w: got %s", ErrBadChoice, ret.Type())
	}
	idx := int(n) - 1
	if float64(idx+1) != float64(n) || idx < 0 || idx >= len(hand) {
		return 0, fmt.Errorf("%w: %v for hand of %d", ErrBadChoice, n, len(hand))
	}
	return idx, nil
}

// Close releases the Lua state.
func (s *Lua) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Close()
}
