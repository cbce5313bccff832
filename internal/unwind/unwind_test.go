package unwind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avodev/dbgcore/internal/dwarfop"
	"github.com/avodev/dbgcore/internal/regset"
	"github.com/avodev/dbgcore/internal/symbols"
	"github.com/avodev/dbgcore/internal/symbols/symbolstest"
)

// fakeMem models a stack growing down from a high base, with each frame's
// saved rbp/return-address pair laid out the way the System V ABI's
// standard prologue (push rbp; mov rbp, rsp) produces, so unwind rules
// expressed as CFA = rbp+16, rbp saved at CFA-16, ret saved at CFA-8 can
// recover a realistic three-frame call chain.
type fakeMem map[uint64]uint64

func (m fakeMem) Read(addr uint64, buf []byte) error {
	v := m[addr]
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	return nil
}

// rbpPlus builds the CFA rule itself: CFA = rbp + off, evaluated against
// the frame's own (not-yet-CFA-augmented) register set.
func rbpPlus(off int64) []dwarfop.Op {
	return []dwarfop.Op{{Kind: dwarfop.Reg, Reg: 6}, {Kind: dwarfop.PlusConst, Const: off}}
}

// cfaPlus builds a saved-register rule expressed relative to the CFA,
// evaluated once the CFA synthetic register has been populated.
func cfaPlus(off int64) []dwarfop.Op {
	return []dwarfop.Op{{Kind: dwarfop.CFA}, {Kind: dwarfop.PlusConst, Const: off}}
}

func deref(ops []dwarfop.Op) []dwarfop.Op {
	return append(append([]dwarfop.Op{}, ops...), dwarfop.Op{Kind: dwarfop.Deref})
}

func buildThreeFrameStack() (*symbolstest.Registry, regset.Set, fakeMem) {
	// Frame 0 (innermost, pc=0x1000): rbp=0x7000.
	// Frame 1 (pc=0x2010, a return address): rbp=0x7020.
	// Frame 2 (pc=0x3010): rbp=0, ret=0 (end of stack).
	mem := fakeMem{
		0x7000: 0x7020, // saved rbp for frame 0 -> frame 1's rbp
		0x7008: 0x2010, // return address from frame 0 -> into frame 1
		0x7020: 0,      // saved rbp for frame 1 -> end of chain
		0x7028: 0x3010, // return address from frame 1 -> into frame 2
	}

	// A row's rbp/rip rules are identical at every frame (the standard
	// prologue), but lookups for any non-innermost frame use the
	// pseudo-address pc-1, so frame 1's row is keyed at 0x200f (0x2010-1),
	// not 0x2010 itself.
	row := func() symbols.UnwindRow {
		return symbols.UnwindRow{
			CFAExpr: rbpPlus(16),
			SavedRegs: map[int][]dwarfop.Op{
				6:  deref(cfaPlus(-16)), // rbp
				16: deref(cfaPlus(-8)),  // rip (return address)
			},
		}
	}
	rows := map[uint64]symbols.UnwindRow{
		0x1000: row(),
		0x200f: row(),
	}

	fn0 := symbols.Function{ID: 1, MangledName: "inner", Addr: 0x1000, HighPC: 0x1010}
	fn1 := symbols.Function{ID: 2, MangledName: "middle", Addr: 0x2000, HighPC: 0x2020}

	binary := &symbolstest.Binary{
		IDValue: 1,
		Mapped:  true,
		Loaded:  true,
		Addrs:   symbolstest.IdentityAddrMap{},
		FuncTab: &symbolstest.FunctionTable{Functions: []symbols.Function{fn0, fn1}},
		SubfuncTree: &symbolstest.SubfunctionTree{Subfunctions: []symbols.Subfunction{
			{ID: 1, FunctionID: 1, Level: 0, LowPC: 0x1000, HighPC: 0x1010},
			{ID: 2, FunctionID: 2, Level: 0, LowPC: 0x2000, HighPC: 0x2020},
		}},
		Unwind: &symbolstest.UnwindTable{Rows: rows},
	}
	registry := &symbolstest.Registry{Binaries: []*symbolstest.Binary{binary}}

	var regs regset.Set
	regs.SetInt(regset.Rbp, 0x7000, false)

	return registry, regs, mem
}

func TestEngineStepRecoversCallerFrame(t *testing.T) {
	registry, regs, mem := buildThreeFrameStack()
	e := &Engine{Registry: registry, Memory: mem}

	next, cfa, isSignalTrampoline, err := e.Step(0x1000, regs)
	require.NoError(t, err)
	assert.False(t, isSignalTrampoline)
	assert.Equal(t, uint64(0x7010), cfa)

	rip, _, err := next.GetInt(regset.Rip)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2010), rip)

	rbp, _, err := next.GetInt(regset.Rbp)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7020), rbp)
}

func TestEngineStepMissingUnwindInfoErrors(t *testing.T) {
	registry, regs, mem := buildThreeFrameStack()
	e := &Engine{Registry: registry, Memory: mem}

	_, _, _, err := e.Step(0xdead, regs)
	require.Error(t, err)
}

func TestEngineTraceWalksToEndOfStack(t *testing.T) {
	registry, regs, mem := buildThreeFrameStack()
	e := &Engine{Registry: registry, Memory: mem}

	frames, err := e.Trace(0x1000, regs)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, uint64(0x1000), frames[0].PC)
	assert.True(t, frames[0].FunctionFound)
	assert.Equal(t, "inner", frames[0].Function.MangledName)
	require.Len(t, frames[0].Subframes, 1)

	assert.Equal(t, uint64(0x200f), frames[1].PC) // pseudo-address pc-1
	assert.True(t, frames[1].FunctionFound)
	assert.Equal(t, "middle", frames[1].Function.MangledName)
}

func TestEngineTraceStopsOnRepeatingFrame(t *testing.T) {
	registry, regs, mem := buildThreeFrameStack()
	// Make frame 1 point back to itself to simulate a corrupted/cyclic
	// unwind table; Trace must terminate rather than looping forever.
	mem[0x7028] = 0x2010
	mem[0x7020] = 0x7020

	e := &Engine{Registry: registry, Memory: mem}
	frames, err := e.Trace(0x1000, regs)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(frames), 3)
}

func TestEngineFrameBaseEvaluatesFromCFA(t *testing.T) {
	registry, regs, mem := buildThreeFrameStack()
	e := &Engine{Registry: registry, Memory: mem}

	frames, err := e.Trace(0x1000, regs)
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	frames[0].Function.FrameBaseOp = []dwarfop.Op{{Kind: dwarfop.CFA}}
	base, dubious, err := e.FrameBase(frames[0])
	require.NoError(t, err)
	assert.False(t, dubious)
	assert.Equal(t, frames[0].CFA, base)
}
