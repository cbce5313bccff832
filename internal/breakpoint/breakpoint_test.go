package breakpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avodev/dbgcore/internal/breakpoint"
	"github.com/avodev/dbgcore/internal/symbols"
	"github.com/avodev/dbgcore/internal/symbols/symbolstest"
	"github.com/avodev/dbgcore/internal/watchexpr"
	"github.com/avodev/dbgcore/internal/watchexpr/watchexprtest"
)

func oneBinaryRegistry() *symbolstest.Registry {
	bin := &symbolstest.Binary{
		IDValue: 1,
		Mapped:  true,
		Loaded:  true,
		Addrs:   symbolstest.IdentityAddrMap{},
		LineTab: &symbolstest.LineTable{Lines: []symbols.Line{
			{Addr: 0x1000, File: "main.c", Line: 10},
			{Addr: 0x1010, File: "main.c", Line: 12},
		}},
		FuncTab: &symbolstest.FunctionTable{Functions: []symbols.Function{
			{ID: 1, MangledName: "main", Addr: 0x1000, HighPC: 0x1020},
		}},
		SubfuncTree: &symbolstest.SubfunctionTree{},
		Unwind:      &symbolstest.UnwindTable{Rows: map[uint64]symbols.UnwindRow{}},
		PointsOfInt: map[string]uint64{"_start": 0x900},
	}
	return &symbolstest.Registry{Binaries: []*symbolstest.Binary{bin}}
}

func TestResolveLineBreakpoint(t *testing.T) {
	reg := oneBinaryRegistry()
	bp := &breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnLine, Line: breakpoint.LineSpec{Path: "main.c", Line: 10}}}
	breakpoint.Resolve(reg, bp)
	require.NoError(t, bp.ResolveErr)
	require.Len(t, bp.Addrs, 1)
	assert.Equal(t, uint64(0x1000), bp.Addrs[0].Addr)
}

func TestResolveLineFallsBackToNextLineWithCode(t *testing.T) {
	reg := oneBinaryRegistry()
	bp := &breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnLine, Line: breakpoint.LineSpec{Path: "main.c", Line: 11}}}
	breakpoint.Resolve(reg, bp)
	require.NoError(t, bp.ResolveErr)
	require.Len(t, bp.Addrs, 1)
	assert.Equal(t, uint64(0x1010), bp.Addrs[0].Addr)
	assert.Equal(t, 12, bp.On.Line.AdjustedLine)
}

func TestResolveLineNoCodeForFile(t *testing.T) {
	reg := oneBinaryRegistry()
	bp := &breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnLine, Line: breakpoint.LineSpec{Path: "nope.c", Line: 1}}}
	breakpoint.Resolve(reg, bp)
	require.Error(t, bp.ResolveErr)
	assert.Empty(t, bp.Addrs)
}

func TestResolveAddressByFunctionName(t *testing.T) {
	reg := oneBinaryRegistry()
	bp := &breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnAddress, Address: breakpoint.AddressSpec{FunctionName: "main", Offset: 4}}}
	breakpoint.Resolve(reg, bp)
	require.NoError(t, bp.ResolveErr)
	require.Len(t, bp.Addrs, 1)
	assert.Equal(t, uint64(0x1004), bp.Addrs[0].Addr)
}

func TestResolvePointOfInterest(t *testing.T) {
	reg := oneBinaryRegistry()
	bp := &breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnPointOfInterest, PointOfInterest: "_start"}}
	breakpoint.Resolve(reg, bp)
	require.NoError(t, bp.ResolveErr)
	require.Len(t, bp.Addrs, 1)
	assert.Equal(t, uint64(0x900), bp.Addrs[0].Addr)
	assert.Equal(t, symbols.MaxDepth, bp.Addrs[0].Level)
}

func TestResolvePointOfInterestUnknownName(t *testing.T) {
	reg := oneBinaryRegistry()
	bp := &breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnPointOfInterest, PointOfInterest: "nope"}}
	breakpoint.Resolve(reg, bp)
	require.Error(t, bp.ResolveErr)
}

// fakeMemory is a word-addressable in-memory stand-in for a tracee's text
// segment, enough to exercise software breakpoint activation.
type fakeMemory map[uint64]uint64

func (m fakeMemory) ReadWord(addr uint64) (uint64, error)      { return m[addr], nil }
func (m fakeMemory) WriteWord(addr uint64, word uint64) error  { m[addr] = word; return nil }

func TestSyncLocationsInstallsSoftwareTrap(t *testing.T) {
	mem := fakeMemory{0x1000: 0x1122334455667788}
	mgr := breakpoint.NewManager(mem, nil)
	reg := oneBinaryRegistry()

	bp := breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnAddress, Address: breakpoint.AddressSpec{Addr: 0x1001}}, Enabled: true}
	id := mgr.Add(bp)
	got, _ := mgr.Get(id)
	breakpoint.Resolve(reg, got)

	require.NoError(t, mgr.SyncLocations(0, nil))
	loc, ok := mgr.AtAddr(0x1001)
	require.True(t, ok)
	assert.True(t, loc.Active)
	assert.Equal(t, byte(0x77), loc.OriginalByte)

	word := mem[0x1000]
	assert.Equal(t, byte(0xcc), byte(word>>8))
}

func TestSyncLocationsRemovesDeletedBreakpoint(t *testing.T) {
	mem := fakeMemory{0x2000: 0}
	mgr := breakpoint.NewManager(mem, nil)
	reg := oneBinaryRegistry()

	bp := breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnAddress, Address: breakpoint.AddressSpec{Addr: 0x2000}}, Enabled: true}
	id := mgr.Add(bp)
	got, _ := mgr.Get(id)
	breakpoint.Resolve(reg, got)
	require.NoError(t, mgr.SyncLocations(0, nil))
	_, ok := mgr.AtAddr(0x2000)
	require.True(t, ok)

	mgr.Remove(id)
	require.NoError(t, mgr.SyncLocations(0, nil))
	_, ok = mgr.AtAddr(0x2000)
	assert.False(t, ok)
}

type fakeDebugRegs struct {
	calls int
}

func (f *fakeDebugRegs) SetHardwareBreakpoints(tid int, slots [4]breakpoint.HardwareSlot) error {
	f.calls++
	return nil
}

func TestSyncLocationsInstallsHardwareSlot(t *testing.T) {
	mem := fakeMemory{}
	regs := &fakeDebugRegs{}
	mgr := breakpoint.NewManager(mem, regs)
	reg := oneBinaryRegistry()

	bp := breakpoint.Breakpoint{On: breakpoint.On{Kind: breakpoint.OnAddress, Address: breakpoint.AddressSpec{Addr: 0x3000}}, Enabled: true}
	id := mgr.Add(bp)
	got, _ := mgr.Get(id)
	breakpoint.Resolve(reg, got)

	require.NoError(t, mgr.SyncLocations(123, func(*breakpoint.Breakpoint) bool { return true }))
	loc, ok := mgr.AtAddr(0x3000)
	require.True(t, ok)
	assert.True(t, loc.Active)
	assert.True(t, loc.Hardware)
	assert.Equal(t, 1, regs.calls)
}

func TestShouldStopUnconditional(t *testing.T) {
	bp := &breakpoint.Breakpoint{}
	hit, err := breakpoint.ShouldStop(bp, nil)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, bp.Hits)
}

func TestShouldStopConditionFalse(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Variables["x"] = watchexpr.IntVal(2)
	bp := &breakpoint.Breakpoint{Condition: "x == 1"}
	hit, err := breakpoint.ShouldStop(bp, ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestShouldStopConditionTrue(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Variables["x"] = watchexpr.IntVal(1)
	bp := &breakpoint.Breakpoint{Condition: "x == 1"}
	hit, err := breakpoint.ShouldStop(bp, ctx)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestSaveAndLoadStateRoundTrips(t *testing.T) {
	mem := fakeMemory{}
	mgr := breakpoint.NewManager(mem, nil)
	mgr.Add(breakpoint.Breakpoint{
		On:        breakpoint.On{Kind: breakpoint.OnLine, Line: breakpoint.LineSpec{Path: "main.c", Line: 10}},
		Condition: "x == 1",
		Enabled:   true,
	})

	data, err := mgr.SaveState()
	require.NoError(t, err)

	mgr2 := breakpoint.NewManager(mem, nil)
	require.NoError(t, mgr2.LoadState(data))
	all := mgr2.All()
	require.Len(t, all, 1)
	assert.Equal(t, breakpoint.OnLine, all[0].On.Kind)
	assert.Equal(t, "main.c", all[0].On.Line.Path)
	assert.Equal(t, 10, all[0].On.Line.Line)
	assert.Equal(t, "x == 1", all[0].Condition)
	assert.True(t, all[0].Enabled)
}
