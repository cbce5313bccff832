package step_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avodev/dbgcore/internal/step"
	"github.com/avodev/dbgcore/internal/symbols"
	"github.com/avodev/dbgcore/internal/symbols/symbolstest"
)

func TestStepIntoCompletesOnCfaChange(t *testing.T) {
	p := &step.Plan{InternalKind: step.Into, CFA: 0x7000, AddrRanges: []step.AddrRange{{Low: 0x1000, High: 0x1010}}}
	assert.False(t, p.Complete(0x1005, 0x7000), "still on the same line and frame")
	assert.True(t, p.Complete(0x2000, 0x7010), "called into a new frame")
}

func TestStepIntoByInstructionIgnoresCfa(t *testing.T) {
	p := &step.Plan{InternalKind: step.Into, ByInstructions: true, CFA: 0x7000, AddrRanges: []step.AddrRange{{Low: 0x1000, High: 0x1010}}}
	assert.True(t, p.Complete(0x1020, 0x7000), "left the range even though the frame is unchanged")
}

func TestStepOverCompletesWhenCfaGrowsOrLineLeft(t *testing.T) {
	p := &step.Plan{InternalKind: step.Over, CFA: 0x7000, AddrRanges: []step.AddrRange{{Low: 0x1000, High: 0x1010}}}
	assert.False(t, p.Complete(0x1005, 0x7000))
	assert.False(t, p.Complete(0x2000, 0x6ff0), "called deeper (smaller cfa); not done")
	assert.True(t, p.Complete(0x2000, 0x7010), "returned to caller: cfa grew")
	assert.True(t, p.Complete(0x1020, 0x7000), "left the line's range at the same frame")
}

func TestStepCursorCompletesOnlyOnMarkerHit(t *testing.T) {
	p := &step.Plan{InternalKind: step.Cursor, CFA: 0x7000, AddrRanges: []step.AddrRange{{Low: 0x2000, High: 0x2010}}}
	assert.False(t, p.Complete(0x1000, 0x7000), "still on the way to the cursor, same frame")
	// A transient call entered before ever reaching the cursor changes CFA,
	// but Cursor's test ignores CFA entirely: only hitting the marker ends it.
	assert.False(t, p.Complete(0x1234, 0x6ff0), "called into an unrelated function first; not the cursor")
	assert.False(t, p.Complete(0x1000, 0x7100), "returned past the cursor's frame without hitting it")
	assert.True(t, p.Complete(0x2004, 0x9999), "hit the cursor marker, regardless of cfa")
}

func TestStepOutCompletesOnlyWhenCfaGrows(t *testing.T) {
	p := &step.Plan{InternalKind: step.Out, CFA: 0x7000}
	assert.False(t, p.Complete(0x1234, 0x6ff0))
	assert.False(t, p.Complete(0x1234, 0x7000))
	assert.True(t, p.Complete(0x1234, 0x7010))
}

func TestSelectFrameTopWhenNoDigest(t *testing.T) {
	p := &step.Plan{InternalKind: step.Over}
	assert.Equal(t, 0, p.SelectFrame([]uint64{0x7000, 0x8000}))
}

func TestSelectFrameOverUsesLowestCommonAncestor(t *testing.T) {
	// Pre-step stack (innermost first): A, B, C. The step returned out of
	// A entirely, so the post-step stack is just B, C; B is now the top
	// and is also the lowest common ancestor, at index 0.
	p := &step.Plan{InternalKind: step.Over, StackDigest: []uint64{0xA000, 0xB000, 0xC000}}
	idx := p.SelectFrame([]uint64{0xB000, 0xC000})
	assert.Equal(t, 0, idx)
}

func TestSelectFrameIntoGoesOneDeeperWhenTrulySteppedIn(t *testing.T) {
	// Pre-step stack: A, B, C. We stepped into a new call E nested inside
	// A, so the post-step stack is E, A, B, C; A (the LCA) is at index 1,
	// and since A is still the pre-step's own top frame we focus one
	// level deeper, at E (index 0).
	p := &step.Plan{InternalKind: step.Into, StackDigest: []uint64{0xA000, 0xB000, 0xC000}}
	idx := p.SelectFrame([]uint64{0xE000, 0xA000, 0xB000, 0xC000})
	assert.Equal(t, 0, idx, "stepped into a real call: one subframe deeper than the LCA")
}

func TestLineRangesCoalescesNearbyAddresses(t *testing.T) {
	bin := &symbolstest.Binary{
		Mapped: true, Loaded: true,
		Addrs: symbolstest.IdentityAddrMap{},
		LineTab: &symbolstest.LineTable{Lines: []symbols.Line{
			{Addr: 0x1000, File: "f.c", Line: 5},
			{Addr: 0x1004, File: "f.c", Line: 5},
			{Addr: 0x1008, File: "f.c", Line: 5},
			{Addr: 0x1100, File: "f.c", Line: 6},
		}},
		FuncTab:     &symbolstest.FunctionTable{Functions: []symbols.Function{{ID: 1, Addr: 0x1000, HighPC: 0x1200}}},
		SubfuncTree: &symbolstest.SubfunctionTree{},
	}
	ranges := step.LineRanges(bin, 0x1004)
	assert.Len(t, ranges, 1)
	assert.Equal(t, uint64(0x1000), ranges[0].Low)
	assert.Equal(t, uint64(0x1009), ranges[0].High)
}
