// Package step plans source-level stepping (into/over/out/cursor) as a set
// of completion tests evaluated against the unwinder's CFA and an address
// range, rather than single-instruction stepping throughout.
//
// Grounded on debugger.rs's StepState/StepKind and its completion-test
// comment block, and on delve's removeInlinedCalls/AllPCsBetween range
// computation for the instruction ranges a line step must stay within.
package step

// Kind names what the user asked for. Cursor ("run to here") uses a
// caller-supplied address range instead of one derived from the current
// line, and completes only when the thread stops inside that range, with
// no CFA test (unlike Over).
type Kind int

const (
	Into Kind = iota
	Over
	Out
	Cursor
)

func (k Kind) String() string {
	switch k {
	case Into:
		return "into"
	case Over:
		return "over"
	case Out:
		return "out"
	case Cursor:
		return "cursor"
	default:
		return "step?"
	}
}

// AddrRange is a half-open [Low, High) instruction range, one contiguous
// span of code generated for a single source line (a line can have several
// disjoint ranges once inlining splits it up).
type AddrRange struct {
	Low, High uint64
}

func (r AddrRange) Contains(addr uint64) bool { return addr >= r.Low && addr < r.High }

// Plan is the state a single step-request needs to carry between stops,
// mirroring StepState. InternalKind may differ from the user-requested
// Kind — stepping out of an inlined call is internally an Over, for
// instance — so callers should test InternalKind, not the kind the user
// typed.
type Plan struct {
	TID int

	// KeepOtherThreadsSuspended and DisableBreakpoints must stay constant
	// for the plan's duration: process_events() optimizes around the
	// former staying fixed.
	KeepOtherThreadsSuspended bool
	DisableBreakpoints        bool

	InternalKind   Kind
	ByInstructions bool
	AddrRanges     []AddrRange
	CFA            uint64
	SingleSteps    bool

	// StackDigest holds a per-frame identifier (CFA values, innermost
	// first, matching unwind.Engine.Trace's frame ordering) captured when
	// the step began, used to find the lowest common ancestor frame once
	// the step completes and pick which subframe the UI should focus.
	StackDigest []uint64
}

// inRanges reports whether addr falls in any of ranges, the "addr not in
// step.addr_ranges" test the source applies for both Into and Over.
func inRanges(ranges []AddrRange, addr uint64) bool {
	for _, r := range ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Complete reports whether a stop at (addr, cfa) finishes p, applying the
// exact per-kind completion test from the source's StepState doc comment.
func (p *Plan) Complete(addr, cfa uint64) bool {
	switch p.InternalKind {
	case Into:
		if p.ByInstructions {
			return !inRanges(p.AddrRanges, addr)
		}
		return cfa != p.CFA || !inRanges(p.AddrRanges, addr)
	case Over:
		if cfa > p.CFA {
			return true
		}
		return cfa == p.CFA && !inRanges(p.AddrRanges, addr)
	case Cursor:
		// Independent of CFA: a transient call entered on the way to the
		// cursor must not end the step, and returning past the cursor's
		// frame without hitting it must not end it either.
		return inRanges(p.AddrRanges, addr)
	case Out:
		return cfa > p.CFA
	default:
		return true
	}
}

// SelectFrame picks the stack-subframe index (0 = top/innermost) the UI
// should focus once the step completes, given the post-step stack's
// CFA-per-frame digest in the same innermost-first order as
// p.StackDigest. An empty p.StackDigest means "select the top subframe"
// (e.g. instruction steps).
func (p *Plan) SelectFrame(postStep []uint64) int {
	if len(p.StackDigest) == 0 {
		return 0
	}
	lca := lowestCommonAncestor(p.StackDigest, postStep)
	if p.InternalKind == Into && len(p.StackDigest) > 0 && postStep[lca] == p.StackDigest[0] && lca > 0 {
		// The frame we were stepping within is still there, with a new
		// frame now nested inside it: we really stepped into a call, so
		// go one subframe deeper than the LCA, matching "if it's the top
		// of the pre-step stack ... go one subframe deeper".
		return lca - 1
	}
	return lca
}

// lowestCommonAncestor returns the index into post (innermost first) of
// the most-nested frame that also appears somewhere in pre. Frames are
// only ever pushed/popped at the innermost end during a single step, so
// this is the frame both stacks agree was already there before the step.
func lowestCommonAncestor(pre, post []uint64) int {
	preSet := make(map[uint64]bool, len(pre))
	for _, cfa := range pre {
		preSet[cfa] = true
	}
	for i := 0; i < len(post); i++ {
		if preSet[post[i]] {
			return i
		}
	}
	return 0
}
