package step

import (
	"golang.org/x/exp/slices"

	"github.com/avodev/dbgcore/internal/symbols"
)

// LineRanges computes the instruction ranges generated for the source line
// covering pc, restricted to the same inline nesting level pc is
// currently at, mirroring delve's removeInlinedCalls: a line step must not
// wander into or out of an inlined call the debugger never showed as a
// separate frame.
//
// binary's line table is walked for every row naming the same file/line as
// pc's own row; adjacent rows for that line are coalesced into ranges.
func LineRanges(binary symbols.Binary, pc uint64) []AddrRange {
	lt := binary.Lines()
	here, ok := lt.AddrToLine(pc)
	if !ok {
		return []AddrRange{{Low: pc, High: pc + 1}}
	}

	fn, hasFn := binary.Functions().AddrToFunction(pc)
	var level uint16
	if hasFn {
		if sf, ok := binary.Subfunctions().ContainingSubfunctionAtLevel(pc, 0, fn.ID); ok {
			level = sf.Level
		}
	}

	hits, ok, _ := lt.LineToAddrs(here.File, here.Line, true)
	if !ok || len(hits) == 0 {
		return []AddrRange{{Low: pc, High: pc + 1}}
	}

	var addrs []uint64
	for _, h := range hits {
		if h.Level != level {
			continue
		}
		addrs = append(addrs, h.Addr)
	}
	if len(addrs) == 0 {
		return []AddrRange{{Low: pc, High: pc + 1}}
	}
	return coalesce(addrs, 16)
}

// coalesce turns a sorted-or-not list of instruction addresses into
// half-open ranges, treating addresses within maxGap bytes of each other as
// contiguous (a line's machine code is rarely one unbroken span once the
// compiler interleaves nearby lines, so an exact-adjacency test would
// fragment a single line into dozens of one-instruction ranges).
func coalesce(addrs []uint64, maxGap uint64) []AddrRange {
	sorted := append([]uint64(nil), addrs...)
	slices.Sort(sorted)

	var ranges []AddrRange
	for _, a := range sorted {
		if n := len(ranges); n > 0 && a <= ranges[n-1].High+maxGap {
			if a+1 > ranges[n-1].High {
				ranges[n-1].High = a + 1
			}
			continue
		}
		ranges = append(ranges, AddrRange{Low: a, High: a + 1})
	}
	return ranges
}
