package breakpoint

import (
	"golang.org/x/exp/slices"

	"github.com/avodev/dbgcore/internal/dbgerr"
	"github.com/avodev/dbgcore/internal/symbols"
)

// Resolve recomputes bp.Addrs from bp.On against registry, the Go
// equivalent of determine_locations_for_breakpoint. It always overwrites
// Addrs/ResolveErr; callers re-resolve whenever the memory map changes
// (module load/unload) or a breakpoint is first added.
func Resolve(registry symbols.Registry, bp *Breakpoint) {
	switch bp.On.Kind {
	case OnLine:
		resolveLine(registry, bp)
	case OnAddress:
		resolveAddress(registry, bp)
	case OnPointOfInterest:
		resolvePointOfInterest(registry, bp)
	case OnInitialExec:
		bp.Addrs, bp.ResolveErr = nil, dbgerr.New(dbgerr.Internal, "InitialExec breakpoints are not user-resolvable")
	default:
		bp.Addrs, bp.ResolveErr = nil, dbgerr.New(dbgerr.Internal, "unknown breakpoint kind %v", bp.On.Kind)
	}
}

type lineHitKey struct {
	functionID, subfunctionID int
}

func resolveLine(registry symbols.Registry, bp *Breakpoint) {
	spec := &bp.On.Line
	spec.AdjustedLine = 0

	bestLine := -1
	var hits []Hit
	loading, foundFile := false, false

	for _, bin := range registry.Iter() {
		if !bin.IsMapped() {
			continue
		}
		if !bin.SymbolsLoaded() {
			loading = true
			continue
		}
		addrs, ok, adjusted := bin.Lines().LineToAddrs(spec.Path, spec.Line, true)
		if !ok {
			if adjusted == 0 {
				continue
			}
			addrs, ok, _ = bin.Lines().LineToAddrs(spec.Path, adjusted, false)
			if !ok || len(addrs) == 0 {
				continue
			}
			if bestLine == -1 || adjusted < bestLine {
				bestLine = adjusted
			}
		}
		if len(addrs) == 0 {
			continue
		}
		foundFile = true

		// Deduplicate same-(function,subfunction) addresses, keeping the
		// lowest address in each, mirroring the source's grouping step.
		type entry struct {
			functionID, subfunctionID int
			addr                      uint64
			level                     uint16
		}
		entries := make([]entry, 0, len(addrs))
		for _, hit := range addrs {
			fn, ok := bin.Functions().AddrToFunction(hit.Addr)
			if !ok {
				entries = append(entries, entry{functionID: -1, subfunctionID: int(hit.Addr), addr: hit.Addr, level: hit.Level})
				continue
			}
			sf, ok := bin.Subfunctions().ContainingSubfunctionAtLevel(hit.Addr, hit.Level, fn.ID)
			if !ok {
				entries = append(entries, entry{functionID: fn.ID, subfunctionID: int(hit.Addr), addr: hit.Addr, level: hit.Level})
				continue
			}
			entries = append(entries, entry{functionID: fn.ID, subfunctionID: sf.ID, addr: hit.Addr, level: sf.Level})
		}
		slices.SortFunc(entries, func(a, b entry) int {
			if a.functionID != b.functionID {
				return a.functionID - b.functionID
			}
			if a.subfunctionID != b.subfunctionID {
				return a.subfunctionID - b.subfunctionID
			}
			switch {
			case a.addr < b.addr:
				return -1
			case a.addr > b.addr:
				return 1
			default:
				return 0
			}
		})
		seen := make(map[lineHitKey]bool)
		for _, e := range entries {
			key := lineHitKey{e.functionID, e.subfunctionID}
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, Hit{Addr: bin.AddrMap().StaticToDynamic(e.addr), Level: e.level})
		}
	}

	if len(hits) == 0 {
		switch {
		case loading:
			bp.ResolveErr = dbgerr.New(dbgerr.Loading, "symbols are not loaded yet")
		case foundFile:
			bp.ResolveErr = dbgerr.New(dbgerr.NoCodeLocations, "no machine code at or below line %d", spec.Line)
		default:
			bp.ResolveErr = dbgerr.New(dbgerr.NoCodeLocations, "no machine code for file %s", spec.Path)
		}
		bp.Addrs = nil
		return
	}
	if bestLine != -1 && bestLine != spec.Line {
		spec.AdjustedLine = bestLine
	}
	bp.Addrs, bp.ResolveErr = hits, nil
}

func resolveAddress(registry symbols.Registry, bp *Breakpoint) {
	spec := &bp.On.Address
	if spec.FunctionName != "" {
		addr, err := resolveFunction(registry, spec.FunctionName, spec.Addr, spec.Offset)
		if err != nil {
			if dbgerr.IsLoading(err) {
				bp.Addrs, bp.ResolveErr = nil, err
				return
			}
			// Fall back to the last known address, matching the source's
			// "function not found this round, keep last resolved addr".
		} else {
			spec.Addr = addr
		}
	}
	bp.Addrs = []Hit{{Addr: spec.Addr, Level: spec.SubfunctionLevel}}
	bp.ResolveErr = nil
}

func resolvePointOfInterest(registry symbols.Registry, bp *Breakpoint) {
	var hits []Hit
	loading := false
	for _, bin := range registry.Iter() {
		if !bin.IsMapped() {
			continue
		}
		if !bin.SymbolsLoaded() {
			loading = true
			continue
		}
		for name, addr := range bin.PointsOfInterest() {
			if name != bp.On.PointOfInterest {
				continue
			}
			hits = append(hits, Hit{Addr: bin.AddrMap().StaticToDynamic(addr), Level: symbols.MaxDepth})
		}
	}
	if len(hits) > 0 {
		bp.Addrs, bp.ResolveErr = hits, nil
		return
	}
	if loading {
		bp.Addrs, bp.ResolveErr = nil, dbgerr.New(dbgerr.Loading, "symbols are not loaded yet")
		return
	}
	bp.Addrs, bp.ResolveErr = nil, dbgerr.New(dbgerr.NoFunction, "%s not found", bp.On.PointOfInterest)
}
