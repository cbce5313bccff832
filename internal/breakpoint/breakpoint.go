// Package breakpoint resolves user-facing breakpoint requests (by source
// line, by address, by named point of interest) into concrete code
// addresses, and tracks the software/hardware locations those addresses
// are poked into.
//
// Grounded on debugger.rs's BreakpointOn/Breakpoint/BreakpointLocation/
// HardwareBreakpoint and determine_locations_for_breakpoint.
package breakpoint

import (
	"github.com/avodev/dbgcore/internal/dbgerr"
	"github.com/avodev/dbgcore/internal/symbols"
)

// OnKind names what a Breakpoint is attached to.
type OnKind int

const (
	OnLine OnKind = iota
	OnAddress
	OnInitialExec
	OnPointOfInterest
)

// LineSpec locates a breakpoint by source file and line number.
type LineSpec struct {
	Path string
	Line int
	// AdjustedLine is set when Line itself generates no code and
	// resolution fell back to the next line that does, mirroring the
	// source's LineBreakpoint.adjusted_line UI hint.
	AdjustedLine int
}

// AddressSpec locates a breakpoint at a raw or function-relative address.
type AddressSpec struct {
	FunctionName    string // empty if Addr is absolute
	Offset          uint64
	Addr            uint64
	SubfunctionLevel uint16
}

// On is the tagged union of what a Breakpoint can be attached to.
type On struct {
	Kind          OnKind
	Line          LineSpec
	Address       AddressSpec
	PointOfInterest string
}

// Hit is one resolved address for a Breakpoint, with the inline depth a
// stop at that address should select, matching the source's
// (addr, subfunction_level) pairs.
type Hit struct {
	Addr  uint64
	Level uint16
}

// ID identifies a Breakpoint within a Manager.
type ID int

// Breakpoint is one user-visible breakpoint: what it's attached to, its
// optional condition text, and the addresses it currently resolves to.
type Breakpoint struct {
	ID        ID
	On        On
	Condition string // watch-expression source; empty means unconditional
	Enabled   bool
	Active    bool // true once Hits' addresses are installed as Locations
	Hits      int  // count of stops, including ones a condition suppressed

	Addrs      []Hit
	ResolveErr error // set when Addrs could not be computed this round
}

// resolveFunction finds locator's function in registry and returns the
// dynamic address Offset bytes past its entry point, mirroring
// resolve_function_breakpoint_location.
func resolveFunction(registry symbols.Registry, name string, lastKnownAddr, offset uint64) (uint64, error) {
	for _, bin := range registry.Iter() {
		if !bin.SymbolsLoaded() {
			continue
		}
		fn, ok := bin.Functions().FindNearestFunction(name, lastKnownAddr)
		if !ok {
			continue
		}
		return bin.AddrMap().StaticToDynamic(fn.Addr + offset), nil
	}
	return 0, dbgerr.New(dbgerr.NoFunction, "function not found: %s", name)
}
