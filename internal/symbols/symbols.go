// Package symbols defines the read-only view the core consumes from an
// external debug-information provider: line tables, function tables,
// subfunction (inlined-call) trees, base-type lookups, unwind tables, and
// address maps. ELF/DWARF parsing itself is out of scope for this module;
// only the consumed interfaces (and a fixture implementation for tests)
// live here.
package symbols

import "github.com/avodev/dbgcore/internal/dwarfop"

// AddrMap translates between a binary's static (link-time) addresses and
// its dynamic (runtime, post-relocation) addresses.
type AddrMap interface {
	StaticToDynamic(static uint64) uint64
	DynamicToStatic(dynamic uint64) uint64
}

// Line is one row of a line table: a dynamic address mapped to a source
// location.
type Line struct {
	Addr   uint64
	File   string
	Line   int
	Column int
	IsStmt bool
}

// LineTable maps addresses to source lines and back, and supports the
// "next line with code" fallback breakpoint resolution needs when a
// requested line itself has no code.
type LineTable interface {
	// AddrToLine returns the line row covering addr.
	AddrToLine(addr uint64) (Line, bool)
	// LineToAddrs returns every (line, inlineDepth) pair generating code
	// for file/line. If exact is true and no code exists for that exact
	// line, ok is false and adjustedLine names the next line with code (0
	// if none exists in the file), mirroring the source's
	// `line_to_addrs` Err(Some(adjusted_line)) case.
	LineToAddrs(file string, line int, exact bool) (addrs []LineHit, ok bool, adjustedLine int)
}

// LineHit names one instance of code generated for a requested line: the
// address and the inline nesting level it was generated at (MaxDepth for
// "not inlined" / "don't care").
type LineHit struct {
	Addr  uint64
	Level uint16
}

// MaxDepth marks "no particular inline depth" in a LineHit/Breakpoint, used
// by point-of-interest and bare address breakpoints.
const MaxDepth = ^uint16(0)

// Function is one entry in a binary's function directory.
type Function struct {
	ID           int
	MangledName  string
	Addr         uint64
	HighPC       uint64
	FrameBaseOp  []dwarfop.Op // a tiny DWARF expression, evaluated by dwarfexpr
}

// FunctionTable looks functions up by address or by name.
type FunctionTable interface {
	AddrToFunction(addr uint64) (Function, bool)
	FindNearestFunction(mangledName string, lastKnownAddr uint64) (Function, bool)
}

// Subfunction is one node of a function's inlined-call tree: an address
// range the compiler replaced with an inlined body, its call-site line, and
// parent linkage.
type Subfunction struct {
	ID         int
	FunctionID int
	Level      uint16 // 0 = the real (non-inlined) function itself
	LowPC      uint64
	HighPC     uint64
	CallLine   int
}

// SubfunctionTree walks the inlined-call nesting of a function.
type SubfunctionTree interface {
	// ContainingSubfunctionAtLevel returns the subfunction node containing
	// addr within functionID, at or above level, used both for breakpoint
	// deduplication-by-containing-subfunction and for subframe
	// symbolization while unwinding.
	ContainingSubfunctionAtLevel(addr uint64, level uint16, functionID int) (Subfunction, bool)
	// ChainAt returns every subframe (real function first, deepest inlined
	// call last) whose range contains the static pseudo-address.
	ChainAt(addr uint64, functionID int) []Subfunction
}

// UnwindRow is one row of a binary's frame-unwind table: how to compute the
// CFA and how to recover each saved register, expressed as tiny DWARF
// expressions (dwarfexpr.Op sequences) evaluated by dwarfexpr. The rows
// this interface hands out are already decoded: decoding raw .debug_frame
// bytes into operation sequences is ELF/DWARF loading, which belongs to the
// external provider, not this module.
type UnwindRow struct {
	CFAExpr            []dwarfop.Op
	SavedRegs          map[int][]dwarfop.Op // DWARF register number -> rule
	IsSignalTrampoline bool
}

// UnwindTable looks up the row covering an address.
type UnwindTable interface {
	Row(addr uint64) (UnwindRow, bool)
}

// BaseType is a primitive type referenced from a DWARF expression's
// DW_OP_convert/DW_OP_reinterpret-style operands.
type BaseType struct {
	Name     string
	ByteSize int
	Signed   bool
	Float    bool
}

// Binary is one mapped ELF image: its address map, line/function/
// subfunction/unwind views, named points of interest, and loading state.
type Binary interface {
	ID() int
	Path() string
	IsMapped() bool
	AddrMap() AddrMap
	Lines() LineTable
	Functions() FunctionTable
	Subfunctions() SubfunctionTree
	UnwindTable() UnwindTable
	BaseType(name string) (BaseType, bool)
	PointsOfInterest() map[string]uint64
	// SymbolsLoaded reports whether debug info finished loading; while
	// false, resolution requests return a Loading error rather than
	// "not found".
	SymbolsLoaded() bool
}

// Registry is the ordered memory-map list: every mapped binary in the
// target process, consulted by breakpoint resolution and unwinding.
type Registry interface {
	Iter() []Binary
	Get(id int) (Binary, bool)
}
