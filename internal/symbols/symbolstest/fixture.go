// Package symbolstest provides an in-memory implementation of the
// interfaces in internal/symbols, fabricated directly by test code rather
// than parsed from a real ELF/DWARF binary, since debug-information parsing
// is out of scope for this module.
package symbolstest

import "github.com/avodev/dbgcore/internal/symbols"

// IdentityAddrMap is an AddrMap with no relocation, the common case for a
// statically linked test fixture or a binary loaded at its preferred base.
type IdentityAddrMap struct{ Bias uint64 }

func (m IdentityAddrMap) StaticToDynamic(static uint64) uint64 { return static + m.Bias }
func (m IdentityAddrMap) DynamicToStatic(dynamic uint64) uint64 { return dynamic - m.Bias }

// LineTable is a slice-backed symbols.LineTable fixture.
type LineTable struct {
	Lines []symbols.Line
}

func (t *LineTable) AddrToLine(addr uint64) (symbols.Line, bool) {
	var best *symbols.Line
	for i := range t.Lines {
		l := &t.Lines[i]
		if l.Addr <= addr && (best == nil || l.Addr > best.Addr) {
			best = l
		}
	}
	if best == nil {
		return symbols.Line{}, false
	}
	return *best, true
}

func (t *LineTable) LineToAddrs(file string, line int, exact bool) ([]symbols.LineHit, bool, int) {
	var hits []symbols.LineHit
	for _, l := range t.Lines {
		if l.File == file && l.Line == line {
			hits = append(hits, symbols.LineHit{Addr: l.Addr, Level: 0})
		}
	}
	if len(hits) > 0 {
		return hits, true, 0
	}
	if !exact {
		return nil, false, 0
	}
	// Fall back to the next line in the same file with code.
	nextLine := 0
	for _, l := range t.Lines {
		if l.File == file && l.Line > line && (nextLine == 0 || l.Line < nextLine) {
			nextLine = l.Line
		}
	}
	return nil, false, nextLine
}

// FunctionTable is a slice-backed symbols.FunctionTable fixture.
type FunctionTable struct {
	Functions []symbols.Function
}

func (t *FunctionTable) AddrToFunction(addr uint64) (symbols.Function, bool) {
	for _, f := range t.Functions {
		if addr >= f.Addr && addr < f.HighPC {
			return f, true
		}
	}
	return symbols.Function{}, false
}

func (t *FunctionTable) FindNearestFunction(mangledName string, lastKnownAddr uint64) (symbols.Function, bool) {
	for _, f := range t.Functions {
		if f.MangledName == mangledName {
			return f, true
		}
	}
	return t.AddrToFunction(lastKnownAddr)
}

// SubfunctionTree is a slice-backed symbols.SubfunctionTree fixture.
type SubfunctionTree struct {
	Subfunctions []symbols.Subfunction
}

func (t *SubfunctionTree) ContainingSubfunctionAtLevel(addr uint64, level uint16, functionID int) (symbols.Subfunction, bool) {
	var best *symbols.Subfunction
	for i := range t.Subfunctions {
		s := &t.Subfunctions[i]
		if s.FunctionID != functionID || s.Level < level {
			continue
		}
		if addr >= s.LowPC && addr < s.HighPC {
			if best == nil || s.Level > best.Level {
				best = s
			}
		}
	}
	if best == nil {
		return symbols.Subfunction{}, false
	}
	return *best, true
}

func (t *SubfunctionTree) ChainAt(addr uint64, functionID int) []symbols.Subfunction {
	var chain []symbols.Subfunction
	for _, s := range t.Subfunctions {
		if s.FunctionID == functionID && addr >= s.LowPC && addr < s.HighPC {
			chain = append(chain, s)
		}
	}
	return chain
}

// UnwindTable is a slice-backed symbols.UnwindTable fixture.
type UnwindTable struct {
	Rows map[uint64]symbols.UnwindRow
}

func (t *UnwindTable) Row(addr uint64) (symbols.UnwindRow, bool) {
	row, ok := t.Rows[addr]
	return row, ok
}

// Binary is a fully in-memory symbols.Binary fixture.
type Binary struct {
	IDValue      int
	PathValue    string
	Mapped       bool
	Loaded       bool
	Addrs        symbols.AddrMap
	LineTab      *LineTable
	FuncTab      *FunctionTable
	SubfuncTree  *SubfunctionTree
	Unwind       *UnwindTable
	BaseTypes    map[string]symbols.BaseType
	PointsOfInt  map[string]uint64
}

func (b *Binary) ID() int                              { return b.IDValue }
func (b *Binary) Path() string                          { return b.PathValue }
func (b *Binary) IsMapped() bool                        { return b.Mapped }
func (b *Binary) AddrMap() symbols.AddrMap              { return b.Addrs }
func (b *Binary) Lines() symbols.LineTable              { return b.LineTab }
func (b *Binary) Functions() symbols.FunctionTable      { return b.FuncTab }
func (b *Binary) Subfunctions() symbols.SubfunctionTree { return b.SubfuncTree }
func (b *Binary) UnwindTable() symbols.UnwindTable      { return b.Unwind }
func (b *Binary) PointsOfInterest() map[string]uint64   { return b.PointsOfInt }
func (b *Binary) SymbolsLoaded() bool                   { return b.Loaded }

func (b *Binary) BaseType(name string) (symbols.BaseType, bool) {
	t, ok := b.BaseTypes[name]
	return t, ok
}

// Registry is a slice-backed symbols.Registry fixture.
type Registry struct {
	Binaries []*Binary
}

func (r *Registry) Iter() []symbols.Binary {
	out := make([]symbols.Binary, len(r.Binaries))
	for i, b := range r.Binaries {
		out[i] = b
	}
	return out
}

func (r *Registry) Get(id int) (symbols.Binary, bool) {
	for _, b := range r.Binaries {
		if b.IDValue == id {
			return b, true
		}
	}
	return nil, false
}
