// Package regset holds a sparse view of a thread's x86-64 registers plus
// the synthetic "CFA" and "Ret" slots produced while unwinding, each value
// tagged with a "dubious" flag marking low-confidence recovery.
package regset

import "github.com/avodev/dbgcore/internal/dbgerr"

// Idx names a single register slot, including the two synthetic slots that
// only exist inside an unwound frame.
type Idx int

const (
	Rax Idx = iota
	Rbx
	Rcx
	Rdx
	Rsi
	Rdi
	Rbp
	Rsp
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	Rip
	Eflags
	// Cfa is the canonical frame address computed while unwinding; absent
	// for the innermost (non-unwound) frame.
	Cfa
	// Ret is the return-address slot saved by the current frame's unwind
	// rule; distinct from Rip, which names the frame's own instruction
	// pointer.
	Ret

	numRegs
)

type slot struct {
	value   uint64
	present bool
	dubious bool
}

// Set is a sparse register file. The zero value is a Set with nothing
// present, matching a freshly unwound synthetic frame before any rule has
// been evaluated.
type Set struct {
	slots [numRegs]slot
}

// Has reports whether idx currently has a value.
func (s *Set) Has(idx Idx) bool {
	return s.slots[idx].present
}

// GetInt returns the value at idx and whether it is dubious. It returns a
// ProcessState error if the slot has never been set, mirroring the source's
// `get_int` which fails for registers the unwinder could not recover.
func (s *Set) GetInt(idx Idx) (uint64, bool, error) {
	sl := s.slots[idx]
	if !sl.present {
		return 0, false, dbgerr.New(dbgerr.ProcessState, "register %v not available", idx)
	}
	return sl.value, sl.dubious, nil
}

// MustGetInt is GetInt without the dubious flag or error, for call sites
// that already know the register is present (e.g. right after SetInt).
func (s *Set) MustGetInt(idx Idx) uint64 {
	return s.slots[idx].value
}

// SetInt assigns idx's value and dubious flag, marking it present.
func (s *Set) SetInt(idx Idx, value uint64, dubious bool) {
	s.slots[idx] = slot{value: value, present: true, dubious: dubious}
}

// Clear removes every slot, returning the Set to its zero state.
func (s *Set) Clear() {
	*s = Set{}
}

// Clone returns an independent copy, used when starting to unwind a new
// frame from a caller's register set.
func (s *Set) Clone() Set {
	return *s
}

func (i Idx) String() string {
	names := [...]string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
		"rip", "eflags", "cfa", "ret",
	}
	if int(i) < 0 || int(i) >= len(names) {
		return "reg?"
	}
	return names[i]
}

// FromDwarf maps a DWARF register number (x86-64 System V ABI numbering) to
// an Idx, mirroring RegisterIdx::from_dwarf in the grounding source. Ok is
// false for DWARF register numbers this core does not model (e.g. vector
// registers), matching the source's treatment of those as "unsupported
// register in expression".
func FromDwarf(n uint64) (Idx, bool) {
	switch n {
	case 0:
		return Rax, true
	case 1:
		return Rdx, true
	case 2:
		return Rcx, true
	case 3:
		return Rbx, true
	case 4:
		return Rsi, true
	case 5:
		return Rdi, true
	case 6:
		return Rbp, true
	case 7:
		return Rsp, true
	case 8:
		return R8, true
	case 9:
		return R9, true
	case 10:
		return R10, true
	case 11:
		return R11, true
	case 12:
		return R12, true
	case 13:
		return R13, true
	case 14:
		return R14, true
	case 15:
		return R15, true
	case 16:
		return Rip, true
	default:
		return 0, false
	}
}
