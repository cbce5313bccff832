package ptrace

import (
	"golang.org/x/sys/unix"

	"github.com/avodev/dbgcore/internal/breakpoint"
	"github.com/avodev/dbgcore/internal/dbgerr"
)

// x86-64 debug register offsets into struct user (sys/user.h), the same
// layout delve's native hardware-breakpoint backend pokes through
// PTRACE_POKEUSER. golang.org/x/sys/unix does not wrap PEEKUSER/POKEUSER
// (only the PEEKTEXT/POKETEXT/GETREGS family used elsewhere in this
// package), so these two calls go through the raw syscall the rest of the
// unix package is itself built on, the same style gvisor-ligolo's
// subprocess_linux.go uses for calls its target platform doesn't wrap.
const (
	userRegsSize  = 27 * 8 // sizeof(struct user_regs_struct)
	userAreaFixed = userRegsSize + 8 /*u_fpvalid+pad*/ + 512 /*i387*/ +
		8*3 /*u_tsize,u_dsize,u_ssize*/ + 8*2 /*start_code,start_stack*/ +
		8 /*signal*/ + 8 /*reserved+pad*/ + 8 /*u_ar0*/ + 8 /*u_fpstate*/ + 8 /*magic*/ + 32 /*u_comm*/
	debugRegOffset = userAreaFixed // offsetof(struct user, u_debugreg)
)

func pokeUser(tid int, offset, value uint64) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_POKEUSR, uintptr(tid), uintptr(offset), uintptr(value), 0, 0)
	if errno != 0 {
		return dbgerr.Wrap(dbgerr.Internal, errno, "ptrace(POKEUSER, %d, %#x)", tid, offset)
	}
	return nil
}

func peekUser(tid int, offset uint64) (uint64, error) {
	v, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_PEEKUSR, uintptr(tid), uintptr(offset), 0, 0, 0)
	if errno != 0 {
		return 0, dbgerr.Wrap(dbgerr.Internal, errno, "ptrace(PEEKUSER, %d, %#x)", tid, offset)
	}
	return uint64(v), nil
}

// PeekDebugReg reads DR<reg> (0-7; 6 is the debug-status register whose low
// 4 bits name which of DR0-DR3 just fired) via PTRACE_PEEKUSER, the trap
// diagnosis in internal/thread's only way to tell a hardware breakpoint hit
// apart from a software one or an expected single-step trap.
func PeekDebugReg(tid, reg int) (uint64, error) {
	return peekUser(tid, uint64(debugRegOffset+reg*8))
}

// SetDebugReg writes DR<reg>, used to clear DR6's hit bits once diagnosed
// (the kernel does not clear them on its own).
func SetDebugReg(tid, reg int, value uint64) error {
	return pokeUser(tid, uint64(debugRegOffset+reg*8), value)
}

// dr7Bits encodes one DR7 local-enable + 2-bit condition + 2-bit length
// field for slot n, the x86 debug-control-register layout every hardware
// breakpoint backend (gdb, delve, the source's HardwareBreakpoint) targets.
func dr7Bits(n int, enabled bool, rw, length uint64) uint64 {
	var bits uint64
	if enabled {
		bits |= 1 << (uint(n) * 2) // local enable bit
	}
	bits |= (rw | length<<2) << (16 + uint(n)*4)
	return bits
}

// HardwareRegisters implements breakpoint.DebugRegisters over the kernel's
// x86 debug registers via PTRACE_POKEUSER.
type HardwareRegisters struct{}

// SetHardwareBreakpoints programs tid's four x86 debug-address registers
// (DR0-DR3) and control register (DR7) from slots. Disabled/empty slots
// get address 0 and a cleared enable bit, matching
// deactivate_breakpoint_location's handling of a freed hardware slot.
func (HardwareRegisters) SetHardwareBreakpoints(tid int, slots [4]breakpoint.HardwareSlot) error {
	var dr7 uint64
	for i, s := range slots {
		addr := s.Addr
		if !s.Active {
			addr = 0
		}
		if err := pokeUser(tid, uint64(debugRegOffset+i*8), addr); err != nil {
			return err
		}
		// rw=0 (instruction execution), length=0 (1 byte) is the
		// execute-breakpoint encoding the source always uses for code
		// breakpoints; data watchpoints are Non-goals here.
		dr7 |= dr7Bits(i, s.Active, 0, 0)
	}
	return pokeUser(tid, uint64(debugRegOffset+7*8), dr7)
}
