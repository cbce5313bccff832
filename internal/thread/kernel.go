package thread

import (
	"github.com/avodev/dbgcore/internal/regset"
)

// WaitResult is a decoded wait4 status, kept independent of any particular
// ptrace binding so this package's event loop can be tested against a fake
// Kernel without real syscalls.
type WaitResult struct {
	Exited     bool
	ExitCode   int
	Signaled   bool
	TermSignal int

	Stopped    bool
	StopSignal int
	// TraceEvent is the PTRACE_EVENT_* code from a PTRACE_O_TRACE*-induced
	// stop (clone/exec/exit/stop), 0 if this is a plain signal-delivery stop.
	TraceEvent int
	// NewChildTID is valid when TraceEvent is a clone event: the newly
	// spawned thread's tid, obtained via PTRACE_GETEVENTMSG.
	NewChildTID int
}

// Kernel is the subset of ptrace/wait4 the controller needs, implemented
// by internal/ptrace against the real kernel and by a fake in tests.
type Kernel interface {
	StartChild(path string, args []string, dir string) (pid int, err error)
	Seize(tid int) error
	ListThreads(pid int) ([]int, error)
	// TryWait polls for the next status change of any child without
	// blocking (PTRACE_O_TRACE*-aware wait4 with WNOHANG), the non-blocking
	// counterpart process_events' budgeted loop needs so it can return
	// control to the caller instead of sleeping in the kernel. ok is false
	// when nothing changed yet.
	TryWait() (tid int, result WaitResult, ok bool, err error)
	Cont(tid int, sig int) error
	SingleStep(tid int) error
	Interrupt(tid int) error
	Kill(pid int) error

	// GetRegs and SetPC read/rewrite tid's live registers, needed by trap
	// diagnosis (the "decrement IP by one, write it back" rule for an
	// already-executed software trap byte) and by
	// the step planner's completion test.
	GetRegs(tid int) (regset.Set, error)
	SetPC(tid int, pc uint64) error
	// PeekDebugReg and SetDebugReg read/write one of tid's DR0-DR7 debug
	// registers, used to read DR6's hit bits and clear them once diagnosed.
	PeekDebugReg(tid int, reg int) (uint64, error)
	SetDebugReg(tid int, reg int, value uint64) error
}
