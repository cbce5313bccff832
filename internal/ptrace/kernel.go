package ptrace

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/avodev/dbgcore/internal/regset"
	"github.com/avodev/dbgcore/internal/thread"
)

// Linux-specific PTRACE_EVENT_* codes, reported in the top byte of a
// SIGTRAP stop's wait status when the corresponding PTRACE_O_TRACE* option
// fired; these are not otherwise exposed by golang.org/x/sys/unix.
const (
	eventClone = 3
	eventExec  = 4
	eventExit  = 6
	eventStop  = 128
)

// Kernel implements thread.Kernel against the real Linux ptrace/wait4
// syscalls wrapped by this package.
type Kernel struct{}

func (Kernel) StartChild(path string, args []string, dir string) (int, error) {
	return Start(path, args, dir, devNull(os.O_RDONLY), devNull(os.O_WRONLY), devNull(os.O_WRONLY))
}

func (Kernel) Seize(tid int) error { return Seize(tid) }

func (Kernel) ListThreads(pid int) ([]int, error) { return ListThreads(pid) }

func (Kernel) Cont(tid int, sig int) error { return Cont(tid, sig) }

func (Kernel) SingleStep(tid int) error { return SingleStep(tid) }

func (Kernel) Interrupt(tid int) error { return Interrupt(tid) }

func (Kernel) Kill(pid int) error { return Kill(pid) }

func (Kernel) GetRegs(tid int) (regset.Set, error) {
	regs, err := GetRegs(tid)
	if err != nil {
		return regset.Set{}, err
	}
	return ToRegSet(&regs), nil
}

func (Kernel) SetPC(tid int, pc uint64) error { return SetPC(tid, pc) }

func (Kernel) PeekDebugReg(tid, reg int) (uint64, error) { return PeekDebugReg(tid, reg) }

func (Kernel) SetDebugReg(tid, reg int, value uint64) error { return SetDebugReg(tid, reg, value) }

// TryWait polls for the next status change of any child of this process
// without blocking (wait4(-1, WNOHANG), the non-blocking counterpart of
// process_events' wait() calls) and decodes it into a thread.WaitResult.
// ok is false when nothing has changed yet.
func (Kernel) TryWait() (int, thread.WaitResult, bool, error) {
	tid, status, err := Wait(-1, unix.WNOHANG)
	if err != nil {
		return 0, thread.WaitResult{}, false, err
	}
	if tid == 0 {
		return 0, thread.WaitResult{}, false, nil
	}
	var res thread.WaitResult
	switch {
	case status.Exited():
		res.Exited = true
		res.ExitCode = status.ExitStatus()
	case status.Signaled():
		res.Signaled = true
		res.TermSignal = int(status.Signal())
	case status.Stopped():
		res.Stopped = true
		res.StopSignal = int(status.StopSignal())
		if cause := status.TrapCause(); cause > 0 {
			// A PTRACE_O_TRACE*-induced stop reports its PTRACE_EVENT_* code
			// the same way for clone/exec/exit and for the PTRACE_EVENT_STOP
			// a PTRACE_SEIZE'd thread gets on group-stop/PTRACE_INTERRUPT.
			res.TraceEvent = cause
			if cause == eventClone {
				if msg, err := unix.PtraceGetEventMsg(tid); err == nil {
					res.NewChildTID = int(msg)
				}
			}
		}
	}
	return tid, res, true, nil
}

func devNull(flag int) *os.File {
	f, err := os.OpenFile(os.DevNull, flag, 0)
	if err != nil {
		return nil
	}
	return f
}
