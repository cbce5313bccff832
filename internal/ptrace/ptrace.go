// Package ptrace wraps the Linux kernel calls the debugger core needs to
// control a tracee: starting or seizing it, reading and writing its
// memory and registers, resuming it, and programming the x86 debug
// registers for hardware (execute-only) breakpoints.
//
// Grounded on gvisor-ligolo's subprocess_linux.go (fork, SIGSTOP-before-
// exec handshake, PTRACE_SEIZE of an already-running child) and delve's
// ptrace backend (PtraceGetRegset/PtracePokeData/PtraceCont). Unlike
// gvisor's raw clone()+BPF stub, this starts the child through os/exec
// with Ptrace:true, which has the child call PTRACE_TRACEME in the
// runtime's own fork+exec path, so it stops with a plain SIGTRAP after
// exec; PTRACE_SEIZE is only used to attach to an already-running process.
package ptrace

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/avodev/dbgcore/internal/dbgerr"
)

// traceOptions is PTRACE_O_TRACECLONE|TRACEEXEC|TRACEEXIT|TRACESYSGOOD|
// EXITKILL: new threads, execs and thread exits all need to surface as
// distinct wait statuses, and syscall-stops must be tagged so they are
// never confused with a breakpoint trap. Start sets the whole set on a
// started child; Seize drops EXITKILL, so an attached process is not killed
// when the debugger exits.
const traceOptions = unix.PTRACE_O_TRACECLONE | unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_TRACEEXIT | unix.PTRACE_O_TRACESYSGOOD | unix.PTRACE_O_EXITKILL

// Start launches argv[0] with the given arguments and working directory,
// stopped at the entry to its first instruction, analogous to
// start_child's fork+raise(SIGSTOP)+execvp dance. The returned pid is
// already traced with the standard option set; callers still need to
// consume the initial post-exec stop before resuming. That stop is a plain
// SIGTRAP: the options are set only after the exec, so it carries no
// PTRACE_EVENT_EXEC code.
func Start(path string, args []string, dir string, stdin, stdout, stderr *os.File) (pid int, err error) {
	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdin, stdout, stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Ptrace:     true,
		Setpgid:    true,
		Pdeathsig:  syscall.SIGKILL,
		Foreground: false,
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := cmd.Start(); err != nil {
		return 0, dbgerr.Wrap(dbgerr.Usage, err, "starting child")
	}
	pid = cmd.Process.Pid
	// cmd.Start with Ptrace:true leaves the child stopped at the post-exec
	// SIGTRAP; the trace options are set below while it sits in that stop,
	// and the caller's wait loop consumes the stop itself.
	if err := unix.PtraceSetOptions(pid, traceOptions); err != nil {
		return pid, dbgerr.Wrap(dbgerr.Internal, err, "ptrace(SETOPTIONS, %d)", pid)
	}
	return pid, nil
}

// Seize attaches to an already-running thread without stopping it,
// mirroring attach's PTRACE_SEIZE loop over /proc/<pid>/task.
func Seize(tid int) error {
	if err := unix.PtraceSeize(tid, traceOptions&^unix.PTRACE_O_EXITKILL); err != nil {
		if err == unix.EPERM {
			return dbgerr.New(dbgerr.Usage, "ptrace(%d) failed: operation not permitted - missing sudo?", tid)
		}
		return dbgerr.Wrap(dbgerr.Internal, err, "ptrace(SEIZE, %d)", tid)
	}
	return nil
}

// Interrupt requests a group-stop for tid, the async counterpart to
// ptrace_interrupt_all_running_threads: the thread keeps running until the
// kernel delivers the corresponding wait status.
func Interrupt(tid int) error {
	return unix.PtraceInterrupt(tid)
}

// Cont resumes tid, optionally redelivering a pending signal, the
// PTRACE_CONT side of threadResume's ModeResume.
func Cont(tid int, sig int) error {
	return unix.PtraceCont(tid, sig)
}

// SingleStep resumes tid for exactly one instruction, the PTRACE_SINGLESTEP
// side of threadResume's ModeStepInstruction.
func SingleStep(tid int) error {
	return unix.PtraceSingleStep(tid)
}

// Detach lets tid run free, un-traced.
func Detach(tid int) error {
	return unix.PtraceDetach(tid)
}

// Kill sends tid (or its whole group, for pid==tid) SIGKILL, the murder
// operation's libc::kill(pid, SIGKILL).
func Kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// WaitStatus is a thin rewrap of unix.WaitStatus with the Go-idiomatic
// names the event loop matches on.
type WaitStatus = unix.WaitStatus

// Wait blocks for any state change in tid (stop, continue, exit), mirroring
// the SYS_WAIT4 calls scattered through the Rust source's attach/event
// loop. options is passed straight to wait4 (e.g. unix.WALL|unix.WUNTRACED
// for the initial attach handshake, 0 for steady-state event processing).
func Wait(tid int, options int) (stoppedPID int, status WaitStatus, err error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(tid, &ws, options, nil)
	if err != nil {
		return 0, ws, dbgerr.Wrap(dbgerr.Internal, err, "wait4(%d)", tid)
	}
	return wpid, ws, nil
}

// ReadMem bulk-reads len(buf) bytes from the tracee's address space via
// process_vm_readv, the syscall debugger.rs's MemReader uses for
// reads larger than a single ptrace word.
func ReadMem(pid int, addr uint64, buf []byte) (int, error) {
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err != nil {
		return n, dbgerr.Wrap(dbgerr.ProcessState, err, "process_vm_readv(%d, %#x, %d bytes)", pid, addr, len(buf))
	}
	return n, nil
}

// PeekWord reads one 8-byte word at addr via PTRACE_PEEKTEXT, used by the
// breakpoint manager to read the word it is about to patch a trap byte
// into (activate_breakpoint_location's read_u64).
func PeekWord(pid int, addr uint64) (uint64, error) {
	var word [8]byte
	n, err := unix.PtracePeekData(pid, uintptr(addr), word[:])
	if err != nil {
		return 0, dbgerr.Wrap(dbgerr.ProcessState, err, "ptrace(PEEKTEXT, %d, %#x)", pid, addr)
	}
	if n != len(word) {
		return 0, dbgerr.New(dbgerr.ProcessState, "short peek at %#x: got %d bytes", addr, n)
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(word[i]) << (8 * i)
	}
	return v, nil
}

// WriteWord writes one 8-byte word at addr via PTRACE_POKETEXT, the
// write_u64 half of activate/deactivate_breakpoint_location's
// read-modify-write byte patch.
func WriteWord(pid int, addr uint64, word uint64) error {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(word >> (8 * i))
	}
	n, err := unix.PtracePokeData(pid, uintptr(addr), buf[:])
	if err != nil {
		return dbgerr.Wrap(dbgerr.ProcessState, err, "ptrace(POKETEXT, %d, %#x)", pid, addr)
	}
	if n != len(buf) {
		return dbgerr.New(dbgerr.ProcessState, "short poke at %#x: wrote %d bytes", addr, n)
	}
	return nil
}

// GetRegs reads tid's general-purpose registers via PTRACE_GETREGS,
// delve's PtraceGetRegset equivalent for the x86-64 user_regs_struct.
func GetRegs(tid int) (unix.PtraceRegs, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(tid, &regs); err != nil {
		return regs, dbgerr.Wrap(dbgerr.ProcessState, err, "ptrace(GETREGS, %d)", tid)
	}
	return regs, nil
}

// SetRegs writes tid's general-purpose registers via PTRACE_SETREGS, used
// to rewind Rip past a software breakpoint's trap byte before
// single-stepping over the original instruction.
func SetRegs(tid int, regs *unix.PtraceRegs) error {
	if err := unix.PtraceSetRegs(tid, regs); err != nil {
		return dbgerr.Wrap(dbgerr.ProcessState, err, "ptrace(SETREGS, %d)", tid)
	}
	return nil
}

// ListThreads lists the kernel thread ids of pid's task group, the
// /proc/<pid>/task scan attach's seize loop repeats until it stops finding
// new threads.
func ListThreads(pid int) ([]int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, dbgerr.Wrap(dbgerr.ProcessState, err, "listing threads of %d", pid)
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		var tid int
		if _, err := fmt.Sscanf(e.Name(), "%d", &tid); err == nil {
			tids = append(tids, tid)
		}
	}
	return tids, nil
}
