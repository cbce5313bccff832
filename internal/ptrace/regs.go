package ptrace

import (
	"golang.org/x/sys/unix"

	"github.com/avodev/dbgcore/internal/regset"
)

// ToRegSet copies the subset of unix.PtraceRegs this module models into a
// regset.Set, the Go equivalent of the source's RegisterSet::from_ptrace.
// Every copied value is non-dubious: it came straight from the kernel, not
// from unwinding a saved-register rule.
func ToRegSet(regs *unix.PtraceRegs) regset.Set {
	var s regset.Set
	s.SetInt(regset.Rax, regs.Rax, false)
	s.SetInt(regset.Rbx, regs.Rbx, false)
	s.SetInt(regset.Rcx, regs.Rcx, false)
	s.SetInt(regset.Rdx, regs.Rdx, false)
	s.SetInt(regset.Rsi, regs.Rsi, false)
	s.SetInt(regset.Rdi, regs.Rdi, false)
	s.SetInt(regset.Rbp, regs.Rbp, false)
	s.SetInt(regset.Rsp, regs.Rsp, false)
	s.SetInt(regset.R8, regs.R8, false)
	s.SetInt(regset.R9, regs.R9, false)
	s.SetInt(regset.R10, regs.R10, false)
	s.SetInt(regset.R11, regs.R11, false)
	s.SetInt(regset.R12, regs.R12, false)
	s.SetInt(regset.R13, regs.R13, false)
	s.SetInt(regset.R14, regs.R14, false)
	s.SetInt(regset.R15, regs.R15, false)
	s.SetInt(regset.Rip, regs.Rip, false)
	s.SetInt(regset.Eflags, regs.Eflags, false)
	return s
}

// SetPC rewrites just the instruction pointer of tid's live registers,
// used after backing up over a just-executed software breakpoint trap
// byte.
func SetPC(tid int, pc uint64) error {
	regs, err := GetRegs(tid)
	if err != nil {
		return err
	}
	regs.Rip = pc
	return SetRegs(tid, &regs)
}
