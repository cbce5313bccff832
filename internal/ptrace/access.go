package ptrace

// ProcessMemory is a stateless implementation of memsrc.WordAccess over
// this package's process_vm_readv/PTRACE_POKETEXT wrappers: every call
// takes its own pid, matching MemReader's per-process-but-shared-reader
// design.
type ProcessMemory struct{}

// ReadMem implements memsrc.WordAccess.
func (ProcessMemory) ReadMem(pid int, addr uint64, buf []byte) (int, error) {
	return ReadMem(pid, addr, buf)
}

// WriteWord implements memsrc.WordAccess.
func (ProcessMemory) WriteWord(pid int, addr uint64, word uint64) error {
	return WriteWord(pid, addr, word)
}

// BreakpointMemory binds a fixed tracee pid, implementing
// breakpoint.WordAccess so a Manager for that one process's breakpoints
// can read/write words without repeating its pid on every call.
type BreakpointMemory struct {
	PID int
}

// ReadWord implements breakpoint.WordAccess.
func (b BreakpointMemory) ReadWord(addr uint64) (uint64, error) {
	return PeekWord(b.PID, addr)
}

// WriteWord implements breakpoint.WordAccess.
func (b BreakpointMemory) WriteWord(addr uint64, word uint64) error {
	return WriteWord(b.PID, addr, word)
}
