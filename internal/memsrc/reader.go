// Package memsrc reads a tracee's address space through the kernel's
// process-memory access primitives, exposing byte/word/slice reads and a
// cached variant that coalesces reads for hot unwind paths.
package memsrc

import "github.com/avodev/dbgcore/internal/dbgerr"

// WordAccess is the minimal capability memsrc needs from the kernel
// interface: process_vm_readv-style bulk reads and ptrace POKETEXT-style
// single-word writes (the latter only used by the breakpoint manager, kept
// here because both operate on the same word-aligned addressing rules).
type WordAccess interface {
	ReadMem(pid int, addr uint64, buf []byte) (int, error)
	WriteWord(pid int, addr uint64, word uint64) error
}

// Reader exposes byte/word/slice reads over a single tracee's memory.
type Reader struct {
	pid    int
	access WordAccess
}

// New returns a Reader bound to pid, using access for kernel interaction.
// A nil access produces an "invalid" reader (mirroring `MemReader::invalid`
// in the grounding source, used once a process has fully exited).
func New(pid int, access WordAccess) *Reader {
	return &Reader{pid: pid, access: access}
}

// Invalid returns a Reader that always fails, for use once the target
// process no longer exists.
func Invalid() *Reader {
	return &Reader{}
}

func (r *Reader) valid() bool { return r.access != nil }

// Read fills buf from addr, failing with a ProcessState error if the reader
// is invalid or the kernel read is short/erroring.
func (r *Reader) Read(addr uint64, buf []byte) error {
	if !r.valid() {
		return dbgerr.New(dbgerr.ProcessState, "no process")
	}
	n, err := r.access.ReadMem(r.pid, addr, buf)
	if err != nil {
		return dbgerr.Wrap(dbgerr.ProcessState, err, "read memory at %#x", addr)
	}
	if n != len(buf) {
		return dbgerr.New(dbgerr.ProcessState, "short read at %#x: got %d want %d", addr, n, len(buf))
	}
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte(addr uint64) (byte, error) {
	var buf [1]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadU64 reads a little-endian 8-byte word. Callers that need the
// containing aligned word (for breakpoint activation) pass addr already
// aligned down to 8.
func (r *Reader) ReadU64(addr uint64) (uint64, error) {
	var buf [8]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v, nil
}

// WriteWord writes an aligned 8-byte word, the only mutation this reader
// performs and only ever used by the breakpoint manager planting/removing a
// trap byte.
func (r *Reader) WriteWord(addr uint64, word uint64) error {
	if !r.valid() {
		return dbgerr.New(dbgerr.ProcessState, "no process")
	}
	if addr%8 != 0 {
		return dbgerr.New(dbgerr.Internal, "WriteWord requires 8-byte aligned address, got %#x", addr)
	}
	if err := r.access.WriteWord(r.pid, addr, word); err != nil {
		return dbgerr.Wrap(dbgerr.ProcessState, err, "write memory at %#x", addr)
	}
	return nil
}
