package dbgcore

import (
	"strings"

	"github.com/avodev/dbgcore/internal/dbgerr"
	"github.com/avodev/dbgcore/internal/memsrc"
	"github.com/avodev/dbgcore/internal/regset"
	"github.com/avodev/dbgcore/internal/watchexpr"
)

// registerContext backs watch expressions with a thread's live register set
// and the tracee's memory, with no type system behind it: a bare identifier
// resolves only if it names a register, and Deref reads a raw 8-byte word
// rather than a sized, typed value. internal/watchexpr's own doc comment
// calls this out as the expected shape of a Context that isn't backed by
// internal/symbols and internal/dwarfexpr.
type registerContext struct {
	regs regset.Set
	mem  *memsrc.Reader
}

var registerNames = map[string]regset.Idx{
	"rax": regset.Rax, "rbx": regset.Rbx, "rcx": regset.Rcx, "rdx": regset.Rdx,
	"rsi": regset.Rsi, "rdi": regset.Rdi, "rbp": regset.Rbp, "rsp": regset.Rsp,
	"r8": regset.R8, "r9": regset.R9, "r10": regset.R10, "r11": regset.R11,
	"r12": regset.R12, "r13": regset.R13, "r14": regset.R14, "r15": regset.R15,
	"rip": regset.Rip, "pc": regset.Rip, "eflags": regset.Eflags,
}

func (c *registerContext) Resolve(name string) (watchexpr.Value, error) {
	idx, ok := registerNames[strings.ToLower(name)]
	if !ok {
		return watchexpr.Value{}, dbgerr.New(dbgerr.NoVariable, "no register or variable named %q", name)
	}
	v, dubious, err := c.regs.GetInt(idx)
	if err != nil {
		return watchexpr.Value{}, err
	}
	val := watchexpr.UintVal(v)
	val.Dubious = dubious
	return val, nil
}

func (c *registerContext) Field(watchexpr.Value, string) (watchexpr.Value, error) {
	return watchexpr.Value{}, dbgerr.New(dbgerr.NotImplemented, "field access needs debug info, not available")
}

func (c *registerContext) Index(watchexpr.Value, watchexpr.Value) (watchexpr.Value, error) {
	return watchexpr.Value{}, dbgerr.New(dbgerr.NotImplemented, "indexing needs debug info, not available")
}

// Deref reads the 8-byte word at v's address, the only shape available
// without a real element type to size the read by.
func (c *registerContext) Deref(v watchexpr.Value) (watchexpr.Value, error) {
	addr := v.AsUint64()
	word, err := c.mem.ReadU64(addr)
	if err != nil {
		return watchexpr.Value{}, err
	}
	out := watchexpr.UintVal(word)
	out.Addressable = true
	out.Addr = addr
	return out, nil
}

func (c *registerContext) AddressOf(v watchexpr.Value) (watchexpr.Value, error) {
	if !v.Addressable {
		return watchexpr.Value{}, dbgerr.New(dbgerr.OptimizedAway, "value has no address")
	}
	return watchexpr.PointerVal(v.Addr, 8, false), nil
}

// Cast supports the fixed-width integer names watch expressions commonly
// need to reinterpret a register's bit pattern; anything else needs real
// type information.
func (c *registerContext) Cast(v watchexpr.Value, typeName string) (watchexpr.Value, error) {
	switch typeName {
	case "int8":
		return watchexpr.IntVal(int64(int8(v.AsInt64()))), nil
	case "int16":
		return watchexpr.IntVal(int64(int16(v.AsInt64()))), nil
	case "int32":
		return watchexpr.IntVal(int64(int32(v.AsInt64()))), nil
	case "int64":
		return watchexpr.IntVal(v.AsInt64()), nil
	case "uint8":
		return watchexpr.UintVal(uint64(uint8(v.AsUint64()))), nil
	case "uint16":
		return watchexpr.UintVal(uint64(uint16(v.AsUint64()))), nil
	case "uint32":
		return watchexpr.UintVal(uint64(uint32(v.AsUint64()))), nil
	case "uint64":
		return watchexpr.UintVal(v.AsUint64()), nil
	default:
		return watchexpr.Value{}, dbgerr.New(dbgerr.NotImplemented, "cast to %q needs debug info, not available", typeName)
	}
}

func (c *registerContext) TypeByName(string) (watchexpr.Value, error) {
	return watchexpr.Value{}, dbgerr.New(dbgerr.NotImplemented, "type lookup needs debug info, not available")
}

func (c *registerContext) TypeOf(watchexpr.Value) (watchexpr.Value, error) {
	return watchexpr.Value{}, dbgerr.New(dbgerr.NotImplemented, "type introspection needs debug info, not available")
}

func (c *registerContext) ArrayOf(watchexpr.Value, int64) (watchexpr.Value, error) {
	return watchexpr.Value{}, dbgerr.New(dbgerr.NotImplemented, "array construction needs debug info, not available")
}
