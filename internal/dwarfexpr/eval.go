// Package dwarfexpr evaluates the tiny stack-machine expressions DWARF
// debug information uses to describe where a variable, a saved register, or
// a frame base lives: a pure function from (expression, register set,
// memory, symbol view) to an address-or-value plus a dubiousness flag.
//
// Decoding the raw .debug_info/.debug_frame byte streams into the Op slice
// this package consumes is ELF/DWARF loading, which is out of scope for
// this module and belongs to the external symbols.Binary provider; this
// package only interprets the already-decoded operation sequence, mirroring
// eval_dwarf_expression's EvaluationResult state machine in the grounding
// source.
package dwarfexpr

import (
	"github.com/avodev/dbgcore/internal/dbgerr"
	"github.com/avodev/dbgcore/internal/dwarfop"
	"github.com/avodev/dbgcore/internal/regset"
	"github.com/avodev/dbgcore/internal/symbols"
	"github.com/avodev/dbgcore/internal/valueblob"
)

// Op and its Kind constants are re-exported from dwarfop, the leaf package
// shared with internal/symbols, so callers of this package don't need to
// import dwarfop directly for the common case.
type Op = dwarfop.Op

const (
	OpConst         = dwarfop.Const
	OpAddr          = dwarfop.Addr
	OpReg           = dwarfop.Reg
	OpBReg          = dwarfop.BReg
	OpFrameBase     = dwarfop.FrameBase
	OpCFA           = dwarfop.CFA
	OpDeref         = dwarfop.Deref
	OpPlus          = dwarfop.Plus
	OpPlusConst     = dwarfop.PlusConst
	OpPiece         = dwarfop.Piece
	OpBitPiece      = dwarfop.BitPiece
	OpCall          = dwarfop.Call
	OpRelocatedAddr = dwarfop.RelocatedAddr
	OpIndexedAddr   = dwarfop.IndexedAddr
	OpTLS           = dwarfop.TLS
	OpEntryValue    = dwarfop.EntryValue
)

// Context supplies everything a DWARF expression may need to reference,
// mirroring DwarfEvalContext in the grounding source.
type Context struct {
	Memory    valueblob.MemoryReader
	Regs      *regset.Set
	FrameBase func() (uint64, bool, error) // value, dubious, error
	Binary    symbols.Binary               // for base-type/relocation lookups; may be nil for expressions that don't need it
}

type stackVal struct {
	value   uint64
	dubious bool
}

// Eval interprets ops against ctx, returning the assembled result and
// whether any contributing input was dubious.
func Eval(ops []Op, ctx Context) (valueblob.AddrOrBlob, bool, error) {
	var stack []stackVal
	var dubious bool
	var result valueblob.Blob
	haveResult := false
	resultBits := 0
	onePiece := countPieceOps(ops) <= 1

	push := func(v uint64, dub bool) {
		stack = append(stack, stackVal{value: v, dubious: dub})
		dubious = dubious || dub
	}
	pop := func() (stackVal, error) {
		if len(stack) == 0 {
			return stackVal{}, dbgerr.New(dbgerr.DebugInfoError, "expression stack underflow")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	emitPiece := func(v valueblob.AddrOrBlob, sizeBits, bitOffset int) error {
		if sizeBits == 0 {
			return dbgerr.New(dbgerr.DebugInfoError, "empty piece")
		}
		if onePiece && bitOffset == 0 && !haveResult {
			blob, err := v.IntoValue((sizeBits+7)/8, ctx.Memory)
			if err != nil {
				return err
			}
			result = blob
			haveResult = true
			resultBits = sizeBits
			return nil
		}
		blob, err := v.IntoValue((sizeBits+bitOffset+7)/8, ctx.Memory)
		if err != nil {
			return err
		}
		result.AppendBits(resultBits, blob, sizeBits, bitOffset)
		resultBits += sizeBits
		haveResult = true
		return nil
	}

	for _, op := range ops {
		switch op.Kind {
		case OpConst:
			push(uint64(op.Const), false)
		case OpAddr:
			push(uint64(op.Const), false)
		case OpReg:
			idx, ok := regset.FromDwarf(uint64(op.Reg))
			if !ok {
				return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.NotImplemented, "unsupported register in expression: %d", op.Reg)
			}
			if ctx.Regs == nil {
				return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.DebugInfoError, "register op unexpected")
			}
			v, dub, err := ctx.Regs.GetInt(idx)
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			push(v, dub)
		case OpBReg:
			idx, ok := regset.FromDwarf(uint64(op.Reg))
			if !ok {
				return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.NotImplemented, "unsupported register in expression: %d", op.Reg)
			}
			if ctx.Regs == nil {
				return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.DebugInfoError, "register op unexpected")
			}
			v, dub, err := ctx.Regs.GetInt(idx)
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			push(uint64(int64(v)+op.Const), dub)
		case OpFrameBase:
			if ctx.FrameBase == nil {
				return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.DebugInfoError, "frame base unexpected")
			}
			v, dub, err := ctx.FrameBase()
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			push(v, dub)
		case OpCFA:
			if ctx.Regs == nil {
				return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.DebugInfoError, "cfa op unexpected")
			}
			v, dub, err := ctx.Regs.GetInt(regset.Cfa)
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			push(v, dub)
		case OpDeref:
			top, err := pop()
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			var buf [8]byte
			if err := ctx.Memory.Read(top.value, buf[:]); err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			var v uint64
			for i := 0; i < 8; i++ {
				v |= uint64(buf[i]) << (8 * i)
			}
			push(v, top.dubious)
		case OpPlus:
			b, err := pop()
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			a, err := pop()
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			push(a.value+b.value, a.dubious || b.dubious)
		case OpPlusConst:
			a, err := pop()
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			push(uint64(int64(a.value)+op.Const), a.dubious)
		case OpRelocatedAddr:
			addr := uint64(op.Const)
			if ctx.Binary != nil {
				addr = ctx.Binary.AddrMap().StaticToDynamic(addr)
			}
			push(addr, false)
		case OpIndexedAddr:
			// Without a real DWARF reader, the index cannot be resolved
			// further than what the decoder already supplied in Const.
			push(uint64(op.Const), false)
		case OpPiece:
			top, err := pop()
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			if err := emitPiece(valueblob.FromBlob(valueblob.New(top.value)), op.Size, 0); err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
		case OpBitPiece:
			top, err := pop()
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			if err := emitPiece(valueblob.FromBlob(valueblob.New(top.value)), op.Size, op.BitOffset); err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
		case OpCall:
			sub, subDubious, err := Eval(op.CallTarget, ctx)
			if err != nil {
				return valueblob.AddrOrBlob{}, false, err
			}
			dubious = dubious || subDubious
			if sub.IsAddr() {
				push(sub.AddrValue(), subDubious)
			} else {
				push(sub.BlobValue().Uint64(), subDubious)
			}
		case OpTLS:
			return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.NotImplemented, "TLS is not supported")
		case OpEntryValue:
			return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.OptimizedAway, "requires entry value")
		default:
			return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.Internal, "unknown dwarf op %d", op.Kind)
		}
	}

	if haveResult {
		return valueblob.FromBlob(result), dubious, nil
	}
	// No explicit piece op: the DWARF spec treats a bare single-value
	// result as an address (the common "simple location" case).
	top, err := pop()
	if err != nil {
		return valueblob.AddrOrBlob{}, false, dbgerr.New(dbgerr.OptimizedAway, "optimized away")
	}
	return valueblob.Addr(top.value), top.dubious || dubious, nil
}

func countPieceOps(ops []Op) int {
	n := 0
	for _, op := range ops {
		if op.Kind == OpPiece || op.Kind == OpBitPiece {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}
