package dwarfexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avodev/dbgcore/internal/regset"
)

type fakeMem map[uint64]uint64

func (m fakeMem) Read(addr uint64, buf []byte) error {
	v := m[addr]
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	return nil
}

func TestEvalConstIsAddress(t *testing.T) {
	result, dubious, err := Eval([]Op{{Kind: OpConst, Const: 0x1000}}, Context{})
	require.NoError(t, err)
	assert.False(t, dubious)
	require.True(t, result.IsAddr())
	assert.Equal(t, uint64(0x1000), result.AddrValue())
}

func TestEvalRegisterPlusConstThenDeref(t *testing.T) {
	var regs regset.Set
	regs.SetInt(regset.Rbp, 0x7fff0000, false)

	mem := fakeMem{0x7fff0010: 42}

	ops := []Op{
		{Kind: OpBReg, Reg: 6 /* rbp */, Const: 0x10},
		{Kind: OpDeref},
	}
	result, dubious, err := Eval(ops, Context{Regs: &regs, Memory: mem})
	require.NoError(t, err)
	assert.False(t, dubious)
	require.True(t, result.IsAddr())
	assert.Equal(t, uint64(42), result.AddrValue())
}

func TestEvalDubiousPropagates(t *testing.T) {
	var regs regset.Set
	regs.SetInt(regset.Rax, 7, true)

	result, dubious, err := Eval([]Op{{Kind: OpReg, Reg: 0}}, Context{Regs: &regs})
	require.NoError(t, err)
	assert.True(t, dubious)
	assert.Equal(t, uint64(7), result.AddrValue())
}

func TestEvalTLSRejected(t *testing.T) {
	_, _, err := Eval([]Op{{Kind: OpTLS}}, Context{})
	require.Error(t, err)
}

func TestEvalEntryValueRejected(t *testing.T) {
	_, _, err := Eval([]Op{{Kind: OpEntryValue}}, Context{})
	require.Error(t, err)
}

func TestEvalSinglePieceValue(t *testing.T) {
	ops := []Op{
		{Kind: OpConst, Const: 99},
		{Kind: OpPiece, Size: 32},
	}
	result, _, err := Eval(ops, Context{Memory: fakeMem{}})
	require.NoError(t, err)
	assert.False(t, result.IsAddr())
	assert.Equal(t, uint64(99), result.BlobValue().Uint64())
}

func TestEvalMissingRegisterContextErrors(t *testing.T) {
	_, _, err := Eval([]Op{{Kind: OpReg, Reg: 0}}, Context{})
	require.Error(t, err)
}

func TestEvalStackUnderflowErrors(t *testing.T) {
	_, _, err := Eval([]Op{{Kind: OpDeref}}, Context{Memory: fakeMem{}})
	require.Error(t, err)
}
