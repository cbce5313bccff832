package valueblob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndUint64(t *testing.T) {
	b := New(0x1122334455667788)
	assert.Equal(t, uint64(0x1122334455667788), b.Uint64())
	assert.Equal(t, 8, b.Len())
}

func TestFromSliceTruncates(t *testing.T) {
	huge := make([]byte, 64)
	for i := range huge {
		huge[i] = 0xff
	}
	b := FromSlice(huge)
	assert.Equal(t, maxBytes, b.Len())
}

// TestAppendBitsRoundTrip checks the idempotence property from the testable
// properties: appending B's bits [o, o+b) onto A produces a blob whose
// first a bits equal A and next b bits equal B[o..o+b).
func TestAppendBitsRoundTrip(t *testing.T) {
	a := New(0xAA) // 0b10101010 in byte 0
	bSrc := New(0xF0)

	combined := a
	combined.AppendBits(8, bSrc, 8, 0)

	assert.Equal(t, byte(0xAA), combined.Bytes()[0])
	assert.Equal(t, byte(0xF0), combined.Bytes()[1])
	assert.Equal(t, 2, combined.Len())
}

func TestAppendBitsSubRange(t *testing.T) {
	// Append only bits [4,8) of 0xF0 (the top nibble) to an empty blob
	// starting at bit 0: should yield 0x0F shifted appropriately - in this
	// case bits [4,8) of 0xF0 are 1111, placed at destination bits [0,4).
	src := New(0xF0)
	var dst Blob
	dst.AppendBits(0, src, 4, 4)

	assert.Equal(t, byte(0x0F), dst.Bytes()[0]&0x0F)
}

func TestAddrOrBlobIntoValue(t *testing.T) {
	mem := fakeMem{0x1000: []byte{1, 2, 3, 4}}
	v := Addr(0x1000)
	require.True(t, v.IsAddr())

	blob, err := v.IntoValue(4, mem)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x04030201), blob.Uint64())
}

func TestAddrOrBlobFromBlobSkipsRead(t *testing.T) {
	v := FromBlob(New(99))
	blob, err := v.IntoValue(8, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), blob.Uint64())
}

type fakeMem map[uint64][]byte

func (m fakeMem) Read(addr uint64, buf []byte) error {
	data := m[addr]
	copy(buf, data)
	return nil
}
