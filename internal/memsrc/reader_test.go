package memsrc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccess struct {
	mem   map[uint64]byte
	reads int
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{mem: make(map[uint64]byte)}
}

func (f *fakeAccess) ReadMem(pid int, addr uint64, buf []byte) (int, error) {
	f.reads++
	for i := range buf {
		v, ok := f.mem[addr+uint64(i)]
		if !ok {
			return i, fmt.Errorf("unmapped address %#x", addr+uint64(i))
		}
		buf[i] = v
	}
	return len(buf), nil
}

func (f *fakeAccess) WriteWord(pid int, addr uint64, word uint64) error {
	for i := 0; i < 8; i++ {
		f.mem[addr+uint64(i)] = byte(word >> (8 * i))
	}
	return nil
}

func fill(f *fakeAccess, base uint64, data []byte) {
	for i, b := range data {
		f.mem[base+uint64(i)] = b
	}
}

func TestReaderReadU64(t *testing.T) {
	access := newFakeAccess()
	fill(access, 0x1000, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	r := New(42, access)

	v, err := r.ReadU64(0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0807060504030201), v)
}

func TestInvalidReaderFails(t *testing.T) {
	r := Invalid()
	_, err := r.ReadByte(0x1000)
	require.Error(t, err)
}

func TestWriteWordRequiresAlignment(t *testing.T) {
	access := newFakeAccess()
	r := New(42, access)
	err := r.WriteWord(0x1001, 0xcc)
	require.Error(t, err)
}

func TestCachedReaderCoalescesReads(t *testing.T) {
	access := newFakeAccess()
	data := make([]byte, cacheLineSize)
	for i := range data {
		data[i] = byte(i)
	}
	fill(access, 0x2000, data)

	base := New(1, access)
	cached := NewCached(base)

	v1, err := cached.ReadU64(0x2000)
	require.NoError(t, err)
	v2, err := cached.ReadU64(0x2004)
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
	assert.Equal(t, 1, access.reads, "second read should be served from the cache line")
}
