// Package valueblob implements a small-buffer-optimized byte container with
// bit-level shift/OR/range operations, used to assemble the multi-piece
// results of DWARF location expressions.
package valueblob

// maxBytes bounds the blob to the largest value a location expression can
// reasonably produce without spilling to the heap: a 128-bit SSE register,
// rounded up.
const maxBytes = 16

// Blob is a fixed-size byte buffer. The zero value is a zero-length blob.
type Blob struct {
	bytes [maxBytes]byte
	n     int // number of significant bytes
}

// New returns a Blob holding the low 8 bytes of v, the common case for an
// integer-sized location result.
func New(v uint64) Blob {
	var b Blob
	for i := 0; i < 8; i++ {
		b.bytes[i] = byte(v >> (8 * i))
	}
	b.n = 8
	return b
}

// FromSlice copies raw bytes verbatim, truncating to maxBytes (a piece this
// large does not occur in practice for the registers/values this core
// models).
func FromSlice(p []byte) Blob {
	var b Blob
	n := len(p)
	if n > maxBytes {
		n = maxBytes
	}
	copy(b.bytes[:n], p[:n])
	b.n = n
	return b
}

// Len returns the number of significant bytes.
func (b *Blob) Len() int { return b.n }

// Bytes returns the significant bytes.
func (b *Blob) Bytes() []byte { return b.bytes[:b.n] }

// Uint64 reinterprets the first 8 bytes (zero-extended if shorter) as a
// little-endian unsigned integer, the common path for scalar values.
func (b *Blob) Uint64() uint64 {
	var v uint64
	n := b.n
	if n > 8 {
		n = 8
	}
	for i := 0; i < n; i++ {
		v |= uint64(b.bytes[i]) << (8 * i)
	}
	return v
}

// AppendBits copies sizeInBits bits from src, starting at bitOffset within
// src, into the receiver starting at bit position destBitOffset, growing the
// receiver's significant length as needed. This is the core's general
// piece-assembly primitive: a location expression's result is the
// concatenation, bit by bit, of each piece's contribution.
//
// The round-trip property this must satisfy: appending B's bits
// [bitOffset, bitOffset+sizeInBits) onto A at destBitOffset == len(A) in
// bits produces a blob whose first destBitOffset bits equal A and whose
// next sizeInBits bits equal the requested slice of B.
func (dst *Blob) AppendBits(destBitOffset int, src Blob, sizeInBits int, bitOffset int) {
	for i := 0; i < sizeInBits; i++ {
		srcBit := bitOffset + i
		bitVal := (src.bytes[srcBit/8] >> uint(srcBit%8)) & 1

		destBit := destBitOffset + i
		byteIdx := destBit / 8
		if byteIdx >= maxBytes {
			// Pieces this wide do not occur for the x86-64 registers and
			// base types this core models; silently stop rather than
			// corrupt adjacent memory.
			return
		}
		bitIdx := uint(destBit % 8)
		dst.bytes[byteIdx] = dst.bytes[byteIdx]&^(1<<bitIdx) | (bitVal << bitIdx)
		if byteIdx+1 > dst.n {
			dst.n = byteIdx + 1
		}
	}
}

// AddrOrBlob is the result of evaluating a DWARF location expression: either
// a memory address the value lives at (Location::Address in the grounding
// source) or the value itself already materialized into a Blob
// (Location::Value / Location::Bytes / Location::Register).
type AddrOrBlob struct {
	addr   uint64
	isAddr bool
	blob   Blob
}

// Addr builds an address-valued result.
func Addr(addr uint64) AddrOrBlob { return AddrOrBlob{addr: addr, isAddr: true} }

// FromBlob builds a value-valued result.
func FromBlob(b Blob) AddrOrBlob { return AddrOrBlob{blob: b} }

// IsAddr reports whether the result names a memory address rather than
// holding the value directly.
func (v AddrOrBlob) IsAddr() bool { return v.isAddr }

// Addr returns the memory address; only meaningful if IsAddr is true.
func (v AddrOrBlob) AddrValue() uint64 { return v.addr }

// Blob returns the materialized value; only meaningful if IsAddr is false.
func (v AddrOrBlob) BlobValue() Blob { return v.blob }

// MemoryReader reads from a target's address space, the minimal capability
// IntoValue needs to materialize an address-valued result.
type MemoryReader interface {
	Read(addr uint64, buf []byte) error
}

// IntoValue resolves an AddrOrBlob to a concrete Blob of the given byte
// size, reading through mem if the value is address-valued.
func (v AddrOrBlob) IntoValue(size int, mem MemoryReader) (Blob, error) {
	if !v.isAddr {
		return v.blob, nil
	}
	buf := make([]byte, size)
	if err := mem.Read(v.addr, buf); err != nil {
		return Blob{}, err
	}
	return FromSlice(buf), nil
}
