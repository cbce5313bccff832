package search

// blockSize is the SIMD lane width memmem_maybe_case_sensitive compares at
// a time (AVX2 256-bit = 32 bytes). This package has no SIMD intrinsics,
// so it uses blockSize only to bound the prefix/suffix prefilters, which
// are plain byte comparisons. The scan advances one byte at a time; it
// does not compare aligned blocks or skip a whole block at once.
const blockSize = 32

// FindInMemory returns every offset in haystack where needle occurs. At
// every haystack offset (one byte at a time, with no block alignment), the
// needle's first and last blockSize bytes are compared first (the
// "prefix-compare" and "suffix-compare" variants
// memmem_maybe_case_sensitive names), and only a candidate window that
// passes both gets the full byte-by-byte confirmation. For needles shorter
// than one block, the whole needle is the "prefix" and there is no separate
// suffix check.
//
// An empty needle matches nowhere, matching PaddedString::get() being
// empty short-circuiting the source's search before it ever calls memmem.
func FindInMemory(haystack []byte, needle []byte, caseSensitive bool) []int64 {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return nil
	}
	eq := func(a, b byte) bool {
		if caseSensitive {
			return a == b
		}
		return toLower(a) == toLower(b)
	}
	blockEq := func(hay, pat []byte) bool {
		for i := range pat {
			if !eq(hay[i], pat[i]) {
				return false
			}
		}
		return true
	}

	prefixLen := len(needle)
	if prefixLen > blockSize {
		prefixLen = blockSize
	}
	var suffix []byte
	if len(needle) > blockSize {
		suffix = needle[len(needle)-blockSize:]
	}

	var hits []int64
	last := len(haystack) - len(needle)
	for i := 0; i <= last; i++ {
		if !blockEq(haystack[i:i+prefixLen], needle[:prefixLen]) {
			continue
		}
		if suffix != nil && !blockEq(haystack[i+len(needle)-blockSize:i+len(needle)], suffix) {
			continue
		}
		if blockEq(haystack[i:i+len(needle)], needle) {
			hits = append(hits, int64(i))
		}
	}
	return hits
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
