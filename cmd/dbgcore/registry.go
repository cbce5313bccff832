package dbgcore

import "github.com/avodev/dbgcore/internal/symbols"

// emptyRegistry is a symbols.Registry with no mapped binaries, used when
// driving a target without a debug-information provider wired in: address
// breakpoints still resolve (they don't consult the registry), but a line
// breakpoint reports NoCodeLocations and a point-of-interest breakpoint
// reports NoFunction rather than succeeding. Watch expressions never
// consult this registry.
type emptyRegistry struct{}

func (emptyRegistry) Iter() []symbols.Binary       { return nil }
func (emptyRegistry) Get(int) (symbols.Binary, bool) { return nil, false }
