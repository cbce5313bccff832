// Package watchexprtest provides an in-memory watchexpr.Context fixture,
// fabricated directly by test code, mirroring internal/symbols/symbolstest's
// role for the symbols interfaces.
package watchexprtest

import (
	"github.com/avodev/dbgcore/internal/dbgerr"
	"github.com/avodev/dbgcore/internal/watchexpr"
)

// Context is a map-backed watchexpr.Context: variables and pointees are
// plain Go maps, structs/arrays are pre-built watchexpr.Value trees, and
// casts just relabel the type name.
type Context struct {
	Variables map[string]watchexpr.Value
	Pointees  map[uint64]watchexpr.Value
	Types     map[string]watchexpr.Value
}

func New() *Context {
	return &Context{
		Variables: make(map[string]watchexpr.Value),
		Pointees:  make(map[uint64]watchexpr.Value),
		Types:     make(map[string]watchexpr.Value),
	}
}

func (c *Context) Resolve(name string) (watchexpr.Value, error) {
	v, ok := c.Variables[name]
	if !ok {
		return watchexpr.Value{}, dbgerr.New(dbgerr.NoVariable, "no variable named %q", name)
	}
	return v, nil
}

func (c *Context) Field(v watchexpr.Value, name string) (watchexpr.Value, error) {
	if v.Kind == watchexpr.KindPointer {
		pointee, err := c.Deref(v)
		if err != nil {
			return watchexpr.Value{}, err
		}
		v = pointee
	}
	if v.Kind != watchexpr.KindStruct {
		return watchexpr.Value{}, dbgerr.New(dbgerr.Usage, "value has no fields")
	}
	field, ok := v.Fields[name]
	if !ok {
		return watchexpr.Value{}, dbgerr.New(dbgerr.NoVariable, "no field named %q", name)
	}
	return field, nil
}

func (c *Context) Index(v, idx watchexpr.Value) (watchexpr.Value, error) {
	i := idx.AsInt64()
	switch v.Kind {
	case watchexpr.KindArray:
		if i < 0 || int(i) >= len(v.Elems) {
			return watchexpr.Value{}, dbgerr.New(dbgerr.Usage, "index %d out of range", i)
		}
		return v.Elems[i], nil
	case watchexpr.KindPointer:
		elemSize := v.PtrElemSize
		if elemSize == 0 {
			elemSize = 1
		}
		addr := uint64(int64(v.PtrAddr) + i*int64(elemSize))
		pointee, ok := c.Pointees[addr]
		if !ok {
			return watchexpr.Value{}, dbgerr.New(dbgerr.ProcessState, "unmapped address %#x", addr)
		}
		return pointee, nil
	default:
		return watchexpr.Value{}, dbgerr.New(dbgerr.Usage, "value is not indexable")
	}
}

func (c *Context) Deref(v watchexpr.Value) (watchexpr.Value, error) {
	if v.Kind != watchexpr.KindPointer {
		return watchexpr.Value{}, dbgerr.New(dbgerr.Usage, "value is not a pointer")
	}
	pointee, ok := c.Pointees[v.PtrAddr]
	if !ok {
		return watchexpr.Value{}, dbgerr.New(dbgerr.ProcessState, "unmapped address %#x", v.PtrAddr)
	}
	return pointee, nil
}

func (c *Context) AddressOf(v watchexpr.Value) (watchexpr.Value, error) {
	if !v.Addressable {
		return watchexpr.Value{}, dbgerr.New(dbgerr.Usage, "value is not addressable")
	}
	return watchexpr.PointerVal(v.Addr, 1, false), nil
}

func (c *Context) Cast(v watchexpr.Value, typeName string) (watchexpr.Value, error) {
	v.TypeName = typeName
	return v, nil
}

func (c *Context) TypeByName(name string) (watchexpr.Value, error) {
	t, ok := c.Types[name]
	if !ok {
		return watchexpr.Value{}, dbgerr.New(dbgerr.NoFunction, "no type named %q", name)
	}
	return t, nil
}

func (c *Context) TypeOf(v watchexpr.Value) (watchexpr.Value, error) {
	return watchexpr.Value{Kind: watchexpr.KindType, Str: v.TypeName}, nil
}

func (c *Context) ArrayOf(v watchexpr.Value, n int64) (watchexpr.Value, error) {
	if v.Kind != watchexpr.KindPointer {
		return watchexpr.Value{}, dbgerr.New(dbgerr.Usage, "value is not a pointer")
	}
	elems := make([]watchexpr.Value, 0, n)
	for i := int64(0); i < n; i++ {
		el, err := c.Index(v, watchexpr.IntVal(i))
		if err != nil {
			return watchexpr.Value{}, err
		}
		elems = append(elems, el)
	}
	return watchexpr.Value{Kind: watchexpr.KindArray, Elems: elems, KnownLen: true}, nil
}
