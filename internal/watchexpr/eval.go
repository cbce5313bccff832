package watchexpr

import "github.com/avodev/dbgcore/internal/dbgerr"

// Evaluator walks a parsed expression tree, resolving identifiers and
// semantic operations through a Context and keeping script variables
// (name -> Value) alive across calls, matching "script variables are held
// in a name->value map stored across evaluations."
type Evaluator struct {
	Ctx  Context
	Vars map[string]Value
}

func NewEvaluator(ctx Context) *Evaluator {
	return &Evaluator{Ctx: ctx, Vars: make(map[string]Value)}
}

// Eval parses and evaluates src, returning the result value and any trailing
// print-format modifier ("raw", "hex", "bin", or "" for the default
// pretty-printing rules).
func (e *Evaluator) Eval(src string) (Value, string, error) {
	node, err := parse(src)
	if err != nil {
		return Value{}, "", err
	}
	if fm, ok := node.(formatMod); ok {
		v, err := e.evalExpr(fm.x)
		return v, fm.mod, err
	}
	v, err := e.evalExpr(node)
	return v, "", err
}

// EvalCondition evaluates src and reports whether it is truthy, the
// operation a breakpoint condition uses.
func (e *Evaluator) EvalCondition(src string) (bool, error) {
	v, _, err := e.Eval(src)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

func (e *Evaluator) evalExpr(node expr) (Value, error) {
	switch n := node.(type) {
	case numberLit:
		if n.isFloat {
			return FloatVal(n.f), nil
		}
		return UintVal(n.u), nil
	case boolLit:
		return BoolVal(n.v), nil
	case stringLit:
		return StringVal(n.v), nil
	case scriptVarRef:
		v, ok := e.Vars[n.name]
		if !ok {
			return Value{}, dbgerr.New(dbgerr.NoVariable, "script variable $%s has no value yet", n.name)
		}
		return v, nil
	case ident:
		if e.Ctx == nil {
			return Value{}, dbgerr.New(dbgerr.Internal, "no evaluation context")
		}
		return e.Ctx.Resolve(n.name)
	case unary:
		return e.evalUnary(n)
	case binary:
		return e.evalBinary(n)
	case fieldAccess:
		x, err := e.evalExpr(n.x)
		if err != nil {
			return Value{}, err
		}
		return e.Ctx.Field(x, n.name)
	case indexAccess:
		x, err := e.evalExpr(n.x)
		if err != nil {
			return Value{}, err
		}
		idx, err := e.evalExpr(n.idx)
		if err != nil {
			return Value{}, err
		}
		return e.Ctx.Index(x, idx)
	case castExpr:
		x, err := e.evalExpr(n.x)
		if err != nil {
			return Value{}, err
		}
		return e.Ctx.Cast(x, n.typeName)
	case arrayCtor:
		x, err := e.evalExpr(n.x)
		if err != nil {
			return Value{}, err
		}
		count, err := e.evalExpr(n.n)
		if err != nil {
			return Value{}, err
		}
		return e.Ctx.ArrayOf(x, count.AsInt64())
	case rangeExpr:
		lo, err := e.evalExpr(n.lo)
		if err != nil {
			return Value{}, err
		}
		hi, err := e.evalExpr(n.hi)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindRange, RangeLo: lo.AsInt64(), RangeHi: hi.AsInt64()}, nil
	case typeLit:
		return e.Ctx.TypeByName(n.name)
	case typeOfExpr:
		x, err := e.evalExpr(n.x)
		if err != nil {
			return Value{}, err
		}
		return e.Ctx.TypeOf(x)
	default:
		return Value{}, dbgerr.New(dbgerr.Internal, "unhandled expression node %T", node)
	}
}

func (e *Evaluator) evalUnary(n unary) (Value, error) {
	switch n.op {
	case tokAmp:
		x, err := e.evalExpr(n.x)
		if err != nil {
			return Value{}, err
		}
		return e.Ctx.AddressOf(x)
	case tokStar:
		x, err := e.evalExpr(n.x)
		if err != nil {
			return Value{}, err
		}
		return e.Ctx.Deref(x)
	}

	x, err := e.evalExpr(n.x)
	if err != nil {
		return Value{}, err
	}
	switch n.op {
	case tokMinus:
		if x.Kind == KindFloat {
			return FloatVal(-x.F), nil
		}
		return IntVal(-x.AsInt64()), nil
	case tokBang:
		return BoolVal(!Truthy(x)), nil
	case tokTilde:
		v := IntVal(^x.AsInt64())
		v.Unsigned = x.Unsigned
		return v, nil
	default:
		return Value{}, dbgerr.New(dbgerr.Internal, "unhandled unary operator")
	}
}

func (e *Evaluator) evalBinary(n binary) (Value, error) {
	// Logical operators short-circuit, so the right operand is only
	// evaluated when it can affect the result.
	switch n.op {
	case tokAmpAmp:
		l, err := e.evalExpr(n.l)
		if err != nil {
			return Value{}, err
		}
		if !Truthy(l) {
			return BoolVal(false), nil
		}
		r, err := e.evalExpr(n.r)
		if err != nil {
			return Value{}, err
		}
		return BoolVal(Truthy(r)), nil
	case tokPipePipe:
		l, err := e.evalExpr(n.l)
		if err != nil {
			return Value{}, err
		}
		if Truthy(l) {
			return BoolVal(true), nil
		}
		r, err := e.evalExpr(n.r)
		if err != nil {
			return Value{}, err
		}
		return BoolVal(Truthy(r)), nil
	}

	l, err := e.evalExpr(n.l)
	if err != nil {
		return Value{}, err
	}
	r, err := e.evalExpr(n.r)
	if err != nil {
		return Value{}, err
	}
	dubious := l.Dubious || r.Dubious

	switch n.op {
	case tokEq, tokNotEq, tokLt, tokLe, tokGt, tokGe:
		v, err := compare(n.op, l, r)
		if err != nil {
			return Value{}, err
		}
		v.Dubious = dubious
		return v, nil
	}

	if l.Kind == KindPointer || r.Kind == KindPointer {
		v, err := pointerArith(n.op, l, r)
		if err != nil {
			return Value{}, err
		}
		v.Dubious = dubious
		return v, nil
	}

	if l.Kind == KindFloat || r.Kind == KindFloat {
		v, err := floatArith(n.op, l.AsFloat64(), r.AsFloat64())
		if err != nil {
			return Value{}, err
		}
		v.Dubious = dubious
		return v, nil
	}

	v, err := intArith(n.op, l, r)
	if err != nil {
		return Value{}, err
	}
	v.Dubious = dubious
	return v, nil
}

func compare(op tokenKind, l, r Value) (Value, error) {
	var cmp int
	switch {
	case l.Kind == KindString && r.Kind == KindString:
		cmp = stringCompare(l.Str, r.Str)
	case l.Kind == KindFloat || r.Kind == KindFloat:
		lf, rf := l.AsFloat64(), r.AsFloat64()
		cmp = floatCompare(lf, rf)
	default:
		li, ri := l.AsInt64(), r.AsInt64()
		cmp = intCompare(li, ri)
	}
	switch op {
	case tokEq:
		return BoolVal(cmp == 0), nil
	case tokNotEq:
		return BoolVal(cmp != 0), nil
	case tokLt:
		return BoolVal(cmp < 0), nil
	case tokLe:
		return BoolVal(cmp <= 0), nil
	case tokGt:
		return BoolVal(cmp > 0), nil
	case tokGe:
		return BoolVal(cmp >= 0), nil
	default:
		return Value{}, dbgerr.New(dbgerr.Internal, "unhandled comparison operator")
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func floatCompare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func intCompare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func floatArith(op tokenKind, l, r float64) (Value, error) {
	switch op {
	case tokPlus:
		return FloatVal(l + r), nil
	case tokMinus:
		return FloatVal(l - r), nil
	case tokStar:
		return FloatVal(l * r), nil
	case tokSlash:
		if r == 0 {
			return Value{}, dbgerr.New(dbgerr.Usage, "division by zero")
		}
		return FloatVal(l / r), nil
	default:
		return Value{}, dbgerr.New(dbgerr.Usage, "operator not valid on floating-point operands")
	}
}

func intArith(op tokenKind, l, r Value) (Value, error) {
	unsigned := l.Unsigned || r.Unsigned
	li, ri := l.AsInt64(), r.AsInt64()

	switch op {
	case tokPlus:
		return makeInt(li+ri, unsigned), nil
	case tokMinus:
		return makeInt(li-ri, unsigned), nil
	case tokStar:
		return makeInt(li*ri, unsigned), nil
	case tokSlash:
		if ri == 0 {
			return Value{}, dbgerr.New(dbgerr.Usage, "division by zero")
		}
		if unsigned {
			return makeInt(int64(uint64(li)/uint64(ri)), true), nil
		}
		return makeInt(li/ri, false), nil
	case tokPercent:
		if ri == 0 {
			return Value{}, dbgerr.New(dbgerr.Usage, "modulo by zero")
		}
		if unsigned {
			return makeInt(int64(uint64(li)%uint64(ri)), true), nil
		}
		return makeInt(li%ri, false), nil
	case tokAmp:
		return makeInt(li&ri, unsigned), nil
	case tokPipe:
		return makeInt(li|ri, unsigned), nil
	case tokCaret:
		return makeInt(li^ri, unsigned), nil
	case tokShl:
		return makeInt(li<<uint64(ri), unsigned), nil
	case tokShr:
		if unsigned {
			return makeInt(int64(uint64(li)>>uint64(ri)), true), nil
		}
		return makeInt(li>>uint64(ri), false), nil
	default:
		return Value{}, dbgerr.New(dbgerr.Internal, "unhandled integer operator")
	}
}

func makeInt(v int64, unsigned bool) Value {
	return Value{Kind: KindInt, I: v, Unsigned: unsigned}
}

// pointerArith implements pointer + int, int + pointer, pointer - int, and
// pointer - pointer (element-count difference), the "pointer arithmetic"
// grammar production.
func pointerArith(op tokenKind, l, r Value) (Value, error) {
	if l.Kind == KindPointer && r.Kind == KindPointer {
		if op != tokMinus {
			return Value{}, dbgerr.New(dbgerr.Usage, "only subtraction is valid between two pointers")
		}
		elemSize := l.PtrElemSize
		if elemSize == 0 {
			elemSize = 1
		}
		diff := int64(l.PtrAddr) - int64(r.PtrAddr)
		return IntVal(diff / int64(elemSize)), nil
	}

	ptr, n := l, r
	if l.Kind != KindPointer {
		ptr, n = r, l
	}
	elemSize := ptr.PtrElemSize
	if elemSize == 0 {
		elemSize = 1
	}
	offset := n.AsInt64() * int64(elemSize)

	switch op {
	case tokPlus:
		return PointerVal(uint64(int64(ptr.PtrAddr)+offset), ptr.PtrElemSize, ptr.PtrCharLike), nil
	case tokMinus:
		if l.Kind != KindPointer {
			return Value{}, dbgerr.New(dbgerr.Usage, "cannot subtract a pointer from an integer")
		}
		return PointerVal(uint64(int64(ptr.PtrAddr)-offset), ptr.PtrElemSize, ptr.PtrCharLike), nil
	default:
		return Value{}, dbgerr.New(dbgerr.Usage, "operator not valid on pointer operands")
	}
}
