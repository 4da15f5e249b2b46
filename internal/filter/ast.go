package filter

type Expr interface {
	eval(ctx Context) Value
}

type literalExpr struct{ v Value }

func (e literalExpr) eval(Context) Value { return e.v }

type pathExpr struct{ segments []string }

func (e pathExpr) eval(ctx Context) Value {
	if len(e.segments) == 0 {
		return Null
	}
	l := ctx.Lookup(e.segments[0])
	if len(e.segments) == 1 {
		return Null
	}
	v := l.Lookup(e.segments[1])
	if len(e.segments) == 2 {
		return v
	}
	// Entities in this model are flat; any further segment has no object to
	// descend into and yields Null rather than erroring, per §4.2.
	return Null
}

type tupleExpr struct{ elems []Expr }

func (e tupleExpr) eval(ctx Context) Value {
	vs := make([]Value, len(e.elems))
	for i, el := range e.elems {
		vs[i] = el.eval(ctx)
	}
	return Tuple(vs)
}

type notExpr struct{ operand Expr }

func (e notExpr) eval(ctx Context) Value {
	return Bool(!e.operand.eval(ctx).Truthy())
}

type orExpr struct{ left, right Expr }

func (e orExpr) eval(ctx Context) Value {
	l := e.left.eval(ctx)
	if l.Truthy() {
		return l
	}
	return e.right.eval(ctx)
}

type andExpr struct{ left, right Expr }

func (e andExpr) eval(ctx Context) Value {
	l := e.left.eval(ctx)
	if !l.Truthy() {
		return l
	}
	return e.right.eval(ctx)
}

type cmpOp int

const (
	cmpEq cmpOp = iota
	cmpNe
	cmpLt
	cmpGt
	cmpLe
	cmpGe
)

type cmpExpr struct {
	op          cmpOp
	left, right Expr
}

func (e cmpExpr) eval(ctx Context) Value {
	l, r := e.left.eval(ctx), e.right.eval(ctx)
	return Bool(compareValues(e.op, l, r))
}

type memOp int

const (
	memIn memOp = iota
	memContains
	memStartsWith
	memEndsWith
)

type memExpr struct {
	op          memOp
	left, right Expr
}

func (e memExpr) eval(ctx Context) Value {
	l, r := e.left.eval(ctx), e.right.eval(ctx)
	switch e.op {
	case memIn:
		return Bool(membership(l, r))
	case memContains:
		return Bool(membership(r, l))
	case memStartsWith:
		return Bool(stringAffix(l, r, true))
	case memEndsWith:
		return Bool(stringAffix(l, r, false))
	default:
		return Bool(false)
	}
}
