package filter

import (
	"fmt"
	"strings"
)

// node is an immutable expression tree element. Evaluation only reads the
// tree and the record, so one tree is safe to share across goroutines.
type node interface {
	eval(rec Record) (Value, error)
	idents(dst []string) []string
	String() string
}

type literal struct{ v Value }

func (n *literal) eval(Record) (Value, error)   { return n.v, nil }
func (n *literal) idents(dst []string) []string { return dst }
func (n *literal) String() string               { return n.v.String() }

type ident struct {
	name string
	pos  int
}

func (n *ident) eval(rec Record) (Value, error) {
	v, ok := rec[n.name]
	if !ok {
		return Value{}, &Error{Kind: ErrUndefinedName, Pos: n.pos, Msg: fmt.Sprintf("name %q is not defined", n.name)}
	}
	return v, nil
}

func (n *ident) idents(dst []string) []string { return append(dst, n.name) }
func (n *ident) String() string               { return n.name }

type group struct{ x node }

func (n *group) eval(rec Record) (Value, error) { return n.x.eval(rec) }
func (n *group) idents(dst []string) []string   { return n.x.idents(dst) }
func (n *group) String() string                 { return "(" + n.x.String() + ")" }

type negate struct {
	pos int
	x   node
}

func (n *negate) eval(rec Record) (Value, error) {
	v, err := n.x.eval(rec)
	if err != nil {
		return Value{}, err
	}
	switch v.kind {
	case KindAbsent:
		return Int(0), nil
	case KindInt:
		return Int(-v.i), nil
	}
	return Value{}, &Error{Kind: ErrTypeMismatch, Msg: fmt.Sprintf("bad operand type for unary -: %s", v.kind)}
}

func (n *negate) idents(dst []string) []string { return n.x.idents(dst) }
func (n *negate) String() string               { return "-" + n.x.String() }

type binary struct {
	op   tokenKind
	pos  int
	l, r node
}

func (n *binary) idents(dst []string) []string { return n.r.idents(n.l.idents(dst)) }

func (n *binary) String() string {
	var b strings.Builder
	b.WriteString(n.l.String())
	b.WriteByte(' ')
	b.WriteString(tokenText[n.op])
	b.WriteByte(' ')
	b.WriteString(n.r.String())
	return b.String()
}

func (n *binary) eval(rec Record) (Value, error) {
	if n.op == tokAnd || n.op == tokOr {
		return n.evalLogical(rec)
	}
	l, err := n.l.eval(rec)
	if err != nil {
		return Value{}, err
	}
	r, err := n.r.eval(rec)
	if err != nil {
		return Value{}, err
	}
	switch n.op {
	case tokPlus, tokMinus, tokStar, tokSlash:
		return arith(n.op, l, r)
	case tokEq, tokNe:
		return equality(n.op, l, r)
	}
	return compare(n.op, l, r)
}

func (n *binary) evalLogical(rec Record) (Value, error) {
	l, err := n.l.eval(rec)
	if err != nil {
		return Value{}, err
	}
	lb, err := truth(tokenText[n.op], l)
	if err != nil {
		return Value{}, err
	}
	if n.op == tokOr && lb {
		return Bool(true), nil
	}
	if n.op == tokAnd && !lb {
		return Bool(false), nil
	}
	r, err := n.r.eval(rec)
	if err != nil {
		return Value{}, err
	}
	rb, err := truth(tokenText[n.op], r)
	if err != nil {
		return Value{}, err
	}
	return Bool(rb), nil
}

// truth converts a logical operand. Absent operands count as true.
func truth(op string, v Value) (bool, error) {
	switch v.kind {
	case KindAbsent:
		return true, nil
	case KindBool:
		return v.b, nil
	}
	return false, &Error{Kind: ErrTypeMismatch, Msg: fmt.Sprintf("operand of %s must be boolean, got %s", op, v.kind)}
}

// arith applies + - * /. Absent operands stand in for 0, so an absent
// divisor is a division by zero. When the other operand is not an integer
// the result stays Absent instead of failing.
func arith(op tokenKind, l, r Value) (Value, error) {
	if l.kind == KindAbsent || r.kind == KindAbsent {
		other := l
		if l.kind == KindAbsent {
			other = r
		}
		if other.kind != KindInt && other.kind != KindAbsent {
			return Absent, nil
		}
		if l.kind == KindAbsent {
			l = Int(0)
		}
		if r.kind == KindAbsent {
			r = Int(0)
		}
	}

	if l.kind == KindString && r.kind == KindString && op == tokPlus {
		return String(l.s + r.s), nil
	}
	if l.kind != KindInt || r.kind != KindInt {
		return Value{}, mismatch(tokenText[op], l, r)
	}
	switch op {
	case tokPlus:
		return Int(l.i + r.i), nil
	case tokMinus:
		return Int(l.i - r.i), nil
	case tokStar:
		return Int(l.i * r.i), nil
	}
	if r.i == 0 {
		return Value{}, &Error{Kind: ErrDivisionByZero, Msg: fmt.Sprintf("%d / 0", l.i)}
	}
	return Int(l.i / r.i), nil
}

func equality(op tokenKind, l, r Value) (Value, error) {
	if l.kind == KindAbsent || r.kind == KindAbsent {
		return Bool(true), nil
	}

	var eq bool
	switch {
	case l.kind == KindString && r.kind == KindRegex:
		eq = r.re.MatchString(l.s)
	case l.kind == KindRegex && r.kind == KindString:
		eq = l.re.MatchString(r.s)
	case l.kind != r.kind || l.kind == KindRegex:
		return Value{}, mismatch(tokenText[op], l, r)
	case l.kind == KindInt:
		eq = l.i == r.i
	case l.kind == KindString:
		eq = l.s == r.s
	case l.kind == KindBool:
		eq = l.b == r.b
	case l.kind == KindTime:
		eq = l.t.Equal(r.t)
	}
	if op == tokNe {
		eq = !eq
	}
	return Bool(eq), nil
}

func compare(op tokenKind, l, r Value) (Value, error) {
	if l.kind == KindAbsent || r.kind == KindAbsent {
		return Bool(true), nil
	}
	if l.kind != r.kind {
		return Value{}, mismatch(tokenText[op], l, r)
	}

	var c int
	switch l.kind {
	case KindInt:
		c = cmpInt(l.i, r.i)
	case KindString:
		c = strings.Compare(l.s, r.s)
	case KindTime:
		c = l.t.Compare(r.t)
	default:
		return Value{}, mismatch(tokenText[op], l, r)
	}

	switch op {
	case tokGt:
		return Bool(c > 0), nil
	case tokLt:
		return Bool(c < 0), nil
	case tokGe:
		return Bool(c >= 0), nil
	}
	return Bool(c <= 0), nil
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
