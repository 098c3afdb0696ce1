package predicate

import (
	"fmt"
	"strings"

	"github.com/veridian-systems/rowguard/internal/record"
)

type logicOp int

const (
	opAnd logicOp = iota
	opOr
)

type cmpOp int

const (
	opLT cmpOp = iota
	opLE
	opGT
	opGE
	opEQ
	opNE
)

func (op cmpOp) String() string {
	return [...]string{"<", "<=", ">", ">=", "==", "!="}[op]
}

// operand is either a field reference or a literal value.
type operand struct {
	field   string
	literal bool
	value   record.Value
}

func (o operand) resolve(r *record.Record) record.Value {
	if o.literal {
		return o.value
	}
	return r.Get(o.field)
}

func (o operand) String() string {
	if o.literal {
		return o.value.String()
	}
	return o.field
}

type logicExpr struct {
	op    logicOp
	left  Expr
	right Expr
}

func (e *logicExpr) eval(r *record.Record) (Tri, error) {
	l, err := e.left.eval(r)
	if err != nil {
		return Null, err
	}
	rv, err := e.right.eval(r)
	if err != nil {
		return Null, err
	}
	if e.op == opAnd {
		return l.and(rv), nil
	}
	return l.or(rv), nil
}

func (e *logicExpr) String() string {
	op := "AND"
	if e.op == opOr {
		op = "OR"
	}
	return fmt.Sprintf("(%s %s %s)", e.left, op, e.right)
}

type notExpr struct {
	inner Expr
}

func (e *notExpr) eval(r *record.Record) (Tri, error) {
	v, err := e.inner.eval(r)
	if err != nil {
		return Null, err
	}
	return v.not(), nil
}

func (e *notExpr) String() string {
	return fmt.Sprintf("(NOT %s)", e.inner)
}

type cmpExpr struct {
	op    cmpOp
	left  operand
	right operand
}

func (e *cmpExpr) eval(r *record.Record) (Tri, error) {
	return compare(e.op, e.left.resolve(r), e.right.resolve(r))
}

func (e *cmpExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left, e.op, e.right)
}

type nullTestExpr struct {
	operand operand
	negate  bool
}

func (e *nullTestExpr) eval(r *record.Record) (Tri, error) {
	isNull := e.operand.resolve(r).IsNull()
	if isNull != e.negate {
		return True, nil
	}
	return False, nil
}

func (e *nullTestExpr) String() string {
	if e.negate {
		return fmt.Sprintf("(%s IS NOT NULL)", e.operand)
	}
	return fmt.Sprintf("(%s IS NULL)", e.operand)
}

type inExpr struct {
	operand operand
	items   []record.Value
	negate  bool
}

func (e *inExpr) eval(r *record.Record) (Tri, error) {
	v := e.operand.resolve(r)
	if v.IsNull() {
		return Null, nil
	}
	result := False
	for _, item := range e.items {
		eq, err := compare(opEQ, v, item)
		if err != nil {
			return Null, err
		}
		result = result.or(eq)
		if result == True {
			break
		}
	}
	if e.negate {
		return result.not(), nil
	}
	return result, nil
}

func (e *inExpr) String() string {
	items := make([]string, len(e.items))
	for i, v := range e.items {
		items[i] = v.String()
	}
	op := "IN"
	if e.negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("(%s %s (%s))", e.operand, op, strings.Join(items, ", "))
}

// compare applies a comparison operator under three-valued logic.
//
// Null operands make the result Null. String operands compared against numbers
// are coerced; when coercion fails the result is Null rather than an error, so
// one malformed field cannot abort an otherwise valid record. Ordering on
// boolean operands has no defined semantics and is a runtime evaluation fault.
func compare(op cmpOp, l, rv record.Value) (Tri, error) {
	if l.IsNull() || rv.IsNull() {
		return Null, nil
	}

	switch op {
	case opEQ, opNE:
		eq, ok := equalValues(l, rv)
		if !ok {
			return Null, nil
		}
		if op == opNE {
			eq = eq.not()
		}
		return eq, nil
	}

	// Ordering comparisons.
	if l.Kind == record.KindBool || rv.Kind == record.KindBool {
		return Null, fmt.Errorf("operator %s not defined for boolean operand", op)
	}
	if l.Kind == record.KindString && rv.Kind == record.KindString {
		return triOf(orderedCmp(op, strings.Compare(l.Str, rv.Str))), nil
	}
	ln, lok := l.AsNumber()
	rn, rok := rv.AsNumber()
	if !lok || !rok {
		// Numeric coercion failed for a string operand.
		return Null, nil
	}
	switch {
	case ln < rn:
		return triOf(orderedCmp(op, -1)), nil
	case ln > rn:
		return triOf(orderedCmp(op, 1)), nil
	default:
		return triOf(orderedCmp(op, 0)), nil
	}
}

// equalValues tests equality across kinds. The bool return reports whether the
// comparison was defined; an undefined comparison (failed numeric coercion)
// yields Null at the call site.
func equalValues(l, r record.Value) (Tri, bool) {
	if l.Kind == record.KindBool || r.Kind == record.KindBool {
		if l.Kind == record.KindBool && r.Kind == record.KindBool {
			return triOf(l.Bool == r.Bool), true
		}
		// Booleans never equal strings or numbers.
		return False, true
	}
	if l.Kind == record.KindString && r.Kind == record.KindString {
		return triOf(l.Str == r.Str), true
	}
	ln, lok := l.AsNumber()
	rn, rok := r.AsNumber()
	if !lok || !rok {
		return Null, false
	}
	return triOf(ln == rn), true
}

func orderedCmp(op cmpOp, sign int) bool {
	switch op {
	case opLT:
		return sign < 0
	case opLE:
		return sign <= 0
	case opGT:
		return sign > 0
	case opGE:
		return sign >= 0
	default:
		return sign == 0
	}
}

func triOf(b bool) Tri {
	if b {
		return True
	}
	return False
}
