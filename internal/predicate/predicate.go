// Package predicate implements the restricted boolean expression language used
// by data-quality rules.
//
// The grammar covers comparisons (< <= > >= == != =), membership (IN, NOT IN
// over a literal list), null tests (IS NULL, IS NOT NULL), boolean combinators
// (AND, OR, NOT), parentheses, field references, and string/number/boolean
// literals. Keywords are case-insensitive.
//
// Evaluation follows SQL-style three-valued logic: any comparison or membership
// test against a null operand yields Null, and a record matches a predicate
// only when the top-level expression evaluates to True.
package predicate

import (
	"github.com/veridian-systems/rowguard/internal/record"
)

// Tri is a three-valued truth value.
type Tri int

const (
	False Tri = iota
	True
	Null
)

// String renders the truth value for logs and tests.
func (t Tri) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "null"
	}
}

func (t Tri) not() Tri {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Null
	}
}

func (t Tri) and(o Tri) Tri {
	if t == False || o == False {
		return False
	}
	if t == Null || o == Null {
		return Null
	}
	return True
}

func (t Tri) or(o Tri) Tri {
	if t == True || o == True {
		return True
	}
	if t == Null || o == Null {
		return Null
	}
	return False
}

// Expr is a parsed predicate expression.
type Expr interface {
	eval(r *record.Record) (Tri, error)
	String() string
}

// Parse compiles predicate text into an expression tree. Syntax errors are
// returned here, at construction time, never during evaluation.
func Parse(text string) (Expr, error) {
	p := newParser(text)
	return p.parse()
}

// Evaluate runs a compiled expression against one record. It is a pure
// function: the record is read-only and no state is carried between calls.
// An error indicates a runtime evaluation fault for this record, such as an
// ordering comparison on a boolean operand.
func Evaluate(e Expr, r *record.Record) (Tri, error) {
	return e.eval(r)
}
