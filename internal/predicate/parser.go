package predicate

import (
	"fmt"

	"github.com/veridian-systems/rowguard/internal/record"
)

// parser is a recursive-descent parser with single-token lookahead.
//
//	expr    := or
//	or      := and ( OR and )*
//	and     := unary ( AND unary )*
//	unary   := NOT unary | term
//	term    := '(' expr ')' | operand suffix
//	suffix  := cmpOp operand
//	        |  IS [NOT] NULL
//	        |  [NOT] IN '(' literal (',' literal)* ')'
//	operand := field | literal
type parser struct {
	lex lexer
	cur token
	err error
}

func newParser(text string) *parser {
	p := &parser{lex: lexer{input: text}}
	p.advance()
	return p
}

func (p *parser) advance() {
	if p.err != nil {
		return
	}
	tok, err := p.lex.next()
	if err != nil {
		p.err = err
		return
	}
	p.cur = tok
}

func (p *parser) expect(kind tokenKind, what string) token {
	if p.err != nil {
		return token{}
	}
	if p.cur.kind != kind {
		p.err = fmt.Errorf("expected %s, found %s at position %d", what, p.cur, p.cur.pos)
		return token{}
	}
	tok := p.cur
	p.advance()
	return tok
}

func (p *parser) parse() (Expr, error) {
	expr := p.parseOr()
	if p.err != nil {
		return nil, p.err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at position %d", p.cur, p.cur.pos)
	}
	return expr, nil
}

func (p *parser) parseOr() Expr {
	left := p.parseAnd()
	for p.err == nil && p.cur.kind == tokOr {
		p.advance()
		right := p.parseAnd()
		left = &logicExpr{op: opOr, left: left, right: right}
	}
	return left
}

func (p *parser) parseAnd() Expr {
	left := p.parseUnary()
	for p.err == nil && p.cur.kind == tokAnd {
		p.advance()
		right := p.parseUnary()
		left = &logicExpr{op: opAnd, left: left, right: right}
	}
	return left
}

func (p *parser) parseUnary() Expr {
	if p.cur.kind == tokNot {
		p.advance()
		return &notExpr{inner: p.parseUnary()}
	}
	return p.parseTerm()
}

func (p *parser) parseTerm() Expr {
	if p.err != nil {
		return nil
	}
	if p.cur.kind == tokLParen {
		p.advance()
		inner := p.parseOr()
		p.expect(tokRParen, `")"`)
		return inner
	}

	left := p.parseOperand()
	if p.err != nil {
		return nil
	}

	switch p.cur.kind {
	case tokLT, tokLE, tokGT, tokGE, tokEQ, tokNE:
		op := cmpOpFor(p.cur.kind)
		p.advance()
		right := p.parseOperand()
		return &cmpExpr{op: op, left: left, right: right}
	case tokIs:
		p.advance()
		negate := false
		if p.cur.kind == tokNot {
			negate = true
			p.advance()
		}
		p.expect(tokNull, "NULL")
		return &nullTestExpr{operand: left, negate: negate}
	case tokNot:
		p.advance()
		p.expect(tokIn, "IN")
		return p.parseInList(left, true)
	case tokIn:
		p.advance()
		return p.parseInList(left, false)
	default:
		p.err = fmt.Errorf("expected comparison operator, found %s at position %d", p.cur, p.cur.pos)
		return nil
	}
}

func (p *parser) parseInList(left operand, negate bool) Expr {
	p.expect(tokLParen, `"("`)
	var items []record.Value
	for p.err == nil {
		items = append(items, p.parseLiteral())
		if p.cur.kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	p.expect(tokRParen, `")"`)
	return &inExpr{operand: left, items: items, negate: negate}
}

func (p *parser) parseOperand() operand {
	if p.err != nil {
		return operand{}
	}
	switch p.cur.kind {
	case tokIdent:
		name := p.cur.text
		p.advance()
		return operand{field: name}
	case tokString, tokNumber, tokTrue, tokFalse, tokNull:
		return operand{literal: true, value: p.parseLiteral()}
	default:
		p.err = fmt.Errorf("expected field or literal, found %s at position %d", p.cur, p.cur.pos)
		return operand{}
	}
}

func (p *parser) parseLiteral() record.Value {
	if p.err != nil {
		return record.Null()
	}
	switch p.cur.kind {
	case tokString:
		v := record.String(p.cur.text)
		p.advance()
		return v
	case tokNumber:
		v := record.Number(p.cur.num)
		p.advance()
		return v
	case tokTrue:
		p.advance()
		return record.Boolean(true)
	case tokFalse:
		p.advance()
		return record.Boolean(false)
	case tokNull:
		p.advance()
		return record.Null()
	default:
		p.err = fmt.Errorf("expected literal, found %s at position %d", p.cur, p.cur.pos)
		return record.Null()
	}
}

func cmpOpFor(kind tokenKind) cmpOp {
	switch kind {
	case tokLT:
		return opLT
	case tokLE:
		return opLE
	case tokGT:
		return opGT
	case tokGE:
		return opGE
	case tokNE:
		return opNE
	default:
		return opEQ
	}
}
