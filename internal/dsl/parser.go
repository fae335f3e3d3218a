package dsl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseError reports a malformed expression together with the offending
// fragment. Parse errors are per-rule: the batch logs and skips the
// rule, it never reinterprets the expression.
type ParseError struct {
	Expr     string
	Fragment string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("parse %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("parse %q at %q: %s", e.Expr, e.Fragment, e.Reason)
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokComma
	tokPlus
	tokMinus
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	expr string
	pos  int
	toks []token
}

func lex(expr string) ([]token, error) {
	lx := &lexer{expr: expr}
	for lx.pos < len(expr) {
		ch := expr[lx.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			lx.pos++
		case ch == '(':
			lx.emit(tokLParen, "(")
		case ch == ')':
			lx.emit(tokRParen, ")")
		case ch == '{':
			lx.emit(tokLBrace, "{")
		case ch == '}':
			lx.emit(tokRBrace, "}")
		case ch == ',':
			lx.emit(tokComma, ",")
		case ch == '+':
			lx.emit(tokPlus, "+")
		case ch == '-':
			lx.emit(tokMinus, "-")
		case ch == '\'' || ch == '"':
			if err := lx.lexString(ch); err != nil {
				return nil, err
			}
		case ch >= '0' && ch <= '9':
			lx.lexNumber()
		case isIdentStart(rune(ch)):
			lx.lexIdent()
		default:
			return nil, &ParseError{Expr: expr, Fragment: string(ch), Reason: "unexpected character"}
		}
	}
	lx.toks = append(lx.toks, token{kind: tokEOF})
	return lx.toks, nil
}

func (lx *lexer) emit(kind tokenKind, text string) {
	lx.toks = append(lx.toks, token{kind: kind, text: text})
	lx.pos += len(text)
}

func (lx *lexer) lexString(quote byte) error {
	start := lx.pos + 1
	for i := start; i < len(lx.expr); i++ {
		if lx.expr[i] == quote {
			lx.toks = append(lx.toks, token{kind: tokString, text: lx.expr[start:i]})
			lx.pos = i + 1
			return nil
		}
	}
	return &ParseError{Expr: lx.expr, Fragment: lx.expr[lx.pos:], Reason: "unterminated string literal"}
}

func (lx *lexer) lexNumber() {
	start := lx.pos
	for lx.pos < len(lx.expr) {
		ch := lx.expr[lx.pos]
		if (ch >= '0' && ch <= '9') || ch == '.' {
			lx.pos++
			continue
		}
		break
	}
	lx.toks = append(lx.toks, token{kind: tokNumber, text: lx.expr[start:lx.pos]})
}

func (lx *lexer) lexIdent() {
	start := lx.pos
	for lx.pos < len(lx.expr) && isIdentPart(rune(lx.expr[lx.pos])) {
		lx.pos++
	}
	lx.toks = append(lx.toks, token{kind: tokIdent, text: lx.expr[start:lx.pos]})
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

type parser struct {
	expr string
	toks []token
	pos  int
}

// Parse turns one textual constraint expression into its AST. The
// expression must be a single operator application at the root.
func Parse(expr string) (Node, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{expr: expr, toks: toks}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errf(p.peek().text, "trailing input after expression")
	}
	if _, ok := node.(Call); !ok {
		return nil, p.errf(expr, "expression root must be an operator application")
	}
	return node, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errf(t.text, "expected "+what)
	}
	return t, nil
}

func (p *parser) errf(fragment, reason string) error {
	return &ParseError{Expr: p.expr, Fragment: fragment, Reason: reason}
}

func (p *parser) parseExpr() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t.text)
		}
		return p.parseIdentOperand(t.text)
	case tokNumber:
		return numberLiteral(t.text)
	case tokMinus:
		num, err := p.expect(tokNumber, "number after unary minus")
		if err != nil {
			return nil, err
		}
		lit, err := numberLiteral(num.text)
		if err != nil {
			return nil, err
		}
		return negate(lit)
	case tokString:
		return Literal{Value: t.text}, nil
	case tokLBrace:
		return p.parseSet()
	default:
		return nil, p.errf(t.text, "expected operand")
	}
}

func (p *parser) parseCall(name string) (Node, error) {
	op := Op(strings.ToUpper(name))
	arity, known := arities[op]
	if !known {
		return nil, p.errf(name, "unrecognized operator")
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	var args []Node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	if len(args) != arity {
		return nil, p.errf(name, fmt.Sprintf("operator %s takes %d arguments, got %d", op, arity, len(args)))
	}
	return Call{Op: op, Args: args}, nil
}

// parseIdentOperand handles bare identifiers. field1/field2 are always
// field references (never string literals); true/false are booleans;
// anything else is an unquoted string constant, which curated rule
// files occasionally contain.
func (p *parser) parseIdentOperand(name string) (Node, error) {
	if name == "field1" || name == "field2" {
		ref := FieldRef{Name: name}
		switch p.peek().kind {
		case tokPlus, tokMinus:
			sign := p.next()
			num, err := p.expect(tokNumber, "number after arithmetic sign")
			if err != nil {
				return nil, err
			}
			off, err := strconv.ParseInt(num.text, 10, 64)
			if err != nil {
				return nil, p.errf(num.text, "integer offset required")
			}
			return Arith{Ref: ref, Neg: sign.kind == tokMinus, Offset: off}, nil
		}
		return ref, nil
	}
	switch strings.ToLower(name) {
	case "true":
		return Literal{Value: true}, nil
	case "false":
		return Literal{Value: false}, nil
	}
	return Literal{Value: name}, nil
}

func (p *parser) parseSet() (Node, error) {
	var elems []Node
	if p.peek().kind != tokRBrace {
		for {
			elem, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			switch elem.(type) {
			case Literal, FieldRef, Arith:
			default:
				return nil, p.errf(elem.String(), "set elements must be literals or field references")
			}
			elems = append(elems, elem)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, p.errf("{}", "empty set literal")
	}
	return SetLit{Elems: elems}, nil
}

func numberLiteral(text string) (Node, error) {
	if !strings.Contains(text, ".") {
		n, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			return Literal{Value: n}, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, &ParseError{Fragment: text, Reason: "malformed number"}
	}
	return Literal{Value: f}, nil
}

func negate(n Node) (Node, error) {
	lit, ok := n.(Literal)
	if !ok {
		return nil, &ParseError{Fragment: n.String(), Reason: "cannot negate non-literal"}
	}
	switch v := lit.Value.(type) {
	case int64:
		return Literal{Value: -v}, nil
	case float64:
		return Literal{Value: -v}, nil
	default:
		return nil, &ParseError{Fragment: lit.String(), Reason: "cannot negate non-numeric literal"}
	}
}
