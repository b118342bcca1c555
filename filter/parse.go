package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], s[i])
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, i)
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end], i})
			i += end + 2
		case c == '_' || unicode.IsLetter(c):
			j := i + 1
			for j < len(s) && (s[j] == '_' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j], i})
			i = j
		case unicode.IsDigit(c) || c == '.' || c == '-':
			j := i + 1
			for j < len(s) && strings.IndexByte("0123456789.eE+-", s[j]) >= 0 {
				// a sign is part of the number only right after an exponent
				if (s[j] == '+' || s[j] == '-') && s[j-1] != 'e' && s[j-1] != 'E' {
					break
				}
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j], i})
			i = j
		default:
			op := ""
			for _, cand := range []string{"&&", "||", "==", "!=", "<=", ">=", "<", ">", "=", "!"} {
				if strings.HasPrefix(s[i:], cand) {
					op = cand
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
			}
			toks = append(toks, token{tokOp, op, i})
			i += len(op)
		}
	}
	return append(toks, token{tokEOF, "", len(s)}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// Parse compiles a row selection string such as
//
//	ENERGY > 100 && (PH == 2 || !(EVSTATUS < 3))
//
// into an Expression. Comparisons take a column on one side and a number or
// quoted string on the other; "=" is accepted for "==".
func Parse(expr string) (*Expression, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
	return e, nil
}

func (p *parser) parseOr() (*Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*Expression{left}
	for t := p.peek(); t.kind == tokOp && t.text == "||"; t = p.peek() {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return Or(children...), nil
}

func (p *parser) parseAnd() (*Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []*Expression{left}
	for t := p.peek(); t.kind == tokOp && t.text == "&&"; t = p.peek() {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return And(children...), nil
}

func (p *parser) parseUnary() (*Expression, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "!" {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not(inner), nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ) at %d", ErrSyntax, t.pos)
		}
		return inner, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]ExprOp{
	"==": OpEq,
	"=":  OpEq,
	"!=": OpNotEq,
	"<":  OpLt,
	"<=": OpLte,
	">":  OpGt,
	">=": OpGte,
}

// mirrored maps an operator to its equivalent with the operands swapped.
var mirrored = map[ExprOp]ExprOp{
	OpEq:    OpEq,
	OpNotEq: OpNotEq,
	OpLt:    OpGt,
	OpLte:   OpGte,
	OpGt:    OpLt,
	OpGte:   OpLte,
}

func (p *parser) parseComparison() (*Expression, error) {
	left := p.next()
	opTok := p.next()
	op, ok := comparisonOps[opTok.text]
	if opTok.kind != tokOp || !ok {
		return nil, fmt.Errorf("%w: expected comparison at %d", ErrSyntax, opTok.pos)
	}
	right := p.next()

	switch {
	case left.kind == tokIdent && right.kind != tokIdent:
		v, err := literal(right)
		if err != nil {
			return nil, err
		}
		return Col(left.text).cmp(op, v), nil
	case right.kind == tokIdent && left.kind != tokIdent:
		v, err := literal(left)
		if err != nil {
			return nil, err
		}
		return Col(right.text).cmp(mirrored[op], v), nil
	default:
		return nil, fmt.Errorf("%w: comparison at %d needs one column and one literal", ErrSyntax, left.pos)
	}
}

func literal(t token) (any, error) {
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q at %d", ErrSyntax, t.text, t.pos)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: expected literal at %d", ErrSyntax, t.pos)
	}
}
