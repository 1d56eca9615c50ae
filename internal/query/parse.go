// Package query parses boolean category expressions and decomposes them into
// independently fetchable sub-queries.
package query

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrSyntax          = errors.New("query: syntax error")
	ErrUnknownCategory = errors.New("query: unknown category")
	ErrNoPositiveTerm  = errors.New("query: conjunct has no positive category")
	ErrTooComplex      = errors.New("query: expression expands to too many sub-queries")
)

// Node is a parsed boolean expression.
type Node interface {
	String() string
}

type Category struct{ Name string }

type Not struct{ X Node }

type And struct{ Terms []Node }

type Or struct{ Terms []Node }

func (c Category) String() string { return c.Name }
func (n Not) String() string      { return "NOT " + n.X.String() }
func (a And) String() string      { return "(" + join(a.Terms, " AND ") + ")" }
func (o Or) String() string       { return "(" + join(o.Terms, " OR ") + ")" }

func join(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(s string) ([]token, error) {
	var out []token
	i := 0
	for i < len(s) {
		r := rune(s[i])
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case r == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case isIdentByte(s[i]):
			start := i
			for i < len(s) && isIdentByte(s[i]) {
				i++
			}
			word := s[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				out = append(out, token{tokAnd, word, start})
			case "OR":
				out = append(out, token{tokOr, word, start})
			case "NOT":
				out = append(out, token{tokNot, word, start})
			default:
				out = append(out, token{tokIdent, strings.ToLower(word), start})
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, s[i], i)
		}
	}
	out = append(out, token{tokEOF, "", len(s)})
	return out, nil
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '-' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

type parser struct {
	toks []token
	i    int
}

// Parse reads an expression of categories joined by AND, OR and NOT with
// parentheses. Operators are case-insensitive; categories are lower-cased.
func Parse(expr string) (Node, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, t.text, t.pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek().kind == tokOr {
		p.next()
		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek().kind == tokAnd {
		p.next()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return And{Terms: terms}, nil
}

func (p *parser) parseUnary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNot:
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')' at offset %d", ErrSyntax, c.pos)
		}
		return n, nil
	case tokIdent:
		return Category{Name: t.text}, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, t.text, t.pos)
	}
}
