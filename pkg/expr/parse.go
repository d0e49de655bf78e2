package expr

import (
	"fmt"
	"strconv"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/state"
)

// Grammar, lowest precedence first:
//
//	expr       = ternary
//	ternary    = or [ "?" expr ":" expr ]
//	or         = and { "||" and }
//	and        = equality { "&&" equality }
//	equality   = comparison { ("==" | "!=") comparison }
//	comparison = additive { ("<" | "<=" | ">" | ">=") additive }
//	additive   = multitive { ("+" | "-") multitive }
//	multitive  = unary { ("*" | "/" | "%") unary }
//	unary      = ("-" | "!") unary | postfix
//	postfix    = primary { "[" expr "]" | "." ident }
//	primary    = number | string | "true" | "false" | "null" | "(" expr ")" | ident

type astNode interface{}

type literalNode struct {
	val state.Value
}

// pathSeg is one segment of a state-path expression: a named field or a
// computed index.
type pathSeg struct {
	name  string
	index astNode
}

// pathNode is a state-path reference such as user.name or items[i].id.
type pathNode struct {
	segs []pathSeg
}

type unaryNode struct {
	op      tokenKind
	operand astNode
}

type binaryNode struct {
	op          tokenKind
	left, right astNode
}

type ternaryNode struct {
	cond, then, els astNode
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

func parse(src string) (astNode, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, p.errorf("unexpected %q after expression", p.peek().text)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return token{}, p.errorf("expected %s, found %q", what, t.text)
	}
	return t, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &errors.EvalError{Expr: p.src, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseExpr() (astNode, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenQuestion {
		return cond, nil
	}
	p.next()
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenColon, "':'"); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ternaryNode{cond: cond, then: then, els: els}, nil
}

func (p *parser) parseOr() (astNode, error) {
	return p.parseBinary([]tokenKind{tokenOr}, p.parseAnd)
}

func (p *parser) parseAnd() (astNode, error) {
	return p.parseBinary([]tokenKind{tokenAnd}, p.parseEquality)
}

func (p *parser) parseEquality() (astNode, error) {
	return p.parseBinary([]tokenKind{tokenEq, tokenNotEq}, p.parseComparison)
}

func (p *parser) parseComparison() (astNode, error) {
	return p.parseBinary([]tokenKind{tokenLess, tokenLessEq, tokenGreater, tokenGreaterEq}, p.parseAdditive)
}

func (p *parser) parseAdditive() (astNode, error) {
	return p.parseBinary([]tokenKind{tokenPlus, tokenMinus}, p.parseMultitive)
}

func (p *parser) parseMultitive() (astNode, error) {
	return p.parseBinary([]tokenKind{tokenStar, tokenSlash, tokenPercent}, p.parseUnary)
}

func (p *parser) parseBinary(ops []tokenKind, next func() (astNode, error)) (astNode, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		matched := false
		for _, op := range ops {
			if kind == op {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
		p.next()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: kind, left: left, right: right}
	}
}

func (p *parser) parseUnary() (astNode, error) {
	switch p.peek().kind {
	case tokenMinus, tokenBang:
		op := p.next().kind
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (astNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokenLBracket:
			p.next()
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokenRBracket, "']'"); err != nil {
				return nil, err
			}
			path, ok := node.(*pathNode)
			if !ok {
				return nil, p.errorf("cannot index a non-path expression")
			}
			path.segs = append(path.segs, pathSeg{index: index})
		case tokenDot:
			p.next()
			ident, err := p.expect(tokenIdent, "identifier")
			if err != nil {
				return nil, err
			}
			path, ok := node.(*pathNode)
			if !ok {
				return nil, p.errorf("cannot select a field of a non-path expression")
			}
			path.segs = append(path.segs, pathSeg{name: ident.text})
		default:
			return node, nil
		}
	}
}

func (p *parser) parsePrimary() (astNode, error) {
	t := p.next()
	switch t.kind {
	case tokenInt:
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf("bad integer %q", t.text)
		}
		return &literalNode{val: state.Int(i)}, nil
	case tokenFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("bad number %q", t.text)
		}
		return &literalNode{val: state.Float(f)}, nil
	case tokenString:
		return &literalNode{val: state.String(t.text)}, nil
	case tokenIdent:
		switch t.text {
		case "true":
			return &literalNode{val: state.Bool(true)}, nil
		case "false":
			return &literalNode{val: state.Bool(false)}, nil
		case "null":
			return &literalNode{val: state.Null()}, nil
		}
		return &pathNode{segs: []pathSeg{{name: t.text}}}, nil
	case tokenLParen:
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return node, nil
	default:
		return nil, &errors.EvalError{Expr: p.src, Pos: t.pos, Msg: "expected expression, found " + quoteToken(t)}
	}
}

func quoteToken(t token) string {
	if t.kind == tokenEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}
