// Package expr evaluates content-authored expressions and ${...} templates
// against a state-reading capability. Evaluation failures are local: callers
// degrade them to a placeholder, so a malformed expression can never abort
// resolution or crash the render path.
package expr

import (
	"strings"

	"github.com/go-loom/loom/pkg/errors"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenInt
	tokenFloat
	tokenString
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenDot
	tokenQuestion
	tokenColon
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenPercent
	tokenBang
	tokenEq
	tokenNotEq
	tokenLess
	tokenLessEq
	tokenGreater
	tokenGreaterEq
	tokenAnd
	tokenOr
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex tokenizes expression source. It is strict: any byte it does not
// understand is an EvalError, which the caller degrades to a placeholder.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			start := i
			kind := tokenInt
			for i < len(src) && src[i] >= '0' && src[i] <= '9' {
				i++
			}
			if i < len(src) && src[i] == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9' {
				kind = tokenFloat
				i++
				for i < len(src) && src[i] >= '0' && src[i] <= '9' {
					i++
				}
			}
			tokens = append(tokens, token{kind, src[start:i], start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{tokenIdent, src[start:i], start})
		case c == '\'' || c == '"':
			quote := c
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(src) {
				if src[i] == '\\' && i+1 < len(src) {
					sb.WriteByte(src[i+1])
					i += 2
					continue
				}
				if src[i] == quote {
					closed = true
					i++
					break
				}
				sb.WriteByte(src[i])
				i++
			}
			if !closed {
				return nil, &errors.EvalError{Expr: src, Pos: start, Msg: "unterminated string"}
			}
			tokens = append(tokens, token{tokenString, sb.String(), start})
		default:
			kind, width := lexOperator(src[i:])
			if kind == tokenEOF {
				return nil, &errors.EvalError{Expr: src, Pos: i, Msg: "unexpected character " + string(c)}
			}
			tokens = append(tokens, token{kind, src[i : i+width], i})
			i += width
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(src)})
	return tokens, nil
}

func lexOperator(rest string) (tokenKind, int) {
	if len(rest) >= 2 {
		switch rest[:2] {
		case "==":
			return tokenEq, 2
		case "!=":
			return tokenNotEq, 2
		case "<=":
			return tokenLessEq, 2
		case ">=":
			return tokenGreaterEq, 2
		case "&&":
			return tokenAnd, 2
		case "||":
			return tokenOr, 2
		}
	}
	switch rest[0] {
	case '(':
		return tokenLParen, 1
	case ')':
		return tokenRParen, 1
	case '[':
		return tokenLBracket, 1
	case ']':
		return tokenRBracket, 1
	case '.':
		return tokenDot, 1
	case '?':
		return tokenQuestion, 1
	case ':':
		return tokenColon, 1
	case '+':
		return tokenPlus, 1
	case '-':
		return tokenMinus, 1
	case '*':
		return tokenStar, 1
	case '/':
		return tokenSlash, 1
	case '%':
		return tokenPercent, 1
	case '!':
		return tokenBang, 1
	case '<':
		return tokenLess, 1
	case '>':
		return tokenGreater, 1
	}
	return tokenEOF, 0
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
