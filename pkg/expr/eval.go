package expr

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/state"
)

// Evaluator evaluates expressions and templates. The zero value is not
// usable; construct with New.
type Evaluator struct {
	placeholder string
	logger      zerolog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPlaceholder sets the string a failing template span degrades to.
// The default is the empty string.
func WithPlaceholder(s string) Option {
	return func(e *Evaluator) { e.placeholder = s }
}

// WithLogger sets the logger used to report degraded spans at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// New returns an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Placeholder returns the configured degradation string.
func (e *Evaluator) Placeholder() string { return e.placeholder }

// Evaluate evaluates expression source against r. A read of an absent path
// yields null, not an error; malformed source and type mismatches yield an
// EvalError.
func (e *Evaluator) Evaluate(src string, r state.Reader) (state.Value, error) {
	node, err := parse(src)
	if err != nil {
		return state.Value{}, err
	}
	return e.eval(src, node, r)
}

func (e *Evaluator) eval(src string, node astNode, r state.Reader) (state.Value, error) {
	switch n := node.(type) {
	case *literalNode:
		return n.val, nil
	case *pathNode:
		return e.evalPath(src, n, r)
	case *unaryNode:
		return e.evalUnary(src, n, r)
	case *binaryNode:
		return e.evalBinary(src, n, r)
	case *ternaryNode:
		cond, err := e.eval(src, n.cond, r)
		if err != nil {
			return state.Value{}, err
		}
		if cond.Truthy() {
			return e.eval(src, n.then, r)
		}
		return e.eval(src, n.els, r)
	}
	return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "unknown expression node"}
}

// evalPath resolves a state-path reference. The full dotted/bracketed path
// goes through a single Lookup so dependency capture records the canonical
// path. When the full path is absent and its last segment is a list property
// (count, first, last), the property applies to the value at the prefix.
func (e *Evaluator) evalPath(src string, n *pathNode, r state.Reader) (state.Value, error) {
	var full, prefix strings.Builder
	for i, seg := range n.segs {
		if i == len(n.segs)-1 {
			prefix.WriteString(full.String())
		}
		if seg.index != nil {
			iv, err := e.eval(src, seg.index, r)
			if err != nil {
				return state.Value{}, err
			}
			if idx, ok := iv.AsInt(); ok {
				full.WriteString("[" + strconv.FormatInt(idx, 10) + "]")
			} else if key, ok := iv.AsString(); ok {
				full.WriteString("." + key)
			} else {
				return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "index must be an integer or string, got " + iv.Kind().String()}
			}
		} else {
			if i > 0 {
				full.WriteString(".")
			}
			full.WriteString(seg.name)
		}
	}

	if v, ok := r.Lookup(full.String()); ok {
		return v, nil
	}

	last := n.segs[len(n.segs)-1]
	if len(n.segs) > 1 && isListProperty(last.name) {
		if base, ok := r.Lookup(prefix.String()); ok {
			return listProperty(src, last.name, base)
		}
	}

	// Absence is not an error.
	return state.Null(), nil
}

func isListProperty(name string) bool {
	return name == "count" || name == "first" || name == "last"
}

func listProperty(src, name string, base state.Value) (state.Value, error) {
	switch name {
	case "count":
		switch base.Kind() {
		case state.KindList, state.KindMap, state.KindString:
			return state.Int(int64(base.Len())), nil
		}
		return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "count of " + base.Kind().String()}
	case "first":
		if v, ok := base.At(0); ok {
			return v, nil
		}
	case "last":
		if v, ok := base.At(-1); ok {
			return v, nil
		}
	}
	return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: name + " of " + base.Kind().String()}
}

func (e *Evaluator) evalUnary(src string, n *unaryNode, r state.Reader) (state.Value, error) {
	operand, err := e.eval(src, n.operand, r)
	if err != nil {
		return state.Value{}, err
	}
	switch n.op {
	case tokenBang:
		return state.Bool(!operand.Truthy()), nil
	case tokenMinus:
		if i, ok := operand.AsInt(); ok {
			return state.Int(-i), nil
		}
		if f, ok := operand.AsFloat(); ok {
			return state.Float(-f), nil
		}
		return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "cannot negate " + operand.Kind().String()}
	}
	return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "unknown unary operator"}
}

func (e *Evaluator) evalBinary(src string, n *binaryNode, r state.Reader) (state.Value, error) {
	// Short-circuit logic before evaluating the right operand.
	if n.op == tokenAnd || n.op == tokenOr {
		left, err := e.eval(src, n.left, r)
		if err != nil {
			return state.Value{}, err
		}
		if n.op == tokenAnd && !left.Truthy() {
			return state.Bool(false), nil
		}
		if n.op == tokenOr && left.Truthy() {
			return state.Bool(true), nil
		}
		right, err := e.eval(src, n.right, r)
		if err != nil {
			return state.Value{}, err
		}
		return state.Bool(right.Truthy()), nil
	}

	left, err := e.eval(src, n.left, r)
	if err != nil {
		return state.Value{}, err
	}
	right, err := e.eval(src, n.right, r)
	if err != nil {
		return state.Value{}, err
	}

	switch n.op {
	case tokenEq:
		return state.Bool(left.Equal(right)), nil
	case tokenNotEq:
		return state.Bool(!left.Equal(right)), nil
	case tokenPlus:
		if bothInts(left, right) {
			li, _ := left.AsInt()
			ri, _ := right.AsInt()
			return state.Int(li + ri), nil
		}
		if lf, ok := left.Number(); ok {
			if rf, ok := right.Number(); ok {
				return state.Float(lf + rf), nil
			}
		}
		if left.Kind() == state.KindString || right.Kind() == state.KindString {
			return state.String(left.Text() + right.Text()), nil
		}
		return state.Value{}, typeError(src, "+", left, right)
	case tokenMinus, tokenStar, tokenSlash, tokenPercent:
		return arithmetic(src, n.op, left, right)
	case tokenLess, tokenLessEq, tokenGreater, tokenGreaterEq:
		return compare(src, n.op, left, right)
	}
	return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "unknown binary operator"}
}

// arithmetic applies -, *, / and %. Two integer operands stay integral
// (division truncates); mixed operands promote to float. Modulo is
// truncating in both domains. Division or modulo by zero is an evaluation
// failure, never a panic.
func arithmetic(src string, op tokenKind, left, right state.Value) (state.Value, error) {
	if bothInts(left, right) {
		li, _ := left.AsInt()
		ri, _ := right.AsInt()
		switch op {
		case tokenMinus:
			return state.Int(li - ri), nil
		case tokenStar:
			return state.Int(li * ri), nil
		case tokenSlash:
			if ri == 0 {
				return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "division by zero"}
			}
			return state.Int(li / ri), nil
		case tokenPercent:
			if ri == 0 {
				return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "modulo by zero"}
			}
			return state.Int(li % ri), nil
		}
	}

	lf, lok := left.Number()
	rf, rok := right.Number()
	if !lok || !rok {
		return state.Value{}, typeError(src, opText(op), left, right)
	}
	switch op {
	case tokenMinus:
		return state.Float(lf - rf), nil
	case tokenStar:
		return state.Float(lf * rf), nil
	case tokenSlash:
		if rf == 0 {
			return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "division by zero"}
		}
		return state.Float(lf / rf), nil
	case tokenPercent:
		if rf == 0 {
			return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "modulo by zero"}
		}
		return state.Float(math.Mod(lf, rf)), nil
	}
	return state.Value{}, &errors.EvalError{Expr: src, Pos: -1, Msg: "unknown arithmetic operator"}
}

func compare(src string, op tokenKind, left, right state.Value) (state.Value, error) {
	if lf, ok := left.Number(); ok {
		rf, rok := right.Number()
		if !rok {
			return state.Value{}, typeError(src, opText(op), left, right)
		}
		return state.Bool(applyOrder(op, compareFloats(lf, rf))), nil
	}
	ls, lok := left.AsString()
	rs, rok := right.AsString()
	if !lok || !rok {
		return state.Value{}, typeError(src, opText(op), left, right)
	}
	return state.Bool(applyOrder(op, strings.Compare(ls, rs))), nil
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrder(op tokenKind, cmp int) bool {
	switch op {
	case tokenLess:
		return cmp < 0
	case tokenLessEq:
		return cmp <= 0
	case tokenGreater:
		return cmp > 0
	case tokenGreaterEq:
		return cmp >= 0
	}
	return false
}

func bothInts(a, b state.Value) bool {
	return a.Kind() == state.KindInt && b.Kind() == state.KindInt
}

func opText(op tokenKind) string {
	switch op {
	case tokenMinus:
		return "-"
	case tokenStar:
		return "*"
	case tokenSlash:
		return "/"
	case tokenPercent:
		return "%"
	case tokenLess:
		return "<"
	case tokenLessEq:
		return "<="
	case tokenGreater:
		return ">"
	case tokenGreaterEq:
		return ">="
	default:
		return "?"
	}
}

func typeError(src, op string, left, right state.Value) error {
	return &errors.EvalError{
		Expr: src,
		Pos:  -1,
		Msg:  "cannot apply " + op + " to " + left.Kind().String() + " and " + right.Kind().String(),
	}
}
