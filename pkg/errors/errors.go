// Package errors provides structured error handling for the Loom engine.
package errors

import (
	"fmt"
)

// StructuralKind identifies the category of a structural resolution error.
type StructuralKind int

const (
	// KindUnknown indicates a structural error of unknown category.
	KindUnknown StructuralKind = iota
	// KindDanglingReference indicates a reference to an unknown style,
	// action or data-source id.
	KindDanglingReference
	// KindStyleCycle indicates a cycle in a style inheritance chain.
	KindStyleCycle
	// KindUnregisteredComponent indicates a node kind with no resolver registered.
	KindUnregisteredComponent
	// KindMissingField indicates a required component field that is absent.
	KindMissingField
	// KindLocalState indicates a local-state path used outside any scope,
	// or an invalid local-state declaration.
	KindLocalState
	// KindDocument indicates an invalid document (bad version, missing root).
	KindDocument
)

func (k StructuralKind) String() string {
	switch k {
	case KindDanglingReference:
		return "dangling reference"
	case KindStyleCycle:
		return "style cycle"
	case KindUnregisteredComponent:
		return "no resolver registered"
	case KindMissingField:
		return "missing field"
	case KindLocalState:
		return "local state"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// StructuralError represents a fatal document resolution failure. It aborts
// the resolution that produced it; a partially resolved tree never reaches a
// renderer.
type StructuralError struct {
	// Op is the operation that failed (e.g., "resolve.mergeStyles").
	Op string
	// Kind categorizes the failure.
	Kind StructuralKind
	// Path locates the offending node in the document tree
	// (e.g., "root.children[2]").
	Path string
	// Ref is the dangling or cyclic id, when applicable.
	Ref string
	// Err is the underlying error, if any.
	Err error
}

func (e *StructuralError) Error() string {
	msg := fmt.Sprintf("%s [%s]", e.Op, e.Kind)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Ref != "" {
		msg += fmt.Sprintf(" (ref %q)", e.Ref)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// Structural reports whether err is (or wraps) a StructuralError, returning it.
func Structural(err error) (*StructuralError, bool) {
	for err != nil {
		if se, ok := err.(*StructuralError); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// EvalError represents an expression evaluation failure. Evaluation failures
// are local and recoverable: interpolation degrades the failing span to a
// placeholder instead of propagating them into the render path.
type EvalError struct {
	// Expr is the source text of the failing expression.
	Expr string
	// Pos is the byte offset of the failure within Expr, or -1.
	Pos int
	// Msg describes the failure.
	Msg string
}

func (e *EvalError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("eval %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
	}
	return fmt.Sprintf("eval %q: %s", e.Expr, e.Msg)
}

// ActionError represents a failure while executing an action. Handler
// failures are propagated to the caller of action execution, never swallowed.
type ActionError struct {
	// Op is the operation that failed (e.g., "engine.ExecuteAction").
	Op string
	// ActionID is the document id of the action, or "" for inline actions.
	ActionID string
	// Kind is the action kind tag.
	Kind string
	// Err is the underlying error.
	Err error
}

func (e *ActionError) Error() string {
	id := e.ActionID
	if id == "" {
		id = "<inline>"
	}
	return fmt.Sprintf("%s action %s (kind %s): %v", e.Op, id, e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// AsAction reports whether err is (or wraps) an ActionError, returning it.
func AsAction(err error) (*ActionError, bool) {
	for err != nil {
		if ae, ok := err.(*ActionError); ok {
			return ae, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
