package resolve

import (
	"fmt"
	"strings"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/state"
	"github.com/go-loom/loom/pkg/view"
)

// localPrefix marks property paths that address the nearest enclosing
// local-state scope.
const localPrefix = "local."

// Context is handed to kind resolvers while one node resolves. It reads
// state through the node's capture scope, so every lookup a resolver makes
// becomes a dependency of that node.
type Context struct {
	resolver *Resolver
	doc      *document.Document
	store    *state.Store
	tracker  *view.Tracker
	// scopeID is the nearest enclosing local-state scope, "" outside any.
	scopeID string
	// docPath locates the node for error reporting ("root.children[2]").
	docPath string
	// twoWay marks the active kind's two-way-bindable props.
	twoWay map[string]bool
}

// reader returns the evaluation reader for this node: local paths rewrite
// against the nearest scope, then every lookup lands in the capture scope.
func (rc *Context) reader() state.Reader {
	return scopedReader{
		scopeID: rc.scopeID,
		inner:   view.TrackingReader{Reader: rc.store, Tracker: rc.tracker},
	}
}

// scopedReader rewrites local.-prefixed lookups into the enclosing scope's
// reserved namespace before they reach tracking and the store.
type scopedReader struct {
	scopeID string
	inner   state.Reader
}

func (r scopedReader) Lookup(path string) (state.Value, bool) {
	if strings.HasPrefix(path, localPrefix) {
		if r.scopeID == "" {
			return state.Null(), false
		}
		path = state.LocalPath(r.scopeID, strings.TrimPrefix(path, localPrefix))
	}
	return r.inner.Lookup(path)
}

// Value resolves the named prop to a value. The second return is false when
// the prop is not declared. Expression and template failures degrade (to
// null and the placeholder respectively); structural failures such as a
// dangling data-source id or a local binding outside any scope return an
// error.
func (rc *Context) Value(n *document.Node, prop string) (state.Value, bool, error) {
	pv, ok := n.Props[prop]
	if !ok {
		return state.Null(), false, nil
	}

	switch pv.Kind {
	case document.PropLiteral:
		return pv.Literal, true, nil

	case document.PropExpr:
		v, err := rc.resolver.eval.Evaluate(pv.Src, rc.reader())
		if err != nil {
			rc.resolver.logger.Debug().
				Str("node", rc.docPath).Str("prop", prop).Str("expr", pv.Src).Err(err).
				Msg("expression degraded")
			return state.Null(), true, nil
		}
		return v, true, nil

	case document.PropTemplate:
		return state.String(rc.resolver.eval.Interpolate(pv.Src, rc.reader())), true, nil

	case document.PropBind:
		if _, err := rc.BindTarget(prop, pv.Src); err != nil {
			return state.Null(), true, err
		}
		v, _ := rc.reader().Lookup(pv.Src)
		return v, true, nil

	case document.PropSource:
		source, ok := rc.doc.Sources[pv.Src]
		if !ok {
			return state.Null(), true, &errors.StructuralError{
				Op:   "resolve.Value",
				Kind: errors.KindDanglingReference,
				Path: rc.docPath,
				Ref:  pv.Src,
			}
		}
		switch source.Kind {
		case document.SourceState:
			v, _ := rc.reader().Lookup(source.Path)
			return v, true, nil
		case document.SourceStatic:
			return source.Value, true, nil
		default:
			return state.Null(), true, &errors.StructuralError{
				Op:   "resolve.Value",
				Kind: errors.KindDocument,
				Path: rc.docPath,
				Ref:  pv.Src,
				Err:  fmt.Errorf("unknown source kind %q", source.Kind),
			}
		}
	}
	return state.Null(), false, nil
}

// BindTarget rewrites and validates a binding path, registering the write
// dependency when prop is two-way bindable for the active kind. The read
// dependency is registered by the lookup itself.
func (rc *Context) BindTarget(prop, path string) (string, error) {
	if strings.HasPrefix(path, localPrefix) {
		if rc.scopeID == "" {
			return "", &errors.StructuralError{
				Op:   "resolve.BindTarget",
				Kind: errors.KindLocalState,
				Path: rc.docPath,
				Ref:  path,
				Err:  fmt.Errorf("local binding outside any local-state scope"),
			}
		}
		path = state.LocalPath(rc.scopeID, strings.TrimPrefix(path, localPrefix))
	}
	if rc.twoWay[prop] {
		rc.tracker.RecordWrite(path)
	}
	return path, nil
}

// BindPath returns the rewritten write-back path when the named prop is a
// state-path binding.
func (rc *Context) BindPath(n *document.Node, prop string) (string, bool, error) {
	pv, ok := n.Props[prop]
	if !ok || pv.Kind != document.PropBind {
		return "", false, nil
	}
	path, err := rc.BindTarget(prop, pv.Src)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// String resolves the named prop and stringifies it.
func (rc *Context) String(n *document.Node, prop string) (string, bool, error) {
	v, ok, err := rc.Value(n, prop)
	if err != nil || !ok {
		return "", ok, err
	}
	return v.Text(), true, nil
}

// RequireString resolves a required string prop, failing structurally when
// it is absent.
func (rc *Context) RequireString(n *document.Node, prop string) (string, error) {
	s, ok, err := rc.String(n, prop)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &errors.StructuralError{
			Op:   "resolve.RequireString",
			Kind: errors.KindMissingField,
			Path: rc.docPath,
			Ref:  prop,
		}
	}
	return s, nil
}

// Bool resolves the named prop with boolean coercion, or def when absent.
func (rc *Context) Bool(n *document.Node, prop string, def bool) (bool, error) {
	v, ok, err := rc.Value(n, prop)
	if err != nil || !ok {
		return def, err
	}
	return v.Truthy(), nil
}

// Number resolves the named numeric prop, or def when absent or
// non-numeric.
func (rc *Context) Number(n *document.Node, prop string, def float64) (float64, error) {
	v, ok, err := rc.Value(n, prop)
	if err != nil || !ok {
		return def, err
	}
	f, numeric := v.Number()
	if !numeric {
		return def, nil
	}
	return f, nil
}

// Action resolves the named prop into a dispatchable action reference: a
// string resolves through the action table (a dangling id is a structural
// error), a map is an inline action. An absent prop yields the zero ref.
func (rc *Context) Action(n *document.Node, prop string) (document.ActionRef, error) {
	pv, ok := n.Props[prop]
	if !ok {
		return document.ActionRef{}, nil
	}
	if pv.Kind != document.PropLiteral {
		return document.ActionRef{}, &errors.StructuralError{
			Op:   "resolve.Action",
			Kind: errors.KindDocument,
			Path: rc.docPath,
			Ref:  prop,
			Err:  fmt.Errorf("action prop must be an id or inline action, got %s", pv.Kind),
		}
	}

	if id, ok := pv.Literal.AsString(); ok {
		if _, exists := rc.doc.Actions[id]; !exists {
			return document.ActionRef{}, &errors.StructuralError{
				Op:   "resolve.Action",
				Kind: errors.KindDanglingReference,
				Path: rc.docPath,
				Ref:  id,
			}
		}
		return document.ActionRef{ID: id}, nil
	}

	inline, err := document.ActionFromValue(pv.Literal)
	if err != nil {
		return document.ActionRef{}, &errors.StructuralError{
			Op:   "resolve.Action",
			Kind: errors.KindDocument,
			Path: rc.docPath,
			Ref:  prop,
			Err:  err,
		}
	}
	return document.ActionRef{Inline: inline}, nil
}

// ScopeID returns the nearest enclosing local-state scope id, "" outside
// any scope.
func (rc *Context) ScopeID() string { return rc.scopeID }

// DocPath returns the node's location for error reporting.
func (rc *Context) DocPath() string { return rc.docPath }
