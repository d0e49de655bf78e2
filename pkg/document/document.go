// Package document defines the typed, already-decoded form of a Loom
// document: state initializers, a style table, an action table, a
// data-source table and the root node tree. The resolver consumes Documents
// as a read-only contract and performs no text parsing; DecodeJSON and
// DecodeYAML are the routine decode collaborators.
package document

import (
	"fmt"

	"github.com/go-loom/loom/pkg/state"
)

// Document is a fully decoded UI document.
type Document struct {
	// Version optionally declares the document schema version. When set it
	// must be valid semver.
	Version string

	// State maps initializer paths to literal values.
	State map[string]state.Value

	// Styles is the style table. A style names at most one parent via
	// Inherits; child fields win on merge.
	Styles map[string]Style

	// Actions is the action table, keyed by id.
	Actions map[string]Action `validate:"dive"`

	// Sources is the data-source table, keyed by id.
	Sources map[string]DataSource `validate:"dive"`

	// Root is the root of the node tree.
	Root *Node `validate:"required"`
}

// Style is one entry of the style table.
type Style struct {
	// Inherits names the single optional parent style.
	Inherits string
	// Props holds the style's own fields.
	Props map[string]state.Value
}

// Node is one node of the document tree.
type Node struct {
	// ID optionally identifies the node; resolution generates ids for
	// anonymous nodes.
	ID string
	// Kind is the component kind tag dispatched through the resolver
	// registry.
	Kind string `validate:"required"`
	// Style optionally references the style table.
	Style string
	// StyleProps holds inline style fields, overriding the referenced style.
	StyleProps map[string]state.Value
	// Props holds the component properties.
	Props map[string]PropValue
	// Local declares a local-state scope with its literal seed values. A
	// node with a Local map owns a scope visible to its subtree only.
	Local map[string]state.Value
	// Children are the ordered child nodes.
	Children []*Node `validate:"dive"`
}

// PropKind tags how a property value resolves.
type PropKind int

const (
	// PropLiteral passes the literal value through.
	PropLiteral PropKind = iota
	// PropExpr evaluates Src as an expression ({"$expr": ...}).
	PropExpr
	// PropBind binds Src as a state path ({"$bind": ...}), registering a
	// read dependency (and a write dependency on two-way components).
	PropBind
	// PropTemplate interpolates Src as a ${...} template.
	PropTemplate
	// PropSource references the data-source table by id ({"$source": ...}).
	PropSource
)

func (k PropKind) String() string {
	switch k {
	case PropExpr:
		return "expr"
	case PropBind:
		return "bind"
	case PropTemplate:
		return "template"
	case PropSource:
		return "source"
	default:
		return "literal"
	}
}

// PropValue is a tagged component property: a literal, an expression, a
// state-path binding, a template or a data-source reference.
type PropValue struct {
	Kind    PropKind
	Literal state.Value
	// Src is the expression source, bound path, template text or source id.
	Src string
}

// Literal returns a literal PropValue.
func Literal(v state.Value) PropValue {
	return PropValue{Kind: PropLiteral, Literal: v}
}

// Expr returns an expression PropValue.
func Expr(src string) PropValue {
	return PropValue{Kind: PropExpr, Src: src}
}

// Bind returns a state-path binding PropValue.
func Bind(path string) PropValue {
	return PropValue{Kind: PropBind, Src: path}
}

// Template returns a template PropValue.
func Template(src string) PropValue {
	return PropValue{Kind: PropTemplate, Src: src}
}

// Source returns a data-source reference PropValue.
func Source(id string) PropValue {
	return PropValue{Kind: PropSource, Src: id}
}

// Action is one entry of the action table, or an inline action. Built-in
// kinds mutate state; any other kind is dispatched to a host handler.
type Action struct {
	// Kind is the action kind tag: "set", "toggle", "append", "remove",
	// "batch", or a host-defined kind.
	Kind string `validate:"required"`
	// Path is the target state path for state-mutating kinds.
	Path string
	// Value is the written/toggled/appended value; expressions evaluate at
	// execution time.
	Value PropValue
	// Index is the removal index for "remove" by index.
	Index *int
	// Steps are the sub-actions of a "batch".
	Steps []Action
	// Params carries the payload of host-defined kinds.
	Params map[string]PropValue
}

// Built-in action kinds.
const (
	ActionSet    = "set"
	ActionToggle = "toggle"
	ActionAppend = "append"
	ActionRemove = "remove"
	ActionBatch  = "batch"
)

// ActionRef is a resolved, dispatchable action reference: either an id into
// the action table or an inline action.
type ActionRef struct {
	ID     string
	Inline *Action
}

// IsZero reports whether the reference is empty.
func (r ActionRef) IsZero() bool {
	return r.ID == "" && r.Inline == nil
}

// DataSource is one entry of the data-source table. A "state" source reads a
// live state path; a "static" source holds a literal value.
type DataSource struct {
	Kind  string `validate:"required,oneof=state static"`
	Path  string
	Value state.Value
}

// Data-source kinds.
const (
	SourceState  = "state"
	SourceStatic = "static"
)

// ActionFromValue converts a decoded map value into an inline Action. It is
// used for action properties authored inline rather than by table id.
func ActionFromValue(v state.Value) (*Action, error) {
	if v.Kind() != state.KindMap {
		return nil, fmt.Errorf("inline action must be a map, got %s", v.Kind())
	}
	return actionFromFields(v.Fields())
}

func actionFromFields(fields map[string]state.Value) (*Action, error) {
	kindVal, ok := fields["kind"]
	if !ok {
		return nil, fmt.Errorf("inline action missing kind")
	}
	kind, ok := kindVal.AsString()
	if !ok {
		return nil, fmt.Errorf("inline action kind must be a string")
	}

	action := &Action{Kind: kind}
	if pv, ok := fields["path"]; ok {
		action.Path, _ = pv.AsString()
	}
	if vv, ok := fields["value"]; ok {
		action.Value = tagProp(vv)
	}
	if iv, ok := fields["index"]; ok {
		if i, ok := iv.AsInt(); ok {
			idx := int(i)
			action.Index = &idx
		}
	}
	if sv, ok := fields["steps"]; ok && sv.Kind() == state.KindList {
		for _, stepVal := range sv.Items() {
			step, err := ActionFromValue(stepVal)
			if err != nil {
				return nil, err
			}
			action.Steps = append(action.Steps, *step)
		}
	}
	for key, fv := range fields {
		switch key {
		case "kind", "path", "value", "index", "steps":
		default:
			if action.Params == nil {
				action.Params = make(map[string]PropValue)
			}
			action.Params[key] = tagProp(fv)
		}
	}
	return action, nil
}
