package document

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-loom/loom/pkg/state"
)

// DecodeJSON decodes a JSON document into its typed form.
func DecodeJSON(data []byte) (*Document, error) {
	v, err := state.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("document: decoding json: %w", err)
	}
	return build(v)
}

// DecodeYAML decodes a YAML document into its typed form.
func DecodeYAML(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document: decoding yaml: %w", err)
	}
	return build(state.FromAny(raw))
}

func build(v state.Value) (*Document, error) {
	if v.Kind() != state.KindMap {
		return nil, fmt.Errorf("document: top level must be a map, got %s", v.Kind())
	}

	doc := &Document{
		State:   make(map[string]state.Value),
		Styles:  make(map[string]Style),
		Actions: make(map[string]Action),
		Sources: make(map[string]DataSource),
	}

	if ver, ok := v.Field("version"); ok {
		doc.Version, _ = ver.AsString()
	}

	if st, ok := v.Field("state"); ok {
		for _, path := range st.Keys() {
			val, _ := st.Field(path)
			doc.State[path] = val
		}
	}

	if styles, ok := v.Field("styles"); ok {
		for _, id := range styles.Keys() {
			styleVal, _ := styles.Field(id)
			style, err := buildStyle(styleVal)
			if err != nil {
				return nil, fmt.Errorf("document: style %q: %w", id, err)
			}
			doc.Styles[id] = style
		}
	}

	if actions, ok := v.Field("actions"); ok {
		for _, id := range actions.Keys() {
			actionVal, _ := actions.Field(id)
			action, err := ActionFromValue(actionVal)
			if err != nil {
				return nil, fmt.Errorf("document: action %q: %w", id, err)
			}
			doc.Actions[id] = *action
		}
	}

	if sources, ok := v.Field("sources"); ok {
		for _, id := range sources.Keys() {
			sourceVal, _ := sources.Field(id)
			source, err := buildSource(sourceVal)
			if err != nil {
				return nil, fmt.Errorf("document: source %q: %w", id, err)
			}
			doc.Sources[id] = source
		}
	}

	if rootVal, ok := v.Field("root"); ok {
		root, err := buildNode(rootVal)
		if err != nil {
			return nil, fmt.Errorf("document: root: %w", err)
		}
		doc.Root = root
	}

	return doc, nil
}

func buildStyle(v state.Value) (Style, error) {
	if v.Kind() != state.KindMap {
		return Style{}, fmt.Errorf("style must be a map, got %s", v.Kind())
	}
	style := Style{Props: make(map[string]state.Value)}
	for key, fv := range v.Fields() {
		if key == "inherits" {
			parent, ok := fv.AsString()
			if !ok {
				return Style{}, fmt.Errorf("inherits must be a string")
			}
			style.Inherits = parent
			continue
		}
		style.Props[key] = fv
	}
	return style, nil
}

func buildSource(v state.Value) (DataSource, error) {
	if v.Kind() != state.KindMap {
		return DataSource{}, fmt.Errorf("source must be a map, got %s", v.Kind())
	}
	var src DataSource
	if kv, ok := v.Field("kind"); ok {
		src.Kind, _ = kv.AsString()
	}
	if pv, ok := v.Field("path"); ok {
		src.Path, _ = pv.AsString()
	}
	if vv, ok := v.Field("value"); ok {
		src.Value = vv
	}
	return src, nil
}

func buildNode(v state.Value) (*Node, error) {
	if v.Kind() != state.KindMap {
		return nil, fmt.Errorf("node must be a map, got %s", v.Kind())
	}

	node := &Node{}
	for key, fv := range v.Fields() {
		switch key {
		case "id":
			node.ID, _ = fv.AsString()
		case "kind":
			node.Kind, _ = fv.AsString()
		case "style":
			node.Style, _ = fv.AsString()
		case "styleProps":
			node.StyleProps = fv.Fields()
		case "local":
			node.Local = fv.Fields()
		case "children":
			if fv.Kind() != state.KindList {
				return nil, fmt.Errorf("children must be a list, got %s", fv.Kind())
			}
			for i, childVal := range fv.Items() {
				child, err := buildNode(childVal)
				if err != nil {
					return nil, fmt.Errorf("children[%d]: %w", i, err)
				}
				node.Children = append(node.Children, child)
			}
		case "props":
			if fv.Kind() != state.KindMap {
				return nil, fmt.Errorf("props must be a map, got %s", fv.Kind())
			}
			node.Props = make(map[string]PropValue, fv.Len())
			for prop, pv := range fv.Fields() {
				node.Props[prop] = tagProp(pv)
			}
		default:
			// Unreserved top-level keys are shorthand props.
			if node.Props == nil {
				node.Props = make(map[string]PropValue)
			}
			node.Props[key] = tagProp(fv)
		}
	}
	if node.Kind == "" {
		return nil, fmt.Errorf("node missing kind")
	}
	return node, nil
}

// tagProp classifies a decoded value as literal, expression, binding,
// template or data-source reference.
func tagProp(v state.Value) PropValue {
	switch v.Kind() {
	case state.KindMap:
		if src, ok := tagField(v, "$expr"); ok {
			return PropValue{Kind: PropExpr, Src: src}
		}
		if src, ok := tagField(v, "$bind"); ok {
			return PropValue{Kind: PropBind, Src: src}
		}
		if src, ok := tagField(v, "$source"); ok {
			return PropValue{Kind: PropSource, Src: src}
		}
	case state.KindString:
		if s, _ := v.AsString(); strings.Contains(s, "${") {
			return PropValue{Kind: PropTemplate, Src: s}
		}
	}
	return PropValue{Kind: PropLiteral, Literal: v}
}

func tagField(v state.Value, tag string) (string, bool) {
	fv, ok := v.Field(tag)
	if !ok {
		return "", false
	}
	src, ok := fv.AsString()
	return src, ok
}
