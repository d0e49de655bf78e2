package document

import (
	"testing"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/state"
)

const counterJSON = `{
	"version": "1.2.0",
	"state": {"count": 0, "user.name": "ada"},
	"styles": {
		"base": {"fontSize": 14, "color": "#000"},
		"title": {"inherits": "base", "fontSize": 20}
	},
	"actions": {
		"increment": {"kind": "set", "path": "count", "value": {"$expr": "count + 1"}}
	},
	"sources": {
		"profile": {"kind": "state", "path": "user"}
	},
	"root": {
		"kind": "container",
		"id": "root",
		"children": [
			{"kind": "text", "props": {"text": "count is ${count}"}},
			{"kind": "button", "label": "More", "onTap": "increment"}
		]
	}
}`

func TestDecodeJSON(t *testing.T) {
	doc, err := DecodeJSON([]byte(counterJSON))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}

	if doc.Version != "1.2.0" {
		t.Errorf("Version = %q", doc.Version)
	}
	if v, ok := doc.State["count"]; !ok || !v.Equal(state.Int(0)) {
		t.Errorf("State[count] = %v, %v", v, ok)
	}
	if doc.Styles["title"].Inherits != "base" {
		t.Errorf("title.Inherits = %q", doc.Styles["title"].Inherits)
	}
	inc := doc.Actions["increment"]
	if inc.Kind != ActionSet || inc.Path != "count" || inc.Value.Kind != PropExpr {
		t.Errorf("increment = %+v", inc)
	}
	if doc.Sources["profile"].Kind != SourceState {
		t.Errorf("profile source = %+v", doc.Sources["profile"])
	}

	root := doc.Root
	if root == nil || root.Kind != "container" || len(root.Children) != 2 {
		t.Fatalf("root = %+v", root)
	}
	text := root.Children[0]
	if got := text.Props["text"]; got.Kind != PropTemplate || got.Src != "count is ${count}" {
		t.Errorf("text prop = %+v", got)
	}
	button := root.Children[1]
	if got := button.Props["label"]; got.Kind != PropLiteral || got.Literal.Text() != "More" {
		t.Errorf("shorthand label prop = %+v", got)
	}
	if got := button.Props["onTap"]; got.Kind != PropLiteral {
		t.Errorf("onTap prop = %+v", got)
	}
}

const profileYAML = `
state:
  selected: false
root:
  kind: section
  children:
    - kind: toggle
      props:
        value: {$bind: selected}
`

func TestDecodeYAML(t *testing.T) {
	doc, err := DecodeYAML([]byte(profileYAML))
	if err != nil {
		t.Fatalf("DecodeYAML: %v", err)
	}
	toggle := doc.Root.Children[0]
	if got := toggle.Props["value"]; got.Kind != PropBind || got.Src != "selected" {
		t.Errorf("toggle value prop = %+v", got)
	}
}

func TestDecode_BadShapes(t *testing.T) {
	for name, src := range map[string]string{
		"root not map":    `{"root": 3}`,
		"kindless node":   `{"root": {"id": "x"}}`,
		"bad children":    `{"root": {"kind": "container", "children": {"a": 1}}}`,
		"actionless kind": `{"actions": {"a": {"path": "x"}}, "root": {"kind": "text"}}`,
	} {
		if _, err := DecodeJSON([]byte(src)); err == nil {
			t.Errorf("%s: DecodeJSON succeeded, want error", name)
		}
	}
}

func TestValidate(t *testing.T) {
	doc, err := DecodeJSON([]byte(counterJSON))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	doc.Version = "not-semver"
	if err := doc.Validate(); err == nil {
		t.Error("Validate accepted a bad version")
	}
	doc.Version = "v2.0.0"
	if err := doc.Validate(); err != nil {
		t.Errorf("Validate rejected v-prefixed semver: %v", err)
	}

	doc.Styles["title"] = Style{Inherits: "ghost"}
	err = doc.Validate()
	se, ok := errors.Structural(err)
	if !ok || se.Kind != errors.KindDanglingReference {
		t.Errorf("Validate dangling inherits = %v, want dangling reference", err)
	}
	delete(doc.Styles, "title")

	doc.State["@local:x.y"] = state.Int(1)
	if err := doc.Validate(); err == nil {
		t.Error("Validate accepted a reserved state path")
	}
	delete(doc.State, "@local:x.y")

	doc.Root = nil
	if err := doc.Validate(); err == nil {
		t.Error("Validate accepted a rootless document")
	}
}

func TestActionFromValue_Inline(t *testing.T) {
	v, err := state.DecodeJSON([]byte(`{
		"kind": "batch",
		"steps": [
			{"kind": "set", "path": "a", "value": 1},
			{"kind": "remove", "path": "xs", "index": 0},
			{"kind": "navigate", "route": "/home"}
		]
	}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	action, err := ActionFromValue(v)
	if err != nil {
		t.Fatalf("ActionFromValue: %v", err)
	}
	if action.Kind != ActionBatch || len(action.Steps) != 3 {
		t.Fatalf("action = %+v", action)
	}
	if idx := action.Steps[1].Index; idx == nil || *idx != 0 {
		t.Errorf("remove step index = %v", idx)
	}
	custom := action.Steps[2]
	if custom.Kind != "navigate" {
		t.Errorf("custom step kind = %q", custom.Kind)
	}
	if route, ok := custom.Params["route"]; !ok || route.Literal.Text() != "/home" {
		t.Errorf("custom step params = %+v", custom.Params)
	}
}
