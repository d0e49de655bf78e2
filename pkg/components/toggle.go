package components

import (
	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/resolve"
)

// Toggle is a two-way boolean control. Its value prop registers a write
// dependency when bound, so a state write to the bound path refreshes the
// control and a flip of the control writes back through the same path.
type Toggle struct{}

func (Toggle) TwoWayProps() []string { return []string{"value"} }

func (Toggle) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	value, err := rc.Bool(n, "value", false)
	if err != nil {
		return nil, err
	}
	bindPath, _, err := rc.BindPath(n, "value")
	if err != nil {
		return nil, err
	}
	onChange, err := rc.Action(n, "onChange")
	if err != nil {
		return nil, err
	}
	return render.ToggleContent{Value: value, BindPath: bindPath, OnChange: onChange}, nil
}

// Input is a two-way text field.
type Input struct{}

func (Input) TwoWayProps() []string { return []string{"value"} }

func (Input) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	value, _, err := rc.String(n, "value")
	if err != nil {
		return nil, err
	}
	bindPath, _, err := rc.BindPath(n, "value")
	if err != nil {
		return nil, err
	}
	placeholder, _, err := rc.String(n, "placeholder")
	if err != nil {
		return nil, err
	}
	return render.InputContent{Value: value, BindPath: bindPath, Placeholder: placeholder}, nil
}
