package components

import (
	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/resolve"
)

// Button displays a tappable label dispatching an action. A dangling action
// id is a structural error; a button with no onTap resolves with a zero
// action ref and simply does nothing when tapped.
type Button struct{}

func (Button) TwoWayProps() []string { return nil }

func (Button) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	label, err := rc.RequireString(n, "label")
	if err != nil {
		return nil, err
	}
	onTap, err := rc.Action(n, "onTap")
	if err != nil {
		return nil, err
	}
	enabled, err := rc.Bool(n, "enabled", true)
	if err != nil {
		return nil, err
	}
	return render.ButtonContent{Label: label, OnTap: onTap, Enabled: enabled}, nil
}
