package components

import (
	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/resolve"
)

// Text displays a string. The text prop is required but resolves totally:
// a failing template still yields a displayable placeholder.
type Text struct{}

func (Text) TwoWayProps() []string { return nil }

func (Text) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	text, err := rc.RequireString(n, "text")
	if err != nil {
		return nil, err
	}
	return render.TextContent{Text: text}, nil
}

// Image displays an image by URL.
type Image struct{}

func (Image) TwoWayProps() []string { return nil }

func (Image) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	url, err := rc.RequireString(n, "url")
	if err != nil {
		return nil, err
	}
	alt, _, err := rc.String(n, "alt")
	if err != nil {
		return nil, err
	}
	return render.ImageContent{URL: url, Alt: alt}, nil
}
