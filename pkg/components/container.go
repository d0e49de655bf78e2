package components

import (
	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/resolve"
)

// Container lays out its children in a row or column.
type Container struct{}

func (Container) TwoWayProps() []string { return nil }

func (Container) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	direction, ok, err := rc.String(n, "direction")
	if err != nil {
		return nil, err
	}
	if !ok || (direction != "row" && direction != "column") {
		direction = "column"
	}
	spacing, err := rc.Number(n, "spacing", 0)
	if err != nil {
		return nil, err
	}
	return render.ContainerContent{Direction: direction, Spacing: spacing}, nil
}

// Section groups children under an optional title.
type Section struct{}

func (Section) TwoWayProps() []string { return nil }

func (Section) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	title, _, err := rc.String(n, "title")
	if err != nil {
		return nil, err
	}
	return render.SectionContent{Title: title}, nil
}

// Spacer occupies fixed space between siblings.
type Spacer struct{}

func (Spacer) TwoWayProps() []string { return nil }

func (Spacer) Resolve(rc *resolve.Context, n *document.Node) (render.Content, error) {
	size, err := rc.Number(n, "size", 8)
	if err != nil {
		return nil, err
	}
	return render.SpacerContent{Size: size}, nil
}
