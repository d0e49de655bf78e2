// Package render defines the immutable intermediate representation produced
// by resolution. A render node holds fully resolved style and content:
// painting it requires no further external lookups, so adapters may read the
// tree concurrently with state mutation.
package render

import "github.com/go-loom/loom/pkg/document"

// Node is one node of the IR tree. Nodes are immutable after resolution.
type Node struct {
	// ID is the document node id, or a generated id for anonymous nodes.
	ID string
	// Kind is the component kind tag.
	Kind string
	// Style is the fully merged style.
	Style Style
	// Content is the per-kind resolved payload.
	Content Content
	// Children are the ordered child nodes.
	Children []*Node
}

// Content is the per-kind payload of a render node.
type Content interface {
	isContent()
}

// ContainerContent lays out children.
type ContainerContent struct {
	// Direction is "column" or "row".
	Direction string
	// Spacing is the gap between children.
	Spacing float64
}

// SectionContent groups children under an optional title.
type SectionContent struct {
	Title string
}

// TextContent displays a string.
type TextContent struct {
	Text string
}

// ButtonContent displays a tappable label.
type ButtonContent struct {
	Label string
	// OnTap is the resolved, dispatchable action reference.
	OnTap document.ActionRef
	// Enabled gates dispatch.
	Enabled bool
}

// ImageContent displays an image by URL.
type ImageContent struct {
	URL string
	Alt string
}

// ToggleContent displays a two-way boolean control.
type ToggleContent struct {
	Value bool
	// BindPath is the state path the control writes back to, or "".
	BindPath string
	OnChange document.ActionRef
}

// InputContent displays a two-way text field.
type InputContent struct {
	Value       string
	Placeholder string
	// BindPath is the state path the field writes back to, or "".
	BindPath string
}

// SpacerContent occupies fixed space.
type SpacerContent struct {
	Size float64
}

func (ContainerContent) isContent() {}
func (SectionContent) isContent()   {}
func (TextContent) isContent()      {}
func (ButtonContent) isContent()    {}
func (ImageContent) isContent()     {}
func (ToggleContent) isContent()    {}
func (InputContent) isContent()     {}
func (SpacerContent) isContent()    {}

// Walk visits the tree depth-first, parents before children, stopping when
// fn returns false.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil || !fn(root) {
		return
	}
	for _, child := range root.Children {
		Walk(child, fn)
	}
}

// Count returns the number of nodes in the tree.
func Count(root *Node) int {
	n := 0
	Walk(root, func(*Node) bool { n++; return true })
	return n
}
