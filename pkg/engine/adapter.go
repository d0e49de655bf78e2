package engine

import (
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/view"
)

// Patch is one node-level update delivered to the adapter after a state
// change: the node's refreshed content, addressed by its stable id and view
// handle. Style, children and position are fixed at document load, so a
// patch never reshapes the tree.
type Patch struct {
	Handle view.Handle
	NodeID string
	Kind   string
	// Content is the re-resolved payload.
	Content render.Content
}

// Adapter is the host-side renderer. Mount and Apply are called under the
// engine's mutation gate, so implementations see batches in order and never
// concurrently; slow hosts should hand off and return.
type Adapter interface {
	// Mount delivers a freshly resolved tree after a document load.
	Mount(root *render.Node)
	// Apply delivers the refreshed nodes of one state batch. Each affected
	// node appears at most once per batch.
	Apply(patches []Patch)
}
