// Package view holds the mutable tree that parallels the render IR: view
// nodes annotated with dependency metadata, the arena they live in, the
// per-node dependency capture scope and the reverse path index.
//
// Nodes are addressed by generational handles into the arena rather than by
// pointer. A handle held after its node detaches fails the liveness check
// instead of dangling, so index entries and parent back-references can never
// reach a destroyed node.
package view

import (
	"time"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/state"
)

// Handle addresses a node in a Tree. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero (invalid) handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Node is the mutable counterpart of a render node. It owns its children
// exclusively; Parent is a back-reference for upward traversal only and
// never extends a lifetime.
type Node struct {
	// ID matches the render node id.
	ID string
	// Kind is the component kind tag.
	Kind string
	// Self is the node's own handle, set at attach.
	Self Handle
	// Parent is the enclosing node's handle, zero for the root.
	Parent Handle
	// Children are the ordered child handles.
	Children []Handle

	// ScopeID is the nearest enclosing local-state scope id, "" outside any
	// scope. Local keys live in the store under the scope's reserved
	// namespace; sibling scopes are never visible to each other.
	ScopeID string
	// LocalSeed holds the scope's literal initial values.
	LocalSeed map[string]state.Value

	// Doc points at the document node this view node resolved from, for
	// content refresh after a state change.
	Doc *document.Node
	// Style is the node's merged style, fixed at resolution.
	Style render.Style

	// Reads and Writes are the captured dependency path sets.
	Reads  map[string]struct{}
	Writes map[string]struct{}

	// Pending marks the node as awaiting an adapter patch.
	Pending bool
	// UpdatedAt is stamped when the adapter acknowledges the patch.
	UpdatedAt time.Time
}

// ReadPaths returns the read set as a slice.
func (n *Node) ReadPaths() []string { return pathSlice(n.Reads) }

// WritePaths returns the write set as a slice.
func (n *Node) WritePaths() []string { return pathSlice(n.Writes) }

func pathSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

type slot struct {
	gen  uint32
	node *Node
}

// Tree is a generational arena of view nodes.
type Tree struct {
	slots []slot
	free  []uint32
	count int
	root  Handle
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	// Slot 0 is reserved so the zero Handle stays invalid.
	return &Tree{slots: make([]slot, 1)}
}

// Attach places n in the arena and returns its handle. The handle is also
// stored in n.Self.
func (t *Tree) Attach(n *Node) Handle {
	var index uint32
	if len(t.free) > 0 {
		index = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	} else {
		t.slots = append(t.slots, slot{})
		index = uint32(len(t.slots) - 1)
	}
	t.slots[index].gen++
	t.slots[index].node = n
	h := Handle{index: index, gen: t.slots[index].gen}
	n.Self = h
	t.count++
	return h
}

// Detach frees the slot behind h, invalidating every copy of the handle.
// The caller must unregister the node from any index strictly before
// detaching; index entries are non-owning and are only safe because stale
// handles fail the liveness check.
func (t *Tree) Detach(h Handle) {
	if !t.Alive(h) {
		return
	}
	t.slots[h.index].node = nil
	t.free = append(t.free, h.index)
	t.count--
	if t.root == h {
		t.root = Handle{}
	}
}

// Get returns the node behind h after a liveness check.
func (t *Tree) Get(h Handle) (*Node, bool) {
	if !t.Alive(h) {
		return nil, false
	}
	return t.slots[h.index].node, true
}

// Alive reports whether h still addresses an attached node.
func (t *Tree) Alive(h Handle) bool {
	if h.IsZero() || h.index == 0 || int(h.index) >= len(t.slots) {
		return false
	}
	s := t.slots[h.index]
	return s.node != nil && s.gen == h.gen
}

// Len returns the number of attached nodes.
func (t *Tree) Len() int { return t.count }

// Root returns the root handle.
func (t *Tree) Root() Handle { return t.root }

// SetRoot records the root handle.
func (t *Tree) SetRoot(h Handle) { t.root = h }

// Walk visits the subtree under h depth-first, parents before children,
// stopping when fn returns false.
func (t *Tree) Walk(h Handle, fn func(Handle, *Node) bool) {
	n, ok := t.Get(h)
	if !ok || !fn(h, n) {
		return
	}
	for _, child := range n.Children {
		t.Walk(child, fn)
	}
}

// Handles returns every attached handle under h, parents before children.
func (t *Tree) Handles(h Handle) []Handle {
	var out []Handle
	t.Walk(h, func(handle Handle, _ *Node) bool {
		out = append(out, handle)
		return true
	})
	return out
}
