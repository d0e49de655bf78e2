// Package resolve walks a document tree and produces the immutable render
// IR plus the parallel view tree annotated with dependencies. Style
// inheritance chains are merged first; each node's properties then resolve
// through a per-kind resolver found in an open registry, with every state
// read and two-way write captured and attributed to the node being resolved.
//
// A structural failure (dangling reference, style cycle, unregistered kind,
// missing required field) aborts the whole resolution: a partially resolved
// tree never reaches a renderer. Expression failures are not structural;
// they degrade per evaluation.
package resolve

import (
	"sort"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/render"
)

// KindResolver resolves the component-specific properties of one node kind.
type KindResolver interface {
	// Resolve produces the render content for n. Structural errors abort
	// resolution; everything else must degrade.
	Resolve(rc *Context, n *document.Node) (render.Content, error)
	// TwoWayProps names the props whose state-path bindings register a
	// write dependency in addition to the read.
	TwoWayProps() []string
}

// Registry maps component kind tags to their resolvers. It is open:
// hosts add kinds at startup alongside the built-ins.
type Registry struct {
	kinds map[string]KindResolver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]KindResolver)}
}

// Register installs kr for kind, replacing any previous resolver.
func (r *Registry) Register(kind string, kr KindResolver) {
	r.kinds[kind] = kr
}

// Lookup returns the resolver for kind.
func (r *Registry) Lookup(kind string) (KindResolver, bool) {
	kr, ok := r.kinds[kind]
	return kr, ok
}

// Kinds returns the registered kind tags in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
