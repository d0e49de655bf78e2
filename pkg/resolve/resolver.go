package resolve

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/state"
	"github.com/go-loom/loom/pkg/view"
)

// Resolver turns documents into render IR plus the dependency-annotated
// view tree. A Resolver is not safe for concurrent use; the engine
// serializes access behind its mutation gate.
type Resolver struct {
	registry *Registry
	eval     state.Evaluator
	logger   zerolog.Logger
	newID    func() string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithIDSource overrides the generator used for anonymous node ids and
// local-state scope ids. Tests inject a counter for stable output.
func WithIDSource(fn func() string) Option {
	return func(r *Resolver) { r.newID = fn }
}

// New returns a Resolver dispatching through registry and evaluating
// expressions with eval.
func New(registry *Registry, eval state.Evaluator, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		eval:     eval,
		logger:   zerolog.Nop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is a complete resolution: the immutable render tree and the
// mutable view tree with its reverse path index.
type Result struct {
	Render *render.Node
	Tree   *view.Tree
	Index  *view.Index
	Root   view.Handle
}

// Resolve walks doc's node tree against store. Top-level state initializers
// seed only paths still absent from the store, so live state survives a
// document reload. Any structural error aborts the whole resolution and no
// partial result escapes.
func (r *Resolver) Resolve(doc *document.Document, store *state.Store) (*Result, error) {
	styles, err := MergeStyles(doc.Styles)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(doc.State))
	for k := range doc.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, present := store.Lookup(k); !present {
			store.Seed(k, doc.State[k])
		}
	}

	w := &walk{
		resolver: r,
		doc:      doc,
		store:    store,
		styles:   styles,
		tree:     view.NewTree(),
	}
	w.index = view.NewIndex(w.tree)

	node, root, err := w.node(doc.Root, view.Handle{}, "", "root")
	if err != nil {
		return nil, err
	}
	w.tree.SetRoot(root)

	return &Result{Render: node, Tree: w.tree, Index: w.index, Root: root}, nil
}

type walk struct {
	resolver *Resolver
	doc      *document.Document
	store    *state.Store
	styles   map[string]render.Style
	tree     *view.Tree
	index    *view.Index
	tracker  view.Tracker
}

func (w *walk) node(n *document.Node, parent view.Handle, scopeID, docPath string) (*render.Node, view.Handle, error) {
	r := w.resolver

	id := n.ID
	if id == "" {
		id = r.newID()
	}

	// A node declaring local state opens a fresh scope for itself and its
	// subtree. Scopes never merge with enclosing ones.
	var localSeed map[string]state.Value
	if n.Local != nil {
		scopeID = r.newID()
		localSeed = n.Local
		seedKeys := make([]string, 0, len(n.Local))
		for k := range n.Local {
			seedKeys = append(seedKeys, k)
		}
		sort.Strings(seedKeys)
		for _, k := range seedKeys {
			w.store.Seed(state.LocalPath(scopeID, k), n.Local[k])
		}
	}

	style := render.Style{}
	if n.Style != "" {
		named, ok := w.styles[n.Style]
		if !ok {
			return nil, view.Handle{}, &errors.StructuralError{
				Op:   "resolve.Resolve",
				Kind: errors.KindDanglingReference,
				Path: docPath,
				Ref:  n.Style,
			}
		}
		style = named
	}
	if len(n.StyleProps) > 0 {
		style = style.Merge(render.Style(n.StyleProps))
	}

	kr, ok := r.registry.Lookup(n.Kind)
	if !ok {
		return nil, view.Handle{}, &errors.StructuralError{
			Op:   "resolve.Resolve",
			Kind: errors.KindUnregisteredComponent,
			Path: docPath,
			Ref:  n.Kind,
		}
	}

	vn := &view.Node{
		ID:        id,
		Kind:      n.Kind,
		Parent:    parent,
		ScopeID:   scopeID,
		LocalSeed: localSeed,
		Doc:       n,
		Style:     style,
	}
	h := w.tree.Attach(vn)

	content, reads, writes, err := w.resolveContent(kr, n, h, scopeID, docPath)
	if err != nil {
		return nil, view.Handle{}, err
	}
	vn.Reads = pathSet(reads)
	vn.Writes = pathSet(writes)
	w.index.Register(h, reads, writes)

	var children []*render.Node
	for i, child := range n.Children {
		childPath := fmt.Sprintf("%s.children[%d]", docPath, i)
		rc, ch, err := w.node(child, h, scopeID, childPath)
		if err != nil {
			return nil, view.Handle{}, err
		}
		vn.Children = append(vn.Children, ch)
		children = append(children, rc)
	}

	return &render.Node{
		ID:       id,
		Kind:     n.Kind,
		Style:    style,
		Content:  content,
		Children: children,
	}, h, nil
}

// resolveContent runs the kind resolver inside h's capture scope. The scope
// covers only the node's own properties; children open their own.
func (w *walk) resolveContent(kr KindResolver, n *document.Node, h view.Handle, scopeID, docPath string) (render.Content, []string, []string, error) {
	if err := w.tracker.Begin(h); err != nil {
		return nil, nil, nil, err
	}
	rc := &Context{
		resolver: w.resolver,
		doc:      w.doc,
		store:    w.store,
		tracker:  &w.tracker,
		scopeID:  scopeID,
		docPath:  docPath,
		twoWay:   twoWaySet(kr),
	}
	content, err := kr.Resolve(rc, n)
	reads, writes := w.tracker.End()
	if err != nil {
		return nil, nil, nil, err
	}
	return content, reads, writes, nil
}

// NodeContent re-resolves the content of one attached node after a state
// change, refreshing its dependency registration. The node's identity,
// style and children are untouched.
func (r *Resolver) NodeContent(doc *document.Document, tree *view.Tree, index *view.Index, store *state.Store, h view.Handle) (render.Content, error) {
	vn, ok := tree.Get(h)
	if !ok {
		return nil, &errors.StructuralError{
			Op:   "resolve.NodeContent",
			Kind: errors.KindUnknown,
			Err:  fmt.Errorf("stale view handle"),
		}
	}
	kr, ok := r.registry.Lookup(vn.Kind)
	if !ok {
		return nil, &errors.StructuralError{
			Op:   "resolve.NodeContent",
			Kind: errors.KindUnregisteredComponent,
			Path: vn.ID,
			Ref:  vn.Kind,
		}
	}

	var tracker view.Tracker
	if err := tracker.Begin(h); err != nil {
		return nil, err
	}
	rc := &Context{
		resolver: r,
		doc:      doc,
		store:    store,
		tracker:  &tracker,
		scopeID:  vn.ScopeID,
		docPath:  vn.ID,
		twoWay:   twoWaySet(kr),
	}
	content, err := kr.Resolve(rc, vn.Doc)
	reads, writes := tracker.End()
	if err != nil {
		return nil, err
	}
	vn.Reads = pathSet(reads)
	vn.Writes = pathSet(writes)
	index.Register(h, reads, writes)
	return content, nil
}

func twoWaySet(kr KindResolver) map[string]bool {
	props := kr.TwoWayProps()
	if len(props) == 0 {
		return nil
	}
	set := make(map[string]bool, len(props))
	for _, p := range props {
		set[p] = true
	}
	return set
}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}
