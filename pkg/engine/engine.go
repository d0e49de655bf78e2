// Package engine ties the pieces together: it owns the state store, runs
// document resolution, executes actions and pushes batched updates to the
// host adapter. All mutation flows through a single gate, so concurrent
// writers serialize and every batch observes a consistent tree.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-loom/loom/pkg/components"
	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/expr"
	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/resolve"
	"github.com/go-loom/loom/pkg/snapshot"
	"github.com/go-loom/loom/pkg/state"
	"github.com/go-loom/loom/pkg/view"
)

// ActionHandler executes a host-defined action kind. Params arrive fully
// evaluated. Handlers run under the mutation gate and may write state
// through store; the resulting updates flush with the dispatch.
type ActionHandler func(ctx context.Context, store *state.Store, action *document.Action, params map[string]state.Value) error

// Engine drives one document. Safe for concurrent use.
type Engine struct {
	// mu is the mutation gate. Every state write, dispatch and load runs
	// under it; batches observe either all of a mutation or none of it.
	mu sync.Mutex

	logger    zerolog.Logger
	store     *state.Store
	eval      *expr.Evaluator
	registry  *resolve.Registry
	resolver  *resolve.Resolver
	updater   *Updater
	adapter   Adapter
	metrics   *metrics
	snapshots snapshot.Store
	handlers  map[string]ActionHandler

	// placeholder overrides the evaluator's degraded-span string; the
	// evaluator is built once in New, after all options have run.
	placeholder *string

	doc *document.Document
	res *resolve.Result

	debug *debugServer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAdapter installs the host renderer.
func WithAdapter(a Adapter) Option {
	return func(e *Engine) { e.adapter = a }
}

// WithPlaceholder sets the string failed interpolation spans degrade to.
func WithPlaceholder(s string) Option {
	return func(e *Engine) { e.placeholder = &s }
}

// WithSnapshotStore enables state persistence.
func WithSnapshotStore(s snapshot.Store) Option {
	return func(e *Engine) { e.snapshots = s }
}

// WithActionHandler registers a handler for a host-defined action kind.
func WithActionHandler(kind string, fn ActionHandler) Option {
	return func(e *Engine) { e.handlers[kind] = fn }
}

// WithComponent registers an extra component kind alongside the built-ins.
func WithComponent(kind string, kr resolve.KindResolver) Option {
	return func(e *Engine) { e.registry.Register(kind, kr) }
}

// New returns an engine with the built-in components registered and an
// empty store.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   zerolog.Nop(),
		store:    state.New(),
		registry: resolve.NewRegistry(),
		handlers: make(map[string]ActionHandler),
		metrics:  newMetrics(),
	}
	components.RegisterBuiltins(e.registry)
	for _, opt := range opts {
		opt(e)
	}
	evalOpts := []expr.Option{expr.WithLogger(e.logger)}
	if e.placeholder != nil {
		evalOpts = append(evalOpts, expr.WithPlaceholder(*e.placeholder))
	}
	e.eval = expr.New(evalOpts...)
	e.store.SetEvaluator(e.eval)
	e.resolver = resolve.New(e.registry, e.eval, resolve.WithLogger(e.logger))
	return e
}

// LoadDocument validates and resolves doc, replacing any previously loaded
// document. Live global state survives the swap; state initializers only
// seed paths still absent. On success the adapter is remounted with the
// fresh tree.
func (e *Engine) LoadDocument(doc *document.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	res, err := e.resolver.Resolve(doc, e.store)
	if err != nil {
		e.logger.Error().Err(err).Msg("document resolution failed")
		return err
	}
	e.metrics.recordResolve(time.Since(start))

	// Retire the old tree: index entries drop strictly before their arena
	// slots free.
	if e.res != nil {
		for _, h := range e.res.Tree.Handles(e.res.Root) {
			e.res.Index.Unregister(h)
		}
		for _, h := range e.res.Tree.Handles(e.res.Root) {
			e.res.Tree.Detach(h)
		}
	}

	e.doc = doc
	e.res = res
	e.updater = &Updater{tree: res.Tree}
	// Resolution reads state through the capture scopes; those reads are
	// not changes, and seeding is silent, so nothing should be dirty here.
	e.store.ConsumeDirty()

	e.logger.Info().
		Int("nodes", render.Count(res.Render)).
		Int("indexed_paths", res.Index.ReaderCount()).
		Msg("document loaded")

	if e.adapter != nil {
		e.adapter.Mount(res.Render)
	}
	return nil
}

// Render returns the render tree of the last load, nil before any.
func (e *Engine) Render() *render.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.res == nil {
		return nil
	}
	return e.res.Render
}

// Store returns the engine's state store. Direct writes bypass the update
// cycle; use Update for mutations that should flush.
func (e *Engine) Store() *state.Store { return e.store }

// Update runs fn under the mutation gate and flushes the resulting batch.
func (e *Engine) Update(fn func(*state.Store)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.store)
	return e.flushLocked()
}

// SetState writes one path and flushes.
func (e *Engine) SetState(path string, value state.Value) error {
	return e.Update(func(s *state.Store) { s.Set(path, value) })
}

// Go runs fn under the gate on its own goroutine, logging a failed flush.
// Concurrent callers serialize; each flush observes whole mutations.
func (e *Engine) Go(fn func(*state.Store)) {
	go func() {
		if err := e.Update(fn); err != nil {
			e.logger.Error().Err(err).Msg("async update failed")
		}
	}()
}

// WriteBack applies a two-way control's new value: the bound path is
// written and the batch flushes, refreshing the writer itself along with
// every other reader.
func (e *Engine) WriteBack(bindPath string, value state.Value) error {
	if bindPath == "" {
		return nil
	}
	return e.SetState(bindPath, value)
}

// Dispatch executes an action reference from a control.
func (e *Engine) Dispatch(ctx context.Context, ref document.ActionRef) error {
	if ref.IsZero() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	action := ref.Inline
	if ref.ID != "" {
		if e.doc == nil {
			return &errors.ActionError{Op: "engine.Dispatch", ActionID: ref.ID, Err: fmt.Errorf("no document loaded")}
		}
		a, ok := e.doc.Actions[ref.ID]
		if !ok {
			return &errors.ActionError{Op: "engine.Dispatch", ActionID: ref.ID, Err: fmt.Errorf("unknown action")}
		}
		action = &a
	}

	if err := e.executeLocked(ctx, ref.ID, action); err != nil {
		e.metrics.recordActionError(action.Kind)
		// The batch still flushes: steps already executed stay applied.
		if ferr := e.flushLocked(); ferr != nil {
			e.logger.Error().Err(ferr).Msg("flush after failed action")
		}
		return err
	}
	return e.flushLocked()
}

// PendingUpdates returns the number of nodes delivered but not yet
// acknowledged.
func (e *Engine) PendingUpdates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.updater == nil {
		return 0
	}
	return e.updater.PendingCount()
}

// Ack records the host's acknowledgement of delivered patches.
func (e *Engine) Ack(handles ...view.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.updater == nil {
		return
	}
	for _, h := range handles {
		e.updater.MarkUpdated(h)
	}
}

func (e *Engine) executeLocked(ctx context.Context, id string, action *document.Action) error {
	switch action.Kind {
	case document.ActionSet:
		value, err := e.evalProp(action.Value)
		if err != nil {
			return &errors.ActionError{Op: "engine.execute", ActionID: id, Kind: action.Kind, Err: err}
		}
		e.store.Set(action.Path, value)

	case document.ActionToggle:
		if action.Value.Kind == document.PropLiteral && action.Value.Literal.IsNull() && action.Value.Src == "" {
			current, _ := e.store.Get(action.Path)
			e.store.Set(action.Path, state.Bool(!current.Truthy()))
			break
		}
		item, err := e.evalProp(action.Value)
		if err != nil {
			return &errors.ActionError{Op: "engine.execute", ActionID: id, Kind: action.Kind, Err: err}
		}
		e.store.Toggle(action.Path, item)

	case document.ActionAppend:
		item, err := e.evalProp(action.Value)
		if err != nil {
			return &errors.ActionError{Op: "engine.execute", ActionID: id, Kind: action.Kind, Err: err}
		}
		e.store.Append(action.Path, item)

	case document.ActionRemove:
		if action.Index != nil {
			e.store.RemoveAt(action.Path, *action.Index)
			break
		}
		item, err := e.evalProp(action.Value)
		if err != nil {
			return &errors.ActionError{Op: "engine.execute", ActionID: id, Kind: action.Kind, Err: err}
		}
		e.store.RemoveValue(action.Path, item)

	case document.ActionBatch:
		for i := range action.Steps {
			if err := e.executeLocked(ctx, id, &action.Steps[i]); err != nil {
				return fmt.Errorf("batch step %d: %w", i, err)
			}
		}

	default:
		handler, ok := e.handlers[action.Kind]
		if !ok {
			return &errors.ActionError{Op: "engine.execute", ActionID: id, Kind: action.Kind, Err: fmt.Errorf("no handler registered")}
		}
		params := make(map[string]state.Value, len(action.Params))
		for name, pv := range action.Params {
			value, err := e.evalProp(pv)
			if err != nil {
				return &errors.ActionError{Op: "engine.execute", ActionID: id, Kind: action.Kind, Err: fmt.Errorf("param %s: %w", name, err)}
			}
			params[name] = value
		}
		if err := handler(ctx, e.store, action, params); err != nil {
			return &errors.ActionError{Op: "engine.execute", ActionID: id, Kind: action.Kind, Err: err}
		}
	}
	return nil
}

// evalProp evaluates an action operand at execution time.
func (e *Engine) evalProp(pv document.PropValue) (state.Value, error) {
	switch pv.Kind {
	case document.PropLiteral:
		return pv.Literal, nil
	case document.PropExpr:
		return e.eval.Evaluate(pv.Src, e.store)
	case document.PropBind:
		v, _ := e.store.Lookup(pv.Src)
		return v, nil
	case document.PropTemplate:
		return state.String(e.eval.Interpolate(pv.Src, e.store)), nil
	case document.PropSource:
		if e.doc == nil {
			return state.Null(), fmt.Errorf("source %q: no document loaded", pv.Src)
		}
		source, ok := e.doc.Sources[pv.Src]
		if !ok {
			return state.Null(), fmt.Errorf("unknown source %q", pv.Src)
		}
		if source.Kind == document.SourceStatic {
			return source.Value, nil
		}
		v, _ := e.store.Lookup(source.Path)
		return v, nil
	}
	return state.Null(), fmt.Errorf("unhandled prop kind %s", pv.Kind)
}

// flushLocked drains the dirty set, refreshes affected nodes and delivers
// the batch. Called with the gate held.
func (e *Engine) flushLocked() error {
	dirty := e.store.ConsumeDirty()
	if len(dirty) == 0 || e.res == nil {
		return nil
	}

	affected := e.res.Index.AffectedBy(dirty)
	patches, err := e.updater.Sync(affected, func(h view.Handle) (render.Content, error) {
		return e.resolver.NodeContent(e.doc, e.res.Tree, e.res.Index, e.store, h)
	})
	if err != nil {
		return err
	}

	e.metrics.recordBatch(len(dirty), len(patches))
	e.logger.Debug().
		Strs("dirty", dirty).
		Int("affected", len(patches)).
		Msg("update batch")

	if e.adapter != nil && len(patches) > 0 {
		e.adapter.Apply(patches)
	}
	if e.debug != nil {
		e.debug.broadcast(dirty, patches)
	}
	return nil
}

// SaveSnapshot persists the global state tree. Local scopes are transient
// per resolution and excluded.
func (e *Engine) SaveSnapshot(ctx context.Context) (uint64, error) {
	if e.snapshots == nil {
		return 0, fmt.Errorf("engine: no snapshot store configured")
	}

	e.mu.Lock()
	full := e.store.Snapshot()
	e.mu.Unlock()

	global := make(map[string]state.Value)
	for _, key := range full.Keys() {
		if strings.HasPrefix(key, state.LocalPrefix) {
			continue
		}
		v, _ := full.Field(key)
		global[key] = v
	}
	return e.snapshots.Save(ctx, state.MapOf(global))
}

// RestoreSnapshot loads the latest snapshot into the store and flushes the
// resulting batch. Restoring with no snapshot saved is a no-op. Local
// scopes belong to the mounted tree, not the snapshot, and are carried
// across the restore unchanged.
func (e *Engine) RestoreSnapshot(ctx context.Context) error {
	if e.snapshots == nil {
		return fmt.Errorf("engine: no snapshot store configured")
	}
	snap, found, err := e.snapshots.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	restored := snap.State.Fields()
	if restored == nil {
		restored = make(map[string]state.Value)
	}
	live := e.store.Snapshot()
	for _, key := range live.Keys() {
		if state.IsLocal(key) {
			v, _ := live.Field(key)
			restored[key] = v
		}
	}
	e.store.Restore(state.MapOf(restored))
	e.logger.Info().Uint64("version", snap.Version).Time("taken_at", snap.TakenAt).Msg("snapshot restored")
	return e.flushLocked()
}
