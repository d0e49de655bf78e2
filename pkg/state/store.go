package state

import (
	"fmt"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
)

// Reader is the state-reading capability handed to the expression evaluator.
// The evaluator never sees the Store type itself.
type Reader interface {
	Lookup(path string) (Value, bool)
}

// Evaluator evaluates expression source and templates against a Reader. The
// Store delegates Evaluate/Interpolate to it; pkg/expr provides the
// implementation.
type Evaluator interface {
	Evaluate(src string, r Reader) (Value, error)
	Interpolate(src string, r Reader) string
}

// ChangeFunc observes a single state write. It receives the written path and
// the old and new values at that path.
type ChangeFunc func(path string, old, new Value)

// Store is the canonical mutable state for a session. It is not safe for
// concurrent use: all mutation is confined to the engine's apply gate, which
// serializes writers. Resolved render data read by adapters is immutable and
// does not go through the Store.
type Store struct {
	root       map[string]Value
	dirty      map[string]struct{}
	dirtyOrder []string

	callbacks []registration
	watchers  []watchRegistration
	nextID    int

	eval Evaluator
}

type registration struct {
	id int
	fn ChangeFunc
}

type watchRegistration struct {
	id      int
	pattern string
	fn      ChangeFunc
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		root:  make(map[string]Value),
		dirty: make(map[string]struct{}),
	}
}

// SetEvaluator installs the expression evaluator used by Evaluate and
// Interpolate.
func (s *Store) SetEvaluator(ev Evaluator) {
	s.eval = ev
}

// Get returns the value at path. Absence is not an error: a read of an
// absent path returns (Null, false).
func (s *Store) Get(path string) (Value, bool) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return Value{}, false
	}
	cur, ok := s.root[segs[0]]
	if !ok {
		return Value{}, false
	}
	for _, seg := range segs[1:] {
		switch cur.Kind() {
		case KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return Value{}, false
			}
			cur, ok = cur.At(idx)
		case KindMap:
			cur, ok = cur.Field(seg)
		default:
			return Value{}, false
		}
		if !ok {
			return Value{}, false
		}
	}
	return cur, true
}

// Lookup implements Reader.
func (s *Store) Lookup(path string) (Value, bool) {
	return s.Get(path)
}

// Set writes value at path, materializing intermediate containers as needed.
// An intermediate value that is not a container is overwritten with a fresh
// container; that is defined behavior, not an error. The path and every
// strict ancestor are marked dirty, then every registered callback and every
// matching watcher runs synchronously, in registration order, with
// (path, old, new).
func (s *Store) Set(path string, value Value) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return
	}
	old, _ := s.Get(path)

	if len(segs) == 1 {
		s.root[segs[0]] = value
	} else {
		s.root[segs[0]] = setIn(s.root[segs[0]], segs[1:], value)
	}

	s.markDirty(path)
	s.notify(path, old, value)
}

// Seed writes value at path without dirtying paths or invoking callbacks.
// It exists for initialization: document state initializers and local-state
// scope seeds, which precede any dependent.
func (s *Store) Seed(path string, value Value) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return
	}
	if len(segs) == 1 {
		s.root[segs[0]] = value
	} else {
		s.root[segs[0]] = setIn(s.root[segs[0]], segs[1:], value)
	}
}

// setIn returns cur with value written at the remaining segments, rebuilding
// the container spine. Values are immutable, so the rebuilt spine shares
// untouched children with the old one.
func setIn(cur Value, segs []string, value Value) Value {
	if len(segs) == 0 {
		return value
	}
	seg := segs[0]

	if cur.Kind() == KindList {
		if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 {
			items := cur.Items()
			for len(items) <= idx {
				items = append(items, Null())
			}
			items[idx] = setIn(items[idx], segs[1:], value)
			return ListOf(items...)
		}
	}

	// Map write. A non-map intermediate (including a list addressed by a
	// non-numeric segment) is replaced with a fresh map.
	fields := cur.Fields()
	if fields == nil {
		fields = make(map[string]Value)
	}
	fields[seg] = setIn(fields[seg], segs[1:], value)
	return MapOf(fields)
}

// Append appends item to the list at path, treating an absent or non-list
// value as an empty list.
func (s *Store) Append(path string, item Value) {
	cur, _ := s.Get(path)
	items := cur.Items()
	items = append(items, item)
	s.Set(path, ListOf(items...))
}

// RemoveValue removes the first element of the list at path that equals
// item. A list without a matching element is left unchanged (and not
// dirtied).
func (s *Store) RemoveValue(path string, item Value) {
	cur, ok := s.Get(path)
	if !ok || cur.Kind() != KindList {
		return
	}
	items := cur.Items()
	for i, existing := range items {
		if existing.Equal(item) {
			items = append(items[:i], items[i+1:]...)
			s.Set(path, ListOf(items...))
			return
		}
	}
}

// RemoveAt removes the element at index i from the list at path. An
// out-of-range index is a no-op.
func (s *Store) RemoveAt(path string, i int) {
	cur, ok := s.Get(path)
	if !ok || cur.Kind() != KindList {
		return
	}
	items := cur.Items()
	if i < 0 || i >= len(items) {
		return
	}
	items = append(items[:i], items[i+1:]...)
	s.Set(path, ListOf(items...))
}

// Toggle toggles membership of item in the list at path: present elements
// are removed (first occurrence), absent ones appended.
func (s *Store) Toggle(path string, item Value) {
	cur, _ := s.Get(path)
	if cur.Kind() == KindList {
		for _, existing := range cur.Items() {
			if existing.Equal(item) {
				s.RemoveValue(path, item)
				return
			}
		}
	}
	s.Append(path, item)
}

func (s *Store) markDirty(path string) {
	for _, anc := range Ancestors(path) {
		s.insertDirty(anc)
	}
	s.insertDirty(path)
}

func (s *Store) insertDirty(path string) {
	if _, ok := s.dirty[path]; ok {
		return
	}
	s.dirty[path] = struct{}{}
	s.dirtyOrder = append(s.dirtyOrder, path)
}

func (s *Store) notify(path string, old, value Value) {
	// Iterate over copies so a callback may deregister itself.
	callbacks := make([]registration, len(s.callbacks))
	copy(callbacks, s.callbacks)
	for _, reg := range callbacks {
		reg.fn(path, old, value)
	}

	watchers := make([]watchRegistration, len(s.watchers))
	copy(watchers, s.watchers)
	if len(watchers) == 0 {
		return
	}
	slashed := slashPath(path)
	for _, reg := range watchers {
		if doublestar.MatchUnvalidated(reg.pattern, slashed) {
			reg.fn(path, old, value)
		}
	}
}

// ConsumeDirty drains the dirty set, returning the dirty paths in
// first-dirtied order.
func (s *Store) ConsumeDirty() []string {
	if len(s.dirtyOrder) == 0 {
		return nil
	}
	out := s.dirtyOrder
	s.dirtyOrder = nil
	s.dirty = make(map[string]struct{})
	return out
}

// Dirty returns a copy of the dirty paths without draining them.
func (s *Store) Dirty() []string {
	out := make([]string, len(s.dirtyOrder))
	copy(out, s.dirtyOrder)
	return out
}

// IsDirty reports whether path is dirty, either exactly or through any dirty
// strict descendant.
func (s *Store) IsDirty(path string) bool {
	if _, ok := s.dirty[path]; ok {
		return true
	}
	for dirty := range s.dirty {
		if IsStrictAncestor(path, dirty) {
			return true
		}
	}
	return false
}

// OnChange registers a callback invoked synchronously on every Set, in
// registration order. The returned function removes the registration.
func (s *Store) OnChange(fn ChangeFunc) func() {
	s.nextID++
	id := s.nextID
	s.callbacks = append(s.callbacks, registration{id: id, fn: fn})
	return func() {
		for i, reg := range s.callbacks {
			if reg.id == id {
				s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Watch registers a callback scoped to paths matching a glob pattern, where
// `*` matches one path segment and `**` any run of segments ("user.*",
// "items.**"). The returned function removes the registration.
func (s *Store) Watch(pattern string, fn ChangeFunc) func() {
	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, watchRegistration{
		id:      id,
		pattern: slashPath(pattern),
		fn:      fn,
	})
	return func() {
		for i, reg := range s.watchers {
			if reg.id == id {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the full state as an opaque map Value. The snapshot is
// immutable and detached from subsequent writes.
func (s *Store) Snapshot() Value {
	return MapOf(s.root)
}

// Restore replaces the full state with a previously taken snapshot. Every
// top-level key of the old and new states is marked dirty so dependents
// refresh; change callbacks do not run.
func (s *Store) Restore(snapshot Value) {
	oldKeys := make([]string, 0, len(s.root))
	for k := range s.root {
		oldKeys = append(oldKeys, k)
	}

	fields := snapshot.Fields()
	if fields == nil {
		fields = make(map[string]Value)
	}
	s.root = fields

	for _, k := range oldKeys {
		s.markDirty(k)
	}
	for k := range fields {
		s.markDirty(k)
	}
}

// Evaluate evaluates expression source against the current state.
func (s *Store) Evaluate(src string) (Value, error) {
	if s.eval == nil {
		return Value{}, fmt.Errorf("state: no evaluator installed")
	}
	return s.eval.Evaluate(src, s)
}

// Interpolate replaces every ${...} span in template against the current
// state. Interpolation is total; failing spans degrade to the evaluator's
// placeholder.
func (s *Store) Interpolate(template string) string {
	if s.eval == nil {
		return template
	}
	return s.eval.Interpolate(template, s)
}
