package view

import (
	"errors"
	"sort"

	"github.com/go-loom/loom/pkg/state"
)

// ErrTrackerActive is returned by Begin when a capture scope is already
// open. Capture scopes do not nest: resolution opens exactly one per node.
var ErrTrackerActive = errors.New("view: capture scope already active")

// Tracker captures the state paths read and written while one node
// resolves. Everything recorded between Begin and End is attributed to the
// active node. Local-state accesses arrive already namespaced under the
// reserved prefix, so they index separately from same-named global paths.
type Tracker struct {
	active bool
	handle Handle
	reads  map[string]struct{}
	writes map[string]struct{}
}

// Begin opens the capture scope for h.
func (t *Tracker) Begin(h Handle) error {
	if t.active {
		return ErrTrackerActive
	}
	t.active = true
	t.handle = h
	t.reads = make(map[string]struct{})
	t.writes = make(map[string]struct{})
	return nil
}

// Active reports whether a capture scope is open.
func (t *Tracker) Active() bool { return t.active }

// Node returns the handle the open scope is attributed to.
func (t *Tracker) Node() Handle { return t.handle }

// RecordRead attributes a state-path read to the active node. Recording
// outside a scope is a silent no-op so shared read helpers need no guards.
func (t *Tracker) RecordRead(path string) {
	if !t.active {
		return
	}
	t.reads[path] = struct{}{}
}

// RecordWrite attributes a state-path write (two-way binding) to the active
// node.
func (t *Tracker) RecordWrite(path string) {
	if !t.active {
		return
	}
	t.writes[path] = struct{}{}
}

// End closes the scope and returns the captured path sets, sorted for
// deterministic registration.
func (t *Tracker) End() (reads, writes []string) {
	if !t.active {
		return nil, nil
	}
	reads = pathSlice(t.reads)
	writes = pathSlice(t.writes)
	sort.Strings(reads)
	sort.Strings(writes)
	t.active = false
	t.handle = Handle{}
	t.reads = nil
	t.writes = nil
	return reads, writes
}

// TrackingReader wraps a Reader so every lookup during a node's resolution
// lands in the tracker's read set.
type TrackingReader struct {
	Reader  state.Reader
	Tracker *Tracker
}

// Lookup implements state.Reader.
func (r TrackingReader) Lookup(path string) (state.Value, bool) {
	r.Tracker.RecordRead(path)
	return r.Reader.Lookup(path)
}
