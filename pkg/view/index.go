package view

import (
	"sort"

	"github.com/go-loom/loom/pkg/state"
)

// Index is the reverse dependency map: state path to the set of nodes
// reading or writing it. Entries are non-owning handles; every read goes
// through the arena's liveness check, so pruning is an optimization, never a
// correctness requirement.
type Index struct {
	tree    *Tree
	readers map[string]map[Handle]struct{}
	writers map[string]map[Handle]struct{}
	entries map[Handle]entry
}

type entry struct {
	reads  []string
	writes []string
}

// NewIndex returns an empty index over tree.
func NewIndex(tree *Tree) *Index {
	return &Index{
		tree:    tree,
		readers: make(map[string]map[Handle]struct{}),
		writers: make(map[string]map[Handle]struct{}),
		entries: make(map[Handle]entry),
	}
}

// Register adds h's declared path sets. Entries are created at node attach;
// re-registering replaces the previous sets (content refresh may change a
// node's dependencies).
func (x *Index) Register(h Handle, reads, writes []string) {
	if _, ok := x.entries[h]; ok {
		x.Unregister(h)
	}
	for _, p := range reads {
		set := x.readers[p]
		if set == nil {
			set = make(map[Handle]struct{})
			x.readers[p] = set
		}
		set[h] = struct{}{}
	}
	for _, p := range writes {
		set := x.writers[p]
		if set == nil {
			set = make(map[Handle]struct{})
			x.writers[p] = set
		}
		set[h] = struct{}{}
	}
	x.entries[h] = entry{reads: reads, writes: writes}
}

// Unregister removes h's entries. It must run strictly before the node's
// arena slot is freed.
func (x *Index) Unregister(h Handle) {
	e, ok := x.entries[h]
	if !ok {
		return
	}
	for _, p := range e.reads {
		x.dropReader(p, h)
	}
	for _, p := range e.writes {
		if set := x.writers[p]; set != nil {
			delete(set, h)
			if len(set) == 0 {
				delete(x.writers, p)
			}
		}
	}
	delete(x.entries, h)
}

func (x *Index) dropReader(p string, h Handle) {
	if set := x.readers[p]; set != nil {
		delete(set, h)
		if len(set) == 0 {
			delete(x.readers, p)
		}
	}
}

// AffectedBy computes the nodes affected by a batch of dirty paths: for
// each dirty path, the union of exact-match readers, readers of any strict
// ancestor path, and readers of any strict descendant path. All three arms
// are required: a reader of "user" is affected by a write to "user.name",
// and a reader of "user.name" is affected by a write to "user". Results are
// liveness-checked; stale entries are skipped and lazily dropped.
func (x *Index) AffectedBy(dirtyPaths []string) []Handle {
	affected := make(map[Handle]struct{})

	collect := func(path string, set map[Handle]struct{}) {
		for h := range set {
			if !x.tree.Alive(h) {
				x.Unregister(h)
				continue
			}
			affected[h] = struct{}{}
		}
	}

	for _, dirty := range dirtyPaths {
		collect(dirty, x.readers[dirty])
		for _, anc := range state.Ancestors(dirty) {
			collect(anc, x.readers[anc])
		}
		for path, set := range x.readers {
			if state.IsStrictAncestor(dirty, path) {
				collect(path, set)
			}
		}
	}

	return sortHandles(affected)
}

// WritersOf returns the live nodes holding a two-way write on path.
func (x *Index) WritersOf(path string) []Handle {
	live := make(map[Handle]struct{})
	for h := range x.writers[path] {
		if x.tree.Alive(h) {
			live[h] = struct{}{}
		}
	}
	return sortHandles(live)
}

// ReaderCount returns the number of paths with at least one reader.
func (x *Index) ReaderCount() int { return len(x.readers) }

// PruneStale sweeps entries whose nodes are no longer alive, returning the
// number of nodes swept. Liveness is also checked at read time, so calling
// this is never required for correctness.
func (x *Index) PruneStale() int {
	var stale []Handle
	for h := range x.entries {
		if !x.tree.Alive(h) {
			stale = append(stale, h)
		}
	}
	for _, h := range stale {
		x.Unregister(h)
	}
	return len(stale)
}

func sortHandles(set map[Handle]struct{}) []Handle {
	out := make([]Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].index != out[j].index {
			return out[i].index < out[j].index
		}
		return out[i].gen < out[j].gen
	})
	return out
}
