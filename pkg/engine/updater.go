package engine

import (
	"time"

	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/view"
)

// Updater turns the affected set of one state batch into adapter patches
// and tracks delivery. It runs under the engine's mutation gate.
type Updater struct {
	tree *view.Tree
}

// Sync refreshes every affected node through refresh and returns the batch
// of patches, one per live node. Nodes still pending from an earlier batch
// are skipped: a patch is already in flight and the host re-enters the
// update cycle on acknowledgement. Refreshed nodes are marked pending until
// the host acknowledges them.
func (u *Updater) Sync(affected []view.Handle, refresh func(view.Handle) (render.Content, error)) ([]Patch, error) {
	patches := make([]Patch, 0, len(affected))
	for _, h := range affected {
		n, ok := u.tree.Get(h)
		if !ok || n.Pending {
			continue
		}
		content, err := refresh(h)
		if err != nil {
			return nil, err
		}
		n.Pending = true
		patches = append(patches, Patch{
			Handle:  h,
			NodeID:  n.ID,
			Kind:    n.Kind,
			Content: content,
		})
	}
	return patches, nil
}

// MarkUpdated records the host's acknowledgement of a delivered patch.
func (u *Updater) MarkUpdated(h view.Handle) {
	if n, ok := u.tree.Get(h); ok {
		n.Pending = false
		n.UpdatedAt = time.Now()
	}
}

// PendingCount returns the number of nodes awaiting acknowledgement.
func (u *Updater) PendingCount() int {
	count := 0
	root := u.tree.Root()
	if root.IsZero() {
		return 0
	}
	u.tree.Walk(root, func(_ view.Handle, n *view.Node) bool {
		if n.Pending {
			count++
		}
		return true
	})
	return count
}
