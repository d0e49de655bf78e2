// Package snapshot persists state captures to embedded stores. A snapshot is
// the full state tree minus local scopes; the codec compresses the JSON form
// and seals it with a content checksum so a torn write is detected at load,
// never replayed into a live store.
package snapshot

import (
	"context"
	"time"

	"github.com/go-loom/loom/pkg/state"
)

// Snapshot is one persisted capture.
type Snapshot struct {
	// Version is the store-assigned monotonic version.
	Version uint64
	// TakenAt is the capture time recorded at save.
	TakenAt time.Time
	// State is the decoded state tree.
	State state.Value
}

// Store persists snapshots. Implementations are safe for concurrent use.
type Store interface {
	// Save persists s and returns its assigned version.
	Save(ctx context.Context, s state.Value) (uint64, error)
	// Load returns the latest snapshot. The second return is false when the
	// store is empty.
	Load(ctx context.Context) (Snapshot, bool, error)
	Close() error
}
