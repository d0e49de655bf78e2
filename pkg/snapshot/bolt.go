package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/go-loom/loom/pkg/state"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

// BoltStore persists snapshots in a Bolt file. Versions come from the
// bucket sequence, so they stay monotonic across reopen.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the Bolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSnapshots); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: init %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// Save implements Store.
func (s *BoltStore) Save(ctx context.Context, v state.Value) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	frame, err := Encode(v)
	if err != nil {
		return 0, err
	}
	takenAt := time.Now().UTC()

	var version uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		version, err = b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(versionKey(version), frame); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(versionKey(version), []byte(takenAt.Format(time.RFC3339Nano)))
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot: save: %w", err)
	}
	return version, nil
}

// Load implements Store, returning the highest version.
func (s *BoltStore) Load(ctx context.Context) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}
	var (
		snap  Snapshot
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		key, frame := tx.Bucket(bucketSnapshots).Cursor().Last()
		if key == nil {
			return nil
		}
		v, err := Decode(frame)
		if err != nil {
			return err
		}
		snap.Version = binary.BigEndian.Uint64(key)
		snap.State = v
		if raw := tx.Bucket(bucketMeta).Get(key); raw != nil {
			snap.TakenAt, _ = time.Parse(time.RFC3339Nano, string(raw))
		}
		found = true
		return nil
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot: load: %w", err)
	}
	return snap, found, nil
}

// Close implements Store.
func (s *BoltStore) Close() error { return s.db.Close() }

func versionKey(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}
