package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-loom/loom/pkg/state"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	version  INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at TEXT NOT NULL,
	frame    BLOB NOT NULL
);
`

// SQLiteStore persists snapshots in a SQLite file and keeps the full
// version history queryable.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	// Serialize writers; snapshot traffic is low and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: init %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, v state.Value) (uint64, error) {
	frame, err := Encode(v)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (taken_at, frame) VALUES (?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), frame)
	if err != nil {
		return 0, fmt.Errorf("snapshot: save: %w", err)
	}
	version, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot: save: %w", err)
	}
	return uint64(version), nil
}

// Load implements Store, returning the highest version.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version, taken_at, frame FROM snapshots ORDER BY version DESC LIMIT 1`)

	var (
		version uint64
		takenAt string
		frame   []byte
	)
	if err := row.Scan(&version, &takenAt, &frame); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("snapshot: load: %w", err)
	}
	v, err := Decode(frame)
	if err != nil {
		return Snapshot{}, false, err
	}
	snap := Snapshot{Version: version, State: v}
	snap.TakenAt, _ = time.Parse(time.RFC3339Nano, takenAt)
	return snap, true, nil
}

// History returns up to limit snapshot versions, newest first, without
// decoding their payloads.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, taken_at FROM snapshots ORDER BY version DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap    Snapshot
			takenAt string
		)
		if err := rows.Scan(&snap.Version, &takenAt); err != nil {
			return nil, fmt.Errorf("snapshot: history: %w", err)
		}
		snap.TakenAt, _ = time.Parse(time.RFC3339Nano, takenAt)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots, returning the number
// removed.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE version NOT IN
		   (SELECT version FROM snapshots ORDER BY version DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("snapshot: prune: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }
