package syncapi

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
)

// ErrNotFound is returned by Index lookups that find no row.
var ErrNotFound = errors.New("syncapi: path not found")

// ErrAlreadyExists is returned by Insert when a row for path already exists.
var ErrAlreadyExists = errors.New("syncapi: path already exists")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	hash TEXT NOT NULL,
	signature BLOB NOT NULL,
	size INTEGER NOT NULL,
	last_modified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner);
`

// Index is the server's relational metadata index (file.db): one row per
// currently-live path, keyed by its exact relative path. Lookups are
// exact-match, never SQL LIKE.
type Index struct {
	db *sqlx.DB
}

func NewIndex(db *sqlx.DB) (*Index, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

type fileRow struct {
	Path         string `db:"path"`
	Owner        string `db:"owner"`
	Hash         string `db:"hash"`
	Signature    []byte `db:"signature"`
	Size         uint64 `db:"size"`
	LastModified int64  `db:"last_modified"`
}

func toMetadata(r fileRow) *hashsign.FileMetadata {
	return &hashsign.FileMetadata{
		Path:         datasite.RelativePath(r.Path),
		Hash:         r.Hash,
		Signature:    r.Signature,
		Size:         r.Size,
		LastModified: time.Unix(0, r.LastModified).UTC(),
	}
}

// Get returns the metadata row for path, or ErrNotFound.
func (idx *Index) Get(path datasite.RelativePath) (*hashsign.FileMetadata, error) {
	var row fileRow
	err := idx.db.Get(&row, `SELECT path, owner, hash, signature, size, last_modified FROM files WHERE path = ?`, path.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toMetadata(row), nil
}

// Insert adds a brand-new row, failing with ErrAlreadyExists if path is
// already present — the index's own uniqueness constraint makes this
// race-safe against concurrent creates of the same path.
func (idx *Index) Insert(meta *hashsign.FileMetadata) error {
	_, err := idx.db.Exec(
		`INSERT INTO files (path, owner, hash, signature, size, last_modified) VALUES (?, ?, ?, ?, ?, ?)`,
		meta.Path.String(), meta.Path.Owner(), meta.Hash, meta.Signature, meta.Size, meta.LastModified.UnixNano(),
	)
	if isUniqueConstraintErr(err) {
		return ErrAlreadyExists
	}
	return err
}

// Upsert replaces the row for meta.Path, creating it if absent. Used by
// apply_diff, which requires the path to already exist — callers check
// Get first to enforce that.
func (idx *Index) Upsert(meta *hashsign.FileMetadata) error {
	_, err := idx.db.Exec(
		`INSERT INTO files (path, owner, hash, signature, size, last_modified) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, signature=excluded.signature, size=excluded.size, last_modified=excluded.last_modified`,
		meta.Path.String(), meta.Path.Owner(), meta.Hash, meta.Signature, meta.Size, meta.LastModified.UnixNano(),
	)
	return err
}

// Delete removes the row for path. Deleting a path with no row is a no-op.
func (idx *Index) Delete(path datasite.RelativePath) error {
	_, err := idx.db.Exec(`DELETE FROM files WHERE path = ?`, path.String())
	return err
}

// ListByOwner returns every file metadata row owned by email.
func (idx *Index) ListByOwner(email string) ([]*hashsign.FileMetadata, error) {
	var rows []fileRow
	if err := idx.db.Select(&rows, `SELECT path, owner, hash, signature, size, last_modified FROM files WHERE owner = ?`, email); err != nil {
		return nil, err
	}
	out := make([]*hashsign.FileMetadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, toMetadata(r))
	}
	return out, nil
}

// Owners returns every distinct datasite owner with at least one file in
// the index.
func (idx *Index) Owners() ([]string, error) {
	var owners []string
	if err := idx.db.Select(&owners, `SELECT DISTINCT owner FROM files`); err != nil {
		return nil, err
	}
	return owners, nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}
