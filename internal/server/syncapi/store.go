package syncapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opensyncbox/syncbox/internal/datasite"
)

// ErrObjectNotFound is returned by a SnapshotStore.Read when path has no
// stored content.
var ErrObjectNotFound = errors.New("syncapi: object not found")

// SnapshotStore is the authoritative byte store behind the metadata
// index, laid out as <data>/snapshot/<email>/.... Every mutating method
// replaces content atomically.
type SnapshotStore interface {
	Read(ctx context.Context, path datasite.RelativePath) ([]byte, error)
	Write(ctx context.Context, path datasite.RelativePath, data []byte) error
	Delete(ctx context.Context, path datasite.RelativePath) error
}

// fsStore is the default SnapshotStore backend: a plain directory tree
// mirroring the datasite layout, written via temp-file + rename exactly
// like the client's own local replacements (internal/syncconsumer/execute.go).
type fsStore struct {
	root string
}

// NewFSStore builds a disk-backed SnapshotStore rooted at root.
func NewFSStore(root string) (SnapshotStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot root: %w", err)
	}
	return &fsStore{root: root}, nil
}

func (s *fsStore) absPath(path datasite.RelativePath) string {
	return filepath.Join(s.root, filepath.FromSlash(path.String()))
}

func (s *fsStore) Read(_ context.Context, path datasite.RelativePath) ([]byte, error) {
	data, err := os.ReadFile(s.absPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *fsStore) Write(_ context.Context, path datasite.RelativePath, data []byte) error {
	abs := s.absPath(path)
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (s *fsStore) Delete(_ context.Context, path datasite.RelativePath) error {
	if err := os.Remove(s.absPath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
