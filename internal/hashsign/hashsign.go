// Package hashsign computes the content identity tuple every sync decision
// is built from: a file's SHA-256 hash, its rsync signature, size, and
// modification time.
package hashsign

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/rsyncdiff"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrNotAFile     = errors.New("not a regular file")
	ErrNotReadable  = errors.New("file not readable")
)

// FileMetadata is the immutable content-identity value every layer of the
// sync engine passes around. Two FileMetadata values are considered equal
// for sync-decision purposes solely by Hash — Size and LastModified are
// informational.
type FileMetadata struct {
	Path         datasite.RelativePath `json:"path"`
	Hash         string                `json:"hash"`
	Signature    []byte                `json:"signature"`
	Size         uint64                `json:"size"`
	LastModified time.Time             `json:"last_modified"`
}

// Equal reports hash equality, the only equality that matters for the
// decision engine; size/mtime are deliberately excluded.
func (m *FileMetadata) Equal(other *FileMetadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.Hash == other.Hash
}

// HashFile reads absPath in full and returns its FileMetadata, with Path set
// relative to root.
func HashFile(absPath string, root string) (*FileMetadata, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, absPath)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNotReadable, absPath, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, absPath)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotReadable, absPath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotReadable, absPath, err)
	}

	sum := sha256.Sum256(data)

	sig, err := rsyncdiff.Signature(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", absPath, err)
	}

	relPath, err := relativeTo(absPath, root)
	if err != nil {
		return nil, err
	}

	return &FileMetadata{
		Path:         datasite.NewRelativePath(relPath),
		Hash:         hex.EncodeToString(sum[:]),
		Signature:    sig,
		Size:         uint64(len(data)),
		LastModified: info.ModTime().UTC(),
	}, nil
}

// HashBytes is HashFile's pure-function core, used by the server side which
// already has the bytes in hand (e.g. from an upload) and only needs the
// metadata, not a filesystem read.
func HashBytes(data []byte, relPath string, mtime time.Time) (*FileMetadata, error) {
	sum := sha256.Sum256(data)

	sig, err := rsyncdiff.Signature(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", relPath, err)
	}

	return &FileMetadata{
		Path:         datasite.NewRelativePath(relPath),
		Hash:         hex.EncodeToString(sum[:]),
		Signature:    sig,
		Size:         uint64(len(data)),
		LastModified: mtime.UTC(),
	}, nil
}

func relativeTo(absPath string, root string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("compute relative path for %s under %s: %w", absPath, root, err)
	}
	return filepath.ToSlash(rel), nil
}
