package syncmanager

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/permission"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
)

// changeItem is one path the tick decided needs a Consumer pass, carrying
// the remote metadata snapshot observed for it this tick (nil if the path
// has no remote copy).
type changeItem struct {
	path datasite.RelativePath
	meta *hashsign.FileMetadata
}

// outOfSyncFiles computes the two priority buckets manager.go enqueues for
// one datasite, folded back from datasite_state.py's get_out_of_sync_files
// referenced in manager.py: permission-file changes first, then every
// other out-of-sync path. A candidate is "out of sync"
// exactly when Decide would produce at least one non-NOOP side — this does
// the same local/previous/remote comparison the Consumer repeats per item,
// so nothing is enqueued that the Consumer would immediately skip as NOOP.
func (m *Manager) outOfSyncFiles(email string, remoteFiles []*hashsign.FileMetadata) (permChanges, fileChanges []changeItem, err error) {
	remoteByPath := make(map[datasite.RelativePath]*hashsign.FileMetadata, len(remoteFiles))
	for _, f := range remoteFiles {
		remoteByPath[f.Path] = f
	}

	ignore := loadIgnoreList(m.ws.DatasiteAbsPath(email))

	candidates := mapset.NewThreadUnsafeSet[datasite.RelativePath]()
	for path := range remoteByPath {
		candidates.Add(path)
	}
	for _, path := range m.state.AllPaths() {
		if datasite.GetOwner(path.String()) == email {
			candidates.Add(path)
		}
	}

	local, err := walkDatasiteFiles(m.ws.DatasiteAbsPath(email), email, ignore)
	if err != nil {
		return nil, nil, err
	}
	for _, path := range local {
		candidates.Add(path)
	}

	for path := range candidates.Iter() {
		if ignore.shouldIgnore(relativeWithinDatasite(path, email)) {
			continue
		}

		current, herr := m.currentLocalMetadata(path)
		if herr != nil {
			slog.Error("syncmanager: hash local file", "path", path, "error", herr)
			continue
		}
		previous := m.previousMetadata(path)
		remote := remoteByPath[path]

		pair := syncdecision.Decide(current, previous, remote)
		if pair.Local.Operation == syncdecision.OpNoop && pair.Remote.Operation == syncdecision.OpNoop {
			continue
		}

		item := changeItem{path: path, meta: remote}
		if permission.IsPermissionFile(path.String()) {
			permChanges = append(permChanges, item)
		} else {
			fileChanges = append(fileChanges, item)
		}
	}

	return permChanges, fileChanges, nil
}

func (m *Manager) currentLocalMetadata(path datasite.RelativePath) (*hashsign.FileMetadata, error) {
	meta, err := hashsign.HashFile(m.ws.DatasiteAbsPath(path.String()), m.ws.DatasitesDir)
	if err != nil {
		if errors.Is(err, hashsign.ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return meta, nil
}

func (m *Manager) previousMetadata(path datasite.RelativePath) *hashsign.FileMetadata {
	entry := m.state.Get(path)
	if entry == nil {
		return nil
	}
	return entry.LastSyncedMetadata
}

// walkDatasiteFiles lists every regular file currently on disk under one
// datasite's directory, as datasites-root-relative paths. A datasite with no
// local directory yet (never downloaded from) yields an empty list, not an
// error.
func walkDatasiteFiles(datasiteRoot string, email string, ignore *ignoreList) ([]datasite.RelativePath, error) {
	var paths []datasite.RelativePath

	err := filepath.WalkDir(datasiteRoot, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(datasiteRoot, absPath)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if ignore.shouldIgnore(rel) {
			return nil
		}

		paths = append(paths, datasite.NewRelativePath(email+datasite.PathSep+rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return paths, nil
}

// relativeWithinDatasite strips the owning datasite's email prefix from a
// full RelativePath so it can be matched against that datasite's own
// .syftignore patterns.
func relativeWithinDatasite(path datasite.RelativePath, email string) string {
	rel := path.String()[len(email):]
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	return rel
}
