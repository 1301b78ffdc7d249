package syncmanager

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
	"github.com/opensyncbox/syncbox/internal/syncsdk"
)

// downloadAllMissing runs once, on the Manager's very first tick: every
// path the server reports but Local State has never seen is fetched in one
// bulk zip download instead of one download request per file
// (consumer.py's download_all_missing/create_local_batch). A failure here
// just means those files are left to the normal per-item CREATE_LOCAL path
// later in the same tick.
func (m *Manager) downloadAllMissing(ctx context.Context, states syncsdk.DatasiteStates) {
	var missing []datasite.RelativePath

	for email, remoteFiles := range states {
		ignore := loadIgnoreList(m.ws.DatasiteAbsPath(email))
		for _, f := range remoteFiles {
			if m.state.Get(f.Path) != nil {
				continue
			}
			if ignore.shouldIgnore(relativeWithinDatasite(f.Path, email)) {
				continue
			}
			missing = append(missing, f.Path)
		}
	}

	if len(missing) == 0 {
		return
	}

	slog.Info("syncmanager: downloading missing files in batch", "count", len(missing))

	data, err := m.client.DownloadBulk(ctx, missing)
	if err != nil {
		slog.Error("syncmanager: bulk download failed, files will be synced individually instead", "error", err)
		return
	}

	received, err := extractZip(data, m.ws.DatasitesDir)
	if err != nil {
		slog.Error("syncmanager: failed to extract bulk download", "error", err)
		return
	}

	for _, rel := range received {
		path := datasite.NewRelativePath(rel)
		meta, err := hashsign.HashFile(m.ws.DatasiteAbsPath(path.String()), m.ws.DatasitesDir)
		if err != nil {
			slog.Error("syncmanager: hash downloaded file", "path", path, "error", err)
			continue
		}
		if err := m.state.InsertSynced(path, meta, syncdecision.ActionCreateLocal); err != nil {
			slog.Error("syncmanager: record downloaded file", "path", path, "error", err)
		}
	}
}

// extractZip writes every entry of a zip archive under destRoot, returning
// the slash-separated relative path of each regular file written. Entries
// that would escape destRoot are rejected (zip-slip).
func extractZip(data []byte, destRoot string) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var written []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		cleanName := filepath.Clean(f.Name)
		destPath := filepath.Join(destRoot, cleanName)
		if !strings.HasPrefix(destPath, filepath.Clean(destRoot)+string(filepath.Separator)) {
			return nil, fmt.Errorf("zip entry %q escapes destination", f.Name)
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return nil, fmt.Errorf("create parent dir for %s: %w", cleanName, err)
		}

		if err := extractZipEntry(f, destPath); err != nil {
			return nil, err
		}

		written = append(written, filepath.ToSlash(cleanName))
	}

	return written, nil
}

func extractZipEntry(f *zip.File, destPath string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return nil
}
