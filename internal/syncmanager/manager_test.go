package syncmanager

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opensyncbox/syncbox/internal/client/workspace"
	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
	"github.com/opensyncbox/syncbox/internal/syncstate"
	"github.com/opensyncbox/syncbox/internal/syncsdk"
)

const owner = "alice@example.com"

func newTestManager(t *testing.T, handler http.HandlerFunc) (*Manager, *workspace.Workspace, *syncstate.Store) {
	t.Helper()

	root := t.TempDir()
	ws, err := workspace.NewWorkspace(root, owner)
	require.NoError(t, err)
	require.NoError(t, ws.Setup())
	t.Cleanup(func() { _ = ws.Unlock() })

	state, err := syncstate.Load(ws.LocalStateDb)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := syncsdk.New(&syncsdk.Config{BaseURL: srv.URL, Email: owner, AccessToken: "test-token"})
	require.NoError(t, err)

	return New(ws, state, client, 10), ws, state
}

func TestSetupCreatesChangeLogFolder(t *testing.T) {
	m, ws, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, m.Setup())

	info, err := os.Stat(filepath.Dir(ws.ChangeLogPath))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestOutOfSyncFilesSplitsPermissionsAndFiles(t *testing.T) {
	m, ws, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	writeFile(t, ws, owner+"/notes.txt", "hello")
	writeFile(t, ws, owner+"/_.syftperm", `{"admin":[],"read":[],"write":[]}`)

	perm, files, err := m.outOfSyncFiles(owner, nil)
	require.NoError(t, err)
	require.Len(t, perm, 1)
	require.Len(t, files, 1)
	require.Equal(t, datasite.RelativePath(owner+"/_.syftperm"), perm[0].path)
	require.Equal(t, datasite.RelativePath(owner+"/notes.txt"), files[0].path)
}

func TestOutOfSyncFilesHonorsSyftignore(t *testing.T) {
	m, ws, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	writeFile(t, ws, owner+"/keep.txt", "keep")
	writeFile(t, ws, owner+"/skip.log", "skip")
	writeFile(t, ws, owner+"/.syftignore", "*.log\n")

	_, files, err := m.outOfSyncFiles(owner, nil)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.path.String())
	}
	require.Contains(t, names, owner+"/keep.txt")
	require.NotContains(t, names, owner+"/skip.log")
}

func TestOutOfSyncFilesSkipsAlreadyInSyncPath(t *testing.T) {
	m, ws, state := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	writeFile(t, ws, owner+"/steady.txt", "unchanged")
	meta, err := hashsign.HashFile(ws.DatasiteAbsPath(owner+"/steady.txt"), ws.DatasitesDir)
	require.NoError(t, err)
	require.NoError(t, state.InsertSynced(meta.Path, meta, syncdecision.ActionCreateRemote))

	perm, files, err := m.outOfSyncFiles(owner, []*hashsign.FileMetadata{meta})
	require.NoError(t, err)
	require.Empty(t, perm)
	require.Empty(t, files)
}

func TestTickDownloadsMissingFilesOnFirstTick(t *testing.T) {
	const content = "from the bulk download"
	sum := sha256.Sum256([]byte(content))
	remoteHash := hex.EncodeToString(sum[:])
	remotePath := owner + "/new.txt"

	zipBytes := buildZip(t, map[string]string{remotePath: content})

	m, ws, state := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync/datasite_states":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(syncsdk.DatasiteStates{
				owner: {{Path: datasite.RelativePath(remotePath), Hash: remoteHash}},
			})
		case "/sync/download_bulk":
			_, _ = w.Write(zipBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	require.NoError(t, m.Setup())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.tick(ctx, "trace-1"))

	data, err := os.ReadFile(ws.DatasiteAbsPath(remotePath))
	require.NoError(t, err)
	require.Equal(t, content, string(data))

	entry := state.Get(datasite.RelativePath(remotePath))
	require.NotNil(t, entry)
	require.Equal(t, syncdecision.ActionCreateLocal, entry.LastAction)
}

func TestStopUnblocksPromptly(t *testing.T) {
	m, _, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync/datasite_states":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(syncsdk.DatasiteStates{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	require.NoError(t, m.Setup())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	require.True(t, m.IsRunning())

	done := make(chan struct{})
	go func() {
		m.Stop(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop(true) did not return promptly")
	}
}

func writeFile(t *testing.T, ws *workspace.Workspace, relPath, content string) {
	t.Helper()
	abs := ws.DatasiteAbsPath(relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
