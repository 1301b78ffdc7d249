package syncconsumer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensyncbox/syncbox/internal/client/workspace"
	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
	"github.com/opensyncbox/syncbox/internal/syncqueue"
	"github.com/opensyncbox/syncbox/internal/syncsdk"
	"github.com/opensyncbox/syncbox/internal/syncstate"
)

func newTestSetup(t *testing.T, handler http.HandlerFunc) (*Consumer, *workspace.Workspace, *syncstate.Store) {
	t.Helper()

	root := t.TempDir()
	ws, err := workspace.NewWorkspace(root, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, ws.Setup())
	t.Cleanup(func() { _ = ws.Unlock() })

	state, err := syncstate.Load(ws.LocalStateDb)
	require.NoError(t, err)
	require.NoError(t, state.InsertStatus("alice@example.com/bootstrap.txt", syncstate.StatusOK, syncdecision.ActionNoop, ""))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := syncsdk.New(&syncsdk.Config{
		BaseURL:     srv.URL,
		Email:       "alice@example.com",
		AccessToken: "test-token",
	})
	require.NoError(t, err)

	return New(ws, state, client, 10), ws, state
}

func writeDatasiteFile(t *testing.T, ws *workspace.Workspace, relPath, content string) {
	t.Helper()
	abs := ws.DatasiteAbsPath(relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestValidateEnvironmentFatalWhenStateFileMissing(t *testing.T) {
	c, ws, _ := newTestSetup(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, os.Remove(ws.LocalStateDb))

	err := c.ValidateEnvironment()
	var fatalErr *FatalSyncError
	require.ErrorAs(t, err, &fatalErr)
}

func TestConsumeCreateRemotePushesNewLocalFile(t *testing.T) {
	var uploaded bool
	c, ws, state := newTestSetup(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sync/create" {
			uploaded = true
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	path := datasite.RelativePath("alice@example.com/new.txt")
	writeDatasiteFile(t, ws, path.String(), "hello")

	item := syncqueue.Item{Priority: 1, Path: path, RemoteMeta: nil}
	require.NoError(t, c.consumeOne(context.Background(), item))
	require.True(t, uploaded)

	entry := state.Get(path)
	require.NotNil(t, entry)
	require.Equal(t, syncstate.StatusOK, entry.LastStatus)
	require.Equal(t, syncdecision.ActionCreateRemote, entry.LastAction)
}

func TestConsumeCreateLocalDownloadsMissingFile(t *testing.T) {
	remote := &hashsign.FileMetadata{Hash: "remote-hash"}

	c, ws, state := newTestSetup(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sync/download/alice@example.com/remote-only.txt" {
			_, _ = w.Write([]byte("from server"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	path := datasite.RelativePath("alice@example.com/remote-only.txt")
	item := syncqueue.Item{Priority: 1, Path: path, RemoteMeta: remote}

	require.NoError(t, c.consumeOne(context.Background(), item))

	data, err := os.ReadFile(ws.DatasiteAbsPath(path.String()))
	require.NoError(t, err)
	require.Equal(t, "from server", string(data))

	entry := state.Get(path)
	require.NotNil(t, entry)
	require.Equal(t, syncdecision.ActionCreateLocal, entry.LastAction)
}

func TestConsumeSkipsOversizeRemotePush(t *testing.T) {
	var uploaded bool
	c, ws, state := newTestSetup(t, func(w http.ResponseWriter, r *http.Request) {
		uploaded = true
		w.WriteHeader(http.StatusOK)
	})
	c.maxFileSize = 1 // one byte cap, guaranteed to reject anything written below

	path := datasite.RelativePath("alice@example.com/big.txt")
	writeDatasiteFile(t, ws, path.String(), "this is more than one byte")

	item := syncqueue.Item{Priority: 1, Path: path}
	require.NoError(t, c.consumeOne(context.Background(), item))
	require.False(t, uploaded)

	// the oversize gate skip is recorded as an error, not left unrecorded.
	entry := state.Get(path)
	require.NotNil(t, entry)
	require.Equal(t, syncstate.StatusError, entry.LastStatus)
	require.Contains(t, entry.LastMessage, "exceeds cap")
}

func TestConsumeDeleteLocalOnRemoteDeletion(t *testing.T) {
	c, ws, state := newTestSetup(t, func(w http.ResponseWriter, r *http.Request) {})

	path := datasite.RelativePath("alice@example.com/gone.txt")
	writeDatasiteFile(t, ws, path.String(), "will be deleted")

	local, err := hashsign.HashFile(ws.DatasiteAbsPath(path.String()), ws.DatasitesDir)
	require.NoError(t, err)
	require.NoError(t, state.InsertSynced(path, local, syncdecision.ActionCreateLocal))

	item := syncqueue.Item{Priority: 1, Path: path, RemoteMeta: nil}
	require.NoError(t, c.consumeOne(context.Background(), item))

	_, err = os.Stat(ws.DatasiteAbsPath(path.String()))
	require.True(t, os.IsNotExist(err))

	entry := state.Get(path)
	require.Equal(t, syncdecision.ActionDeleteLocal, entry.LastAction)
	require.Nil(t, entry.LastSyncedMetadata)
}
