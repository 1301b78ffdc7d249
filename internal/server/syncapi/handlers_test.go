package syncapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/rsyncdiff"
)

const owner = "alice@example.com"
const other = "bob@example.com"

func newTestServer(t *testing.T) (*httptest.Server, *Handler, *Index, SnapshotStore) {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := NewIndex(db)
	require.NoError(t, err)

	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	h := New(index, store, 1)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user", c.GetHeader("X-Test-User"))
		c.Next()
	})
	r.POST("/sync/get_metadata", h.GetMetadata)
	r.POST("/sync/get_diff", h.GetDiff)
	r.POST("/sync/apply_diff", h.ApplyDiff)
	r.POST("/sync/create", h.Create)
	r.POST("/sync/delete", h.Delete)
	r.GET("/sync/download/*path", h.Download)
	r.POST("/sync/download_bulk", h.DownloadBulk)
	r.GET("/sync/datasite_states", h.DatasiteStates)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h, index, store
}

func doJSON(t *testing.T, srv *httptest.Server, user, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func doCreate(t *testing.T, srv *httptest.Server, user, path string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", path)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sync/create", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Test-User", user)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateThenGetMetadata(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := doCreate(t, srv, owner, owner+"/notes.txt", []byte("hello"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2 := doJSON(t, srv, owner, http.MethodPost, "/sync/get_metadata", map[string]string{"path_like": owner + "/notes.txt"})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var meta hashsign.FileMetadata
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&meta))
	require.Equal(t, datasite.RelativePath(owner+"/notes.txt"), meta.Path)
	require.NotEmpty(t, meta.Hash)
}

func TestCreateDuplicateRejected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := doCreate(t, srv, owner, owner+"/dup.txt", []byte("one"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2 := doCreate(t, srv, owner, owner+"/dup.txt", []byte("two"))
	defer resp2.Body.Close()
	require.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestCreateRejectsPathOutsideAnyDatasite(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := doCreate(t, srv, owner, "../../etc/passwd", []byte("x"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetMetadataDeniedForUnauthorizedReader(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := doCreate(t, srv, owner, owner+"/private/secret.txt", []byte("shh"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2 := doJSON(t, srv, other, http.MethodPost, "/sync/get_metadata", map[string]string{"path_like": owner + "/private/secret.txt"})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestPermissionFileGrantsRead(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	permBody := []byte(`{"admin":[],"read":["` + other + `"],"write":[]}`)
	resp := doCreate(t, srv, owner, owner+"/shared/_.syftperm", permBody)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2 := doCreate(t, srv, owner, owner+"/shared/doc.txt", []byte("contents"))
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3 := doJSON(t, srv, other, http.MethodPost, "/sync/get_metadata", map[string]string{"path_like": owner + "/shared/doc.txt"})
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestGetDiffAndApplyDiffRoundTrip(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	original := []byte("the quick brown fox")
	resp := doCreate(t, srv, owner, owner+"/file.txt", original)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sig, err := rsyncdiff.Signature(bytes.NewReader(original))
	require.NoError(t, err)

	resp2 := doJSON(t, srv, owner, http.MethodPost, "/sync/get_diff", map[string]any{
		"path":      owner + "/file.txt",
		"signature": sig,
	})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var diffResp struct {
		Path string `json:"path"`
		Diff []byte `json:"diff"`
		Hash string `json:"hash"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&diffResp))

	resp3 := doJSON(t, srv, owner, http.MethodPost, "/sync/apply_diff", map[string]any{
		"path":          owner + "/file.txt",
		"diff":          diffResp.Diff,
		"expected_hash": diffResp.Hash,
	})
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestApplyDiffHashMismatchRejected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	original := []byte("version one")
	resp := doCreate(t, srv, owner, owner+"/file.txt", original)
	resp.Body.Close()

	sig, err := rsyncdiff.Signature(bytes.NewReader(original))
	require.NoError(t, err)
	diff, err := rsyncdiff.Diff(sig, []byte("version two"))
	require.NoError(t, err)

	resp2 := doJSON(t, srv, owner, http.MethodPost, "/sync/apply_diff", map[string]any{
		"path":          owner + "/file.txt",
		"diff":          diff,
		"expected_hash": "not-the-real-hash",
	})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestDeleteRemovesFromIndexAndStore(t *testing.T) {
	srv, _, index, store := newTestServer(t)

	resp := doCreate(t, srv, owner, owner+"/gone.txt", []byte("bye"))
	resp.Body.Close()

	resp2 := doJSON(t, srv, owner, http.MethodPost, "/sync/delete", map[string]string{"path": owner + "/gone.txt"})
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	_, err := index.Get(datasite.NewRelativePath(owner + "/gone.txt"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Read(context.Background(), datasite.NewRelativePath(owner+"/gone.txt"))
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDownload(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := doCreate(t, srv, owner, owner+"/dl.txt", []byte("downloadable"))
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/sync/download/"+owner+"/dl.txt", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", owner)
	resp2, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	data, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	require.Equal(t, "downloadable", string(data))
}

func TestDownloadBulkSkipsUnauthorizedAndMissing(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := doCreate(t, srv, owner, owner+"/a.txt", []byte("A"))
	resp.Body.Close()
	resp2 := doCreate(t, srv, owner, owner+"/b.txt", []byte("B"))
	resp2.Body.Close()

	resp3 := doJSON(t, srv, other, http.MethodPost, "/sync/download_bulk", map[string]any{
		"paths": []string{owner + "/a.txt", owner + "/b.txt", owner + "/missing.txt"},
	})
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)

	data, err := io.ReadAll(resp3.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 0)
}

func TestDatasiteStatesFiltersByOwnership(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp := doCreate(t, srv, owner, owner+"/public/notes.txt", []byte("public"))
	resp.Body.Close()
	resp2 := doCreate(t, srv, owner, owner+"/private/secret.txt", []byte("secret"))
	resp2.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/sync/datasite_states", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", other)
	resp3, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)

	var states map[string][]*hashsign.FileMetadata
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&states))
	require.Empty(t, states[owner])
}
