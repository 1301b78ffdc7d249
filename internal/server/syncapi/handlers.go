// Package syncapi implements the server-side sync endpoints: an
// on-disk snapshot store plus a sqlite-backed metadata index, exposed over
// the wire contract internal/syncsdk's Client speaks against. Request
// binding and streaming responses follow internal/server/handlers/blob's
// gin conventions, and errors use internal/server/handlers/api's
// Code/Error/Response envelope; the protocol itself —
// get_metadata/get_diff/apply_diff/create/delete/download/download_bulk/
// datasite_states — is the file-sync wire contract this server exposes.
package syncapi

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/permission"
	"github.com/opensyncbox/syncbox/internal/rsyncdiff"
	"github.com/opensyncbox/syncbox/internal/server/handlers/api"
)

// Handler implements the eight sync endpoints against one Index+SnapshotStore
// pair.
type Handler struct {
	index       *Index
	store       SnapshotStore
	maxFileSize int64
}

func New(index *Index, store SnapshotStore, maxFileSizeMB int) *Handler {
	return &Handler{
		index:       index,
		store:       store,
		maxFileSize: int64(maxFileSizeMB) * 1024 * 1024,
	}
}

func requester(c *gin.Context) string {
	user, _ := c.Get("user")
	email, _ := user.(string)
	return email
}

// GetMetadata handles POST /sync/get_metadata. path_like is matched
// exactly, never via SQL LIKE.
func (h *Handler) GetMetadata(c *gin.Context) {
	var body struct {
		PathLike string `json:"path_like" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	path := datasite.NewRelativePath(body.PathLike)
	az := newAuthorizer(h.store)
	if !az.canAccess(c.Request.Context(), path, requester(c), false) {
		api.AbortWithError(c, http.StatusForbidden, api.CodeAccessDenied, fmt.Errorf("access denied: %s", path))
		return
	}

	meta, err := h.index.Get(path)
	if err != nil {
		api.AbortWithError(c, http.StatusNotFound, api.CodeSyncNotFound, err)
		return
	}

	c.PureJSON(http.StatusOK, meta)
}

// GetDiff handles POST /sync/get_diff.
func (h *Handler) GetDiff(c *gin.Context) {
	var body struct {
		Path      datasite.RelativePath `json:"path" binding:"required"`
		Signature []byte                `json:"signature"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	ctx := c.Request.Context()
	az := newAuthorizer(h.store)
	if !az.canAccess(ctx, body.Path, requester(c), false) {
		api.AbortWithError(c, http.StatusForbidden, api.CodeAccessDenied, fmt.Errorf("access denied: %s", body.Path))
		return
	}

	meta, err := h.index.Get(body.Path)
	if err != nil {
		api.AbortWithError(c, http.StatusNotFound, api.CodeSyncNotFound, err)
		return
	}

	current, err := h.store.Read(ctx, body.Path)
	if err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	diff, err := rsyncdiff.Diff(body.Signature, current)
	if err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"path": body.Path,
		"diff": diff,
		"hash": meta.Hash,
	})
}

// ApplyDiff handles POST /sync/apply_diff. Rejects with 400 (mapped by the
// client to ErrHashMismatch) when the reconstructed content's hash
// disagrees with expected_hash.
func (h *Handler) ApplyDiff(c *gin.Context) {
	var body struct {
		Path         datasite.RelativePath `json:"path" binding:"required"`
		Diff         []byte                `json:"diff"`
		ExpectedHash string                `json:"expected_hash"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	ctx := c.Request.Context()
	az := newAuthorizer(h.store)
	if !az.canAccess(ctx, body.Path, requester(c), true) {
		api.AbortWithError(c, http.StatusForbidden, api.CodeAccessDenied, fmt.Errorf("access denied: %s", body.Path))
		return
	}

	previous, err := h.index.Get(body.Path)
	if err != nil {
		api.AbortWithError(c, http.StatusNotFound, api.CodeSyncNotFound, err)
		return
	}

	oldData, err := h.store.Read(ctx, body.Path)
	if err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	newData, err := rsyncdiff.Apply(oldData, body.Diff)
	if err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if int64(len(newData)) > h.maxFileSize {
		api.AbortWithError(c, http.StatusRequestEntityTooLarge, api.CodeSyncTooLarge,
			fmt.Errorf("content exceeds %s limit", humanize.Bytes(uint64(h.maxFileSize))))
		return
	}

	if permission.IsPermissionFile(body.Path.String()) {
		if err := permission.Validate(newData); err != nil {
			api.AbortWithError(c, http.StatusBadRequest, api.CodeSyncInvalidPerm, err)
			return
		}
	}

	newMeta, err := hashsign.HashBytes(newData, body.Path.String(), time.Now())
	if err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	if body.ExpectedHash != "" && newMeta.Hash != body.ExpectedHash {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeSyncHashMismatch,
			fmt.Errorf("hash mismatch: got %s want %s", newMeta.Hash, body.ExpectedHash))
		return
	}

	if err := h.store.Write(ctx, body.Path, newData); err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}
	if err := h.index.Upsert(newMeta); err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"path":          body.Path,
		"current_hash":  newMeta.Hash,
		"previous_hash": previous.Hash,
	})
}

// Create handles POST /sync/create: a multipart upload whose single "file"
// field's filename conveys the target path (internal/syncsdk.Client.Create
// sends SetFileReader("file", string(path), ...)). The filename is
// validated as a well-formed datasite path before it is trusted for
// anything — never accepted as a bare client-supplied string.
func (h *Handler) Create(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	// FileHeader.Filename keeps only the base name; the full path is read
	// from the raw Content-Disposition header.
	filename := fileHeader.Filename
	if _, params, perr := mime.ParseMediaType(fileHeader.Header.Get("Content-Disposition")); perr == nil && params["filename"] != "" {
		filename = params["filename"]
	}

	if !datasite.IsValidPath(filename) {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeSyncInvalidPath, fmt.Errorf("invalid path %q", filename))
		return
	}
	path := datasite.NewRelativePath(filename)

	ctx := c.Request.Context()
	az := newAuthorizer(h.store)
	if !az.canAccess(ctx, path, requester(c), true) {
		api.AbortWithError(c, http.StatusForbidden, api.CodeAccessDenied, fmt.Errorf("access denied: %s", path))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	if int64(len(data)) > h.maxFileSize {
		api.AbortWithError(c, http.StatusRequestEntityTooLarge, api.CodeSyncTooLarge,
			fmt.Errorf("content exceeds %s limit", humanize.Bytes(uint64(h.maxFileSize))))
		return
	}

	if permission.IsPermissionFile(path.String()) {
		if err := permission.Validate(data); err != nil {
			api.AbortWithError(c, http.StatusBadRequest, api.CodeSyncInvalidPerm, err)
			return
		}
	}

	meta, err := hashsign.HashBytes(data, path.String(), time.Now())
	if err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	if err := h.index.Insert(meta); err != nil {
		if err == ErrAlreadyExists {
			api.AbortWithError(c, http.StatusConflict, api.CodeSyncAlreadyExists, err)
			return
		}
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	if err := h.store.Write(ctx, path, data); err != nil {
		_ = h.index.Delete(path)
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}

// Delete handles POST /sync/delete.
func (h *Handler) Delete(c *gin.Context) {
	var body struct {
		Path datasite.RelativePath `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	ctx := c.Request.Context()
	az := newAuthorizer(h.store)
	if !az.canAccess(ctx, body.Path, requester(c), true) {
		api.AbortWithError(c, http.StatusForbidden, api.CodeAccessDenied, fmt.Errorf("access denied: %s", body.Path))
		return
	}

	if _, err := h.index.Get(body.Path); err != nil {
		api.AbortWithError(c, http.StatusNotFound, api.CodeSyncNotFound, err)
		return
	}

	if err := h.store.Delete(ctx, body.Path); err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}
	if err := h.index.Delete(body.Path); err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}

// Download handles GET /sync/download/*path.
func (h *Handler) Download(c *gin.Context) {
	path := datasite.NewRelativePath(c.Param("path"))
	ctx := c.Request.Context()

	az := newAuthorizer(h.store)
	if !az.canAccess(ctx, path, requester(c), false) {
		api.AbortWithError(c, http.StatusForbidden, api.CodeAccessDenied, fmt.Errorf("access denied: %s", path))
		return
	}

	data, err := h.store.Read(ctx, path)
	if err != nil {
		api.AbortWithError(c, http.StatusNotFound, api.CodeSyncNotFound, err)
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", data)
}

// DownloadBulk handles POST /sync/download_bulk. Paths the requester
// cannot read, or that no longer exist, are skipped silently — the same
// degrade-gracefully behavior the Manager's downloadAllMissing already
// expects from a partial batch.
func (h *Handler) DownloadBulk(c *gin.Context) {
	var body struct {
		Paths []datasite.RelativePath `json:"paths"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		api.AbortWithError(c, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	ctx := c.Request.Context()
	email := requester(c)
	az := newAuthorizer(h.store)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, path := range body.Paths {
		if !az.canAccess(ctx, path, email, false) {
			continue
		}
		data, err := h.store.Read(ctx, path)
		if err != nil {
			continue
		}
		fw, err := zw.Create(path.String())
		if err != nil {
			continue
		}
		_, _ = fw.Write(data)
	}
	if err := zw.Close(); err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// DatasiteStates handles GET /sync/datasite_states, filtering every known
// datasite's files down to what the requester may read.
func (h *Handler) DatasiteStates(c *gin.Context) {
	ctx := c.Request.Context()
	email := requester(c)

	owners, err := h.index.Owners()
	if err != nil {
		api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	az := newAuthorizer(h.store)
	states := make(map[string][]*hashsign.FileMetadata, len(owners))
	for _, owner := range owners {
		files, err := h.index.ListByOwner(owner)
		if err != nil {
			api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
			return
		}

		if owner == email {
			states[owner] = files
			continue
		}

		var readable []*hashsign.FileMetadata
		for _, f := range files {
			if az.canAccess(ctx, f.Path, email, false) {
				readable = append(readable, f)
			}
		}
		if len(readable) > 0 {
			states[owner] = readable
		}
	}

	if _, ok := states[email]; !ok {
		states[email] = nil
	}

	c.PureJSON(http.StatusOK, states)
}
