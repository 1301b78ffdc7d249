package syncsdk

import (
	"time"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
)

const (
	HeaderSyftVersion = "x-syftbox-version"
	HeaderSyftRuntime = "x-syftbox-python"
	HeaderSyftUser    = "x-syftbox-user"
	HeaderSyftDevice  = "x-syftbox-device"
	HeaderSyftOS      = "x-syftbox-os"
)

const (
	pathGetMetadata    = "/sync/get_metadata"
	pathGetDiff        = "/sync/get_diff"
	pathApplyDiff      = "/sync/apply_diff"
	pathDelete         = "/sync/delete"
	pathCreate         = "/sync/create"
	pathDatasiteStates = "/sync/datasite_states"
	pathDownload       = "/sync/download"
	pathDownloadBulk   = "/sync/download_bulk"
)

// DefaultRequestTimeout bounds every single HTTP call the SDK makes: no
// request is allowed to block indefinitely.
const DefaultRequestTimeout = 30 * time.Second

// APIError is the JSON shape of a non-2xx response body.
type APIError struct {
	Error string `json:"error"`
}

type getMetadataRequest struct {
	PathLike string `json:"path_like"`
}

type getDiffRequest struct {
	Path      datasite.RelativePath `json:"path"`
	Signature []byte                `json:"signature"`
}

type getDiffResponse struct {
	Path datasite.RelativePath `json:"path"`
	Diff []byte                `json:"diff"`
	Hash string                `json:"hash"`
}

type applyDiffRequest struct {
	Path         datasite.RelativePath `json:"path"`
	Diff         []byte                `json:"diff"`
	ExpectedHash string                `json:"expected_hash"`
}

type applyDiffResponse struct {
	Path         datasite.RelativePath `json:"path"`
	CurrentHash  string                `json:"current_hash"`
	PreviousHash string                `json:"previous_hash"`
}

type deleteRequest struct {
	Path datasite.RelativePath `json:"path"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type downloadBulkRequest struct {
	Paths []datasite.RelativePath `json:"paths"`
}

// DatasiteStates is the get_datasite_states response: every datasite email
// this user can read, mapped to that datasite's current file metadata.
type DatasiteStates map[string][]*hashsign.FileMetadata
