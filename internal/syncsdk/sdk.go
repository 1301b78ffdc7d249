// Package syncsdk implements the typed wire client: get_metadata,
// get_diff, apply_diff, create, delete, download, download_bulk and
// get_datasite_states, over a req/v3 HTTP client carrying the identifying
// headers every request must send.
package syncsdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/imroc/req/v3"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/version"
)

// metaCacheSize/metaCacheTTL bound the GetMetadata response cache: small and
// short-lived, so repeated GetMetadata calls for the same path within a
// couple of seconds are answered without a round trip.
const (
	metaCacheSize = 4096
	metaCacheTTL  = 2 * time.Second
)

// Client is the sync engine's HTTP client to a single server.
type Client struct {
	config    *Config
	http      *req.Client
	metaCache *expirable.LRU[datasite.RelativePath, *hashsign.FileMetadata]

	onTokenRefresh func(accessToken string)
}

// New constructs a Client, failing fast on invalid configuration.
func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("sdk: invalid config: %w", err)
	}

	httpClient := req.C().
		SetBaseURL(config.BaseURL).
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetTimeout(DefaultRequestTimeout).
		SetCommonRetryCount(config.MaxRetries).
		SetCommonRetryFixedInterval(time.Second).
		SetUserAgent(version.ShortWithApp()).
		SetCommonHeader(HeaderSyftVersion, version.Version).
		SetCommonHeader(HeaderSyftRuntime, "go/"+version.Version).
		SetCommonHeader(HeaderSyftUser, config.Email).
		SetCommonHeader(HeaderSyftDevice, deviceID()).
		SetCommonHeader(HeaderSyftOS, osLabel()).
		SetCommonBearerAuthToken(config.AccessToken).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		SetCommonErrorResult(&APIError{})

	return &Client{
		config:    config,
		http:      httpClient,
		metaCache: expirable.NewLRU[datasite.RelativePath, *hashsign.FileMetadata](metaCacheSize, nil, metaCacheTTL),
	}, nil
}

// deviceID resolves a stable per-machine identifier for the x-syftbox-device
// header. machineid.ID() is already salted/hashed by the OS-specific source
// it reads from, so the raw value is safe to send as-is. A resolution
// failure (sandboxed or unsupported platform) falls back to "unknown" rather
// than blocking client construction.
func deviceID() string {
	id, err := machineid.ID()
	if err != nil {
		slog.Warn("sdk: failed to resolve machine id", "error", err)
		return "unknown"
	}
	return id
}

// osLabel resolves the x-syftbox-os header value as "platform/version"
// (e.g. "ubuntu/22.04", "darwin/14.5"), falling back to the Go runtime's
// GOOS when gopsutil can't read platform info (e.g. inside a minimal
// container).
func osLabel() string {
	info, err := host.Info()
	if err != nil || info.Platform == "" {
		return runtime.GOOS
	}
	if info.PlatformVersion == "" {
		return info.Platform
	}
	return info.Platform + "/" + info.PlatformVersion
}

// OnTokenRefresh registers a callback invoked whenever SetAccessToken updates
// the bearer token carried on the underlying HTTP client.
func (c *Client) OnTokenRefresh(fn func(accessToken string)) {
	c.onTokenRefresh = fn
}

// SetAccessToken swaps the bearer token used for subsequent requests.
func (c *Client) SetAccessToken(accessToken string) {
	c.config.AccessToken = accessToken
	c.http.SetCommonBearerAuthToken(accessToken)
	if c.onTokenRefresh != nil {
		c.onTokenRefresh(accessToken)
	}
}

func classifyError(res *req.Response, err error, apiErr *APIError) error {
	if err != nil {
		return fmt.Errorf("sdk: request failed: %w", err)
	}
	if !res.IsErrorState() {
		return nil
	}

	msg := ""
	if apiErr != nil {
		msg = apiErr.Error
	}

	switch res.GetStatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", ErrTooLarge, msg)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrHashMismatch, msg)
	default:
		return fmt.Errorf("%w (%s): %s", ErrServer, res.Status, msg)
	}
}

// GetMetadata fetches the server's current metadata for exactly one path,
// serving from the short-lived response cache when possible.
func (c *Client) GetMetadata(ctx context.Context, path datasite.RelativePath) (*hashsign.FileMetadata, error) {
	if cached, ok := c.metaCache.Get(path); ok {
		return cached, nil
	}

	var meta hashsign.FileMetadata
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(&getMetadataRequest{PathLike: string(path)}).
		SetSuccessResult(&meta).
		SetErrorResult(&apiErr).
		Post(pathGetMetadata)

	if cerr := classifyError(res, err, &apiErr); cerr != nil {
		return nil, cerr
	}

	c.metaCache.Add(path, &meta)
	return &meta, nil
}

// GetDiff requests a diff of path against the caller's local signature.
func (c *Client) GetDiff(ctx context.Context, path datasite.RelativePath, localSignature []byte) (diff []byte, expectedHash string, err error) {
	var resp getDiffResponse
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(&getDiffRequest{Path: path, Signature: localSignature}).
		SetSuccessResult(&resp).
		SetErrorResult(&apiErr).
		Post(pathGetDiff)

	if cerr := classifyError(res, err, &apiErr); cerr != nil {
		return nil, "", cerr
	}
	return resp.Diff, resp.Hash, nil
}

// ApplyDiff pushes a diff computed against remoteMeta.Signature; the server
// rejects the call with ErrHashMismatch if its resulting hash disagrees.
func (c *Client) ApplyDiff(ctx context.Context, path datasite.RelativePath, diff []byte, expectedHash string) (previousHash, currentHash string, err error) {
	var resp applyDiffResponse
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(&applyDiffRequest{Path: path, Diff: diff, ExpectedHash: expectedHash}).
		SetSuccessResult(&resp).
		SetErrorResult(&apiErr).
		Post(pathApplyDiff)

	if cerr := classifyError(res, err, &apiErr); cerr != nil {
		return "", "", cerr
	}
	return resp.PreviousHash, resp.CurrentHash, nil
}

// Create uploads the full contents of a new remote file.
func (c *Client) Create(ctx context.Context, path datasite.RelativePath, data []byte) error {
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", string(path), bytes.NewReader(data)).
		SetErrorResult(&apiErr).
		Post(pathCreate)

	return classifyError(res, err, &apiErr)
}

// Delete removes a remote file.
func (c *Client) Delete(ctx context.Context, path datasite.RelativePath) error {
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(&deleteRequest{Path: path}).
		SetErrorResult(&apiErr).
		Post(pathDelete)

	return classifyError(res, err, &apiErr)
}

// Download fetches the full current contents of a remote file.
func (c *Client) Download(ctx context.Context, path datasite.RelativePath) ([]byte, error) {
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetErrorResult(&apiErr).
		Get(pathDownload + "/" + string(path))

	if cerr := classifyError(res, err, &apiErr); cerr != nil {
		return nil, cerr
	}
	return io.ReadAll(res.Body)
}

// DownloadBulk fetches a zip archive containing the current contents of
// every requested path, used by the Manager's first-tick download_all_missing.
func (c *Client) DownloadBulk(ctx context.Context, paths []datasite.RelativePath) ([]byte, error) {
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(&downloadBulkRequest{Paths: paths}).
		SetErrorResult(&apiErr).
		Post(pathDownloadBulk)

	if cerr := classifyError(res, err, &apiErr); cerr != nil {
		return nil, cerr
	}
	return io.ReadAll(res.Body)
}

// GetDatasiteStates returns current metadata for every datasite visible to
// the authenticated user, keyed by datasite email.
func (c *Client) GetDatasiteStates(ctx context.Context) (DatasiteStates, error) {
	var states DatasiteStates
	var apiErr APIError

	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&states).
		SetErrorResult(&apiErr).
		Get(pathDatasiteStates)

	if cerr := classifyError(res, err, &apiErr); cerr != nil {
		return nil, cerr
	}
	return states, nil
}
