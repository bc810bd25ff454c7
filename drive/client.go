package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/drivebridge/drivebridge/cache"
	"github.com/drivebridge/drivebridge/observe"
	"github.com/drivebridge/drivebridge/resilience"
)

const (
	defaultBaseURL       = "https://www.googleapis.com/drive/v3"
	defaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"

	// RootFolderID is the alias the API accepts for the drive root.
	RootFolderID = "root"

	// DefaultResumableThreshold is the content size at which uploads switch
	// from a single multipart request to a resumable session.
	DefaultResumableThreshold = 5 << 20
)

// Config configures the storage client.
type Config struct {
	// BaseURL is the metadata API base. Default: the provider's v3 endpoint.
	BaseURL string

	// UploadBaseURL is the media upload base. Default: the provider's v3
	// upload endpoint.
	UploadBaseURL string

	// HTTPClient performs requests. Default: client with 30s timeout.
	HTTPClient *http.Client

	// TokenSource supplies OAuth2 access tokens for each request.
	TokenSource oauth2.TokenSource

	// Executor guards every remote call. Required.
	Executor *resilience.Executor

	// Bulkhead bounds concurrent uploads. Optional.
	Bulkhead *resilience.Bulkhead

	// ResumableThreshold is the content size at or above which uploads use
	// a resumable session so an interrupted transfer continues from the
	// last confirmed byte instead of restarting.
	// Default: DefaultResumableThreshold.
	ResumableThreshold int64

	// Cache stores resolved folder IDs. Optional.
	Cache cache.Cache

	// CacheTTL is the lifetime of cached folder IDs.
	// Default: 5 minutes.
	CacheTTL time.Duration

	// Logger receives structured client logs. Default: no-op.
	Logger observe.Logger

	// Tracer wraps each remote call in a client span. Default: no-op.
	Tracer observe.Tracer
}

// File is the subset of remote file metadata the service uses.
type File struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
}

// Client calls the storage API with resilience guards applied.
type Client struct {
	baseURL            string
	uploadBaseURL      string
	http               *http.Client
	tokens             oauth2.TokenSource
	executor           *resilience.Executor
	bulkhead           *resilience.Bulkhead
	resumableThreshold int64
	cache              cache.Cache
	cacheTTL           time.Duration
	logger             observe.Logger
	tracer             observe.Tracer
	resolving          singleflight.Group
}

// NewClient creates a storage client.
func NewClient(config Config) (*Client, error) {
	if config.TokenSource == nil {
		return nil, errors.New("drive: token source is required")
	}
	if config.Executor == nil {
		return nil, errors.New("drive: executor is required")
	}

	// Apply defaults
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.UploadBaseURL == "" {
		config.UploadBaseURL = defaultUploadBaseURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.ResumableThreshold <= 0 {
		config.ResumableThreshold = DefaultResumableThreshold
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Tracer == nil {
		config.Tracer = observe.NewNoopTracer()
	}

	return &Client{
		baseURL:            config.BaseURL,
		uploadBaseURL:      config.UploadBaseURL,
		http:               config.HTTPClient,
		tokens:             config.TokenSource,
		executor:           config.Executor,
		bulkhead:           config.Bulkhead,
		resumableThreshold: config.ResumableThreshold,
		cache:              config.Cache,
		cacheTTL:           config.CacheTTL,
		logger:             config.Logger.With("drive"),
		tracer:             config.Tracer,
	}, nil
}

// call runs fn through the executor with a client span around the whole
// guarded call, retries included.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	meta := observe.CallMeta{Dependency: "gdrive", Operation: op}
	ctx, span := c.tracer.StartSpan(ctx, meta)

	result, err := resilience.Do(ctx, c.executor, fn)
	c.tracer.EndSpan(span, err)
	return result, err
}

// do performs one authenticated request. The caller owns the response body.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("drive: failed to obtain access token: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("drive: request failed: %w", err)
	}
	return resp, nil
}

// doJSON performs one authenticated request and decodes a JSON response into
// out. A nil out discards the body. Non-2xx responses become *APIError.
func (c *Client) doJSON(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("drive: failed to decode response: %w", err)
	}
	return nil
}
