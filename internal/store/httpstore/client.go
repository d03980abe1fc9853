// Package httpstore talks to the photo store's JSON API.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/photoup/internal/config"
	"github.com/rescale/photoup/internal/constants"
	inthttp "github.com/rescale/photoup/internal/http"
	"github.com/rescale/photoup/internal/logging"
	"github.com/rescale/photoup/internal/models"
	"github.com/rescale/photoup/internal/ratelimit"
	"github.com/rescale/photoup/internal/store"
)

const (
	imagesPath = "/api/images"
	searchPath = "/api/images/search"

	// maxErrorBody bounds how much of a non-JSON error body ends up in a message.
	maxErrorBody = 512
)

// ErrEmptyBaseURL is returned by New when no store URL is configured.
var ErrEmptyBaseURL = errors.New("store base URL is empty")

// Client is the http backend of store.Store.
type Client struct {
	upload  *retryablehttp.Client // Never retries; a failed item surfaces to the user
	read    *retryablehttp.Client // List and search
	baseURL string
	token   string
	limiter *ratelimit.RateLimiter
	logger  *logging.Logger
}

// New creates a Client from cfg. httpClient may be nil, in which case an
// optimized client is built from cfg's proxy settings.
func New(cfg *config.Config, httpClient *nethttp.Client, logger *logging.Logger) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.Store.BaseURL), "/")
	if base == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid store base URL %q: %w", base, err)
	}

	if httpClient == nil {
		var err error
		httpClient, err = inthttp.CreateOptimizedClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		upload:  newRetryClient(httpClient, constants.DefaultStoreRetryMax, logger),
		read:    newRetryClient(httpClient, constants.StoreReadRetryMax, logger),
		baseURL: base,
		token:   cfg.Store.APIToken,
		limiter: ratelimit.NewStoreRateLimiter(cfg.Store.RatePerSecond),
		logger:  logger,
	}, nil
}

func newRetryClient(httpClient *nethttp.Client, retryMax int, logger *logging.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = retryMax
	rc.RetryWaitMin = constants.RetryWaitMin
	rc.RetryWaitMax = constants.RetryWaitMax
	rc.Logger = logging.RetryLogger{L: logger}
	// Hand the last response back instead of a generic "giving up" error,
	// so the status code and body reach the caller.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// Put uploads one encoded item with POST /api/images.
func (c *Client) Put(ctx context.Context, req store.Request, progress store.ProgressFunc) (*models.Record, error) {
	body, err := json.Marshal(models.UploadRequest{
		FileName:    req.FileName,
		ImageBase64: req.Payload,
		MimeType:    req.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload request: %w", err)
	}

	bodyStr := string(body)
	reader := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return store.NewProgressReader(bodyStr, progress), nil
	})

	var resp models.UploadResponse
	if err := c.do(ctx, c.upload, nethttp.MethodPost, imagesPath, reader, int64(len(body)), &resp); err != nil {
		return nil, err
	}
	if resp.Photo == nil {
		return nil, &store.ProtocolError{Message: "response has no photo"}
	}

	c.logger.Debug().
		Int64("photo_id", resp.Photo.PhotoID).
		Str("file", resp.Photo.FileName).
		Strs("tags", resp.Photo.Tags).
		Msg("store accepted item")

	return resp.Photo.Record(), nil
}

// List returns stored photos, filtered by tags when any are given.
func (c *Client) List(ctx context.Context, tagQuery string) ([]models.Photo, error) {
	path := imagesPath
	if tagQuery != "" {
		path += "?tags=" + url.QueryEscape(tagQuery)
	}

	var resp models.PhotosResponse
	if err := c.do(ctx, c.read, nethttp.MethodGet, path, nil, 0, &resp); err != nil {
		return nil, err
	}
	return resp.Photos, nil
}

// Search asks the store to turn a free-text query into tags and match photos.
func (c *Client) Search(ctx context.Context, query string) (*models.SearchResponse, error) {
	body, err := json.Marshal(models.SearchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	var resp models.SearchResponse
	if err := c.do(ctx, c.read, nethttp.MethodPost, searchPath, body, int64(len(body)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one store call with rate limiting and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, rc *retryablehttp.Client, method, path string, body interface{}, size int64, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return store.NewNetworkError(fmt.Errorf("rate limiter cancelled: %w", err))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = size
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := rc.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("store request failed")
		return store.NewNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return store.NewNetworkError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == nethttp.StatusTooManyRequests {
			c.throttled(resp.Header.Get("Retry-After"))
		}
		return store.NewStatusError(resp.StatusCode, errorMessage(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &store.ProtocolError{Message: "invalid JSON", Err: err}
	}
	return nil
}

// throttled backs off all further requests after a 429.
func (c *Client) throttled(retryAfter string) {
	c.limiter.Drain()

	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		c.limiter.SetCooldown(time.Duration(secs) * time.Second)
		c.logger.Warn().Int("retry_after_s", secs).Msg("store throttled requests")
		return
	}
	c.logger.Warn().Msg("store throttled requests")
}

// errorMessage extracts {"error": "..."} or falls back to a trimmed raw body.
func errorMessage(data []byte) string {
	var er models.ErrorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		return er.Error
	}
	msg := string(bytes.TrimSpace(data))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return msg
}
