// Package azurestore keeps encoded items as block blobs in an Azure container.
package azurestore

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/rescale/photoup/internal/config"
	inthttp "github.com/rescale/photoup/internal/http"
	"github.com/rescale/photoup/internal/logging"
	"github.com/rescale/photoup/internal/models"
	"github.com/rescale/photoup/internal/store"
)

// BlobSuffix is appended to every blob name; blobs hold base64 text.
const BlobSuffix = ".b64"

// Client is the azure backend of store.Store.
type Client struct {
	container *container.Client
	prefix    string
	logger    *logging.Logger
}

// New builds a Client for the SAS container URL in cfg.Azure.
// httpClient may be nil, in which case one is built from cfg's proxy settings.
func New(cfg *config.Config, httpClient *nethttp.Client, logger *logging.Logger) (*Client, error) {
	containerURL := strings.TrimSpace(cfg.Azure.ContainerURL)
	if containerURL == "" {
		return nil, config.ErrMissingContainerURL
	}
	if _, err := url.Parse(containerURL); err != nil {
		return nil, fmt.Errorf("invalid container URL: %w", err)
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

	cc, err := container.NewClientWithNoCredential(containerURL, &container.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
			// One attempt per item; failures go back to the user.
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Client{
		container: cc,
		prefix:    normalizePrefix(cfg.Azure.Prefix),
		logger:    logger,
	}, nil
}

// BlobName returns the blob an item named fileName is stored under.
func (c *Client) BlobName(fileName string) string {
	return c.prefix + fileName + BlobSuffix
}

// Put uploads the payload as a single block blob.
func (c *Client) Put(ctx context.Context, req store.Request, progress store.ProgressFunc) (*models.Record, error) {
	name := c.BlobName(req.FileName)
	bb := c.container.NewBlockBlobClient(name)

	opts := &blockblob.UploadOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: strPtr("text/plain")},
	}
	if req.ContentType != "" {
		opts.Metadata = map[string]*string{"source_content_type": strPtr(req.ContentType)}
	}

	resp, err := bb.Upload(ctx, store.NewProgressReader(req.Payload, progress), opts)
	if err != nil {
		c.logger.Warn().Err(err).Str("blob", name).Msg("blob upload failed")
		return nil, translateError(err)
	}
	if resp.ETag == nil || *resp.ETag == "" {
		return nil, &store.ProtocolError{Message: "blob upload returned no ETag"}
	}

	created := time.Now().UTC()
	if resp.LastModified != nil {
		created = resp.LastModified.UTC()
	}

	return &models.Record{
		ID:        strings.Trim(string(*resp.ETag), `"`),
		FileName:  req.FileName,
		Location:  stripQuery(bb.URL()),
		CreatedAt: created,
	}, nil
}

func translateError(err error) error {
	var re *azcore.ResponseError
	if errors.As(err, &re) && re.StatusCode != 0 {
		te := store.NewStatusError(re.StatusCode, re.ErrorCode)
		te.Err = err
		return te
	}
	category := store.CategoryForError(err)
	if category == store.CategoryNetwork || errors.Is(err, context.Canceled) {
		return store.NewNetworkError(err)
	}
	return &store.TransportError{Category: category, Err: err}
}

// stripQuery drops the SAS token from a blob URL.
func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix) + "/"
}

func strPtr(s string) *string {
	return &s
}
