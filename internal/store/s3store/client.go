// Package s3store keeps encoded items as objects in an S3 bucket.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale/photoup/internal/config"
	inthttp "github.com/rescale/photoup/internal/http"
	"github.com/rescale/photoup/internal/logging"
	"github.com/rescale/photoup/internal/models"
	"github.com/rescale/photoup/internal/store"
)

// ObjectSuffix is appended to every key; objects hold base64 text, not image bytes.
const ObjectSuffix = ".b64"

// defaultRegion is used when neither the config nor the environment names one.
const defaultRegion = "us-east-1"

// PutObjectAPI is the subset of *s3.Client used by Client.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client is the s3 backend of store.Store.
type Client struct {
	api    PutObjectAPI
	bucket string
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

// New loads AWS configuration and builds a Client for cfg.S3.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.S3.Bucket) == "" {
		return nil, config.ErrMissingBucket
	}

	httpClient, err := inthttp.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
		// The pipeline reports failures per item; a retry is the user's call.
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	var s3Opts []func(*s3.Options)
	if cfg.S3.Endpoint != "" {
		endpoint := cfg.S3.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg.S3.Bucket, cfg.S3.Prefix, logger), nil
}

// NewWithAPI builds a Client over an existing PutObject implementation.
func NewWithAPI(api PutObjectAPI, bucket, prefix string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		api:    api,
		bucket: bucket,
		prefix: normalizePrefix(prefix),
		logger: logger,
		now:    time.Now,
	}
}

// Key returns the object key an item named fileName is stored under.
func (c *Client) Key(fileName string) string {
	return c.prefix + fileName + ObjectSuffix
}

// Put stores the payload as one object.
func (c *Client) Put(ctx context.Context, req store.Request, progress store.ProgressFunc) (*models.Record, error) {
	key := c.Key(req.FileName)
	body := store.NewProgressReader(req.Payload, progress)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(body.Size()),
		ContentType:   aws.String("text/plain"),
	}
	if req.ContentType != "" {
		input.Metadata = map[string]string{"source-content-type": req.ContentType}
	}

	out, err := c.api.PutObject(ctx, input)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("put object failed")
		return nil, translateError(err)
	}

	etag := ""
	if out != nil && out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}
	if etag == "" {
		return nil, &store.ProtocolError{Message: "put object returned no ETag"}
	}

	return &models.Record{
		ID:        etag,
		FileName:  req.FileName,
		Location:  "s3://" + c.bucket + "/" + key,
		CreatedAt: c.now().UTC(),
	}, nil
}

// statusCoder matches SDK response errors carrying an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// apiError matches SDK errors carrying a service error code.
type apiError interface {
	ErrorCode() string
	ErrorMessage() string
}

func translateError(err error) error {
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() != 0 {
		te := store.NewStatusError(sc.HTTPStatusCode(), "")
		var ae apiError
		if errors.As(err, &ae) {
			te.Message = strings.TrimSpace(ae.ErrorCode() + ": " + ae.ErrorMessage())
		}
		te.Err = err
		return te
	}

	if errors.Is(err, context.Canceled) {
		return store.NewNetworkError(err)
	}
	category := store.CategoryForError(err)
	if category == store.CategoryNetwork {
		return store.NewNetworkError(err)
	}
	return &store.TransportError{Category: category, Err: err}
}

// normalizePrefix makes prefix either empty or a clean path ending in "/".
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix) + "/"
}
