// Package storage moves renders, kits, and box files in and out of
// S3-compatible object stores (AWS S3, MinIO).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/d3ud3u-ntp2/spherize/imageio"
	"github.com/d3ud3u-ntp2/spherize/platform"
)

// ErrNotFound reports a key that does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

const uriScheme = "s3://"

// Options selects the endpoint, credentials, and default bucket for a
// Client. The zero value uses the AWS default credential chain and
// region; Endpoint and UsePathStyle are for MinIO-style stores.
type Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Client is a thin wrapper over the S3 API bound to a default bucket.
type Client struct {
	api    *s3.Client
	bucket string
}

// IsURI reports whether s looks like an s3:// object reference.
func IsURI(s string) bool {
	return strings.HasPrefix(s, uriScheme)
}

// ParseURI splits "s3://bucket/key" into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, uriScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 uri: %q", uri)
	}
	return bucket, key, nil
}

// New builds a Client from Options. Static credentials and a custom
// endpoint are applied when set, otherwise the environment and shared
// AWS config decide.
func New(ctx context.Context, opts Options) (*Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &Client{api: api, bucket: opts.Bucket}, nil
}

// resolve fills in the default bucket for bare keys.
func (c *Client) resolve(uriOrKey string) (bucket, key string, err error) {
	if IsURI(uriOrKey) {
		return ParseURI(uriOrKey)
	}
	if c.bucket == "" {
		return "", "", fmt.Errorf("no default bucket configured for key %q", uriOrKey)
	}
	return c.bucket, strings.TrimPrefix(uriOrKey, "/"), nil
}

// Fetch downloads one object to destPath, creating parent directories
// as needed. A missing key maps to ErrNotFound.
func (c *Client) Fetch(ctx context.Context, uri, destPath string) error {
	bucket, key, err := c.resolve(uri)
	if err != nil {
		return err
	}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return fmt.Errorf("failed to get s3 object %s: %w", uri, err)
	}
	defer out.Body.Close()

	if err := imageio.EnsureDir(filepath.Dir(destPath)); err != nil {
		return err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return nil
}

// Put uploads srcPath to uri. An empty contentType is guessed from the
// source extension.
func (c *Client) Put(ctx context.Context, srcPath, uri, contentType string) error {
	bucket, key, err := c.resolve(uri)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer f.Close()
	if contentType == "" {
		contentType = ContentTypeFor(srcPath)
	}
	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3 object %s: %w", uri, err)
	}
	return nil
}

// List returns the object keys under prefix, which may be an s3:// uri
// or a bare prefix against the default bucket.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	bucket := c.bucket
	key := prefix
	if IsURI(prefix) {
		rest := strings.TrimPrefix(prefix, uriScheme)
		bucket, key, _ = strings.Cut(rest, "/")
	}
	if bucket == "" {
		return nil, fmt.Errorf("no bucket in prefix %q and no default configured", prefix)
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3 objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// CachePath is the deterministic local cache file for a remote object:
// the uri hash under the cache dir, keeping the key's extension so
// decoders can still sniff by name.
func CachePath(uri string) string {
	return filepath.Join(platform.GetCacheDir(), "s3",
		imageio.HashBytes([]byte(uri))[:16]+path.Ext(uri))
}

// PublicURL converts an s3 uri to a browsable http(s) URL: the custom
// endpoint in path style when one is configured, the AWS
// virtual-hosted form otherwise.
func PublicURL(opts Options, uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if opts.Endpoint != "" {
		return strings.TrimRight(opts.Endpoint, "/") + "/" + bucket + "/" + key, nil
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key), nil
}

// ContentTypeFor guesses a content type from the file extension.
func ContentTypeFor(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case ".zip":
		return "application/zip"
	case ".7z":
		return "application/x-7z-compressed"
	default:
		return "application/octet-stream"
	}
}
