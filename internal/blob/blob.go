// Package blob reads and stores build files that live outside the backend.
//
// A Ref is an opaque pointer to file bytes. It either carries the bytes inline
// or names a location: http(s):// URLs are fetched directly, s3://bucket/key
// URLs are read through the AWS SDK. The backend hands out Refs on every
// BuildEntry; fflux never interprets them beyond fetching.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Error variables for blob access.
var (
	ErrEmptyRef          = errors.New("blob reference is empty")
	ErrUnsupportedScheme = errors.New("unsupported blob url scheme")
	ErrFetchFailed       = errors.New("blob fetch failed")
)

// Ref points at the bytes of a stored file.
type Ref struct {
	URL    string `json:"url,omitempty"`
	Inline []byte `json:"bytes,omitempty"`
}

// FromURL returns a Ref resolved by location.
func FromURL(u string) Ref {
	return Ref{URL: strings.TrimSpace(u)}
}

// FromBytes returns a Ref that carries its bytes.
func FromBytes(data []byte) Ref {
	return Ref{Inline: append([]byte(nil), data...)}
}

// DirectURL returns the location of the blob, empty for inline refs.
func (r Ref) DirectURL() string {
	return r.URL
}

// IsZero reports whether the ref points nowhere.
func (r Ref) IsZero() bool {
	return r.URL == "" && len(r.Inline) == 0
}

// ProgressFunc receives the number of bytes read so far and the expected total
// (-1 when unknown).
type ProgressFunc func(read, total int64)

// S3API is the subset of the S3 client used by Client.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client fetches and stores blobs.
type Client struct {
	httpClient   *http.Client
	region       string
	uploadBucket string

	mu sync.Mutex
	s3 S3API
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for http(s) refs.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithS3 sets the S3 client used for s3 refs and uploads.
func WithS3(api S3API) Option {
	return func(c *Client) {
		c.s3 = api
	}
}

// WithS3Region sets the region used when the S3 client is created lazily.
func WithS3Region(region string) Option {
	return func(c *Client) {
		c.region = strings.TrimSpace(region)
	}
}

// WithUploadBucket makes Put store files in the given bucket instead of inline.
func WithUploadBucket(bucket string) Option {
	return func(c *Client) {
		c.uploadBucket = strings.TrimSpace(bucket)
	}
}

// NewClient creates a blob client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 0, // No timeout for downloads
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bytes returns the contents of ref. progress may be nil.
func (c *Client) Bytes(ctx context.Context, ref Ref, progress ProgressFunc) ([]byte, error) {
	if len(ref.Inline) > 0 {
		if progress != nil {
			n := int64(len(ref.Inline))
			progress(n, n)
		}
		return append([]byte(nil), ref.Inline...), nil
	}
	if ref.URL == "" {
		return nil, ErrEmptyRef
	}

	u, err := url.Parse(ref.URL)
	if err != nil {
		return nil, fmt.Errorf("parse blob url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return c.fetchHTTP(ctx, ref.URL, progress)
	case "s3":
		return c.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), progress)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Put stores data and returns a Ref to it. Without an upload bucket the bytes
// travel inline with the request that references them.
func (c *Client) Put(ctx context.Context, data []byte, filename string) (Ref, error) {
	if c.uploadBucket == "" {
		return FromBytes(data), nil
	}
	api, err := c.s3Client(ctx)
	if err != nil {
		return Ref{}, err
	}
	key := fmt.Sprintf("builds/%s/%s", uuid.NewString(), filename)
	_, err = api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.uploadBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return Ref{}, fmt.Errorf("upload to s3: %w", err)
	}
	return FromURL(fmt.Sprintf("s3://%s/%s", c.uploadBucket, key)), nil
}

func (c *Client) fetchHTTP(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	return readAll(resp.Body, resp.ContentLength, progress)
}

func (c *Client) fetchS3(ctx context.Context, bucket, key string, progress ProgressFunc) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: s3 url needs bucket and key", ErrEmptyRef)
	}
	api, err := c.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = out.Body.Close() }()

	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}
	return readAll(out.Body, total, progress)
}

func (c *Client) s3Client(ctx context.Context) (S3API, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s3 != nil {
		return c.s3, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if c.region != "" {
		opts = append(opts, awsconfig.WithRegion(c.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	c.s3 = s3.NewFromConfig(cfg)
	return c.s3, nil
}

func readAll(r io.Reader, total int64, progress ProgressFunc) ([]byte, error) {
	if total <= 0 {
		total = -1
	}
	if progress != nil {
		r = &progressReader{r: r, total: total, fn: progress}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.fn(p.read, p.total)
	}
	return n, err
}
