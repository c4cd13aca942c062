package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds S3 credentials for snapshot transfer. Empty fields fall
// back to the default AWS credential chain.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // S3-compatible endpoint; forces path-style addressing
}

var (
	ErrReadOnlyScheme = errors.New("scheme does not support writing")
	errWriterClosed   = errors.New("writer is closed")
)

var httpClient = &http.Client{Timeout: 5 * time.Minute}

type urlScheme string

const (
	schemeFile  urlScheme = "file"
	schemeS3    urlScheme = "s3"
	schemeHTTP  urlScheme = "http"
	schemeHTTPS urlScheme = "https"
	schemeLocal urlScheme = "local"
)

// location is a parsed snapshot source or destination.
type location struct {
	scheme urlScheme
	raw    string
	path   string // filesystem path for file and local
	bucket string
	key    string
}

func detectScheme(raw string) urlScheme {
	scheme, _, found := strings.Cut(raw, "://")
	if !found {
		return schemeLocal
	}
	switch s := urlScheme(strings.ToLower(scheme)); s {
	case schemeS3, schemeHTTP, schemeHTTPS, schemeFile:
		return s
	}
	return schemeLocal
}

func parseLocation(raw string) (location, error) {
	loc := location{scheme: detectScheme(raw), raw: raw}
	switch loc.scheme {
	case schemeLocal:
		loc.path = raw
	case schemeFile:
		loc.path = raw[len("file://"):]
	case schemeS3:
		var err error
		if loc.bucket, loc.key, err = parseS3URL(raw); err != nil {
			return location{}, err
		}
	}
	return loc, nil
}

// parseS3URL splits s3://bucket/key.
func parseS3URL(raw string) (bucket, key string, err error) {
	bucket, key, found := strings.Cut(raw[len("s3://"):], "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", raw)
	}
	return bucket, key, nil
}

func openRemoteReader(ctx context.Context, raw string, cfg *S3Config) (io.ReadCloser, error) {
	loc, err := parseLocation(raw)
	if err != nil {
		return nil, err
	}
	switch loc.scheme {
	case schemeHTTP, schemeHTTPS:
		return httpGet(ctx, loc.raw)
	case schemeS3:
		client, err := cfg.client(ctx)
		if err != nil {
			return nil, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.bucket),
			Key:    aws.String(loc.key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get s3://%s/%s: %w", loc.bucket, loc.key, err)
		}
		return out.Body, nil
	default:
		return os.Open(loc.path)
	}
}

func openRemoteWriter(ctx context.Context, raw string, cfg *S3Config) (io.WriteCloser, error) {
	loc, err := parseLocation(raw)
	if err != nil {
		return nil, err
	}
	switch loc.scheme {
	case schemeHTTP, schemeHTTPS:
		return nil, fmt.Errorf("%w: %s", ErrReadOnlyScheme, raw)
	case schemeS3:
		client, err := cfg.client(ctx)
		if err != nil {
			return nil, err
		}
		return &s3Upload{ctx: ctx, client: client, bucket: loc.bucket, key: loc.key}, nil
	default:
		return os.Create(loc.path)
	}
}

func httpGet(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}

// client builds an S3 client. A nil config uses the default chain.
func (cfg *S3Config) client(ctx context.Context) (*s3.Client, error) {
	if cfg == nil {
		cfg = &S3Config{}
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// s3Upload buffers a snapshot and puts it as one object on Close.
type s3Upload struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (u *s3Upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, errWriterClosed
	}
	return u.buf.Write(p)
}

func (u *s3Upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true

	if _, err := u.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.key),
		Body:   bytes.NewReader(u.buf.Bytes()),
	}); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", u.bucket, u.key, err)
	}
	return nil
}
