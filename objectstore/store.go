// Package objectstore stores attachments in an S3 compatible bucket through
// minio-go.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sagarc03/affix"
)

const (
	DefaultEndpoint    = "s3.amazonaws.com"
	DefaultProtocol    = "http"
	DefaultPermissions = "public-read"
)

var cannedACLs = []string{
	"private",
	"public-read",
	"public-read-write",
	"authenticated-read",
	"aws-exec-read",
	"bucket-owner-read",
	"bucket-owner-full-control",
}

// Client is the subset of *minio.Client the store needs.
type Client interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
}

// Config describes the bucket and how its objects are addressed.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PathStyle bool   `mapstructure:"path_style"`

	// Bucket is used when neither BucketFunc nor BucketEnv yield a name.
	Bucket string `mapstructure:"bucket"`
	// BucketEnv names an environment variable holding the bucket.
	BucketEnv string `mapstructure:"bucket_env"`
	// BucketFunc picks the bucket per record and wins over the other two.
	BucketFunc func(rec affix.Record) string `mapstructure:"-"`

	// Protocol is the scheme of the :s3_*_url tokens.
	Protocol string `mapstructure:"protocol"`
	// HostAlias is the host of the :s3_alias_url token, usually a CDN.
	HostAlias string `mapstructure:"host_alias"`
	// Permissions is the canned ACL sent as x-amz-acl on every write.
	Permissions string `mapstructure:"permissions"`
	// Headers are sent with every write, e.g. Cache-Control.
	Headers map[string]string `mapstructure:"headers"`
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Protocol == "" {
		c.Protocol = DefaultProtocol
	}
	if c.Permissions == "" {
		c.Permissions = DefaultPermissions
	}
	return c
}

// Validate reports an ErrConfiguration when the config cannot work.
func (c Config) Validate() error {
	if c.Bucket == "" && c.BucketEnv == "" && c.BucketFunc == nil {
		return fmt.Errorf("object store: %w: bucket, bucket_env or a bucket function is required", affix.ErrConfiguration)
	}
	if c.Protocol != "http" && c.Protocol != "https" {
		return fmt.Errorf("object store: %w: protocol must be http or https, got %q", affix.ErrConfiguration, c.Protocol)
	}
	if !slices.Contains(cannedACLs, c.Permissions) {
		return fmt.Errorf("object store: %w: unknown permissions %q", affix.ErrConfiguration, c.Permissions)
	}
	return nil
}

type minioClient struct {
	*minio.Client
}

func (c minioClient) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucket, key, opts)
}

// NewClient connects a minio client for cfg.
func NewClient(cfg Config) (Client, error) {
	cfg = cfg.withDefaults()
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return minioClient{Client: cl}, nil
}

// Store holds the client and settings shared by every attachment.
type Store struct {
	client Client
	cfg    Config
}

// New validates cfg and returns a store using client.
func New(client Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("object store: %w: client cannot be nil", affix.ErrConfiguration)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{client: client, cfg: cfg}, nil
}

// Factory binds s to each attachment's record so the bucket can be chosen
// per record.
func Factory(s *Store) affix.BackendFactory {
	return func(a *affix.Attachment) (affix.Backend, error) {
		return s.ForRecord(a.Record()), nil
	}
}

// ForRecord returns the backend for objects of rec.
func (s *Store) ForRecord(rec affix.Record) *Bucket {
	return &Bucket{store: s, record: rec}
}

// BucketName resolves the bucket of rec.
func (s *Store) BucketName(rec affix.Record) (string, error) {
	if s.cfg.BucketFunc != nil {
		if name := s.cfg.BucketFunc(rec); name != "" {
			return name, nil
		}
	}
	if s.cfg.BucketEnv != "" {
		if name := os.Getenv(s.cfg.BucketEnv); name != "" {
			return name, nil
		}
	}
	if s.cfg.Bucket != "" {
		return s.cfg.Bucket, nil
	}
	return "", fmt.Errorf("bucket: %w: no bucket for %s/%s", affix.ErrConfiguration, rec.ClassName(), rec.ID())
}

// Bucket is the affix.Backend of one record. The bucket name is resolved on
// every call.
type Bucket struct {
	store  *Store
	record affix.Record
}

func (b *Bucket) name() (string, error) {
	return b.store.BucketName(b.record)
}

func (b *Bucket) metadata(contentType string) map[string]string {
	md := make(map[string]string, len(b.store.cfg.Headers)+2)
	for k, v := range b.store.cfg.Headers {
		md[k] = v
	}
	md["x-amz-acl"] = b.store.cfg.Permissions
	if contentType != "" {
		md["Content-Type"] = contentType
	}
	return md
}

// Write uploads f. A missing bucket is created and the upload retried once.
func (b *Bucket) Write(ctx context.Context, key string, f *affix.File) error {
	bucket, err := b.name()
	if err != nil {
		return err
	}

	err = b.put(ctx, bucket, key, f)
	if err == nil || !isCode(err, "NoSuchBucket") {
		return err
	}

	slog.Info("creating missing bucket", "bucket", bucket, "region", b.store.cfg.Region)
	if mkErr := b.store.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: b.store.cfg.Region}); mkErr != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, mkErr)
	}

	return b.put(ctx, bucket, key, f)
}

func (b *Bucket) put(ctx context.Context, bucket, key string, f *affix.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = rc.Close() }()

	opts := minio.PutObjectOptions{
		ContentType:  f.ContentType,
		UserMetadata: b.metadata(""),
	}
	// Header names from config files arrive lowercased.
	for k, v := range b.store.cfg.Headers {
		if strings.EqualFold(k, "Cache-Control") {
			opts.CacheControl = v
			delete(opts.UserMetadata, k)
		}
	}

	info, err := b.store.client.PutObject(ctx, bucket, key, rc, f.Size, opts)
	if err != nil {
		return err
	}

	slog.Debug("object written", "bucket", bucket, "key", key, "bytes", info.Size, "etag", info.ETag)
	return nil
}

// Delete removes key. Absent objects are not an error.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	bucket, err := b.name()
	if err != nil {
		return err
	}
	err = b.store.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isCode(err, "NoSuchKey", "NoSuchBucket") {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Rename copies oldKey to newKey and removes oldKey once the copy
// succeeded. Permissions and headers are reapplied to the copy.
func (b *Bucket) Rename(ctx context.Context, oldKey, newKey string) error {
	if oldKey == newKey {
		return nil
	}
	bucket, err := b.name()
	if err != nil {
		return err
	}

	info, err := b.store.client.StatObject(ctx, bucket, oldKey, minio.StatObjectOptions{})
	if err != nil {
		if isCode(err, "NoSuchKey", "NoSuchBucket") {
			return nil
		}
		return fmt.Errorf("stat %s: %w", oldKey, err)
	}

	dst := minio.CopyDestOptions{
		Bucket:          bucket,
		Object:          newKey,
		ReplaceMetadata: true,
		UserMetadata:    b.metadata(info.ContentType),
	}
	src := minio.CopySrcOptions{Bucket: bucket, Object: oldKey}
	if _, err := b.store.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("copy %s to %s: %w", oldKey, newKey, err)
	}

	if err := b.store.client.RemoveObject(ctx, bucket, oldKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", oldKey, err)
	}
	return nil
}

// Exists reports whether key is stored.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	bucket, err := b.name()
	if err != nil {
		return false, err
	}
	if _, err := b.store.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isCode(err, "NoSuchKey", "NoSuchBucket") {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Open streams key. Returns affix.ErrNotFound for absent objects.
func (b *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	exists, err := b.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, affix.ErrNotFound
	}

	bucket, err := b.name()
	if err != nil {
		return nil, err
	}
	rc, err := b.store.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return rc, nil
}

// SignedURL presigns a GET for key.
func (b *Bucket) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	bucket, err := b.name()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = affix.DefaultSignedURLTTL
	}
	u, err := b.store.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Tokens adds :bucket and the :s3_*_url tokens.
func (b *Bucket) Tokens() map[string]affix.TokenFunc {
	cfg := b.store.cfg
	bucket := func() string {
		name, err := b.name()
		if err != nil {
			return ""
		}
		return name
	}

	return map[string]affix.TokenFunc{
		"bucket": func(*affix.Attachment, string) string {
			return bucket()
		},
		"s3_path_url": func(a *affix.Attachment, style string) string {
			return cfg.Protocol + "://" + cfg.Endpoint + "/" + bucket() + "/" + strings.TrimPrefix(a.Path(style), "/")
		},
		"s3_domain_url": func(a *affix.Attachment, style string) string {
			return cfg.Protocol + "://" + bucket() + "." + cfg.Endpoint + "/" + strings.TrimPrefix(a.Path(style), "/")
		},
		"s3_alias_url": func(a *affix.Attachment, style string) string {
			return cfg.Protocol + "://" + cfg.HostAlias + "/" + strings.TrimPrefix(a.Path(style), "/")
		},
	}
}

// URLTokens names the tokens that embed the attachment path in a URL.
func (b *Bucket) URLTokens() []string {
	return []string{"s3_path_url", "s3_domain_url", "s3_alias_url"}
}

func isCode(err error, codes ...string) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		resp = minio.ToErrorResponse(err)
	}
	return slices.Contains(codes, resp.Code)
}
