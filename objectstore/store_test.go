package objectstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/objectstore"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	cacheCtl    string
}

type fakeClient struct {
	mu          sync.Mutex
	buckets     map[string]map[string]object
	makeBuckets int
	puts        int
	failPut     error
	lastPresign time.Duration
}

func newFakeClient(buckets ...string) *fakeClient {
	c := &fakeClient{buckets: make(map[string]map[string]object)}
	for _, b := range buckets {
		c.buckets[b] = make(map[string]object)
	}
	return c
}

func (c *fakeClient) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.failPut != nil {
		return minio.UploadInfo{}, c.failPut
	}
	objs, ok := c.buckets[bucket]
	if !ok {
		return minio.UploadInfo{}, minio.ErrorResponse{Code: "NoSuchBucket", BucketName: bucket}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	objs[key] = object{data: data, contentType: opts.ContentType, metadata: opts.UserMetadata, cacheCtl: opts.CacheControl}
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (c *fakeClient) CopyObject(_ context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.buckets[src.Bucket][src.Object]
	if !ok {
		return minio.UploadInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	obj.metadata = dst.UserMetadata
	obj.contentType = dst.UserMetadata["Content-Type"]
	c.buckets[dst.Bucket][dst.Object] = obj
	return minio.UploadInfo{Bucket: dst.Bucket, Key: dst.Object}, nil
}

func (c *fakeClient) RemoveObject(_ context.Context, bucket, key string, _ minio.RemoveObjectOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buckets[bucket], key)
	return nil
}

func (c *fakeClient) StatObject(_ context.Context, bucket, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	objs, ok := c.buckets[bucket]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchBucket"}
	}
	obj, ok := objs[key]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (c *fakeClient) GetObject(_ context.Context, bucket, key string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return io.NopCloser(bytes.NewReader(c.buckets[bucket][key].data)), nil
}

func (c *fakeClient) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.makeBuckets++
	c.buckets[bucket] = make(map[string]object)
	return nil
}

func (c *fakeClient) PresignedGetObject(_ context.Context, bucket, key string, expires time.Duration, _ url.Values) (*url.URL, error) {
	c.lastPresign = expires
	return url.Parse("https://" + bucket + ".s3.amazonaws.com/" + key + "?X-Amz-Signature=abc")
}

func (c *fakeClient) object(bucket, key string) (object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.buckets[bucket][key]
	return obj, ok
}

func newStore(t *testing.T, client *fakeClient, cfg objectstore.Config) *objectstore.Store {
	t.Helper()
	s, err := objectstore.New(client, cfg)
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	client := newFakeClient()

	tests := []struct {
		name string
		cfg  objectstore.Config
	}{
		{"no bucket", objectstore.Config{}},
		{"bad protocol", objectstore.Config{Bucket: "b", Protocol: "ftp"}},
		{"bad permissions", objectstore.Config{Bucket: "b", Permissions: "world-writable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := objectstore.New(client, tt.cfg)
			assert.ErrorIs(t, err, affix.ErrConfiguration)
		})
	}

	_, err := objectstore.New(nil, objectstore.Config{Bucket: "b"})
	assert.ErrorIs(t, err, affix.ErrConfiguration)
}

func TestStore_BucketName(t *testing.T) {
	rec := affix.NewRecord("User", "7")
	client := newFakeClient()

	t.Run("static", func(t *testing.T) {
		s := newStore(t, client, objectstore.Config{Bucket: "static"})
		name, err := s.BucketName(rec)
		assert.NoError(t, err)
		assert.Equal(t, "static", name)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("AFFIX_TEST_BUCKET", "from-env")
		s := newStore(t, client, objectstore.Config{Bucket: "static", BucketEnv: "AFFIX_TEST_BUCKET"})
		name, err := s.BucketName(rec)
		assert.NoError(t, err)
		assert.Equal(t, "from-env", name)
	})

	t.Run("environment unset falls back", func(t *testing.T) {
		t.Setenv("AFFIX_TEST_BUCKET", "")
		s := newStore(t, client, objectstore.Config{Bucket: "static", BucketEnv: "AFFIX_TEST_BUCKET"})
		name, err := s.BucketName(rec)
		assert.NoError(t, err)
		assert.Equal(t, "static", name)
	})

	t.Run("per record", func(t *testing.T) {
		s := newStore(t, client, objectstore.Config{
			Bucket: "static",
			BucketFunc: func(r affix.Record) string {
				return "users-" + r.ID()
			},
		})
		name, err := s.BucketName(rec)
		assert.NoError(t, err)
		assert.Equal(t, "users-7", name)
	})

	t.Run("nothing resolves", func(t *testing.T) {
		s := newStore(t, client, objectstore.Config{BucketEnv: "AFFIX_TEST_UNSET_BUCKET"})
		_, err := s.BucketName(rec)
		assert.ErrorIs(t, err, affix.ErrConfiguration)
	})
}

func TestBucket_WriteCarriesMetadata(t *testing.T) {
	client := newFakeClient("media")
	s := newStore(t, client, objectstore.Config{
		Bucket:  "media",
		Headers: map[string]string{"Cache-Control": "max-age=3600", "x-amz-storage-class": "STANDARD"},
	})
	b := s.ForRecord(affix.NewRecord("User", "1"))

	err := b.Write(context.Background(), "a/b.txt", affix.NewFile("b.txt", "text/plain", []byte("hello")))
	require.NoError(t, err)

	obj, ok := client.object("media", "a/b.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), obj.data)
	assert.Equal(t, "text/plain", obj.contentType)
	assert.Equal(t, "max-age=3600", obj.cacheCtl)
	assert.Equal(t, "public-read", obj.metadata["x-amz-acl"])
	assert.Equal(t, "STANDARD", obj.metadata["x-amz-storage-class"])
}

func TestBucket_WriteCreatesMissingBucketOnce(t *testing.T) {
	client := newFakeClient()
	s := newStore(t, client, objectstore.Config{Bucket: "fresh", Permissions: "private"})
	b := s.ForRecord(affix.NewRecord("User", "1"))

	err := b.Write(context.Background(), "k.txt", affix.NewFile("k.txt", "", []byte("x")))
	require.NoError(t, err)

	assert.Equal(t, 1, client.makeBuckets)
	assert.Equal(t, 2, client.puts, "one failed put and one retry")

	obj, ok := client.object("fresh", "k.txt")
	require.True(t, ok)
	assert.Equal(t, "private", obj.metadata["x-amz-acl"])
}

func TestBucket_WriteError(t *testing.T) {
	client := newFakeClient("media")
	client.failPut = errors.New("connection reset")
	s := newStore(t, client, objectstore.Config{Bucket: "media"})

	err := s.ForRecord(affix.NewRecord("User", "1")).Write(context.Background(), "k", affix.NewFile("k", "", []byte("x")))
	assert.Error(t, err)
	assert.Zero(t, client.makeBuckets)
	assert.Equal(t, 1, client.puts)
}

func TestBucket_RenameDeleteExists(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient("media")
	s := newStore(t, client, objectstore.Config{Bucket: "media"})
	b := s.ForRecord(affix.NewRecord("User", "1"))

	require.NoError(t, b.Write(ctx, "old.png", affix.NewFile("old.png", "image/png", []byte("png"))))

	require.NoError(t, b.Rename(ctx, "old.png", "new.png"))

	ok, err := b.Exists(ctx, "old.png")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Exists(ctx, "new.png")
	assert.NoError(t, err)
	assert.True(t, ok)

	obj, _ := client.object("media", "new.png")
	assert.Equal(t, "image/png", obj.contentType)
	assert.Equal(t, "public-read", obj.metadata["x-amz-acl"])

	assert.NoError(t, b.Rename(ctx, "missing.png", "other.png"), "missing source is a no-op")
	_, exists := client.object("media", "other.png")
	assert.False(t, exists)

	require.NoError(t, b.Delete(ctx, "new.png"))
	require.NoError(t, b.Delete(ctx, "new.png"))
	ok, err = b.Exists(ctx, "new.png")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestBucket_Open(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient("media")
	s := newStore(t, client, objectstore.Config{Bucket: "media"})
	b := s.ForRecord(affix.NewRecord("User", "1"))

	require.NoError(t, b.Write(ctx, "a.txt", affix.NewFile("a.txt", "", []byte("content"))))

	rc, err := b.Open(ctx, "a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.NoError(t, rc.Close())

	_, err = b.Open(ctx, "missing.txt")
	assert.ErrorIs(t, err, affix.ErrNotFound)
}

func TestBucket_SignedURL(t *testing.T) {
	client := newFakeClient("media")
	s := newStore(t, client, objectstore.Config{Bucket: "media"})
	b := s.ForRecord(affix.NewRecord("User", "1"))

	u, err := b.SignedURL(context.Background(), "a.txt", 0)
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Signature")
	assert.Equal(t, time.Hour, client.lastPresign)
}

func newAttachment(t *testing.T, s *objectstore.Store, rec *affix.MapRecord, url string) *affix.Attachment {
	t.Helper()
	reg := affix.NewRegistry()
	reg.RegisterBackend("s3", objectstore.Factory(s))

	a, err := affix.NewAttachment("avatar", rec, affix.Options{
		Backend: "s3",
		Path:    ":attachment/:basename.:extension",
		URL:     url,
	}, reg)
	require.NoError(t, err)
	return a
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient("bucket")

	tests := []struct {
		name string
		cfg  objectstore.Config
		url  string
		want string
	}{
		{
			name: "domain url",
			cfg:  objectstore.Config{Bucket: "bucket"},
			url:  ":s3_domain_url",
			want: "http://bucket.s3.amazonaws.com/avatars/stringio.txt",
		},
		{
			name: "path url",
			cfg:  objectstore.Config{Bucket: "bucket"},
			url:  ":s3_path_url",
			want: "http://s3.amazonaws.com/bucket/avatars/stringio.txt",
		},
		{
			name: "alias url with https",
			cfg:  objectstore.Config{Bucket: "bucket", HostAlias: "cdn.example.com", Protocol: "https"},
			url:  ":s3_alias_url",
			want: "https://cdn.example.com/avatars/stringio.txt",
		},
		{
			name: "bucket token",
			cfg:  objectstore.Config{Bucket: "bucket"},
			url:  "/:bucket/:attachment",
			want: "/bucket/avatars",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := affix.NewRecord("User", "1")
			a := newAttachment(t, newStore(t, client, tt.cfg), rec, tt.url)

			require.NoError(t, a.Assign(ctx, affix.NewFile("stringio.txt", "text/plain", []byte("hello"))))
			require.NoError(t, a.Commit(ctx))

			assert.Equal(t, tt.want, a.URL(""))
		})
	}
}

func TestAttachment_URLTokenInPath(t *testing.T) {
	reg := affix.NewRegistry()
	reg.RegisterBackend("s3", objectstore.Factory(newStore(t, newFakeClient("bucket"), objectstore.Config{Bucket: "bucket"})))

	for _, path := range []string{":s3_domain_url", "media/:s3_path_url/:filename", ":s3_alias_url_copy"} {
		t.Run(path, func(t *testing.T) {
			rec := affix.NewRecord("User", "1")
			rec.Set("avatar_file_name", "a.png")

			_, err := affix.NewAttachment("avatar", rec, affix.Options{Backend: "s3", Path: path}, reg)
			require.Error(t, err)
			assert.ErrorIs(t, err, affix.ErrConfiguration)
			assert.Contains(t, err.Error(), "url token")
		})
	}

	rec := affix.NewRecord("User", "1")
	_, err := affix.NewAttachment("avatar", rec, affix.Options{Backend: "s3", Path: ":bucket/:attachment/:filename"}, reg)
	assert.NoError(t, err, ":bucket renders without the path")
}

func TestAttachment_PerRecordBucket(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient("even", "odd")
	s := newStore(t, client, objectstore.Config{
		BucketFunc: func(r affix.Record) string {
			if r.ID() == "2" {
				return "even"
			}
			return "odd"
		},
	})

	for _, id := range []string{"1", "2"} {
		a := newAttachment(t, s, affix.NewRecord("User", id), ":s3_path_url")
		require.NoError(t, a.Assign(ctx, affix.NewFile("doc.txt", "text/plain", []byte(id))))
		require.NoError(t, a.Commit(ctx))
	}

	odd, ok := client.object("odd", "avatars/doc.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), odd.data)

	even, ok := client.object("even", "avatars/doc.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), even.data)
}
