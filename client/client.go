package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sagarc03/affix"
	affixhttp "github.com/sagarc03/affix/http"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultExpires is how long presigned request URLs stay valid.
	DefaultExpires = 15 * time.Minute

	// DefaultEndpoint is the default server endpoint URL.
	DefaultEndpoint = "http://localhost:5708"
)

// Config holds the server endpoint and signing credentials.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Service   string `yaml:"service,omitempty"`
}

// WithDefaults returns a copy with empty fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Service == "" {
		c.Service = "s3"
	}
	c.Endpoint = strings.TrimSuffix(c.Endpoint, "/")
	return c
}

// Validate checks the endpoint and that a secret accompanies an access key.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return ErrEndpointRequired
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if c.AccessKey != "" && c.SecretKey == "" {
		return ErrSecretKeyRequired
	}
	return nil
}

// Client performs operations against an affix server.
type Client struct {
	config     Config
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a new Client with the given config and options.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	conf := cfg.WithDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:     conf,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Attach uploads the local file at localPath into slot of ref.
func (c *Client) Attach(ctx context.Context, ref affix.RecordRef, slot, localPath string) (*affix.AttachmentInfo, error) {
	if localPath == "" {
		return nil, fmt.Errorf("attach: %w", ErrEmptyPath)
	}

	file, err := os.Open(localPath) //#nosec G304 -- localPath is user-provided input
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return c.AttachReader(ctx, ref, slot, filepath.Base(localPath), file)
}

// AttachReader uploads content as a multipart form named name.
func (c *Client) AttachReader(ctx context.Context, ref affix.RecordRef, slot, name string, content io.Reader) (*affix.AttachmentInfo, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = form.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	var info affix.AttachmentInfo
	err := c.do(ctx, http.MethodPut, slotPath(ref, slot), nil, pr, form.FormDataContentType(), &info)
	_ = pr.Close()
	if err != nil {
		return nil, fmt.Errorf("attach %s to %s: %w", slot, ref, err)
	}
	return &info, nil
}

// Detach removes the attachment in slot of ref.
func (c *Client) Detach(ctx context.Context, ref affix.RecordRef, slot string) error {
	if err := c.do(ctx, http.MethodDelete, slotPath(ref, slot), nil, nil, "", nil); err != nil {
		return fmt.Errorf("detach %s from %s: %w", slot, ref, err)
	}
	return nil
}

// Get describes the attachment in slot of ref.
func (c *Client) Get(ctx context.Context, ref affix.RecordRef, slot string) (*affix.AttachmentInfo, error) {
	var info affix.AttachmentInfo
	if err := c.do(ctx, http.MethodGet, slotPath(ref, slot), nil, nil, "", &info); err != nil {
		return nil, fmt.Errorf("get %s of %s: %w", slot, ref, err)
	}
	return &info, nil
}

// Record returns ref with every attachment.
func (c *Client) Record(ctx context.Context, ref affix.RecordRef) (*affixhttp.RecordResponse, error) {
	var rec affixhttp.RecordResponse
	if err := c.do(ctx, http.MethodGet, recordPath(ref), nil, nil, "", &rec); err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return &rec, nil
}

// List returns every record of class.
func (c *Client) List(ctx context.Context, class string) ([]affixhttp.RecordResponse, error) {
	var records []affixhttp.RecordResponse
	if err := c.do(ctx, http.MethodGet, "/records/"+url.PathEscape(class), nil, nil, "", &records); err != nil {
		return nil, fmt.Errorf("list %s: %w", class, err)
	}
	return records, nil
}

// Delete removes ref and all of its attachments.
func (c *Client) Delete(ctx context.Context, ref affix.RecordRef) error {
	if err := c.do(ctx, http.MethodDelete, recordPath(ref), nil, nil, "", nil); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

// SignedURL asks the server for a time-limited URL of style.
func (c *Client) SignedURL(ctx context.Context, ref affix.RecordRef, slot, style string, ttl time.Duration) (*affixhttp.URLResponse, error) {
	query := url.Values{}
	if style != "" {
		query.Set("style", style)
	}
	if ttl > 0 {
		query.Set("expires", strconv.Itoa(int(ttl/time.Second)))
	}

	var out affixhttp.URLResponse
	if err := c.do(ctx, http.MethodGet, slotPath(ref, slot)+"/url", query, nil, "", &out); err != nil {
		return nil, fmt.Errorf("signed url %s of %s: %w", slot, ref, err)
	}
	return &out, nil
}

// Download streams style of the attachment in slot of ref. The caller must
// close the returned reader.
func (c *Client) Download(ctx context.Context, ref affix.RecordRef, slot, style string) (io.ReadCloser, string, error) {
	if style == "" {
		style = affix.OriginalStyle
	}

	resp, err := c.send(ctx, http.MethodGet, slotPath(ref, slot)+"/styles/"+url.PathEscape(style), nil, nil, "")
	if err != nil {
		return nil, "", fmt.Errorf("download %s of %s: %w", slot, ref, err)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// do sends a request and decodes a JSON response into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// send signs and executes a request. Non-2xx responses are returned as
// *APIError with the body consumed.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	target, err := c.requestURL(method, path, query)
	if err != nil {
		return nil, err
	}

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, parseServerError(resp.StatusCode, respBody)
	}

	return resp, nil
}

// requestURL builds the URL for path, presigned when an access key is set.
func (c *Client) requestURL(method, path string, query url.Values) (string, error) {
	target := c.config.Endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if c.config.AccessKey == "" {
		return target, nil
	}

	creds := affix.Credentials{
		AccessKey: c.config.AccessKey,
		SecretKey: c.config.SecretKey,
		Region:    c.config.Region,
		Service:   c.config.Service,
	}
	signed, err := affix.PresignURL(creds, method, target, DefaultExpires)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return signed, nil
}

func recordPath(ref affix.RecordRef) string {
	return "/records/" + url.PathEscape(ref.Class) + "/" + url.PathEscape(ref.ID)
}

func slotPath(ref affix.RecordRef, slot string) string {
	return recordPath(ref) + "/" + url.PathEscape(slot)
}
