package affix

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// OriginalStyle is the implicit style holding the unprocessed upload.
	OriginalStyle = "original"

	DefaultPathTemplate       = ":attachment/:id/:style/:filename"
	DefaultURLTemplate        = "/system/:attachment/:id/:style/:filename"
	DefaultMissingURLTemplate = "/:attachment/:style/missing.png"
)

// StyleOptions describes one derived variant of an attachment.
type StyleOptions struct {
	// Geometry is passed to geometry-aware transforms, e.g. "100x100>" or "25x25#".
	Geometry string `mapstructure:"geometry"`
	// Format overrides the output extension, e.g. "jpg".
	Format string `mapstructure:"format"`
	// Transforms lists transform names applied in order. Defaults to
	// ["thumbnail"] when Geometry is set.
	Transforms []string `mapstructure:"transforms"`
	// Params holds transform specific settings.
	Params map[string]string `mapstructure:"params"`
}

// Options configures an attachment slot. It is treated as immutable once
// passed to NewAttachment.
type Options struct {
	Backend      string
	Styles       map[string]StyleOptions
	DefaultStyle string
	Path         string
	URL          string
	DefaultURL   string
	// BackendConfig is handed to the backend factory untouched.
	BackendConfig any
	// Tokens adds interpolation tokens for this slot only.
	Tokens map[string]TokenFunc
}

var styleNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// WithDefaults returns a copy with default templates, the default style and
// the implicit original style filled in.
func (o Options) WithDefaults() Options {
	out := o
	if out.DefaultStyle == "" {
		out.DefaultStyle = OriginalStyle
	}
	if out.Path == "" {
		out.Path = DefaultPathTemplate
	}
	if out.URL == "" {
		out.URL = DefaultURLTemplate
	}
	if out.DefaultURL == "" {
		out.DefaultURL = DefaultMissingURLTemplate
	}

	styles := make(map[string]StyleOptions, len(o.Styles)+1)
	for name, s := range o.Styles {
		if len(s.Transforms) == 0 && s.Geometry != "" {
			s.Transforms = []string{"thumbnail"}
		}
		s.Transforms = slices.Clone(s.Transforms)
		styles[name] = s
	}
	if _, ok := styles[OriginalStyle]; !ok {
		styles[OriginalStyle] = StyleOptions{}
	}
	out.Styles = styles

	return out
}

// Validate checks backend selection, style names and templates.
func (o Options) Validate() error {
	if o.Backend == "" {
		return fmt.Errorf("validate options: %w: backend cannot be empty", ErrConfiguration)
	}

	for name := range o.Styles {
		if !styleNameRegex.MatchString(name) {
			return fmt.Errorf("validate options: %w: invalid style name %q", ErrConfiguration, name)
		}
	}

	if _, ok := o.Styles[o.DefaultStyle]; !ok {
		return fmt.Errorf("validate options: %w: default style %q is not configured", ErrConfiguration, o.DefaultStyle)
	}

	templates := map[string]string{"path": o.Path, "url": o.URL, "default_url": o.DefaultURL}
	for label, tmpl := range templates {
		if err := validateTemplate(tmpl); err != nil {
			return fmt.Errorf("validate options: %s template: %w", label, err)
		}
	}

	return nil
}

func validateTemplate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("%w: template cannot be empty", ErrConfiguration)
	}
	if strings.Contains(tmpl, "..") {
		return fmt.Errorf("%w: template %q contains ..", ErrConfiguration, tmpl)
	}
	if strings.HasSuffix(tmpl, ":") {
		return fmt.Errorf("%w: template %q ends with a dangling token marker", ErrConfiguration, tmpl)
	}
	return nil
}

// StyleNames returns the configured style names in sorted order.
func (o Options) StyleNames() []string {
	names := make([]string, 0, len(o.Styles))
	for name := range o.Styles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// File is an upload or a processed variant. Content can be reopened any
// number of times.
type File struct {
	Name        string
	ContentType string
	Size        int64

	open func() (io.ReadCloser, error)
}

// NewFile wraps in-memory content. An empty contentType is detected.
func NewFile(name, contentType string, data []byte) *File {
	if contentType == "" {
		contentType = DetectContentType(name, data)
	}
	return &File{
		Name:        filepath.Base(name),
		ContentType: contentType,
		Size:        int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// ReadFile buffers r into a File.
func ReadFile(name, contentType string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", name, err)
	}
	return NewFile(name, contentType, data), nil
}

// OpenFile references a file on disk. Content is read lazily on Open.
func OpenFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open file %s: %w: is a directory", path, ErrInvalidInput)
	}

	contentType := "application/octet-stream"
	if mt, detectErr := mimetype.DetectFile(path); detectErr == nil {
		contentType = normalizeContentType(path, mt.String())
	}

	return &File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path) //nolint:gosec // path is supplied by the caller
		},
	}, nil
}

// Open returns a fresh reader over the file content.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return f.open()
}

// Bytes reads the full content.
func (f *File) Bytes() ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// DetectContentType sniffs data, falling back to the extension of name for
// generic results.
func DetectContentType(name string, data []byte) string {
	return normalizeContentType(name, mimetype.Detect(data).String())
}

func normalizeContentType(name, detected string) string {
	base, _, err := mime.ParseMediaType(detected)
	if err != nil {
		base = "application/octet-stream"
	}
	if base == "application/octet-stream" || base == "text/plain" {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			if extBase, _, extErr := mime.ParseMediaType(byExt); extErr == nil {
				return extBase
			}
		}
	}
	return base
}

// RecordRef identifies a host record.
type RecordRef struct {
	Class string `json:"class"`
	ID    string `json:"id"`
}

func (r RecordRef) String() string {
	return r.Class + "/" + r.ID
}

// Tables holds configurable table names for record storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	Records string `mapstructure:"records"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Records == "" {
		return errors.New("validate tables: records table name cannot be empty")
	}

	if !IsValidTableName(t.Records) {
		return fmt.Errorf("validate tables: invalid records table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Records)
	}

	return nil
}
