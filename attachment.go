package affix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// DefaultSignedURLTTL is used by SignedURL when no ttl is given.
const DefaultSignedURLTTL = time.Hour

// Attachment binds one file slot of a host record to its stored styles.
//
// The lifecycle has three implicit states: empty (no file name on the
// record), staged (metadata set and processed files held in memory) and
// committed (files persisted, staging cleared). Assign and Clear move
// between them in memory; Commit flushes to the backend.
//
// An Attachment is not safe for concurrent use.
type Attachment struct {
	name     string
	record   Record
	options  Options
	backend  Backend
	interp   *Interpolator
	pipeline *Pipeline

	pendingWrites  map[string]*File
	pendingDeletes []string
	existingPaths  map[string]string
}

// NewAttachment builds the attachment for slot name on record. The backend
// is resolved from reg once and kept for the attachment's lifetime. The
// current keys of a present file are snapshotted for the next Commit.
func NewAttachment(name string, record Record, opts Options, reg *Registry) (*Attachment, error) {
	if name == "" {
		return nil, fmt.Errorf("new attachment: %w: name cannot be empty", ErrConfiguration)
	}
	if record == nil {
		return nil, fmt.Errorf("new attachment %s: %w: record cannot be nil", name, ErrConfiguration)
	}
	if reg == nil {
		return nil, fmt.Errorf("new attachment %s: %w: registry cannot be nil", name, ErrConfiguration)
	}

	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("new attachment %s: %w", name, err)
	}

	factory, err := reg.BackendFactory(opts.Backend)
	if err != nil {
		return nil, fmt.Errorf("new attachment %s: %w", name, err)
	}

	a := &Attachment{
		name:          name,
		record:        record,
		options:       opts,
		interp:        NewInterpolator(),
		pipeline:      NewPipeline(reg),
		pendingWrites: make(map[string]*File),
	}

	backend, err := factory(a)
	if err != nil {
		return nil, fmt.Errorf("new attachment %s: backend %s: %w: %w", name, opts.Backend, ErrConfiguration, err)
	}
	a.backend = backend

	if ts, ok := backend.(TokenSource); ok {
		a.interp = a.interp.With(ts.Tokens())
	}
	if len(opts.Tokens) > 0 {
		a.interp = a.interp.With(opts.Tokens)
	}

	if us, ok := backend.(URLTokenSource); ok {
		urlTokens := us.URLTokens()
		for _, token := range a.interp.Referenced(opts.Path) {
			if slices.Contains(urlTokens, token) {
				return nil, fmt.Errorf("new attachment %s: %w: path template %q uses url token :%s", name, ErrConfiguration, opts.Path, token)
			}
		}
	}

	a.setExistingPaths()

	return a, nil
}

// Name returns the slot name.
func (a *Attachment) Name() string { return a.name }

// Record returns the owning host record.
func (a *Attachment) Record() Record { return a.record }

// Options returns the normalized options.
func (a *Attachment) Options() Options { return a.options }

// Backend returns the resolved storage backend.
func (a *Attachment) Backend() Backend { return a.backend }

// Styles returns the style names, including "original", sorted.
func (a *Attachment) Styles() []string { return a.options.StyleNames() }

// DefaultStyle returns the style used when none is given.
func (a *Attachment) DefaultStyle() string { return a.options.DefaultStyle }

// FileName returns the sanitized name of the assigned file, or "" when blank.
func (a *Attachment) FileName() string {
	return attrString(a.record.Get(a.attr("file_name")))
}

// ContentType returns the stored MIME type.
func (a *Attachment) ContentType() string {
	return attrString(a.record.Get(a.attr("content_type")))
}

// FileSize returns the stored size in bytes.
func (a *Attachment) FileSize() int64 {
	return attrInt(a.record.Get(a.attr("file_size")))
}

// UpdatedAt returns the time of the last assignment, or the zero time.
func (a *Attachment) UpdatedAt() time.Time {
	return attrTime(a.record.Get(a.attr("updated_at")))
}

// Present reports whether the record currently names a file.
func (a *Attachment) Present() bool {
	return a.FileName() != ""
}

// Path renders the storage key of style. An empty style means the default
// style.
func (a *Attachment) Path(style string) string {
	return a.interp.Interpolate(a.options.Path, a, a.styleOrDefault(style))
}

// URL renders the public URL of style, or the default URL when no file is
// present.
func (a *Attachment) URL(style string) string {
	style = a.styleOrDefault(style)
	if a.Present() {
		return a.interp.Interpolate(a.options.URL, a, style)
	}
	return a.interp.Interpolate(a.options.DefaultURL, a, style)
}

// Interpolate renders an arbitrary template against this attachment.
func (a *Attachment) Interpolate(tmpl, style string) string {
	return a.interp.Interpolate(tmpl, a, a.styleOrDefault(style))
}

// SignedURL returns a time-limited URL for style. It fails with
// ErrUnsupported when the backend cannot sign and ErrNotFound when no file is
// present.
func (a *Attachment) SignedURL(ctx context.Context, style string, ttl time.Duration) (string, error) {
	signer, ok := a.backend.(Signer)
	if !ok {
		return "", fmt.Errorf("signed url %s: %w: backend %s cannot sign", a.name, ErrUnsupported, a.options.Backend)
	}
	if !a.Present() {
		return "", fmt.Errorf("signed url %s: %w", a.name, ErrNotFound)
	}
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return signer.SignedURL(ctx, a.Path(style), ttl)
}

// Open reads the committed blob of style.
func (a *Attachment) Open(ctx context.Context, style string) (io.ReadCloser, error) {
	if !a.Present() {
		return nil, fmt.Errorf("open %s: %w", a.name, ErrNotFound)
	}
	rc, err := a.backend.Open(ctx, a.Path(style))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.name, err)
	}
	return rc, nil
}

// Assign replaces the current file with f. The current state is cleared
// first, so previously committed keys are queued for deletion. Metadata is
// written to the record and every style is processed and staged for the next
// Commit. A nil f is the same as Clear.
//
// When processing fails the attachment and record are restored to their
// state before the call and the error wraps ErrProcessing. When a before
// hook vetoes processing the metadata is kept but nothing is staged.
func (a *Attachment) Assign(ctx context.Context, f *File) error {
	if f == nil {
		a.Clear()
		return nil
	}

	prev := a.saveState()
	a.Clear()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	a.record.Set(a.attr("file_name"), SanitizeFilename(f.Name))
	a.record.Set(a.attr("content_type"), contentType)
	a.record.Set(a.attr("file_size"), f.Size)
	a.record.Set(a.attr("updated_at"), time.Now().UTC())

	files, err := a.pipeline.Process(ctx, a, f)
	if err != nil {
		a.restoreState(prev)
		return fmt.Errorf("assign %s: %w", a.name, err)
	}

	if files == nil {
		slog.Warn("assigned without processed styles", "attachment", a.name, "record", a.recordLabel())
		files = make(map[string]*File)
	}
	a.pendingWrites = files

	return nil
}

// Clear discards staged files, queues every key of a present file for
// deletion and unsets the metadata attributes.
func (a *Attachment) Clear() {
	clear(a.pendingWrites)

	if a.Present() {
		for _, style := range a.Styles() {
			a.queueDelete(a.Path(style))
		}
	}

	a.record.Set(a.attr("file_name"), nil)
	a.record.Set(a.attr("content_type"), nil)
	a.record.Set(a.attr("file_size"), nil)
	a.record.Set(a.attr("updated_at"), nil)
}

// Commit flushes staged work to the backend in a fixed order: renames of
// previously committed keys to their current keys, writes of staged files,
// deletes of queued keys. It then snapshots the current keys.
//
// Each phase drops an item from its queue only after the item succeeded, so
// calling Commit again after a failure resumes where it stopped. A crash
// between the rename and write phases loses the staged files; they live only
// in memory.
func (a *Attachment) Commit(ctx context.Context) error {
	if err := a.flushRenames(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", a.name, err)
	}
	if err := a.flushWrites(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", a.name, err)
	}
	if err := a.flushDeletes(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", a.name, err)
	}

	a.setExistingPaths()
	return nil
}

// Destroy clears the attachment and commits, removing every stored style.
func (a *Attachment) Destroy(ctx context.Context) error {
	a.Clear()
	return a.Commit(ctx)
}

// PendingState describes work staged for the next Commit.
type PendingState struct {
	Writes  []string `json:"writes"`
	Deletes []string `json:"deletes"`
	Renames []string `json:"renames"`
}

// Pending reports the staged work.
func (a *Attachment) Pending() PendingState {
	return PendingState{
		Writes:  slices.Sorted(maps.Keys(a.pendingWrites)),
		Deletes: slices.Clone(a.pendingDeletes),
		Renames: slices.Sorted(maps.Keys(a.existingPaths)),
	}
}

func (a *Attachment) flushRenames(ctx context.Context) error {
	if !a.Present() {
		return nil
	}

	for _, style := range slices.Sorted(maps.Keys(a.existingPaths)) {
		oldKey := a.existingPaths[style]
		newKey := a.Path(style)

		if oldKey != newKey {
			slog.Debug("rename", "attachment", a.name, "style", style, "from", oldKey, "to", newKey)
			if err := a.backend.Rename(ctx, oldKey, newKey); err != nil {
				return fmt.Errorf("rename %s to %s: %w: %w", oldKey, newKey, ErrStorage, err)
			}
		}
		delete(a.existingPaths, style)
	}

	return nil
}

func (a *Attachment) flushWrites(ctx context.Context) error {
	for _, style := range slices.Sorted(maps.Keys(a.pendingWrites)) {
		f := a.pendingWrites[style]
		if f.ContentType == "" {
			withType := *f
			withType.ContentType = a.ContentType()
			f = &withType
		}

		key := a.Path(style)
		slog.Debug("write", "attachment", a.name, "style", style, "key", key, "size", f.Size)
		if err := a.backend.Write(ctx, key, f); err != nil {
			return fmt.Errorf("write %s: %w: %w", key, ErrStorage, err)
		}
		delete(a.pendingWrites, style)
	}

	return nil
}

func (a *Attachment) flushDeletes(ctx context.Context) error {
	live := make(map[string]struct{})
	for _, key := range a.livePaths() {
		live[key] = struct{}{}
	}

	for len(a.pendingDeletes) > 0 {
		key := a.pendingDeletes[0]
		if _, ok := live[key]; ok {
			slog.Debug("delete skipped, key is live", "attachment", a.name, "key", key)
		} else {
			slog.Debug("delete", "attachment", a.name, "key", key)
			if err := a.backend.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w: %w", key, ErrStorage, err)
			}
		}
		a.pendingDeletes = a.pendingDeletes[1:]
	}
	a.pendingDeletes = nil

	return nil
}

func (a *Attachment) setExistingPaths() {
	a.existingPaths = a.livePaths()
}

// livePaths maps every style to its current key, or is empty when no file
// is present.
func (a *Attachment) livePaths() map[string]string {
	paths := make(map[string]string)
	if !a.Present() {
		return paths
	}
	for _, style := range a.Styles() {
		paths[style] = a.Path(style)
	}
	return paths
}

func (a *Attachment) queueDelete(key string) {
	if !slices.Contains(a.pendingDeletes, key) {
		a.pendingDeletes = append(a.pendingDeletes, key)
	}
}

func (a *Attachment) callback(name string) bool {
	hs, ok := a.record.(HookSource)
	if !ok {
		return true
	}
	proceed, _ := hs.InvokeHook(name)
	return proceed
}

func (a *Attachment) attr(suffix string) string {
	return a.name + "_" + suffix
}

func (a *Attachment) styleOrDefault(style string) string {
	if style == "" {
		return a.options.DefaultStyle
	}
	return style
}

func (a *Attachment) recordLabel() string {
	return a.record.ClassName() + "/" + a.record.ID()
}

type attachmentState struct {
	attrs          map[string]any
	pendingWrites  map[string]*File
	pendingDeletes []string
}

func (a *Attachment) saveState() attachmentState {
	attrs := make(map[string]any, 4)
	for _, suffix := range []string{"file_name", "content_type", "file_size", "updated_at"} {
		attrs[suffix] = a.record.Get(a.attr(suffix))
	}
	return attachmentState{
		attrs:          attrs,
		pendingWrites:  maps.Clone(a.pendingWrites),
		pendingDeletes: slices.Clone(a.pendingDeletes),
	}
}

func (a *Attachment) restoreState(s attachmentState) {
	for suffix, v := range s.attrs {
		a.record.Set(a.attr(suffix), v)
	}
	a.pendingWrites = s.pendingWrites
	if a.pendingWrites == nil {
		a.pendingWrites = make(map[string]*File)
	}
	a.pendingDeletes = s.pendingDeletes
}
