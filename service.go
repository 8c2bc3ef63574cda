package affix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// RecordRepo persists host records and their attachment attributes.
// Implementations must be safe for concurrent use.
type RecordRepo interface {
	// Get loads a record. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, ref RecordRef) (*MapRecord, error)

	// Save creates or replaces the record's attributes.
	Save(ctx context.Context, rec *MapRecord) error

	// Delete removes a record. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, ref RecordRef) error

	// List returns the records of class ordered by id.
	List(ctx context.Context, class string) ([]*MapRecord, error)
}

// ClassOptions maps a record class to its attachment slots.
type ClassOptions map[string]map[string]Options

// ServiceConfig holds configuration options for AttachmentService.
type ServiceConfig struct {
	CleanupTimeout time.Duration // Timeout for finishing a commit after the caller's context ended (default: 30s)
}

// AttachmentService plays the host's persistence role: it loads a record,
// changes one attachment, saves the record and commits the attachment.
// A fresh Attachment is built per call; calls on the same record are
// serialized.
type AttachmentService struct {
	repo           RecordRepo
	registry       *Registry
	classes        ClassOptions
	cleanupTimeout time.Duration

	locks sync.Map
}

func NewAttachmentService(repo RecordRepo, reg *Registry, classes ClassOptions, cfg ServiceConfig) (*AttachmentService, error) {
	if repo == nil {
		return nil, fmt.Errorf("new attachment service: %w: repo cannot be nil", ErrConfiguration)
	}
	if reg == nil {
		return nil, fmt.Errorf("new attachment service: %w: registry cannot be nil", ErrConfiguration)
	}

	for class, slots := range classes {
		for slot, opts := range slots {
			opts = opts.WithDefaults()
			if err := opts.Validate(); err != nil {
				return nil, fmt.Errorf("new attachment service: %s.%s: %w", class, slot, err)
			}
			if _, err := reg.BackendFactory(opts.Backend); err != nil {
				return nil, fmt.Errorf("new attachment service: %s.%s: %w", class, slot, err)
			}
		}
	}

	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = 30 * time.Second
	}

	return &AttachmentService{
		repo:           repo,
		registry:       reg,
		classes:        classes,
		cleanupTimeout: cleanupTimeout,
	}, nil
}

// Classes lists the configured record classes.
func (s *AttachmentService) Classes() []string {
	return slices.Sorted(maps.Keys(s.classes))
}

// Slots lists the attachment slots configured for class.
func (s *AttachmentService) Slots(class string) []string {
	return slices.Sorted(maps.Keys(s.classes[class]))
}

func (s *AttachmentService) options(class, slot string) (Options, error) {
	slots, ok := s.classes[class]
	if !ok {
		return Options{}, fmt.Errorf("%w: unknown class %q", ErrInvalidInput, class)
	}
	opts, ok := slots[slot]
	if !ok {
		return Options{}, fmt.Errorf("%w: unknown attachment %s.%s", ErrInvalidInput, class, slot)
	}
	return opts, nil
}

func (s *AttachmentService) lock(ref RecordRef) func() {
	v, _ := s.locks.LoadOrStore(ref.String(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func validateRef(ref RecordRef) error {
	if ref.Class == "" || ref.ID == "" {
		return fmt.Errorf("%w: class and id cannot be empty", ErrInvalidInput)
	}
	if !IsValidKey(ref.ID) {
		return fmt.Errorf("%w: invalid record id %q", ErrInvalidInput, ref.ID)
	}
	return nil
}

// Attach assigns f to the slot of the record, creating the record when it
// does not exist yet.
//
// The record is saved before the files are committed. When saving fails
// nothing has been written. When the commit is interrupted by the caller's
// context it is resumed in the background with the configured cleanup
// timeout.
func (s *AttachmentService) Attach(ctx context.Context, ref RecordRef, slot string, f *File) (*Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	if err := validateRef(ref); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("attach %s.%s: %w: file cannot be nil", ref, slot, ErrInvalidInput)
	}

	opts, err := s.options(ref.Class, slot)
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}

	defer s.lock(ref)()

	rec, err := s.repo.Get(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		rec, err = NewRecord(ref.Class, ref.ID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", ref, err)
	}

	a, err := NewAttachment(slot, rec, opts, s.registry)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", ref, err)
	}

	if err := a.Assign(ctx, f); err != nil {
		return nil, fmt.Errorf("attach %s: %w", ref, err)
	}

	if err := s.saveAndCommit(ctx, rec, a); err != nil {
		return nil, fmt.Errorf("attach %s: %w", ref, err)
	}

	slog.Info("attached", "record", ref.String(), "attachment", slot, "file", a.FileName(), "size", a.FileSize())
	return a, nil
}

// Detach clears the slot of the record and removes its stored files.
// Returns ErrNotFound when the record or the file does not exist.
func (s *AttachmentService) Detach(ctx context.Context, ref RecordRef, slot string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	if err := validateRef(ref); err != nil {
		return fmt.Errorf("detach: %w", err)
	}

	opts, err := s.options(ref.Class, slot)
	if err != nil {
		return fmt.Errorf("detach: %w", err)
	}

	defer s.lock(ref)()

	rec, err := s.repo.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("detach %s: %w", ref, err)
	}

	a, err := NewAttachment(slot, rec, opts, s.registry)
	if err != nil {
		return fmt.Errorf("detach %s: %w", ref, err)
	}
	if !a.Present() {
		return fmt.Errorf("detach %s.%s: %w", ref, slot, ErrNotFound)
	}

	a.Clear()
	if err := s.saveAndCommit(ctx, rec, a); err != nil {
		return fmt.Errorf("detach %s: %w", ref, err)
	}

	slog.Info("detached", "record", ref.String(), "attachment", slot)
	return nil
}

// Get returns the attachment of the record's slot without changing it.
func (s *AttachmentService) Get(ctx context.Context, ref RecordRef, slot string) (*Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	if err := validateRef(ref); err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}

	opts, err := s.options(ref.Class, slot)
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}

	rec, err := s.repo.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get attachment %s: %w", ref, err)
	}

	a, err := NewAttachment(slot, rec, opts, s.registry)
	if err != nil {
		return nil, fmt.Errorf("get attachment %s: %w", ref, err)
	}
	return a, nil
}

// Open reads one style of a committed attachment.
func (s *AttachmentService) Open(ctx context.Context, ref RecordRef, slot, style string) (*Attachment, io.ReadCloser, error) {
	a, err := s.Get(ctx, ref, slot)
	if err != nil {
		return nil, nil, err
	}
	if style != "" && !slices.Contains(a.Styles(), style) {
		return nil, nil, fmt.Errorf("open %s.%s: %w: unknown style %q", ref, slot, ErrNotFound, style)
	}

	rc, err := a.Open(ctx, style)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", ref, err)
	}
	return a, rc, nil
}

// Record loads a record and every configured attachment of its class.
func (s *AttachmentService) Record(ctx context.Context, ref RecordRef) (*MapRecord, []*Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("get record: %w", err)
	}
	if err := validateRef(ref); err != nil {
		return nil, nil, fmt.Errorf("get record: %w", err)
	}

	rec, err := s.repo.Get(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("get record %s: %w", ref, err)
	}

	attachments, err := s.attachments(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("get record %s: %w", ref, err)
	}
	return rec, attachments, nil
}

// List returns the records of class.
func (s *AttachmentService) List(ctx context.Context, class string) ([]*MapRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if _, ok := s.classes[class]; !ok {
		return nil, fmt.Errorf("list records: %w: unknown class %q", ErrInvalidInput, class)
	}

	records, err := s.repo.List(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", class, err)
	}
	return records, nil
}

// DeleteRecord removes every stored file of the record, then the record.
// Files are removed first so a failure leaves a record that can be retried.
func (s *AttachmentService) DeleteRecord(ctx context.Context, ref RecordRef) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if err := validateRef(ref); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	defer s.lock(ref)()

	rec, err := s.repo.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", ref, err)
	}

	attachments, err := s.attachments(rec)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", ref, err)
	}
	for _, a := range attachments {
		if err := a.Destroy(ctx); err != nil {
			return fmt.Errorf("delete record %s: %w", ref, err)
		}
	}

	if err := s.repo.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete record %s: %w", ref, err)
	}

	slog.Info("record deleted", "record", ref.String(), "attachments", len(attachments))
	return nil
}

func (s *AttachmentService) attachments(rec *MapRecord) ([]*Attachment, error) {
	slots := s.Slots(rec.ClassName())
	out := make([]*Attachment, 0, len(slots))
	for _, slot := range slots {
		a, err := NewAttachment(slot, rec, s.classes[rec.ClassName()][slot], s.registry)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *AttachmentService) saveAndCommit(ctx context.Context, rec *MapRecord, a *Attachment) error {
	if err := s.repo.Save(ctx, rec); err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	commitErr := a.Commit(ctx)
	if commitErr == nil || ctx.Err() == nil {
		return commitErr
	}

	// Use background context since the original context has ended
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()

	slog.Warn("resuming interrupted commit", "record", a.recordLabel(), "attachment", a.name, "err", commitErr)
	if err := a.Commit(cleanupCtx); err != nil {
		return fmt.Errorf("commit interrupted (%w) and resume failed: %w", commitErr, err)
	}
	return nil
}

// AttachmentInfo is the serializable view of an attachment.
type AttachmentInfo struct {
	Record      RecordRef         `json:"record" yaml:"record"`
	Name        string            `json:"name" yaml:"name"`
	Present     bool              `json:"present" yaml:"present"`
	FileName    string            `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	ContentType string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	FileSize    int64             `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Styles      map[string]string `json:"styles" yaml:"styles"`
}

// Describe returns the view of a, with the URL of every style.
func Describe(a *Attachment) AttachmentInfo {
	info := AttachmentInfo{
		Record:  RecordRef{Class: a.record.ClassName(), ID: a.record.ID()},
		Name:    a.name,
		Present: a.Present(),
		Styles:  make(map[string]string, len(a.options.Styles)),
	}
	if info.Present {
		info.FileName = a.FileName()
		info.ContentType = a.ContentType()
		info.FileSize = a.FileSize()
		if ts := a.UpdatedAt(); !ts.IsZero() {
			info.UpdatedAt = &ts
		}
	}
	for _, style := range a.Styles() {
		info.Styles[style] = a.URL(style)
	}
	return info
}
