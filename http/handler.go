package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sagarc03/affix"
)

// FilesPrefix is the route below which filesystem blobs are served.
const FilesPrefix = "/files/"

// Service is the attachment API the handler drives. *affix.AttachmentService
// satisfies it.
type Service interface {
	Attach(ctx context.Context, ref affix.RecordRef, slot string, f *affix.File) (*affix.Attachment, error)
	Detach(ctx context.Context, ref affix.RecordRef, slot string) error
	Get(ctx context.Context, ref affix.RecordRef, slot string) (*affix.Attachment, error)
	Open(ctx context.Context, ref affix.RecordRef, slot, style string) (*affix.Attachment, io.ReadCloser, error)
	Record(ctx context.Context, ref affix.RecordRef) (*affix.MapRecord, []*affix.Attachment, error)
	List(ctx context.Context, class string) ([]*affix.MapRecord, error)
	DeleteRecord(ctx context.Context, ref affix.RecordRef) error
}

// FileSource serves stored blobs by key. *filesystem.Store satisfies it.
type FileSource interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	ReadVerifier  RequestVerifier
	WriteVerifier RequestVerifier
	CORS          CORSConfig
	// Files enables GET /files/* when set.
	Files FileSource
	// FilesVerifier guards the files route. Signed filesystem URLs are
	// checked here regardless of the read policy.
	FilesVerifier RequestVerifier
	// MaxUploadSize limits request bodies in bytes. Zero means no limit.
	MaxUploadSize int64
}

// Handler provides HTTP handlers for attachment operations.
type Handler struct {
	config  HandlerConfig
	service Service
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	return &Handler{
		config:  *config,
		service: service,
	}
}

// RecordResponse is the JSON view of a record.
type RecordResponse struct {
	Class       string                 `json:"class"`
	ID          string                 `json:"id"`
	Attributes  map[string]any         `json:"attributes"`
	Attachments []affix.AttachmentInfo `json:"attachments,omitempty"`
}

// URLResponse carries a signed URL.
type URLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Router returns an http.Handler with the record and file routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.config.ReadVerifier))
		r.Get("/records/{class}", h.handleList)
		r.Get("/records/{class}/{id}", h.handleRecord)
		r.Get("/records/{class}/{id}/{slot}", h.handleInfo)
		r.Get("/records/{class}/{id}/{slot}/url", h.handleSignedURL)
		r.Get("/records/{class}/{id}/{slot}/styles/{style}", h.handleDownload)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.config.WriteVerifier))
		r.Put("/records/{class}/{id}/{slot}", h.handlePut)
		r.Delete("/records/{class}/{id}/{slot}", h.handleDetach)
		r.Delete("/records/{class}/{id}", h.handleDeleteRecord)
	})

	if h.config.Files != nil {
		r.Group(func(r chi.Router) {
			r.Use(KeyValidationMiddleware(FilesPrefix))
			r.Use(AuthMiddleware(h.config.FilesVerifier))
			r.Get(FilesPrefix+"*", h.handleFile)
		})
	}

	return r
}

func refFrom(r *http.Request) affix.RecordRef {
	return affix.RecordRef{Class: chi.URLParam(r, "class"), ID: chi.URLParam(r, "id")}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context(), chi.URLParam(r, "class"))
	if err != nil {
		HandleError(w, err)
		return
	}

	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordResponse{
			Class:      rec.ClassName(),
			ID:         rec.ID(),
			Attributes: rec.Attributes(),
		})
	}

	_ = WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, attachments, err := h.service.Record(r.Context(), refFrom(r))
	if err != nil {
		HandleError(w, err)
		return
	}

	resp := RecordResponse{
		Class:       rec.ClassName(),
		ID:          rec.ID(),
		Attributes:  rec.Attributes(),
		Attachments: make([]affix.AttachmentInfo, 0, len(attachments)),
	}
	for _, a := range attachments {
		resp.Attachments = append(resp.Attachments, affix.Describe(a))
	}

	_ = WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), refFrom(r), chi.URLParam(r, "slot"))
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, affix.Describe(a))
}

func (h *Handler) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	ttl := affix.DefaultSignedURLTTL
	if expires := r.URL.Query().Get("expires"); expires != "" {
		seconds, err := strconv.Atoi(expires)
		if err != nil || seconds <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid_input", "expires must be a positive number of seconds")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	a, err := h.service.Get(r.Context(), refFrom(r), chi.URLParam(r, "slot"))
	if err != nil {
		HandleError(w, err)
		return
	}

	signed, err := a.SignedURL(r.Context(), r.URL.Query().Get("style"), ttl)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, URLResponse{URL: signed, ExpiresAt: time.Now().Add(ttl).UTC()})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	style := chi.URLParam(r, "style")

	a, content, err := h.service.Open(r.Context(), refFrom(r), chi.URLParam(r, "slot"), style)
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	contentType := a.ContentType()
	if style != affix.OriginalStyle {
		if byExt := mime.TypeByExtension(path.Ext(a.Path(style))); byExt != "" {
			contentType = byExt
		}
	}

	w.Header().Set("Content-Type", contentType)
	if rs, ok := content.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(a.Path(style)), a.UpdatedAt(), rs)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, content)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	}

	f, err := readUpload(r)
	if err != nil {
		HandleError(w, err)
		return
	}

	a, err := h.service.Attach(r.Context(), refFrom(r), chi.URLParam(r, "slot"), f)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, affix.Describe(a))
}

// readUpload accepts either a multipart form with a "file" field or a raw
// body named by the filename query parameter or Content-Disposition.
func readUpload(r *http.Request) (*affix.File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		part, header, err := r.FormFile("file")
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, err
			}
			return nil, fmt.Errorf("read upload: %w: %w", affix.ErrInvalidInput, err)
		}
		defer func() { _ = part.Close() }()
		return affix.ReadFile(header.Filename, declaredType(header.Header.Get("Content-Type")), part)
	}

	name := r.URL.Query().Get("filename")
	if name == "" {
		if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition")); err == nil {
			name = params["filename"]
		}
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("read upload: %w: filename is required", affix.ErrInvalidInput)
	}

	return affix.ReadFile(name, declaredType(mediaType), r.Body)
}

// declaredType drops generic client content types so the upload is sniffed.
func declaredType(ct string) string {
	if ct == "application/octet-stream" {
		return ""
	}
	return ct
}

func (h *Handler) handleDetach(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Detach(r.Context(), refFrom(r), chi.URLParam(r, "slot")); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRecord(r.Context(), refFrom(r)); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, FilesPrefix)

	content, err := h.config.Files.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, affix.ErrNotFound) {
			writeFileNotFound(w, key)
		} else {
			HandleError(w, err)
		}
		return
	}
	defer func() { _ = content.Close() }()

	if rs, ok := content.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(key), time.Time{}, rs)
		return
	}

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, content)
}
