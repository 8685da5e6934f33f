// Package handlers exposes the image metadata over HTTP.
package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/petermazzocco/go-image-host/internal/cache"
	"github.com/petermazzocco/go-image-host/internal/compress"
	"github.com/petermazzocco/go-image-host/internal/metadata"
	"github.com/petermazzocco/go-image-host/internal/storage"
	"github.com/petermazzocco/go-image-host/models"
	"go.uber.org/zap"
)

// MaxPageSize caps the limit a client may ask for.
const MaxPageSize = 100

// Metadata is the store behind the handlers; *metadata.Service satisfies it.
type Metadata interface {
	SaveImage(ctx context.Context, rec metadata.ImageRecord) error
	GetImage(ctx context.Context, id string) (*metadata.ImageRecord, error)
	UpdateImage(ctx context.Context, id string, upd metadata.ImageUpdate) (*metadata.ImageRecord, error)
	DeleteImage(ctx context.Context, id string) (bool, error)
	ListImages(ctx context.Context, filter metadata.ListFilter) (*metadata.ImagePage, error)
	GetRandomImage(ctx context.Context, filter metadata.RandomFilter) (*metadata.ImageRecord, error)
	ListTags(ctx context.Context) ([]metadata.TagCount, error)
	CreateTag(ctx context.Context, name string) (bool, error)
	RenameTag(ctx context.Context, oldName, newName string) (int64, error)
	DeleteTag(ctx context.Context, name string) (int64, error)
	BatchUpdateTags(ctx context.Context, imageIDs, addTags, removeTags []string) (int, error)
}

type Handler struct {
	meta       Metadata
	blobs      storage.BlobStore
	compressor compress.Compressor
	compress   compress.Options
	cache      cache.Cache
	log        *zap.Logger

	maxUpload  int64
	newID      func() string
	now        func() time.Time
	invalidate func(scope cache.Scope)
}

type Option func(*Handler)

func WithCache(c cache.Cache) Option {
	return func(h *Handler) {
		if c != nil {
			h.cache = c
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

func WithCompressOptions(opts compress.Options) Option {
	return func(h *Handler) {
		h.compress = opts
	}
}

// WithMaxUploadSize bounds the multipart body of an upload.
func WithMaxUploadSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

func New(meta Metadata, blobs storage.BlobStore, compressor compress.Compressor, opts ...Option) *Handler {
	h := &Handler{
		meta:       meta,
		blobs:      blobs,
		compressor: compressor,
		cache:      cache.Nop{},
		log:        zap.NewNop(),
		maxUpload:  32 << 20,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.invalidate = func(scope cache.Scope) {
		cache.InvalidateAsync(h.cache, scope, h.log)
	}
	return h
}

// imageResponse is an ImageRecord plus the public addresses of its blobs.
type imageResponse struct {
	metadata.ImageRecord
	URLs imageURLs `json:"urls"`
}

type imageURLs struct {
	Original string `json:"original"`
	WebP     string `json:"webp,omitempty"`
	AVIF     string `json:"avif,omitempty"`
}

type listResponse struct {
	Images []imageResponse `json:"images"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

func (h *Handler) present(rec metadata.ImageRecord) imageResponse {
	return imageResponse{
		ImageRecord: rec,
		URLs: imageURLs{
			Original: h.blobs.URL(rec.PathOriginal),
			WebP:     h.blobs.URL(rec.PathWebP),
			AVIF:     h.blobs.URL(rec.PathAVIF),
		},
	}
}

func (h *Handler) presentPage(page *metadata.ImagePage) listResponse {
	out := listResponse{
		Images: make([]imageResponse, 0, len(page.Images)),
		Total:  page.Total,
		Page:   page.Page,
		Limit:  page.Limit,
	}
	for _, rec := range page.Images {
		out.Images = append(out.Images, h.present(rec))
	}
	return out
}

func parseOrientation(s string) (models.Orientation, bool) {
	if s == "" {
		return "", true
	}
	o := models.Orientation(s)
	return o, o.Valid()
}
