// Package metadata stores image records, tags and their associations, and
// answers the filtered, paginated and random reads the image host serves.
//
// All multi-statement writes run inside a single database transaction. The
// package holds no locks of its own; isolation is whatever the underlying
// engine provides.
package metadata

import (
	"errors"
	"strings"
	"time"

	"github.com/petermazzocco/go-image-host/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPageSize is used when a listing asks for a non-positive limit.
const DefaultPageSize = 20

// lookupChunkSize bounds the number of bound parameters in a single IN list.
const lookupChunkSize = 500

var (
	ErrInvalidRecord = errors.New("metadata: invalid image record")
	ErrInvalidTag    = errors.New("metadata: invalid tag name")
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used by ListExpiredImages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:  db,
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImageRecord is one uploaded image together with its tag names.
type ImageRecord struct {
	ID           string             `json:"id"`
	OriginalName string             `json:"original_name"`
	UploadTime   time.Time          `json:"upload_time"`
	ExpiryTime   *time.Time         `json:"expiry_time"`
	Orientation  models.Orientation `json:"orientation"`
	Format       string             `json:"format"`
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	PathOriginal string             `json:"path_original"`
	PathWebP     string             `json:"path_webp,omitempty"`
	PathAVIF     string             `json:"path_avif,omitempty"`
	SizeOriginal int64              `json:"size_original"`
	SizeWebP     int64              `json:"size_webp"`
	SizeAVIF     int64              `json:"size_avif"`
	Tags         []string           `json:"tags"`
}

// ImageUpdate describes a partial update. Only fields whose Set flag is true
// are considered.
type ImageUpdate struct {
	SetExpiry  bool
	ExpiryTime *time.Time

	SetTags bool
	Tags    []string
}

type TagCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count" gorm:"column:image_count"`
}

func (r ImageRecord) validate() error {
	switch {
	case r.ID == "":
		return ErrInvalidRecord
	case r.Width <= 0 || r.Height <= 0:
		return ErrInvalidRecord
	case r.SizeOriginal <= 0 || r.SizeWebP < 0 || r.SizeAVIF < 0:
		return ErrInvalidRecord
	case !r.Orientation.Valid():
		return ErrInvalidRecord
	case r.PathOriginal == "":
		return ErrInvalidRecord
	}
	return nil
}

func (r ImageRecord) toModel() models.Image {
	return models.Image{
		ID:           r.ID,
		OriginalName: r.OriginalName,
		UploadTime:   r.UploadTime.UTC(),
		ExpiryTime:   utc(r.ExpiryTime),
		Orientation:  r.Orientation,
		Format:       r.Format,
		Width:        r.Width,
		Height:       r.Height,
		PathOriginal: r.PathOriginal,
		PathWebP:     nullString(r.PathWebP),
		PathAVIF:     nullString(r.PathAVIF),
		SizeOriginal: r.SizeOriginal,
		SizeWebP:     r.SizeWebP,
		SizeAVIF:     r.SizeAVIF,
	}
}

func fromModel(row models.Image, tags []string) ImageRecord {
	if tags == nil {
		tags = []string{}
	}
	return ImageRecord{
		ID:           row.ID,
		OriginalName: row.OriginalName,
		UploadTime:   row.UploadTime,
		ExpiryTime:   row.ExpiryTime,
		Orientation:  row.Orientation,
		Format:       row.Format,
		Width:        row.Width,
		Height:       row.Height,
		PathOriginal: row.PathOriginal,
		PathWebP:     derefString(row.PathWebP),
		PathAVIF:     derefString(row.PathAVIF),
		SizeOriginal: row.SizeOriginal,
		SizeWebP:     row.SizeWebP,
		SizeAVIF:     row.SizeAVIF,
		Tags:         tags,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NormalizeTags trims every name, drops empty ones and removes duplicates
// while keeping the first occurrence order. Names stay case-sensitive.
func NormalizeTags(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// diffTags returns the names only in next (to add) and only in current (to
// remove).
func diffTags(current, next []string) (added, removed []string) {
	have := make(map[string]struct{}, len(current))
	for _, name := range current {
		have[name] = struct{}{}
	}
	want := make(map[string]struct{}, len(next))
	for _, name := range next {
		want[name] = struct{}{}
		if _, ok := have[name]; !ok {
			added = append(added, name)
		}
	}
	for _, name := range current {
		if _, ok := want[name]; !ok {
			removed = append(removed, name)
		}
	}
	return added, removed
}

// utc stores every timestamp in UTC so that engines comparing them as text
// order them correctly.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
