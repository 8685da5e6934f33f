package metadata

import (
	"context"
	"math"
	"strings"

	"github.com/petermazzocco/go-image-host/models"
	"gorm.io/gorm"
)

type ListFilter struct {
	Page        int
	Limit       int
	Tag         string
	Orientation models.Orientation
}

type RandomFilter struct {
	Tags        []string
	Exclude     []string
	Orientation models.Orientation
}

type ImagePage struct {
	Images []ImageRecord `json:"images"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

// ListImageIDs returns every image ID, newest upload first, optionally
// restricted to one orientation.
func (s *Service) ListImageIDs(ctx context.Context, orientation models.Orientation) ([]string, error) {
	ids := make([]string, 0)
	err := s.images(ctx, imageFilter{Orientation: orientation}).
		Scopes(newestFirst).
		Pluck("images.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListImages returns one page of records, newest first, and the number of
// records matching the same filter before pagination. Pages are 1-based.
func (s *Service) ListImages(ctx context.Context, filter ListFilter) (*ImagePage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	// Keeps the offset from overflowing.
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}

	f := imageFilter{
		Orientation: filter.Orientation,
		Tag:         strings.TrimSpace(filter.Tag),
	}

	var total int64
	if err := s.images(ctx, f).Distinct("images.id").Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []models.Image
	err := s.images(ctx, f).
		Select("images.*").
		Scopes(newestFirst).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records, err := s.withTags(ctx, rows)
	if err != nil {
		return nil, err
	}

	return &ImagePage{
		Images: records,
		Total:  total,
		Page:   page,
		Limit:  limit,
	}, nil
}

// GetRandomImage picks one matching image uniformly at random, or returns
// nil when none matches. An image qualifies when it carries every tag in
// Tags, none of the tags in Exclude, and has the requested orientation.
func (s *Service) GetRandomImage(ctx context.Context, filter RandomFilter) (*ImageRecord, error) {
	f := imageFilter{
		Orientation: filter.Orientation,
		AllTags:     NormalizeTags(filter.Tags),
		ExcludeTags: NormalizeTags(filter.Exclude),
	}

	var rows []models.Image
	err := s.images(ctx, f).
		Select("images.*").
		Order("RANDOM()").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records, err := s.withTags(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// ListExpiredImages returns the records whose expiry time is set and already
// in the past, soonest expiry first. Nothing is deleted here.
func (s *Service) ListExpiredImages(ctx context.Context) ([]ImageRecord, error) {
	now := s.now().UTC()

	var rows []models.Image
	err := s.images(ctx, imageFilter{ExpiredBefore: &now}).
		Order("images.expiry_time ASC").
		Order("images.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return s.withTags(ctx, rows)
}

// images starts a fresh query over the images table with f applied.
func (s *Service) images(ctx context.Context, f imageFilter) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Image{}).Scopes(f.scopes()...)
}

func (s *Service) withTags(ctx context.Context, rows []models.Image) ([]ImageRecord, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	tags, err := loadTags(s.db.WithContext(ctx), ids)
	if err != nil {
		return nil, err
	}

	records := make([]ImageRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, fromModel(row, tags[row.ID]))
	}
	return records, nil
}
