package metadata

import (
	"context"
	"errors"

	"github.com/petermazzocco/go-image-host/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SaveImage inserts rec together with its tag set in one transaction. Tags
// that do not exist yet are created. An existing ID is a caller error and
// the engine's constraint violation is returned as is.
func (s *Service) SaveImage(ctx context.Context, rec ImageRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}

	row := rec.toModel()
	tags := NormalizeTags(rec.Tags)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return linkTags(tx, []string{row.ID}, tags)
	})
	if err != nil {
		return err
	}

	s.log.Debug("image saved", zap.String("id", rec.ID), zap.Strings("tags", tags))
	return nil
}

// GetImage returns the record for id, or nil when there is none.
func (s *Service) GetImage(ctx context.Context, id string) (*ImageRecord, error) {
	var row models.Image
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	tags, err := loadTags(s.db.WithContext(ctx), []string{row.ID})
	if err != nil {
		return nil, err
	}

	rec := fromModel(row, tags[row.ID])
	return &rec, nil
}

// UpdateImage applies upd to the image and returns the refreshed record, or
// nil when the image does not exist. When nothing would change no write is
// issued.
func (s *Service) UpdateImage(ctx context.Context, id string, upd ImageUpdate) (*ImageRecord, error) {
	current, err := s.GetImage(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}

	setExpiry := upd.SetExpiry && !sameTime(current.ExpiryTime, upd.ExpiryTime)

	var added, removed []string
	if upd.SetTags {
		added, removed = diffTags(current.Tags, NormalizeTags(upd.Tags))
	}

	if !setExpiry && len(added) == 0 && len(removed) == 0 {
		return current, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if setExpiry {
			if err := tx.Model(&models.Image{}).Where("id = ?", id).Update("expiry_time", utc(upd.ExpiryTime)).Error; err != nil {
				return err
			}
		}
		if err := unlinkTags(tx, []string{id}, removed); err != nil {
			return err
		}
		return linkTags(tx, []string{id}, added)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("image updated",
		zap.String("id", id),
		zap.Bool("expiry_changed", setExpiry),
		zap.Strings("tags_added", added),
		zap.Strings("tags_removed", removed),
	)
	return s.GetImage(ctx, id)
}

// DeleteImage removes the image; its associations go with it by cascade.
// The result reports whether a row was actually deleted.
func (s *Service) DeleteImage(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Image{})
	if result.Error != nil {
		return false, result.Error
	}

	deleted := result.RowsAffected > 0
	if deleted {
		s.log.Debug("image deleted", zap.String("id", id))
	}
	return deleted, nil
}
