package metadata

import (
	"context"
	"strings"

	"github.com/petermazzocco/go-image-host/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListTags returns every tag with its association count, including tags no
// image uses, ordered by name.
func (s *Service) ListTags(ctx context.Context) ([]TagCount, error) {
	tags := make([]TagCount, 0)
	err := s.db.WithContext(ctx).
		Table("tags").
		Select("tags.name AS name, COUNT(image_tags.image_id) AS image_count").
		Joins("LEFT JOIN image_tags ON image_tags.tag_id = tags.id").
		Group("tags.id, tags.name").
		Order("tags.name ASC").
		Scan(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// CreateTag creates name unless it already exists. The result reports
// whether a new tag was created.
func (s *Service) CreateTag(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidTag
	}

	created, err := upsertTags(s.db.WithContext(ctx), []string{name})
	if err != nil {
		return false, err
	}
	if created > 0 {
		s.log.Debug("tag created", zap.String("name", name))
	}
	return created > 0, nil
}

// RenameTag renames oldName in place; associations follow the tag identity.
// It returns the number of images using the tag, read before the rename and
// not serialized against concurrent writers. A missing oldName yields 0.
func (s *Service) RenameTag(ctx context.Context, oldName, newName string) (int64, error) {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return 0, ErrInvalidTag
	}

	count, err := tagUsage(s.db.WithContext(ctx), oldName)
	if err != nil {
		return 0, err
	}
	if oldName == newName {
		return count, nil
	}

	result := s.db.WithContext(ctx).Model(&models.Tag{}).Where("name = ?", oldName).Update("name", newName)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}

	s.log.Info("tag renamed", zap.String("from", oldName), zap.String("to", newName), zap.Int64("images", count))
	return count, nil
}

// DeleteTag deletes name and, by cascade, its associations. It returns the
// number of images that used the tag, with the same caveat as RenameTag.
func (s *Service) DeleteTag(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrInvalidTag
	}

	count, err := tagUsage(s.db.WithContext(ctx), name)
	if err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).Where("name = ?", name).Delete(&models.Tag{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}

	s.log.Info("tag deleted", zap.String("name", name), zap.Int64("images", count))
	return count, nil
}

// BatchUpdateTags removes the removeTags associations and then adds the
// addTags associations for every image in imageIDs, all in one transaction.
// A tag present in both lists ends up added. Unknown image IDs are skipped.
// It returns the number of distinct image IDs processed.
func (s *Service) BatchUpdateTags(ctx context.Context, imageIDs, addTags, removeTags []string) (int, error) {
	ids := NormalizeTags(imageIDs)
	add := NormalizeTags(addTags)
	remove := NormalizeTags(removeTags)
	if len(ids) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := unlinkTags(tx, ids, remove); err != nil {
			return err
		}
		if len(add) == 0 {
			return nil
		}

		var existing []string
		for _, chunk := range chunks(ids, lookupChunkSize) {
			var found []string
			if err := tx.Model(&models.Image{}).Where("id IN ?", chunk).Pluck("id", &found).Error; err != nil {
				return err
			}
			existing = append(existing, found...)
		}
		return linkTags(tx, existing, add)
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug("batch tag update",
		zap.Int("images", len(ids)),
		zap.Strings("add", add),
		zap.Strings("remove", remove),
	)
	return len(ids), nil
}

// upsertTags inserts the names that do not exist yet and reports how many
// rows were created. Existing names are left untouched.
func upsertTags(tx *gorm.DB, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}

	rows := make([]models.Tag, 0, len(names))
	for _, name := range names {
		rows = append(rows, models.Tag{Name: name})
	}

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows)
	return result.RowsAffected, result.Error
}

// tagIDs ensures every name exists and returns their IDs.
func tagIDs(tx *gorm.DB, names []string) ([]uint, error) {
	if _, err := upsertTags(tx, names); err != nil {
		return nil, err
	}

	var ids []uint
	if err := tx.Model(&models.Tag{}).Where("name IN ?", names).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// linkTags associates every image with every name, creating tags as needed.
// Existing associations are kept.
func linkTags(tx *gorm.DB, imageIDs, names []string) error {
	if len(imageIDs) == 0 || len(names) == 0 {
		return nil
	}

	ids, err := tagIDs(tx, names)
	if err != nil {
		return err
	}

	links := make([]models.ImageTag, 0, len(imageIDs)*len(ids))
	for _, imageID := range imageIDs {
		for _, tagID := range ids {
			links = append(links, models.ImageTag{ImageID: imageID, TagID: tagID})
		}
	}

	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&links, lookupChunkSize).Error
}

// unlinkTags drops the associations between imageIDs and the named tags.
// The tags themselves stay.
func unlinkTags(tx *gorm.DB, imageIDs, names []string) error {
	if len(imageIDs) == 0 || len(names) == 0 {
		return nil
	}

	sub := tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.Tag{}).
		Select("id").
		Where("name IN ?", names)

	return tx.Where("image_id IN ? AND tag_id IN (?)", imageIDs, sub).
		Delete(&models.ImageTag{}).Error
}

func tagUsage(db *gorm.DB, name string) (int64, error) {
	var count int64
	err := db.Table("image_tags").
		Joins("JOIN tags ON tags.id = image_tags.tag_id").
		Where("tags.name = ?", name).
		Count(&count).Error
	return count, err
}

// loadTags returns the tag names of each image, sorted by name, in one query
// per chunk of IDs.
func loadTags(db *gorm.DB, imageIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(imageIDs))
	for _, id := range imageIDs {
		result[id] = []string{}
	}

	type pair struct {
		ImageID string
		Name    string
	}

	for _, chunk := range chunks(imageIDs, lookupChunkSize) {
		var pairs []pair
		err := db.Table("image_tags").
			Select("image_tags.image_id AS image_id, tags.name AS name").
			Joins("JOIN tags ON tags.id = image_tags.tag_id").
			Where("image_tags.image_id IN ?", chunk).
			Order("tags.name ASC").
			Scan(&pairs).Error
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			result[p.ImageID] = append(result[p.ImageID], p.Name)
		}
	}
	return result, nil
}
