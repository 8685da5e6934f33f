package metadata

import (
	"time"

	"github.com/petermazzocco/go-image-host/models"
	"gorm.io/gorm"
)

// imageFilter is the typed predicate set for reads over the images table.
// Each non-zero field contributes one scope; all values are bound
// parameters.
type imageFilter struct {
	Orientation models.Orientation

	// Tag restricts to images carrying this exact tag, through a join.
	Tag string

	// AllTags restricts to images carrying every listed tag.
	AllTags []string

	// ExcludeTags drops images carrying any listed tag.
	ExcludeTags []string

	// ExpiredBefore keeps images whose expiry is set and earlier than it.
	ExpiredBefore *time.Time
}

func (f imageFilter) scopes() []func(*gorm.DB) *gorm.DB {
	var scopes []func(*gorm.DB) *gorm.DB
	if f.Orientation != "" {
		scopes = append(scopes, withOrientation(f.Orientation))
	}
	if f.Tag != "" {
		scopes = append(scopes, withTag(f.Tag))
	}
	if len(f.AllTags) > 0 {
		scopes = append(scopes, withAllTags(f.AllTags))
	}
	if len(f.ExcludeTags) > 0 {
		scopes = append(scopes, withoutTags(f.ExcludeTags))
	}
	if f.ExpiredBefore != nil {
		scopes = append(scopes, expiredBefore(*f.ExpiredBefore))
	}
	return scopes
}

func withOrientation(o models.Orientation) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("images.orientation = ?", o)
	}
}

func withTag(name string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Joins("JOIN image_tags ON image_tags.image_id = images.id").
			Joins("JOIN tags ON tags.id = image_tags.tag_id").
			Where("tags.name = ?", name)
	}
}

// withAllTags keeps an image only when the number of distinct requested tags
// it carries equals the number requested. names must be deduplicated.
func withAllTags(names []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		sub := taggedImageIDs(db, names).
			Group("image_tags.image_id").
			Having("COUNT(DISTINCT tags.name) = ?", len(names))
		return db.Where("images.id IN (?)", sub)
	}
}

func withoutTags(names []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("images.id NOT IN (?)", taggedImageIDs(db, names))
	}
}

func expiredBefore(t time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("images.expiry_time IS NOT NULL AND images.expiry_time < ?", t)
	}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("images.upload_time DESC").Order("images.id DESC")
}

// taggedImageIDs selects the IDs of images associated with any of names.
func taggedImageIDs(db *gorm.DB, names []string) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Table("image_tags").
		Select("image_tags.image_id").
		Joins("JOIN tags ON tags.id = image_tags.tag_id").
		Where("tags.name IN ?", names)
}
