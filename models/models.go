package models

import (
	"time"
)

type Orientation string

const (
	Landscape Orientation = "landscape"
	Portrait  Orientation = "portrait"
)

// Valid reports whether o is one of the known orientations.
func (o Orientation) Valid() bool {
	return o == Landscape || o == Portrait
}

// OrientationFor derives the orientation of an image from its dimensions.
// Square images count as landscape.
func OrientationFor(width, height int) Orientation {
	if width >= height {
		return Landscape
	}
	return Portrait
}

type Image struct {
	ID           string      `gorm:"primaryKey;type:text"`
	OriginalName string      `gorm:"type:text;not null"`
	UploadTime   time.Time   `gorm:"not null;index:idx_images_upload_time,sort:desc"`
	ExpiryTime   *time.Time  `gorm:"index:idx_images_expiry_time,where:expiry_time IS NOT NULL"`
	Orientation  Orientation `gorm:"type:text;not null;index:idx_images_orientation;check:chk_images_orientation,orientation IN ('landscape','portrait')"`
	Format       string      `gorm:"type:text;not null"`
	Width        int         `gorm:"not null"`
	Height       int         `gorm:"not null"`
	PathOriginal string      `gorm:"type:text;not null"`
	PathWebP     *string     `gorm:"column:path_webp;type:text"`
	PathAVIF     *string     `gorm:"column:path_avif;type:text"`
	SizeOriginal int64       `gorm:"not null"`
	SizeWebP     int64       `gorm:"column:size_webp;not null;default:0"`
	SizeAVIF     int64       `gorm:"column:size_avif;not null;default:0"`
}

type Tag struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"type:text;not null;uniqueIndex:idx_tags_name"`
}

// ImageTag links an image to a tag. Image and Tag carry no back-references so
// both foreign keys, with their cascades, are created on this table.
type ImageTag struct {
	ImageID string `gorm:"primaryKey;type:text;index:idx_image_tags_image_id"`
	TagID   uint   `gorm:"primaryKey;autoIncrement:false;index:idx_image_tags_tag_id"`
	Image   *Image `json:"-" gorm:"foreignKey:ImageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Tag     *Tag   `json:"-" gorm:"foreignKey:TagID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (Image) TableName() string {
	return "images"
}

func (Tag) TableName() string {
	return "tags"
}

func (ImageTag) TableName() string {
	return "image_tags"
}
