// Package cache keeps rendered list responses in Redis and drops them when
// the metadata they were built from changes.
package cache

import (
	"context"
	"fmt"
	"net/url"
)

const (
	imagesListKey = "images:list:"
	tagsListKey   = "tags:list"
)

// Invalidator is notified after metadata writes commit.
type Invalidator interface {
	InvalidateImagesList(ctx context.Context) error
	InvalidateTagsList(ctx context.Context) error
}

// Cache is what the read handlers use. GetJSON reports whether key was found.
type Cache interface {
	Invalidator
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// ImagesListKey identifies one page of the image listing.
func ImagesListKey(page, limit int, tag, orientation string) string {
	return fmt.Sprintf("%sp=%d&l=%d&t=%s&o=%s", imagesListKey, page, limit,
		url.QueryEscape(tag), url.QueryEscape(orientation))
}

func TagsListKey() string {
	return tagsListKey
}

// Nop never stores anything. It is used when Redis is not configured.
type Nop struct{}

func (Nop) InvalidateImagesList(context.Context) error         { return nil }
func (Nop) InvalidateTagsList(context.Context) error           { return nil }
func (Nop) GetJSON(context.Context, string, any) (bool, error) { return false, nil }
func (Nop) SetJSON(context.Context, string, any) error         { return nil }
