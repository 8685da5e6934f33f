package storage

import (
	"fmt"
	"strings"
)

const (
	originalPrefix = "images/original"
	webpPrefix     = "images/webp"
	avifPrefix     = "images/avif"
)

// OriginalKey is the object key of the uploaded file. ext may carry a
// leading dot.
func OriginalKey(id, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return fmt.Sprintf("%s/%s", originalPrefix, id)
	}
	return fmt.Sprintf("%s/%s.%s", originalPrefix, id, ext)
}

func WebPKey(id string) string {
	return fmt.Sprintf("%s/%s.webp", webpPrefix, id)
}

func AVIFKey(id string) string {
	return fmt.Sprintf("%s/%s.avif", avifPrefix, id)
}

// ContentType maps an image format name to its MIME type.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "avif":
		return "image/avif"
	case "heif", "heic":
		return "image/heif"
	case "tiff":
		return "image/tiff"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// Keys lists every non-empty object path so callers can delete them together.
func Keys(paths ...string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
