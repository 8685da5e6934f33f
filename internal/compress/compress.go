// Package compress produces the WebP and AVIF variants served alongside each
// original upload.
package compress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/h2non/bimg"
	"github.com/petermazzocco/go-image-host/internal/config"
)

var ErrUnsupportedFormat = errors.New("compress: unsupported image format")

type Options struct {
	WebPQuality int
	AVIFQuality int
	AVIFSpeed   int
}

func OptionsFrom(cfg config.CompressConfig) Options {
	return Options{
		WebPQuality: cfg.WebPQuality,
		AVIFQuality: cfg.AVIFQuality,
		AVIFSpeed:   cfg.AVIFSpeed,
	}
}

// Result holds the encoded variants. Both are nil for animated input.
type Result struct {
	WebP []byte
	AVIF []byte
}

// Info is what Inspect learns about an upload.
type Info struct {
	Format string
	Width  int
	Height int
}

type Compressor interface {
	Inspect(data []byte) (Info, error)
	Compress(data []byte, format string, opts Options) (*Result, error)
}

type BimgCompressor struct{}

var _ Compressor = BimgCompressor{}

func NewBimgCompressor() *BimgCompressor {
	return &BimgCompressor{}
}

func (BimgCompressor) Inspect(data []byte) (Info, error) {
	format := bimg.DetermineImageTypeName(data)
	if format == "" || format == "unknown" {
		return Info{}, ErrUnsupportedFormat
	}

	meta, err := bimg.NewImage(data).Metadata()
	if err != nil {
		return Info{}, fmt.Errorf("read image metadata: %w", err)
	}
	width, height := orientedSize(meta.Size.Width, meta.Size.Height, meta.Orientation)
	if width <= 0 || height <= 0 {
		return Info{}, ErrUnsupportedFormat
	}

	return Info{
		Format: format,
		Width:  width,
		Height: height,
	}, nil
}

func (BimgCompressor) Compress(data []byte, format string, opts Options) (*Result, error) {
	if IsAnimated(format) {
		return &Result{}, nil
	}

	webp, err := bimg.NewImage(data).Process(webpOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}

	res := &Result{WebP: webp}
	if bimg.IsTypeSupportedSave(bimg.AVIF) {
		avif, err := bimg.NewImage(data).Process(avifOptions(opts))
		if err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
		res.AVIF = avif
	}
	return res, nil
}

// IsAnimated reports whether variants are skipped for format.
func IsAnimated(format string) bool {
	return strings.EqualFold(format, "gif")
}

func webpOptions(opts Options) bimg.Options {
	return bimg.Options{
		Type:          bimg.WEBP,
		Quality:       opts.WebPQuality,
		StripMetadata: true,
	}
}

func avifOptions(opts Options) bimg.Options {
	return bimg.Options{
		Type:          bimg.AVIF,
		Quality:       opts.AVIFQuality,
		Speed:         opts.AVIFSpeed,
		StripMetadata: true,
	}
}

// orientedSize swaps the stored dimensions when the EXIF orientation rotates
// the image by 90 degrees.
func orientedSize(width, height, orientation int) (int, int) {
	switch orientation {
	case 5, 6, 7, 8:
		return height, width
	}
	return width, height
}
