// Package imagecodec converts raster images to lossy WebP.
package imagecodec

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	// DefaultQuality is the lossy WebP quality on a 0-100 scale.
	DefaultQuality = 80

	// DefaultMaxPixels bounds width*height before any pixel data is decoded.
	DefaultMaxPixels = 50_000_000
)

// Codec implements simplemedia.ImageCodec.
type Codec struct {
	quality   float32
	maxPixels int64
}

// Option configures a Codec
type Option func(*Codec)

// WithQuality sets the lossy encoding quality (0-100)
func WithQuality(q float32) Option {
	return func(c *Codec) {
		c.quality = q
	}
}

// WithMaxPixels rejects images whose width*height exceeds n. Zero or less
// keeps DefaultMaxPixels.
func WithMaxPixels(n int64) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxPixels = n
		}
	}
}

// New creates a codec with DefaultQuality and DefaultMaxPixels unless overridden.
func New(opts ...Option) *Codec {
	c := &Codec{quality: DefaultQuality, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(c)
	}
	if c.quality < 0 {
		c.quality = 0
	}
	if c.quality > 100 {
		c.quality = 100
	}
	return c
}

// Available reports whether this binary can encode WebP.
func Available() bool {
	return encoderAvailable
}

// ConvertToWebP decodes JPEG, PNG, GIF, BMP or TIFF data and re-encodes it
// as lossy WebP. WebP input is returned as is, with its original name.
// data is only read.
func (c *Codec) ConvertToWebP(ctx context.Context, data []byte, originalName string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if IsWebP(data) {
		return data, originalName, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s: %v", simplemedia.ErrConversionFailed, originalName, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > c.maxPixels {
		return nil, "", &simplemedia.ValidationError{
			Reason: fmt.Sprintf("Image dimensions %dx%d exceed the %d pixel limit", cfg.Width, cfg.Height, c.maxPixels),
		}
	}

	if !encoderAvailable {
		return nil, "", simplemedia.ErrUnsupportedEnvironment
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s: %v", simplemedia.ErrConversionFailed, originalName, err)
	}

	var buf bytes.Buffer
	if err := encodeWebP(&buf, img, c.quality); err != nil {
		return nil, "", fmt.Errorf("%w: encode %s: %v", simplemedia.ErrConversionFailed, originalName, err)
	}
	if buf.Len() == 0 {
		return nil, "", fmt.Errorf("%w: encoder produced no output for %s", simplemedia.ErrConversionFailed, originalName)
	}

	return buf.Bytes(), simplemedia.WebPName(originalName), nil
}

// IsWebP reports whether data is a WebP container.
func IsWebP(data []byte) bool {
	return simplemedia.DetectMimeType(data) == "image/webp"
}
