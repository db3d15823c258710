//go:build !cgo

package imagecodec

import (
	"image"
	"io"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// The WebP encoder needs libwebp through cgo.
const encoderAvailable = false

func encodeWebP(w io.Writer, img image.Image, quality float32) error {
	return simplemedia.ErrUnsupportedEnvironment
}
