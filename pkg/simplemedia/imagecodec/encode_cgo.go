//go:build cgo

package imagecodec

import (
	"image"
	"io"

	"github.com/chai2010/webp"
)

const encoderAvailable = true

func encodeWebP(w io.Writer, img image.Image, quality float32) error {
	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: quality})
}
