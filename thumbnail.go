package imgdate

import (
	"image"

	"github.com/disintegration/imaging"
)

// Default preview box.
const (
	DefaultPreviewWidth  = 1800
	DefaultPreviewHeight = 1300
)

// Thumbnail scales img down with the Lanczos filter to fit within width x
// height, preserving its aspect ratio. Images that already fit, and
// non-positive boxes, are returned unchanged.
func Thumbnail(img image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return img
	}
	size := img.Bounds().Size()
	if size.X <= width && size.Y <= height {
		return img
	}
	return imaging.Fit(img, width, height, imaging.Lanczos)
}
