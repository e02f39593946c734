package imgdate

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/sunshineplan/utils/log"
)

// Orient applies the transform corresponding to the given orientation flag
// and returns an upright image. Images with a flat pixel buffer keep their
// pixel format; others are transformed to NRGBA. A malformed buffer leaves
// the image unchanged.
func Orient(img image.Image, o Orientation) image.Image {
	if o <= OrientationNormal || o > OrientationRotate90 || img == nil {
		return img
	}

	switch src := img.(type) {
	case *image.Gray:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 1, src.Rect, o); ok {
			return &image.Gray{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.Gray16:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 2, src.Rect, o); ok {
			return &image.Gray16{Pix: pix, Stride: stride, Rect: r}
		}
	case *Gray32:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 1, src.Rect, o); ok {
			return &Gray32{Pix: pix, Stride: stride, Rect: r, Signed: src.Signed}
		}
	case *Gray32f:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 1, src.Rect, o); ok {
			return &Gray32f{Pix: pix, Stride: stride, Rect: r, Depth: src.Depth}
		}
	case *Bilevel:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 1, src.Rect, o); ok {
			return &Bilevel{Pix: pix, Stride: stride, Rect: r}
		}
	case *GrayAlpha:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 2, src.Rect, o); ok {
			return &GrayAlpha{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.Paletted:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 1, src.Rect, o); ok {
			return &image.Paletted{Pix: pix, Stride: stride, Rect: r, Palette: append(color.Palette(nil), src.Palette...)}
		}
	case *RGB:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 3, src.Rect, o); ok {
			return &RGB{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.RGBA:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 4, src.Rect, o); ok {
			return &image.RGBA{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.NRGBA:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 4, src.Rect, o); ok {
			return &image.NRGBA{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.RGBA64:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 8, src.Rect, o); ok {
			return &image.RGBA64{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.NRGBA64:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 8, src.Rect, o); ok {
			return &image.NRGBA64{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.CMYK:
		if pix, stride, r, ok := reorient(src.Pix, src.Stride, 4, src.Rect, o); ok {
			return &image.CMYK{Pix: pix, Stride: stride, Rect: r}
		}
	case *image.YCbCr:
		if checkYCbCr(src) == nil {
			return fixOrientation(img, o)
		}
	case *image.NYCbCrA:
		if checkYCbCr(&src.YCbCr) == nil {
			return fixOrientation(img, o)
		}
	default:
		return fixOrientation(img, o)
	}

	log.Warn("Skip orientation of malformed image", "orientation", int(o), "bounds", img.Bounds())
	return img
}

// fixOrientation transforms images without a flat pixel buffer.
func fixOrientation(img image.Image, o Orientation) image.Image {
	if img.Bounds().Empty() {
		return img
	}
	switch o {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationRotate90:
		return imaging.Rotate90(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationRotate270:
		return imaging.Rotate270(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	}
	return img
}

// sourcePoint maps a destination pixel to the source pixel it is copied from.
// w and h are the source dimensions.
func sourcePoint(o Orientation, dx, dy, w, h int) (int, int) {
	switch o {
	case OrientationFlipH:
		return w - 1 - dx, dy
	case OrientationRotate180:
		return w - 1 - dx, h - 1 - dy
	case OrientationFlipV:
		return dx, h - 1 - dy
	case OrientationTranspose:
		return dy, dx
	case OrientationRotate270:
		return dy, h - 1 - dx
	case OrientationTransverse:
		return w - 1 - dy, h - 1 - dx
	case OrientationRotate90:
		return w - 1 - dy, dx
	}
	return dx, dy
}

// reorient copies a flat buffer holding size elements per pixel into a new
// buffer laid out for orientation o. The new rectangle starts at the origin.
func reorient[T any](pix []T, stride, size int, r image.Rectangle, o Orientation) ([]T, int, image.Rectangle, bool) {
	if checkBuffer(len(pix), stride, size, r) != nil {
		return nil, 0, image.Rectangle{}, false
	}
	w, h := r.Dx(), r.Dy()
	dw, dh := w, h
	if o.Swaps() {
		dw, dh = h, w
	}
	dstStride := dw * size
	dst := make([]T, dstStride*dh)
	parallel(0, dh, func(ys <-chan int) {
		for dy := range ys {
			j := dy * dstStride
			for dx := 0; dx < dw; dx++ {
				sx, sy := sourcePoint(o, dx, dy, w, h)
				i := sy*stride + sx*size
				copy(dst[j:j+size], pix[i:i+size])
				j += size
			}
		}
	})
	return dst, dstStride, image.Rect(0, 0, dw, dh), true
}
