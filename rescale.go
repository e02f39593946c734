package imgdate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

var errNotWide = errors.New("not a wide-sample gray image")

// sampler reads numeric samples of a single channel image.
type sampler struct {
	w, h int
	at   func(x, y int) float64
}

func newSampler(img image.Image) (*sampler, error) {
	switch src := img.(type) {
	case *image.Gray16:
		if err := checkBuffer(len(src.Pix), src.Stride, 2, src.Rect); err != nil {
			return nil, err
		}
		return &sampler{src.Rect.Dx(), src.Rect.Dy(), func(x, y int) float64 {
			i := y*src.Stride + x*2
			return float64(uint16(src.Pix[i])<<8 | uint16(src.Pix[i+1]))
		}}, nil
	case *Gray32:
		if err := checkBuffer(len(src.Pix), src.Stride, 1, src.Rect); err != nil {
			return nil, err
		}
		return &sampler{src.Rect.Dx(), src.Rect.Dy(), func(x, y int) float64 {
			return src.Value(y*src.Stride + x)
		}}, nil
	case *Gray32f:
		if err := checkBuffer(len(src.Pix), src.Stride, 1, src.Rect); err != nil {
			return nil, err
		}
		return &sampler{src.Rect.Dx(), src.Rect.Dy(), func(x, y int) float64 {
			return float64(src.Pix[y*src.Stride+x])
		}}, nil
	}
	return nil, fmt.Errorf("%w: %T", errNotWide, img)
}

// extrema returns the smallest and largest finite samples.
// An image without finite samples yields 0, 0.
func (s *sampler) extrema() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			v := s.at(x, y)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if lo > hi {
		return 0, 0
	}
	return
}

// Rescale linearly maps the samples of a wide gray image onto 0..255.
//
// The declared bounds of h are used when they describe a non-empty range,
// otherwise the actual sample range is measured. A flat range is not scaled:
// every sample is clamped to 8 bits directly.
func Rescale(img image.Image, h Hint) (*image.Gray, error) {
	s, err := newSampler(img)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := h.bounds()
	if !ok {
		lo, hi = s.extrema()
	}

	dst := image.NewGray(image.Rect(0, 0, s.w, s.h))
	span := hi - lo
	flat := !(span > 0) || math.IsInf(span, 0)
	parallel(0, s.h, func(ys <-chan int) {
		for y := range ys {
			d := dst.Pix[y*dst.Stride : y*dst.Stride+s.w]
			for x := range d {
				v := s.at(x, y)
				switch {
				case math.IsNaN(v):
					d[x] = 0
				case flat:
					d[x] = clamp(v)
				default:
					d[x] = clamp((v - lo) * 255 / span)
				}
			}
		}
	})
	return dst, nil
}

// CastGray converts img to 8-bit gray through its color model, without any
// scaling. It is the lossy fallback for samples Rescale cannot read.
func CastGray(img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errBuffer
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return dst, nil
}
