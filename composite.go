package imgdate

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/sunshineplan/utils/log"
)

// A strategy converts an oriented image into an 8-bit gray or RGB image.
type strategy struct {
	name  string
	stage Stage
	run   func(image.Image, Hint) (image.Image, error)
}

var (
	bilevelExpansion = strategy{"expand bilevel", DirectGray, func(img image.Image, _ Hint) (image.Image, error) { return expandBilevel(img) }}
	grayCopy         = strategy{"copy gray", DirectGray, func(img image.Image, _ Hint) (image.Image, error) { return copyGray(img) }}
	wideRescale      = strategy{"rescale", RescaledGray, func(img image.Image, h Hint) (image.Image, error) { return Rescale(img, h) }}
	wideCast         = strategy{"cast", RescaledGray, func(img image.Image, _ Hint) (image.Image, error) { return CastGray(img) }}
	paletteExpansion = strategy{"expand palette", PaletteExpanded, func(img image.Image, _ Hint) (image.Image, error) { return expandPalette(img) }}
	rgbCopy          = strategy{"copy rgb", DirectRGB, func(img image.Image, _ Hint) (image.Image, error) { return copyRGB(img) }}
	alphaFlatten     = strategy{"flatten alpha", AlphaFlattened, func(img image.Image, _ Hint) (image.Image, error) { return flattenAlpha(img) }}
	grayAlphaFlatten = strategy{"flatten gray alpha", AlphaFlattened, func(img image.Image, _ Hint) (image.Image, error) { return flattenGrayAlpha(img) }}
	cmykConversion   = strategy{"convert cmyk", ColorConverted, func(img image.Image, _ Hint) (image.Image, error) { return convertCMYK(img) }}
	ycbcrConversion  = strategy{"convert ycbcr", ColorConverted, func(img image.Image, _ Hint) (image.Image, error) { return convertYCbCr(img) }}
	genericFallback  = strategy{"generic conversion", ColorConverted, func(img image.Image, _ Hint) (image.Image, error) { return convertGeneric(img) }}
)

// ladders lists, per pixel format, the conversions tried in order. When all
// of them fail the result is a blank canvas.
var ladders = map[Kind][]strategy{
	KindBilevel:   {bilevelExpansion, genericFallback},
	KindGray:      {grayCopy, genericFallback},
	KindGrayWide:  {wideRescale, wideCast},
	KindPalette:   {paletteExpansion, genericFallback},
	KindRGB:       {rgbCopy, genericFallback},
	KindRGBA:      {alphaFlatten, genericFallback},
	KindGrayAlpha: {grayAlphaFlatten, genericFallback},
	KindCMYK:      {cmykConversion, genericFallback},
	KindYCbCr:     {ycbcrConversion, genericFallback},
	KindUnknown:   {genericFallback},
}

// composite runs the ladder of the image's pixel format. The returned image
// is either *image.Gray or *RGB. fallback reports whether the first
// conversion of the ladder failed.
func composite(img image.Image, h Hint) (out image.Image, stage Stage, fallback bool) {
	kind := FormatOf(img).Kind
	for i, s := range ladders[kind] {
		res, err := s.try(img, h)
		if err == nil {
			if i > 0 {
				log.Warn("Used fallback conversion", "format", kind, "conversion", s.name)
			}
			return res, s.stage, i > 0
		}
		log.Warn("Conversion failed", "format", kind, "conversion", s.name, "error", err)
	}
	log.Warn("No conversion succeeded, using blank canvas", "format", kind)
	return Blank(img), BlankCanvas, true
}

var errPanic = errors.New("conversion panicked")

// try runs the strategy. Images from foreign decoders may panic on access to
// a malformed buffer; such a panic is reported as an error.
func (s strategy) try(img image.Image, h Hint) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return s.run(img, h)
}

// Blank returns an opaque white canvas with the dimensions of img.
func Blank(img image.Image) *RGB {
	var r image.Rectangle
	if img != nil {
		b := img.Bounds()
		if !b.Empty() {
			r = image.Rect(0, 0, b.Dx(), b.Dy())
		}
	}
	dst := NewRGB(r)
	for i := range dst.Pix {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Broadcast replicates a gray channel into three identical channels.
func Broadcast(src *image.Gray) *RGB {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := NewRGB(image.Rect(0, 0, w, h))
	parallel(0, h, func(ys <-chan int) {
		for y := range ys {
			s := src.Pix[y*src.Stride : y*src.Stride+w]
			d := dst.Pix[y*dst.Stride : y*dst.Stride+3*w]
			for x, v := range s {
				d[3*x] = v
				d[3*x+1] = v
				d[3*x+2] = v
			}
		}
	})
	return dst
}

func wrongType(img image.Image) error {
	return fmt.Errorf("unexpected image type %T", img)
}

func expandBilevel(img image.Image) (*image.Gray, error) {
	src, ok := img.(*Bilevel)
	if !ok {
		return nil, wrongType(img)
	}
	if err := checkBuffer(len(src.Pix), src.Stride, 1, src.Rect); err != nil {
		return nil, err
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+w]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x, v := range s {
			if v != 0 {
				d[x] = 0xff
			}
		}
	}
	return dst, nil
}

func copyGray(img image.Image) (*image.Gray, error) {
	src, ok := img.(*image.Gray)
	if !ok {
		return nil, wrongType(img)
	}
	if err := checkBuffer(len(src.Pix), src.Stride, 1, src.Rect); err != nil {
		return nil, err
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src.Pix[y*src.Stride:y*src.Stride+w])
	}
	return dst, nil
}

func copyRGB(img image.Image) (*RGB, error) {
	src, ok := img.(*RGB)
	if !ok {
		return nil, wrongType(img)
	}
	if err := checkBuffer(len(src.Pix), src.Stride, 3, src.Rect); err != nil {
		return nil, err
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := NewRGB(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+3*w], src.Pix[y*src.Stride:y*src.Stride+3*w])
	}
	return dst, nil
}

// expandPalette maps indices through the palette to their straight RGB
// values. Palette transparency is ignored; indices beyond the palette are
// black.
func expandPalette(img image.Image) (*RGB, error) {
	src, ok := img.(*image.Paletted)
	if !ok {
		return nil, wrongType(img)
	}
	if err := checkBuffer(len(src.Pix), src.Stride, 1, src.Rect); err != nil {
		return nil, err
	}
	var table [256][3]uint8
	for i, c := range src.Palette {
		if i >= len(table) {
			break
		}
		if c == nil {
			continue
		}
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		table[i] = [3]uint8{n.R, n.G, n.B}
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := NewRGB(image.Rect(0, 0, w, h))
	parallel(0, h, func(ys <-chan int) {
		for y := range ys {
			s := src.Pix[y*src.Stride : y*src.Stride+w]
			d := dst.Pix[y*dst.Stride : y*dst.Stride+3*w]
			for x, idx := range s {
				c := table[idx]
				d[3*x] = c[0]
				d[3*x+1] = c[1]
				d[3*x+2] = c[2]
			}
		}
	})
	return dst, nil
}

// over composites a straight 8-bit channel value onto white:
// a*fg + (1-a)*255.
func over(fg, a uint8) uint8 {
	return uint8((uint32(fg)*uint32(a) + 0xff*(0xff-uint32(a)) + 0x7f) / 0xff)
}

// flattenAlpha composites RGBA images over an opaque white background.
func flattenAlpha(img image.Image) (*RGB, error) {
	var (
		pix    []uint8
		stride int
		rect   image.Rectangle
		size   = 4
		pixel  func(s, d []uint8)
	)
	switch src := img.(type) {
	case *image.NRGBA:
		pix, stride, rect = src.Pix, src.Stride, src.Rect
		pixel = func(s, d []uint8) {
			d[0], d[1], d[2] = over(s[0], s[3]), over(s[1], s[3]), over(s[2], s[3])
		}
	case *image.RGBA:
		pix, stride, rect = src.Pix, src.Stride, src.Rect
		pixel = func(s, d []uint8) {
			bg := 0xff - uint32(s[3])
			for i := 0; i < 3; i++ {
				d[i] = uint8(min(uint32(s[i])+bg, 0xff))
			}
		}
	case *image.NRGBA64:
		pix, stride, rect, size = src.Pix, src.Stride, src.Rect, 8
		pixel = func(s, d []uint8) {
			a := uint32(s[6])<<8 | uint32(s[7])
			for i := 0; i < 3; i++ {
				c := uint32(s[2*i])<<8 | uint32(s[2*i+1])
				d[i] = uint8(((c*a + 0xffff*(0xffff-a) + 0x7fff) / 0xffff) >> 8)
			}
		}
	case *image.RGBA64:
		pix, stride, rect, size = src.Pix, src.Stride, src.Rect, 8
		pixel = func(s, d []uint8) {
			bg := 0xffff - (uint32(s[6])<<8 | uint32(s[7]))
			for i := 0; i < 3; i++ {
				c := uint32(s[2*i])<<8 | uint32(s[2*i+1])
				d[i] = uint8(min(c+bg, 0xffff) >> 8)
			}
		}
	default:
		return nil, wrongType(img)
	}
	if err := checkBuffer(len(pix), stride, size, rect); err != nil {
		return nil, err
	}
	w, h := rect.Dx(), rect.Dy()
	dst := NewRGB(image.Rect(0, 0, w, h))
	parallel(0, h, func(ys <-chan int) {
		for y := range ys {
			i := y * stride
			j := y * dst.Stride
			for x := 0; x < w; x++ {
				pixel(pix[i:i+size:i+size], dst.Pix[j:j+3:j+3])
				i += size
				j += 3
			}
		}
	})
	return dst, nil
}

// flattenGrayAlpha composites gray+alpha over white and keeps one channel.
func flattenGrayAlpha(img image.Image) (*image.Gray, error) {
	src, ok := img.(*GrayAlpha)
	if !ok {
		return nil, wrongType(img)
	}
	if err := checkBuffer(len(src.Pix), src.Stride, 2, src.Rect); err != nil {
		return nil, err
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+2*w]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := range d {
			d[x] = over(s[2*x], s[2*x+1])
		}
	}
	return dst, nil
}

func convertCMYK(img image.Image) (*RGB, error) {
	src, ok := img.(*image.CMYK)
	if !ok {
		return nil, wrongType(img)
	}
	if err := checkBuffer(len(src.Pix), src.Stride, 4, src.Rect); err != nil {
		return nil, err
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := NewRGB(image.Rect(0, 0, w, h))
	parallel(0, h, func(ys <-chan int) {
		for y := range ys {
			s := src.Pix[y*src.Stride : y*src.Stride+4*w]
			d := dst.Pix[y*dst.Stride : y*dst.Stride+3*w]
			for x := 0; x < w; x++ {
				d[3*x], d[3*x+1], d[3*x+2] = color.CMYKToRGB(s[4*x], s[4*x+1], s[4*x+2], s[4*x+3])
			}
		}
	})
	return dst, nil
}

// convertYCbCr converts with the JFIF (ITU-R BT.601) coefficients. The alpha
// plane of NYCbCrA images is composited over white.
func convertYCbCr(img image.Image) (*RGB, error) {
	var (
		src   *image.YCbCr
		alpha []uint8
		astr  int
	)
	switch m := img.(type) {
	case *image.YCbCr:
		src = m
	case *image.NYCbCrA:
		src, alpha, astr = &m.YCbCr, m.A, m.AStride
	default:
		return nil, wrongType(img)
	}
	r := src.Rect
	if err := checkYCbCr(src); err != nil {
		return nil, err
	}
	if alpha != nil && (r.Dy()-1)*astr+r.Dx() > len(alpha) {
		return nil, errBuffer
	}
	w, h := r.Dx(), r.Dy()
	dst := NewRGB(image.Rect(0, 0, w, h))
	parallel(0, h, func(ys <-chan int) {
		for y := range ys {
			d := dst.Pix[y*dst.Stride : y*dst.Stride+3*w]
			for x := 0; x < w; x++ {
				sx, sy := r.Min.X+x, r.Min.Y+y
				yi, ci := src.YOffset(sx, sy), src.COffset(sx, sy)
				cr, cg, cb := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				if alpha != nil {
					a := alpha[y*astr+x]
					cr, cg, cb = over(cr, a), over(cg, a), over(cb, a)
				}
				d[3*x], d[3*x+1], d[3*x+2] = cr, cg, cb
			}
		}
	})
	return dst, nil
}

func checkYCbCr(m *image.YCbCr) error {
	r := m.Rect
	if r.Empty() {
		return errBuffer
	}
	x, y := r.Max.X-1, r.Max.Y-1
	if m.YOffset(x, y) >= len(m.Y) || m.COffset(x, y) >= len(m.Cb) || m.COffset(x, y) >= len(m.Cr) {
		return errBuffer
	}
	return nil
}

// convertGeneric converts any image pixel by pixel through its color model.
func convertGeneric(img image.Image) (*RGB, error) {
	if img == nil || img.ColorModel() == nil || img.Bounds().Empty() {
		return nil, errBuffer
	}
	b := img.Bounds()
	dst := NewRGB(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		d := dst.Pix[y*dst.Stride : y*dst.Stride+3*b.Dx()]
		for x := 0; x < b.Dx(); x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if c == nil {
				return nil, errors.New("nil color")
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			d[3*x], d[3*x+1], d[3*x+2] = over(n.R, n.A), over(n.G, n.A), over(n.B, n.A)
		}
	}
	return dst, nil
}
