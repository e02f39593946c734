package imgdate

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Kind is the pixel encoding of an image flowing through the pipeline.
type Kind int

// Pixel encodings.
const (
	KindUnknown Kind = iota
	KindBilevel
	KindGray
	KindGrayWide
	KindPalette
	KindRGB
	KindRGBA
	KindGrayAlpha
	KindCMYK
	KindYCbCr
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindBilevel:   "1",
	KindGray:      "L",
	KindGrayWide:  "I",
	KindPalette:   "P",
	KindRGB:       "RGB",
	KindRGBA:      "RGBA",
	KindGrayAlpha: "LA",
	KindCMYK:      "CMYK",
	KindYCbCr:     "YCbCr",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// PixelFormat describes the sample layout of an image.
type PixelFormat struct {
	Kind     Kind
	BitDepth int
	Float    bool
}

func (f PixelFormat) String() string {
	switch {
	case f.Kind == KindGrayWide && f.Float:
		return fmt.Sprintf("F;%d", f.BitDepth)
	case f.Kind == KindGrayWide:
		return fmt.Sprintf("I;%d", f.BitDepth)
	case f.Kind == KindRGBA && f.BitDepth == 16:
		return "RGBA;16"
	}
	return f.Kind.String()
}

// FormatOf classifies img into exactly one pixel format.
func FormatOf(img image.Image) PixelFormat {
	switch img := img.(type) {
	case *Bilevel:
		return PixelFormat{Kind: KindBilevel, BitDepth: 1}
	case *image.Gray:
		return PixelFormat{Kind: KindGray, BitDepth: 8}
	case *image.Gray16:
		return PixelFormat{Kind: KindGrayWide, BitDepth: 16}
	case *Gray32:
		return PixelFormat{Kind: KindGrayWide, BitDepth: 32}
	case *Gray32f:
		return PixelFormat{Kind: KindGrayWide, BitDepth: img.depth(), Float: true}
	case *image.Paletted:
		return PixelFormat{Kind: KindPalette, BitDepth: 8}
	case *RGB:
		return PixelFormat{Kind: KindRGB, BitDepth: 8}
	case *image.RGBA, *image.NRGBA:
		return PixelFormat{Kind: KindRGBA, BitDepth: 8}
	case *image.RGBA64, *image.NRGBA64:
		return PixelFormat{Kind: KindRGBA, BitDepth: 16}
	case *GrayAlpha:
		return PixelFormat{Kind: KindGrayAlpha, BitDepth: 8}
	case *image.CMYK:
		return PixelFormat{Kind: KindCMYK, BitDepth: 8}
	case *image.YCbCr, *image.NYCbCrA:
		return PixelFormat{Kind: KindYCbCr, BitDepth: 8}
	case nil:
		return PixelFormat{}
	}
	if img.ColorModel() == color.Gray16Model {
		return PixelFormat{Kind: KindGrayWide, BitDepth: 16}
	}
	return PixelFormat{}
}

// Bilevel is a 1-bit image. Pix holds one byte per pixel, 0 or 1.
// A zero sample is black, before any photometric interpretation.
type Bilevel struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewBilevel returns a new Bilevel image with the given bounds.
func NewBilevel(r image.Rectangle) *Bilevel {
	return &Bilevel{Pix: make([]uint8, r.Dx()*r.Dy()), Stride: r.Dx(), Rect: r}
}

func (p *Bilevel) ColorModel() color.Model { return color.GrayModel }

func (p *Bilevel) Bounds() image.Rectangle { return p.Rect }

func (p *Bilevel) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.Gray{}
	}
	if p.Pix[p.PixOffset(x, y)] != 0 {
		return color.Gray{Y: 0xff}
	}
	return color.Gray{}
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *Bilevel) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

// Gray32 is a single channel image with 32-bit integer samples.
type Gray32 struct {
	Pix    []uint32
	Stride int
	Rect   image.Rectangle
	// Signed reports whether samples are two's complement int32.
	Signed bool
}

// NewGray32 returns a new Gray32 image with the given bounds.
func NewGray32(r image.Rectangle, signed bool) *Gray32 {
	return &Gray32{Pix: make([]uint32, r.Dx()*r.Dy()), Stride: r.Dx(), Rect: r, Signed: signed}
}

func (p *Gray32) ColorModel() color.Model { return color.Gray16Model }

func (p *Gray32) Bounds() image.Rectangle { return p.Rect }

func (p *Gray32) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.Gray16{}
	}
	v := p.Value(p.PixOffset(x, y))
	return color.Gray16{Y: uint16(math.Max(0, math.Min(v/65537, 0xffff)))}
}

// Value returns the sample at index i of Pix.
func (p *Gray32) Value(i int) float64 {
	if p.Signed {
		return float64(int32(p.Pix[i]))
	}
	return float64(p.Pix[i])
}

// PixOffset returns the index of the element of Pix that corresponds to the
// pixel at (x, y).
func (p *Gray32) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

// Gray32f is a single channel image with floating point samples.
// Samples have no fixed range; At assumes 0 to 1.
type Gray32f struct {
	Pix    []float32
	Stride int
	Rect   image.Rectangle
	// Depth is the bit depth the samples were stored with (16 or 32).
	Depth int
}

// NewGray32f returns a new Gray32f image with the given bounds.
func NewGray32f(r image.Rectangle) *Gray32f {
	return &Gray32f{Pix: make([]float32, r.Dx()*r.Dy()), Stride: r.Dx(), Rect: r, Depth: 32}
}

func (p *Gray32f) depth() int {
	if p.Depth == 0 {
		return 32
	}
	return p.Depth
}

func (p *Gray32f) ColorModel() color.Model { return color.Gray16Model }

func (p *Gray32f) Bounds() image.Rectangle { return p.Rect }

func (p *Gray32f) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.Gray16{}
	}
	v := float64(p.Pix[p.PixOffset(x, y)])
	if math.IsNaN(v) {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(math.Max(0, math.Min(v, 1))*0xffff + 0.5)}
}

// PixOffset returns the index of the element of Pix that corresponds to the
// pixel at (x, y).
func (p *Gray32f) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

// GrayAlpha is an 8-bit gray image with straight (non-premultiplied) alpha.
// Pix holds Y, A pairs.
type GrayAlpha struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewGrayAlpha returns a new GrayAlpha image with the given bounds.
func NewGrayAlpha(r image.Rectangle) *GrayAlpha {
	return &GrayAlpha{Pix: make([]uint8, 2*r.Dx()*r.Dy()), Stride: 2 * r.Dx(), Rect: r}
}

func (p *GrayAlpha) ColorModel() color.Model { return color.NRGBAModel }

func (p *GrayAlpha) Bounds() image.Rectangle { return p.Rect }

func (p *GrayAlpha) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.NRGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+2 : i+2]
	return color.NRGBA{s[0], s[0], s[0], s[1]}
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *GrayAlpha) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*2
}

// RGB is an opaque image with three 8-bit channels per pixel.
// It is the only output format of the pipeline.
type RGB struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewRGB returns a new RGB image with the given bounds.
func NewRGB(r image.Rectangle) *RGB {
	return &RGB{Pix: make([]uint8, 3*r.Dx()*r.Dy()), Stride: 3 * r.Dx(), Rect: r}
}

func (p *RGB) ColorModel() color.Model { return color.RGBAModel }

func (p *RGB) Bounds() image.Rectangle { return p.Rect }

func (p *RGB) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	return color.RGBA{s[0], s[1], s[2], 0xff}
}

// Set implements draw.Image. Colors are flattened onto white.
func (p *RGB) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	r, g, b, a := c.RGBA()
	bg := 0xffff - a
	s[0] = uint8((r + bg) >> 8)
	s[1] = uint8((g + bg) >> 8)
	s[2] = uint8((b + bg) >> 8)
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *RGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// Opaque reports whether the image is fully opaque, which is always true.
func (p *RGB) Opaque() bool { return true }
