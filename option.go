package imgdate

import (
	"image"
	"io"
	"path/filepath"
)

var defaultFormat = FormatOption{Format: PNG}

// Options represents options that can be used to configure preview export.
type Options struct {
	// Width and Height bound the preview size. Zero disables scaling.
	Width, Height int
	Format        FormatOption
}

// NewOptions creates a new option with default setting.
func NewOptions() Options {
	return Options{Width: DefaultPreviewWidth, Height: DefaultPreviewHeight, Format: defaultFormat}
}

// SetSize sets the preview box.
func (opts *Options) SetSize(width, height int) *Options {
	opts.Width, opts.Height = width, height
	return opts
}

// SetFormat sets the value for the Format field.
func (opts *Options) SetFormat(f string, options ...EncodeOption) (err error) {
	opts.Format, err = setFormat(f, options...)
	return
}

// Preview normalizes the source image and scales it to the preview box.
func (opts *Options) Preview(src *Source) (image.Image, *Result) {
	res := src.Normalize()
	return Thumbnail(res.Image, opts.Width, opts.Height), res
}

// Convert writes the preview of src to w.
func (opts *Options) Convert(w io.Writer, src *Source) error {
	img, _ := opts.Preview(src)
	return opts.Format.Encode(w, img)
}

// ConvertExt convert filename's ext according image format.
func (opts *Options) ConvertExt(filename string) string {
	return filename[0:len(filename)-len(filepath.Ext(filename))] + "." + formatExts[opts.Format.Format]
}
