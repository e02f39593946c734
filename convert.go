package imgdate

import (
	"image"
	"io"
)

// Write image according format option
func Write(w io.Writer, base image.Image, option *FormatOption) error {
	return option.Encode(w, base)
}

// Save saves image according format option. The file is written to a
// temporary file first and renamed over output.
func Save(output string, base image.Image, option *FormatOption) error {
	return replaceFile(output, func(w io.Writer) error {
		return option.Encode(w, base)
	})
}
