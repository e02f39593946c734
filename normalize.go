package imgdate

import (
	"fmt"
	"image"

	"github.com/sunshineplan/utils/log"
)

// Stage is a step of the normalization pipeline. A Result records the
// conversion stage its image went through.
type Stage int

// Pipeline stages.
const (
	Decoded Stage = iota
	MetadataCaptured
	Oriented
	PaletteExpanded
	AlphaFlattened
	ColorConverted
	RescaledGray
	DirectGray
	DirectRGB
	BlankCanvas
	PolarityResolved
	RGB8Final
)

var stageNames = [...]string{
	Decoded:          "Decoded",
	MetadataCaptured: "MetadataCaptured",
	Oriented:         "Oriented",
	PaletteExpanded:  "PaletteExpanded",
	AlphaFlattened:   "AlphaFlattened",
	ColorConverted:   "ColorConverted",
	RescaledGray:     "RescaledGray",
	DirectGray:       "DirectGray",
	DirectRGB:        "DirectRGB",
	BlankCanvas:      "BlankCanvas",
	PolarityResolved: "PolarityResolved",
	RGB8Final:        "RGB8Final",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Result is the outcome of Normalize.
type Result struct {
	// Image is the upright, opaque 8-bit RGB rendition of the source.
	Image *RGB
	// Hint is the metadata captured before any pixel conversion.
	Hint Hint
	// Source is the pixel format of the decoded image.
	Source PixelFormat
	// Stage is the conversion branch taken.
	Stage Stage
	// Fallback reports whether the preferred conversion for Source failed.
	Fallback bool
}

// Normalize converts a decoded image into an upright, opaque 8-bit RGB image
// with its tone polarity corrected. It never fails: unreadable metadata
// resolves to defaults and unconvertible pixels to a blank canvas.
func Normalize(img image.Image, tags TagStore) *Result {
	return NormalizeHint(img, ExtractHint(tags))
}

// NormalizeHint is like Normalize but takes already captured metadata.
func NormalizeHint(img image.Image, h Hint) *Result {
	res := &Result{Hint: h, Source: FormatOf(img), Stage: MetadataCaptured}
	if img == nil || img.Bounds().Empty() {
		res.Image, res.Stage = Blank(img), BlankCanvas
		return res
	}

	img = Orient(img, h.Orientation)
	converted, stage, fallback := composite(img, h)
	res.Stage, res.Fallback = stage, fallback
	log.Debug("Normalized image", "format", res.Source, "orientation", int(h.Orientation), "stage", stage)

	if stage == BlankCanvas {
		res.Image = converted.(*RGB)
		return res
	}
	switch img := ResolvePolarity(converted, h).(type) {
	case *image.Gray:
		res.Image = Broadcast(img)
	case *RGB:
		res.Image = img
	default:
		// composite only yields gray or RGB images
		res.Image, res.Stage = Blank(img), BlankCanvas
	}
	return res
}
