package imgdate

import (
	"github.com/rwcarlsen/goexif/tiff"
)

// TIFF tag codes consulted or written by this package.
const (
	TagImageWidth        uint16 = 256
	TagImageLength       uint16 = 257
	TagBitsPerSample     uint16 = 258
	TagCompression       uint16 = 259
	TagPhotometric       uint16 = 262
	TagStripOffsets      uint16 = 273
	TagOrientation       uint16 = 274
	TagSamplesPerPixel   uint16 = 277
	TagRowsPerStrip      uint16 = 278
	TagStripByteCounts   uint16 = 279
	TagMinSampleValue    uint16 = 280
	TagMaxSampleValue    uint16 = 281
	TagPlanarConfig      uint16 = 284
	TagDateTime          uint16 = 306
	TagPredictor         uint16 = 317
	TagTileWidth         uint16 = 322
	TagExtraSamples      uint16 = 338
	TagSampleFormat      uint16 = 339
	TagExifIFD           uint16 = 0x8769
	TagGPSIFD            uint16 = 0x8825
	TagDateTimeOriginal  uint16 = 0x9003
	TagDateTimeDigitized uint16 = 0x9004
	TagInteropIFD        uint16 = 0xa005
)

// A TagStore looks up raw tag values by numeric code.
//
// Values are int, float64 or string scalars, or []int / []float64 sequences.
// The second result is false when the tag is absent.
type TagStore interface {
	Tag(code uint16) (any, bool)
}

// NoTags is a TagStore without any tag.
var NoTags TagStore = TagMap(nil)

// TagMap is a TagStore backed by a plain map.
type TagMap map[uint16]any

// Tag implements TagStore.
func (m TagMap) Tag(code uint16) (any, bool) {
	v, ok := m[code]
	return v, ok
}

// IFDTags is a TagStore backed by a parsed TIFF image file directory, such as
// IFD0 of a TIFF file or of an EXIF block.
type IFDTags struct {
	Dir *tiff.Dir
}

// Tag implements TagStore.
func (t IFDTags) Tag(code uint16) (any, bool) {
	if t.Dir == nil {
		return nil, false
	}
	for _, tag := range t.Dir.Tags {
		if tag.Id == code {
			return tagValue(tag)
		}
	}
	return nil, false
}

func tagValue(tag *tiff.Tag) (any, bool) {
	n := int(tag.Count)
	switch tag.Format() {
	case tiff.IntVal:
		vals := make([]int, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Int(i)
			if err != nil {
				return nil, false
			}
			vals = append(vals, v)
		}
		if len(vals) == 1 {
			return vals[0], true
		}
		return vals, true
	case tiff.FloatVal:
		vals := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Float(i)
			if err != nil {
				return nil, false
			}
			vals = append(vals, v)
		}
		if len(vals) == 1 {
			return vals[0], true
		}
		return vals, true
	case tiff.RatVal:
		vals := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			num, den, err := tag.Rat2(i)
			if err != nil || den == 0 {
				return nil, false
			}
			vals = append(vals, float64(num)/float64(den))
		}
		if len(vals) == 1 {
			return vals[0], true
		}
		return vals, true
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil, false
		}
		return s, true
	}
	return nil, false
}

// Overlay is a TagStore that consults each store in order and returns the
// first value found.
type Overlay []TagStore

// Tag implements TagStore.
func (o Overlay) Tag(code uint16) (any, bool) {
	for _, s := range o {
		if s == nil {
			continue
		}
		if v, ok := s.Tag(code); ok {
			return v, true
		}
	}
	return nil, false
}

// scalar collapses a sequence to its first element.
func scalar(v any) (any, bool) {
	switch v := v.(type) {
	case []int:
		if len(v) == 0 {
			return nil, false
		}
		return v[0], true
	case []float64:
		if len(v) == 0 {
			return nil, false
		}
		return v[0], true
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		return scalar(v[0])
	case nil:
		return nil, false
	}
	return v, true
}

// intTag returns the first value of an integer tag, or def when absent or
// not an integer.
func intTag(s TagStore, code uint16, def int) int {
	v, ok := s.Tag(code)
	if !ok {
		return def
	}
	v, ok = scalar(v)
	if !ok {
		return def
	}
	switch v := v.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	}
	return def
}

// intsTag returns all values of an integer tag.
func intsTag(s TagStore, code uint16) []int {
	v, ok := s.Tag(code)
	if !ok {
		return nil
	}
	switch v := v.(type) {
	case []int:
		return v
	case int:
		return []int{v}
	}
	return nil
}
