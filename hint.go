package imgdate

import (
	"math"
	"strconv"
	"strings"
)

// Orientation is an EXIF flag that specifies the transformation
// that should be applied to image to display it correctly.
type Orientation int

// EXIF orientation values.
const (
	OrientationNormal     Orientation = 1
	OrientationFlipH      Orientation = 2
	OrientationRotate180  Orientation = 3
	OrientationFlipV      Orientation = 4
	OrientationTranspose  Orientation = 5
	OrientationRotate270  Orientation = 6
	OrientationTransverse Orientation = 7
	OrientationRotate90   Orientation = 8
)

// Swaps reports whether the orientation swaps width and height.
func (o Orientation) Swaps() bool {
	return o >= OrientationTranspose && o <= OrientationRotate90
}

// Photometric interpretation codes of tag 262.
const (
	PhotometricWhiteIsZero = 0
	PhotometricBlackIsZero = 1
)

// Defaults used when metadata is absent or malformed.
const (
	DefaultOrientation = OrientationNormal
	DefaultWhiteIsZero = false
)

// Hint carries the metadata captured before any pixel conversion.
type Hint struct {
	Orientation Orientation
	WhiteIsZero bool

	// Min and Max are the declared sample bounds, valid only if HasBounds.
	Min, Max  float64
	HasBounds bool
}

// DefaultHint is the hint of an image without metadata.
var DefaultHint = Hint{Orientation: DefaultOrientation, WhiteIsZero: DefaultWhiteIsZero}

// ExtractHint reads orientation, photometric polarity and sample bounds from
// tags. Missing or malformed tags resolve to the defaults.
func ExtractHint(tags TagStore) Hint {
	h := DefaultHint
	if tags == nil {
		return h
	}
	if o := Orientation(intTag(tags, TagOrientation, int(DefaultOrientation))); o >= OrientationNormal && o <= OrientationRotate90 {
		h.Orientation = o
	}
	h.WhiteIsZero = intTag(tags, TagPhotometric, PhotometricBlackIsZero) == PhotometricWhiteIsZero
	lo, loOK := floatTag(tags, TagMinSampleValue)
	hi, hiOK := floatTag(tags, TagMaxSampleValue)
	if loOK && hiOK {
		h.Min, h.Max, h.HasBounds = lo, hi, true
	}
	return h
}

// bounds returns the declared bounds if they describe a usable range.
func (h Hint) bounds() (lo, hi float64, ok bool) {
	if !h.HasBounds || math.IsNaN(h.Min) || math.IsNaN(h.Max) || math.IsInf(h.Min, 0) || math.IsInf(h.Max, 0) {
		return 0, 0, false
	}
	if h.Max <= h.Min {
		return 0, 0, false
	}
	return h.Min, h.Max, true
}

func floatTag(tags TagStore, code uint16) (float64, bool) {
	v, ok := tags.Tag(code)
	if !ok {
		return 0, false
	}
	if v, ok = scalar(v); !ok {
		return 0, false
	}
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(v, "\x00")), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
