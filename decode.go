package imgdate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // decode gif format
	_ "image/jpeg" // decode jpeg format
	_ "image/png"  // decode png format
	"io"
	"os"

	"github.com/sunshineplan/utils/log"
	_ "github.com/sunshineplan/tiff" // decode tiff format
	_ "golang.org/x/image/bmp"       // decode bmp format
	_ "golang.org/x/image/webp"      // decode webp format
)

// ErrDecode is returned when an image file cannot be decoded.
var ErrDecode = errors.New("cannot decode image")

// maxPixels limits the raster size a file may declare.
const maxPixels = 1 << 27

func checkPixels(width, height int) error {
	if int64(width)*int64(height) > maxPixels {
		return fmt.Errorf("%w: %dx%d pixels", errImplausibleSize, width, height)
	}
	return nil
}

// Source is a decoded image together with its metadata.
type Source struct {
	Image image.Image
	Tags  TagStore
	// Format is the name the format was registered with, such as "jpeg".
	Format string
}

// Normalize runs the normalization pipeline on the decoded image.
func (s *Source) Normalize() *Result {
	return Normalize(s.Image, s.Tags)
}

type decodeConfig struct {
	autoOrientation bool
}

var defaultDecodeConfig = decodeConfig{
	autoOrientation: true,
}

// DecodeOption sets an optional parameter for the Decode and Open functions.
type DecodeOption func(*decodeConfig)

// AutoOrientation returns a DecodeOption that sets the auto-orientation mode.
// If auto-orientation is disabled, the EXIF orientation tag is hidden from
// the returned tags and normalization keeps the stored orientation.
// By default it's enabled.
func AutoOrientation(enabled bool) DecodeOption {
	return func(c *decodeConfig) {
		c.autoOrientation = enabled
	}
}

// Decode reads an image and its metadata from r.
// Gray TIFF images are decoded with their samples as stored; other formats
// use the decoders registered in the image package.
func Decode(r io.Reader, opts ...DecodeOption) (*Source, error) {
	cfg := defaultDecodeConfig
	for _, option := range opts {
		option(&cfg)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	src, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !cfg.autoOrientation {
		src.Tags = Overlay{TagMap{TagOrientation: int(OrientationNormal)}, src.Tags}
	}
	return src, nil
}

func decode(data []byte) (*Source, error) {
	if isTIFF(data) {
		img, tags, err := decodeRawTIFF(data)
		if err == nil {
			return &Source{Image: img, Tags: tags, Format: "tiff"}, nil
		}
		if errors.Is(err, errImplausibleSize) {
			return nil, err
		}
		log.Debug("Raw tiff decoding failed, using registered decoder", "error", err)
	}

	// registered decoders allocate the whole raster before reading samples
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := checkPixels(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &Source{Image: img, Tags: readTags(format, data), Format: format}, nil
}

// DecodeConfig decodes the color model and dimensions of an image that has been encoded in a
// registered format. The string returned is the format name used during format registration.
func DecodeConfig(r io.Reader) (image.Config, string, error) {
	return image.DecodeConfig(r)
}

// Open loads an image and its metadata from file.
func Open(file string, opts ...DecodeOption) (*Source, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, opts...)
}
