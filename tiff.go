package imgdate

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/rwcarlsen/goexif/tiff"
	"github.com/x448/float16"
	"golang.org/x/image/tiff/lzw"
)

// Compression schemes understood by the raw decoder.
const (
	compressionNone     = 1
	compressionLZW      = 5
	compressionDeflate  = 8
	compressionPackBits = 32773
	compressionDeflate2 = 32946
)

// Sample formats of tag 339.
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

const predictorHorizontal = 2

// maxCompressionRatio bounds how much a compressed strip may expand.
const maxCompressionRatio = 1 << 12

var (
	errUnsupportedTIFF = errors.New("unsupported tiff layout")
	errImplausibleSize = errors.New("declared image size exceeds input")
)

func unsupported(what string, v any) error {
	return fmt.Errorf("%w: %s %v", errUnsupportedTIFF, what, v)
}

func isTIFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*"))
}

// readIFD0 parses the first image file directory of a TIFF stream.
func readIFD0(data []byte) (*tiff.Dir, binary.ByteOrder, error) {
	t, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	if len(t.Dirs) == 0 {
		return nil, nil, errors.New("tiff has no image file directory")
	}
	return t.Dirs[0], t.Order, nil
}

// rawTIFF describes the strips of a single channel TIFF image.
type rawTIFF struct {
	data   []byte
	order  binary.ByteOrder
	width  int
	height int

	bps          int
	spp          int
	sampleFormat int
	compression  int
	predictor    int
	associated   bool
}

// decodeRawTIFF decodes gray TIFF images keeping their samples as stored:
// photometric polarity is not applied and wide or floating point samples are
// not reduced. Layouts it does not handle return an error wrapping
// errUnsupportedTIFF, and the caller falls back to the registered decoder.
func decodeRawTIFF(data []byte) (image.Image, TagStore, error) {
	dir, order, err := readIFD0(data)
	if err != nil {
		return nil, nil, err
	}
	tags := IFDTags{Dir: dir}

	if p := intTag(tags, TagPhotometric, -1); p != PhotometricWhiteIsZero && p != PhotometricBlackIsZero {
		return nil, tags, unsupported("photometric", p)
	}
	if _, ok := tags.Tag(TagTileWidth); ok {
		return nil, tags, unsupported("layout", "tiled")
	}
	if pc := intTag(tags, TagPlanarConfig, 1); pc != 1 {
		return nil, tags, unsupported("planar configuration", pc)
	}

	t := &rawTIFF{
		data:         data,
		order:        order,
		width:        intTag(tags, TagImageWidth, 0),
		height:       intTag(tags, TagImageLength, 0),
		bps:          intTag(tags, TagBitsPerSample, 1),
		spp:          intTag(tags, TagSamplesPerPixel, 1),
		sampleFormat: intTag(tags, TagSampleFormat, sampleUint),
		compression:  intTag(tags, TagCompression, compressionNone),
		predictor:    intTag(tags, TagPredictor, 1),
	}
	if t.width <= 0 || t.height <= 0 || t.width > 1<<16 || t.height > 1<<16 {
		return nil, tags, fmt.Errorf("invalid tiff dimensions %dx%d", t.width, t.height)
	}
	if err := checkPixels(t.width, t.height); err != nil {
		return nil, tags, err
	}
	if t.spp == 2 {
		extra := intsTag(tags, TagExtraSamples)
		if len(extra) != 1 || t.bps != 8 || t.sampleFormat != sampleUint {
			return nil, tags, unsupported("extra samples", extra)
		}
		t.associated = extra[0] == 1
	} else if t.spp != 1 {
		return nil, tags, unsupported("samples per pixel", t.spp)
	}
	if err := t.checkSamples(); err != nil {
		return nil, tags, err
	}
	if err := t.checkSize(); err != nil {
		return nil, tags, err
	}

	buf, err := t.readStrips(tags)
	if err != nil {
		return nil, tags, err
	}
	if t.predictor == predictorHorizontal {
		t.undoPredictor(buf)
	} else if t.predictor != 1 {
		return nil, tags, unsupported("predictor", t.predictor)
	}
	img, err := t.image(buf)
	return img, tags, err
}

func (t *rawTIFF) checkSamples() error {
	switch t.sampleFormat {
	case sampleUint:
		switch t.bps {
		case 1, 8, 16, 32:
			return nil
		}
	case sampleInt:
		switch t.bps {
		case 16, 32:
			return nil
		}
	case sampleFloat:
		switch t.bps {
		case 16, 32:
			return nil
		}
	}
	return unsupported("sample layout", fmt.Sprintf("%d-bit format %d", t.bps, t.sampleFormat))
}

func (t *rawTIFF) rowSize() int {
	return (t.width*t.spp*t.bps + 7) / 8
}

// checkSize rejects rasters whose samples cannot come from the input.
func (t *rawTIFF) checkSize() error {
	need := int64(t.rowSize()) * int64(t.height)
	limit := int64(len(t.data))
	if t.compression != compressionNone {
		limit *= maxCompressionRatio
	}
	if need > limit {
		return fmt.Errorf("%w: %dx%d %d-bit samples from %d bytes", errImplausibleSize, t.width, t.height, t.bps, len(t.data))
	}
	return nil
}

// readStrips decompresses all strips into a single buffer of whole rows.
func (t *rawTIFF) readStrips(tags TagStore) ([]byte, error) {
	offsets := intsTag(tags, TagStripOffsets)
	counts := intsTag(tags, TagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, errors.New("inconsistent strip tags")
	}
	rowsPerStrip := intTag(tags, TagRowsPerStrip, t.height)
	if rowsPerStrip <= 0 || rowsPerStrip > t.height {
		rowsPerStrip = t.height
	}

	rowSize := t.rowSize()
	var buf []byte
	for i, off := range offsets {
		rows := min(rowsPerStrip, t.height-i*rowsPerStrip)
		if rows <= 0 {
			break
		}
		if off < 0 || counts[i] < 0 || off+counts[i] > len(t.data) {
			return nil, fmt.Errorf("strip %d out of range", i)
		}
		strip, err := t.decompress(t.data[off:off+counts[i]], rows*rowSize)
		if err != nil {
			return nil, fmt.Errorf("strip %d: %w", i, err)
		}
		if len(strip) < rows*rowSize {
			return nil, fmt.Errorf("strip %d: short data", i)
		}
		buf = append(buf, strip[:rows*rowSize]...)
	}
	if len(buf) < rowSize*t.height {
		return nil, errors.New("missing strips")
	}
	return buf, nil
}

// decompress returns the decoded strip, reading at most n+1 bytes of output.
func (t *rawTIFF) decompress(b []byte, n int) ([]byte, error) {
	switch t.compression {
	case compressionNone:
		return b, nil
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(b), lzw.MSB, 8)
		defer r.Close()
		return io.ReadAll(io.LimitReader(r, int64(n)+1))
	case compressionDeflate, compressionDeflate2:
		r, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(io.LimitReader(r, int64(n)+1))
	case compressionPackBits:
		return unpackBits(b, n+1)
	}
	return nil, unsupported("compression", t.compression)
}

// unpackBits decodes the PackBits run-length encoding, stopping once limit
// bytes have been produced.
func unpackBits(b []byte, limit int) ([]byte, error) {
	var out []byte
	for i := 0; i < len(b) && len(out) < limit; {
		n := int(int8(b[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(b) {
				return nil, io.ErrUnexpectedEOF
			}
			out = append(out, b[i:i+min(n+1, limit-len(out))]...)
			i += n + 1
		case n != -128:
			if i >= len(b) {
				return nil, io.ErrUnexpectedEOF
			}
			for j := 0; j < 1-n && len(out) < limit; j++ {
				out = append(out, b[i])
			}
			i++
		}
	}
	return out, nil
}

// undoPredictor reverses horizontal differencing in place.
func (t *rawTIFF) undoPredictor(buf []byte) {
	rowSize := t.rowSize()
	for y := 0; y < t.height; y++ {
		row := buf[y*rowSize : (y+1)*rowSize]
		switch t.bps {
		case 8:
			for i := t.spp; i < len(row); i++ {
				row[i] += row[i-t.spp]
			}
		case 16:
			for i := 2 * t.spp; i+2 <= len(row); i += 2 {
				t.order.PutUint16(row[i:], t.order.Uint16(row[i:])+t.order.Uint16(row[i-2*t.spp:]))
			}
		case 32:
			for i := 4 * t.spp; i+4 <= len(row); i += 4 {
				t.order.PutUint32(row[i:], t.order.Uint32(row[i:])+t.order.Uint32(row[i-4*t.spp:]))
			}
		}
	}
}

func (t *rawTIFF) image(buf []byte) (image.Image, error) {
	r := image.Rect(0, 0, t.width, t.height)
	rowSize := t.rowSize()
	switch {
	case t.spp == 2:
		img := NewGrayAlpha(r)
		copy(img.Pix, buf)
		if t.associated {
			for i := 0; i+1 < len(img.Pix); i += 2 {
				if a := img.Pix[i+1]; a != 0 {
					img.Pix[i] = uint8(min(uint32(img.Pix[i])*0xff/uint32(a), 0xff))
				}
			}
		}
		return img, nil
	case t.bps == 1:
		img := NewBilevel(r)
		for y := 0; y < t.height; y++ {
			row := buf[y*rowSize:]
			for x := 0; x < t.width; x++ {
				img.Pix[y*img.Stride+x] = row[x/8] >> (7 - uint(x%8)) & 1
			}
		}
		return img, nil
	case t.bps == 8:
		img := image.NewGray(r)
		copy(img.Pix, buf)
		return img, nil
	case t.bps == 16 && t.sampleFormat == sampleUint:
		img := image.NewGray16(r)
		for i := 0; i < t.width*t.height; i++ {
			binary.BigEndian.PutUint16(img.Pix[2*i:], t.order.Uint16(buf[2*i:]))
		}
		return img, nil
	case t.bps == 16 && t.sampleFormat == sampleInt:
		img := NewGray32(r, true)
		for i := range img.Pix {
			img.Pix[i] = uint32(int32(int16(t.order.Uint16(buf[2*i:]))))
		}
		return img, nil
	case t.bps == 16 && t.sampleFormat == sampleFloat:
		img := NewGray32f(r)
		img.Depth = 16
		for i := range img.Pix {
			img.Pix[i] = float16.Frombits(t.order.Uint16(buf[2*i:])).Float32()
		}
		return img, nil
	case t.bps == 32 && t.sampleFormat == sampleFloat:
		img := NewGray32f(r)
		for i := range img.Pix {
			img.Pix[i] = math.Float32frombits(t.order.Uint32(buf[4*i:]))
		}
		return img, nil
	case t.bps == 32:
		img := NewGray32(r, t.sampleFormat == sampleInt)
		for i := range img.Pix {
			img.Pix[i] = t.order.Uint32(buf[4*i:])
		}
		return img, nil
	}
	return nil, unsupported("bits per sample", t.bps)
}
