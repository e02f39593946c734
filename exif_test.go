package imgdate

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/jpeg"
	"image/png"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rwcarlsen/goexif/tiff"
)

func shortEntry(order binary.ByteOrder, id, v uint16) ifdEntry {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	return ifdEntry{id: id, typ: tiff.DTShort, count: 1, val: b}
}

// exifBlock returns an APP1 payload holding dirs.
func exifBlock(t *testing.T, order binary.ByteOrder, dirs exifDirs) []byte {
	t.Helper()
	body, err := dirs.layout(order, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	return append(append(slices.Clone(exifHeader), tiffHeader(order, 8)...), body...)
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// withAPP1 inserts an APP1 segment right after SOI.
func withAPP1(t *testing.T, data, app1 []byte) []byte {
	t.Helper()
	segs, err := parseJPEGSegments(data)
	if err != nil {
		t.Fatal(err)
	}
	segs = slices.Insert(segs, 1, jpegSegment{marker: markerAPP1, data: app1})
	return writeJPEGSegments(segs)
}

func TestDecodeJPEGOrientation(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		dirs := exifDirs{ifd0: []ifdEntry{shortEntry(order, TagOrientation, 6)}}
		data := withAPP1(t, encodeJPEG(t, image.NewGray(image.Rect(0, 0, 16, 8))), exifBlock(t, order, dirs))

		src, err := Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if src.Format != "jpeg" {
			t.Errorf("expected jpeg; got %q", src.Format)
		}
		if h := ExtractHint(src.Tags); h.Orientation != OrientationRotate270 {
			t.Errorf("%v: expected orientation 6; got %d", order, h.Orientation)
		}
		if size := src.Normalize().Image.Bounds().Size(); size != (image.Point{8, 16}) {
			t.Errorf("%v: expected 8x16; got %v", order, size)
		}

		src, err = Decode(bytes.NewReader(data), AutoOrientation(false))
		if err != nil {
			t.Fatal(err)
		}
		if size := src.Normalize().Image.Bounds().Size(); size != (image.Point{16, 8}) {
			t.Errorf("%v: expected 16x8 without auto orientation; got %v", order, size)
		}
	}
}

func TestDecodeJPEGWithoutExif(t *testing.T) {
	src, err := Decode(bytes.NewReader(encodeJPEG(t, image.NewGray(image.Rect(0, 0, 4, 4)))))
	if err != nil {
		t.Fatal(err)
	}
	if h := ExtractHint(src.Tags); h != DefaultHint {
		t.Errorf("expected default hint; got %+v", h)
	}
}

func pngChunk(typ string, data []byte) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	b = append(b, typ...)
	b = append(b, data...)
	return binary.BigEndian.AppendUint32(b, crc32.ChecksumIEEE(b[4:]))
}

func TestPNGExif(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 2))); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if pngEXIF(data) != nil {
		t.Error("expected no exif chunk")
	}

	order := binary.BigEndian
	block := exifBlock(t, order, exifDirs{ifd0: []ifdEntry{shortEntry(order, TagOrientation, 8)}})[len(exifHeader):]
	// IHDR is 8+13+4 bytes after the signature.
	at := len(pngHeader) + 25
	data = slices.Concat(data[:at], pngChunk("eXIf", block), data[at:])

	if diff := cmp.Diff(block, pngEXIF(data)); diff != "" {
		t.Errorf("chunk (-want +got):\n%s", diff)
	}
	src, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if h := ExtractHint(src.Tags); h.Orientation != OrientationRotate90 {
		t.Errorf("expected orientation 8; got %d", h.Orientation)
	}
	if pngEXIF(data[:at+10]) != nil {
		t.Error("expected nil for truncated chunk")
	}
}

func TestWebPExif(t *testing.T) {
	riff := func(chunks ...[]byte) []byte {
		body := slices.Concat(chunks...)
		b := []byte("RIFF")
		b = binary.LittleEndian.AppendUint32(b, uint32(4+len(body)))
		return append(append(b, "WEBP"...), body...)
	}
	chunk := func(id string, data []byte) []byte {
		b := binary.LittleEndian.AppendUint32([]byte(id), uint32(len(data)))
		b = append(b, data...)
		if len(data)%2 == 1 {
			b = append(b, 0)
		}
		return b
	}

	want := []byte("II*\x00payload")
	if diff := cmp.Diff(want, webpEXIF(riff(chunk("VP8X", []byte{1, 2, 3}), chunk("EXIF", want)))); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if webpEXIF(riff(chunk("VP8L", []byte{1}))) != nil {
		t.Error("expected no exif chunk")
	}
	if webpEXIF([]byte("RIFF0000WAVE")) != nil {
		t.Error("expected nil for non webp data")
	}
}

func TestReadTagsUnreadable(t *testing.T) {
	for _, tc := range []struct {
		format string
		data   []byte
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xd9}},
		{"png", []byte("not png")},
		{"gif", []byte("GIF89a")},
		{"tiff", []byte("II*\x00\xff\xff\xff\xff")},
	} {
		if h := ExtractHint(readTags(tc.format, tc.data)); h != DefaultHint {
			t.Errorf("%s: expected default hint; got %+v", tc.format, h)
		}
	}
}
