package imgdate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"github.com/rwcarlsen/goexif/exif"
)

var testDate = time.Date(2023, time.November, 24, 18, 30, 0, 0, time.Local)

func exifString(t *testing.T, x *exif.Exif, name exif.FieldName) string {
	t.Helper()
	tag, err := x.Get(name)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	s, err := tag.StringVal()
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return s
}

func TestDateString(t *testing.T) {
	if got := DateString(testDate); got != "2023:11:24 12:00:00" {
		t.Errorf("expected noon; got %q", got)
	}
	if _, err := time.Parse(DateLayout, DateString(testDate)); err != nil {
		t.Error(err)
	}
}

func TestWriteDateJPEG(t *testing.T) {
	order := binary.BigEndian
	dirs := exifDirs{
		ifd0: []ifdEntry{shortEntry(order, TagOrientation, 6), asciiEntry(TagDateTime, "2001:01:01 00:00:00")},
		exif: []ifdEntry{asciiEntry(0xa434, "Lens Model")},
		gps:  []ifdEntry{{id: 0, typ: 1, count: 4, val: []byte{2, 2, 0, 0}}},
	}
	orig := withAPP1(t, encodeJPEG(t, image.NewGray(image.Rect(0, 0, 8, 4))), exifBlock(t, order, dirs))
	for name, data := range map[string][]byte{
		"with exif":    orig,
		"without exif": encodeJPEG(t, image.NewGray(image.Rect(0, 0, 8, 4))),
	} {
		path := filepath.Join(t.TempDir(), "test.jpg")
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		res, err := WriteDate(path, testDate)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !res.Embedded || res.TagErr != nil {
			t.Errorf("%s: expected embedded date; got %+v", name, res)
		}
		if want := "Date updated to 2023:11:24 12:00:00"; res.Message() != want {
			t.Errorf("%s: expected %q; got %q", name, want, res.Message())
		}

		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		x, err := exif.Decode(bytes.NewReader(b))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		for _, field := range []exif.FieldName{exif.DateTime, exif.DateTimeOriginal, exif.DateTimeDigitized} {
			if got := exifString(t, x, field); got != "2023:11:24 12:00:00" {
				t.Errorf("%s: %s expected new date; got %q", name, field, got)
			}
		}

		src, err := Decode(bytes.NewReader(b))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if name == "with exif" {
			if got := exifString(t, x, exif.LensModel); got != "Lens Model" {
				t.Errorf("expected lens model kept; got %q", got)
			}
			if _, err := x.Get(exif.GPSVersionID); err != nil {
				t.Errorf("expected gps kept: %v", err)
			}
			if h := ExtractHint(src.Tags); h.Orientation != OrientationRotate270 {
				t.Errorf("expected orientation kept; got %d", h.Orientation)
			}
		}
		if size := src.Image.Bounds().Size(); size != (image.Point{8, 4}) {
			t.Errorf("%s: expected pixels intact; got %v", name, size)
		}
	}
}

func TestWriteDateTIFF(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		// Odd length strip so the new directories need padding.
		data := grayTIFF(order, 3, 1, 8, sampleUint, PhotometricBlackIsZero, []byte{0, 128, 255},
			asciiField(TagDateTime, "2001:01:01 00:00:00"))
		path := filepath.Join(t.TempDir(), "test.tif")
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		res, err := WriteDate(path, testDate)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Embedded {
			t.Errorf("%v: expected embedded date; got %+v", order, res)
		}

		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(b) < len(data) || !bytes.Equal(b[8:len(data)], data[8:]) {
			t.Errorf("%v: expected original bytes after the header to be kept", order)
		}
		dirs, _, err := readDirs(b)
		if err != nil {
			t.Fatal(err)
		}
		var dates []string
		for _, s := range [][]ifdEntry{dirs.ifd0, dirs.exif} {
			for _, e := range s {
				if e.id == TagDateTime || e.id == TagDateTimeOriginal || e.id == TagDateTimeDigitized {
					dates = append(dates, strings.TrimRight(string(e.val), "\x00"))
				}
			}
		}
		if len(dates) != 3 {
			t.Fatalf("%v: expected 3 date tags; got %q", order, dates)
		}
		for _, d := range dates {
			if d != "2023:11:24 12:00:00" {
				t.Errorf("%v: expected new date; got %q", order, d)
			}
		}

		src, err := Decode(bytes.NewReader(b))
		if err != nil {
			t.Fatal(err)
		}
		gray, ok := src.Image.(*image.Gray)
		if !ok {
			t.Fatalf("%v: expected *image.Gray; got %T", order, src.Image)
		}
		if !bytes.Equal(gray.Pix, []byte{0, 128, 255}) {
			t.Errorf("%v: expected pixels intact; got %v", order, gray.Pix)
		}
	}
}

func TestWriteDatePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 2))); err != nil {
		t.Fatal(err)
	}
	plain := buf.Bytes()
	order := binary.BigEndian
	block := exifBlock(t, order, exifDirs{ifd0: []ifdEntry{shortEntry(order, TagOrientation, 6)}})[len(exifHeader):]
	at := len(pngHeader) + 25
	tagged := slices.Concat(plain[:at], pngChunk("eXIf", block), plain[at:])

	for _, tc := range []struct {
		name        string
		data        []byte
		orientation Orientation
		size        image.Point
	}{
		{"with exif", tagged, OrientationRotate270, image.Point{2, 4}},
		{"without exif", plain, OrientationNormal, image.Point{4, 2}},
	} {
		path := filepath.Join(t.TempDir(), "test.png")
		if err := os.WriteFile(path, tc.data, 0644); err != nil {
			t.Fatal(err)
		}
		res, err := WriteDate(path, testDate)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Embedded || res.TagErr != nil {
			t.Errorf("%s: expected embedded date; got %+v", tc.name, res)
		}

		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		chunks, err := pngChunks(b)
		if err != nil {
			t.Fatal(err)
		}
		var types []string
		for _, c := range chunks {
			types = append(types, c.typ)
		}
		if diff := cmp.Diff([]string{"IHDR", "eXIf", "IDAT", "IEND"}, types); diff != "" {
			t.Errorf("%s: chunks (-want +got):\n%s", tc.name, diff)
		}

		x, err := exif.Decode(bytes.NewReader(pngEXIF(b)))
		if err != nil {
			t.Fatal(err)
		}
		for _, name := range []exif.FieldName{exif.DateTime, exif.DateTimeOriginal, exif.DateTimeDigitized} {
			if got := exifString(t, x, name); got != "2023:11:24 12:00:00" {
				t.Errorf("%s: %s = %q", tc.name, name, got)
			}
		}

		src, err := Open(path)
		if err != nil {
			t.Fatal(err)
		}
		if h := ExtractHint(src.Tags); h.Orientation != tc.orientation {
			t.Errorf("%s: expected orientation %d; got %d", tc.name, tc.orientation, h.Orientation)
		}
		if size := src.Normalize().Image.Bounds().Size(); size != tc.size {
			t.Errorf("%s: expected %v; got %v", tc.name, tc.size, size)
		}
	}
}

func TestWriteDateResave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bmp")
	if err := imaging.Save(image.NewGray(image.Rect(0, 0, 5, 3)), path); err != nil {
		t.Fatal(err)
	}

	res, err := WriteDate(path, testDate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Embedded || !errors.Is(res.TagErr, ErrMetadataWrite) {
		t.Errorf("expected metadata write error; got %+v", res)
	}
	if !strings.Contains(res.Message(), "not persisted") {
		t.Errorf("unexpected message %q", res.Message())
	}
	src, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if size := src.Image.Bounds().Size(); size != (image.Point{5, 3}) {
		t.Errorf("expected resaved image; got %v", size)
	}
}

func TestWriteDateErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteDate(filepath.Join(dir, "missing.jpg"), testDate); !errors.Is(err, ErrSave) {
		t.Errorf("expected ErrSave; got %v", err)
	}

	path := filepath.Join(dir, "corrupt.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDate(path, testDate); !errors.Is(err, ErrSave) {
		t.Errorf("expected ErrSave; got %v", err)
	}
	if b, _ := os.ReadFile(path); string(b) != "not an image" {
		t.Error("expected file untouched after failed save")
	}
}

func TestParseJPEGSegments(t *testing.T) {
	data := encodeJPEG(t, image.NewGray(image.Rect(0, 0, 4, 4)))
	segs, err := parseJPEGSegments(data)
	if err != nil {
		t.Fatal(err)
	}
	if segs[0].marker != markerSOI || segs[len(segs)-1].marker != markerScan {
		t.Errorf("unexpected segments %v", segs)
	}
	if !bytes.Equal(data, writeJPEGSegments(segs)) {
		t.Error("expected segments to round trip")
	}
	if _, err := parseJPEGSegments(data[:10]); err == nil {
		t.Error("expected error for truncated jpeg")
	}
	if _, err := parseJPEGSegments([]byte("GIF89a")); err == nil {
		t.Error("expected error for non jpeg")
	}
}
