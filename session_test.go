package imgdate

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func newTestSession(t *testing.T) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), image.NewRGBA(image.Rect(0, 0, 40, 20)))
	if err := os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("corrupt"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "c.jpg"), encodeJPEG(t, image.NewGray(image.Rect(0, 0, 30, 10))), 0644); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
	var opts Options
	opts.SetSize(20, 20)
	s, err := NewSession(dir, WithOptions(opts), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	return s, dir
}

func TestSessionNavigation(t *testing.T) {
	s, _ := newTestSession(t)
	if s.Len() != 3 || s.Index() != 0 || s.Name() != "a.png" {
		t.Fatalf("unexpected session state %d %d %s", s.Len(), s.Index(), s.Name())
	}

	v := s.Current()
	if v.Err != nil {
		t.Fatal(v.Err)
	}
	if v.OriginalSize != (image.Point{40, 20}) || v.DisplaySize != (image.Point{20, 10}) {
		t.Errorf("unexpected sizes %v %v", v.OriginalSize, v.DisplaySize)
	}
	if v.Mode.Kind != KindRGBA {
		t.Errorf("expected RGBA mode; got %v", v.Mode)
	}
	if !strings.HasPrefix(v.Status(), "a.png (1/3) | Original: 40×20 | Display: 20×10 | RGBA mode | ") {
		t.Errorf("unexpected status %q", v.Status())
	}
	if _, ok := s.Prev(); ok {
		t.Error("expected no previous image")
	}

	v, ok := s.Next()
	if !ok {
		t.Fatal("expected next image")
	}
	if !errors.Is(v.Err, ErrDecode) || v.Image != nil {
		t.Errorf("expected decode error; got %v", v.Err)
	}
	if !strings.HasPrefix(v.Status(), "Error loading b.jpg: ") {
		t.Errorf("unexpected status %q", v.Status())
	}

	v, ok = s.Next()
	if !ok || v.Err != nil || v.Name != "c.jpg" {
		t.Fatalf("expected c.jpg to load; got %v %v", v.Name, v.Err)
	}
	if v.Mode.Kind != KindGray {
		t.Errorf("expected gray mode; got %v", v.Mode)
	}
	if _, ok := s.Next(); ok {
		t.Error("expected no next image")
	}
	if s.Index() != 2 {
		t.Errorf("expected to stay at the last image; got %d", s.Index())
	}

	if v, ok := s.Prev(); !ok || v.Index != 1 {
		t.Error("expected to move back")
	}
}

func TestSessionSetDate(t *testing.T) {
	s, dir := newTestSession(t)
	s.Next()
	s.Next()

	if _, err := s.SetDate("  "); !errors.Is(err, ErrEmptyDate) {
		t.Errorf("expected ErrEmptyDate; got %v", err)
	}
	if _, err := s.SetDate("not a date at all qwerty"); !errors.Is(err, ErrUnparsableDate) {
		t.Errorf("expected ErrUnparsableDate; got %v", err)
	}

	msg, err := s.SetDate("Nov 24")
	if err != nil {
		t.Fatal(err)
	}
	if want := "c.jpg - 'Nov 24' → Date updated to 2024:11:24 12:00:00"; msg != want {
		t.Errorf("expected %q; got %q", want, msg)
	}
	f, err := os.Open(filepath.Join(dir, "c.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	x, err := exif.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if got := exifString(t, x, exif.DateTimeOriginal); got != "2024:11:24 12:00:00" {
		t.Errorf("unexpected date %q", got)
	}

	s.Prev()
	if _, err := s.SetDate("yesterday"); !errors.Is(err, ErrSave) {
		t.Errorf("expected ErrSave for corrupt file; got %v", err)
	}
}

type fixedParser time.Time

func (p fixedParser) Parse(string, time.Time) (time.Time, error) { return time.Time(p), nil }

func TestSessionDateParser(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	writePNG(t, filepath.Join(dir, "x.png"), img)

	s, err := NewSession(dir, WithDateParser(fixedParser(time.Date(1999, 1, 2, 0, 0, 0, 0, time.UTC))))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := s.SetDate("anything")
	if err != nil {
		t.Fatal(err)
	}
	if msg != "x.png - 'anything' → Date updated to 1999:01:02 12:00:00" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestNewSessionEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSession(dir); !errors.Is(err, ErrNoImages) {
		t.Errorf("expected ErrNoImages; got %v", err)
	}
	if _, err := NewSession(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing folder")
	}
}
