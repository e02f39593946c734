package imgdate

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sunshineplan/utils/log"
)

var (
	// ErrNoImages is returned by NewSession for a folder without images.
	ErrNoImages = errors.New("no images found")
	// ErrEmptyDate is returned by SetDate for blank input.
	ErrEmptyDate = errors.New("please enter a date (e.g., 'Nov 24', 'yesterday', '2 months ago')")
)

// View is what is displayed for one file.
type View struct {
	Name         string
	Index, Total int
	OriginalSize image.Point
	DisplaySize  image.Point
	Mode         PixelFormat
	FileSize     int64

	// Image is the normalized preview, nil when the file failed to load.
	Image  image.Image
	Result *Result
	Err    error
}

// Status returns the one-line description of the view.
func (v *View) Status() string {
	if v.Err != nil {
		return fmt.Sprintf("Error loading %s: %v", v.Name, v.Err)
	}
	return fmt.Sprintf("%s (%d/%d) | Original: %d×%d | Display: %d×%d | %s mode | %.1f KB",
		v.Name, v.Index+1, v.Total,
		v.OriginalSize.X, v.OriginalSize.Y, v.DisplaySize.X, v.DisplaySize.Y,
		v.Mode, float64(v.FileSize)/1024)
}

// Session walks the images of a folder one at a time.
type Session struct {
	dir   string
	files []string
	idx   int
	view  *View

	opts       Options
	decodeOpts []DecodeOption
	parser     DateParser
	now        func() time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithOptions sets the preview options.
func WithOptions(opts Options) SessionOption {
	return func(s *Session) { s.opts = opts }
}

// WithDecodeOptions sets the options used to decode every file.
func WithDecodeOptions(opts ...DecodeOption) SessionOption {
	return func(s *Session) { s.decodeOpts = opts }
}

// WithDateParser replaces the default date parser.
func WithDateParser(p DateParser) SessionOption {
	return func(s *Session) { s.parser = p }
}

// WithClock sets the function returning the reference time of date input.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession lists the images of dir. It fails with ErrNoImages when there
// are none.
func NewSession(dir string, opts ...SessionOption) (*Session, error) {
	files, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	s := &Session{dir: dir, files: files, opts: NewOptions(), now: time.Now}
	for _, option := range opts {
		option(s)
	}
	if s.parser == nil {
		s.parser = NewDateParser()
	}
	return s, nil
}

// Len returns the number of images.
func (s *Session) Len() int { return len(s.files) }

// Index returns the position of the current image.
func (s *Session) Index() int { return s.idx }

// Name returns the file name of the current image.
func (s *Session) Name() string { return s.files[s.idx] }

// Path returns the path of the current image.
func (s *Session) Path() string { return filepath.Join(s.dir, s.files[s.idx]) }

// Current returns the view of the current image, loading it if needed.
func (s *Session) Current() *View {
	if s.view == nil {
		return s.Load()
	}
	return s.view
}

// Next moves to the following image and loads it. At the last image it
// does nothing and reports false.
func (s *Session) Next() (*View, bool) {
	if s.idx >= len(s.files)-1 {
		return s.Current(), false
	}
	s.idx++
	return s.Load(), true
}

// Prev moves to the preceding image and loads it. At the first image it
// does nothing and reports false.
func (s *Session) Prev() (*View, bool) {
	if s.idx == 0 {
		return s.Current(), false
	}
	s.idx--
	return s.Load(), true
}

// Load decodes and normalizes the current image. A file that cannot be
// decoded yields a view carrying the error and no image.
func (s *Session) Load() *View {
	v := &View{Name: s.Name(), Index: s.idx, Total: len(s.files)}
	s.view = v

	path := s.Path()
	src, err := Open(path, s.decodeOpts...)
	if err != nil {
		log.Error("Failed to open image", "image", path, "error", err)
		v.Err = err
		return v
	}
	if info, err := os.Stat(path); err == nil {
		v.FileSize = info.Size()
	}
	v.OriginalSize = src.Image.Bounds().Size()
	v.Mode = FormatOf(src.Image)
	v.Image, v.Result = s.opts.Preview(src)
	v.DisplaySize = v.Image.Bounds().Size()
	return v
}

// SetDate parses text and writes the date into the current image. It
// returns the status message to display.
func (s *Session) SetDate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDate
	}
	t, err := s.parser.Parse(text, s.now())
	if err != nil {
		return "", err
	}
	res, err := WriteDate(s.Path(), t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s - '%s' → %s", s.Name(), text, res.Message()), nil
}
