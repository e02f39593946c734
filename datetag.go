package imgdate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/sunshineplan/utils/log"
)

var (
	// ErrMetadataWrite reports that date tags could not be embedded.
	// The image was saved without them.
	ErrMetadataWrite = errors.New("cannot write date tags")
	// ErrSave reports that the image file could not be saved at all.
	ErrSave = errors.New("cannot save image")
)

// DateLayout is the EXIF date-time format.
const DateLayout = "2006:01:02 15:04:05"

// DateString returns the value written into the date tags. The time of day
// is always noon.
func DateString(t time.Time) string {
	return t.Format("2006:01:02") + " 12:00:00"
}

// DateResult describes a completed date update.
type DateResult struct {
	// Date is the value written, in DateLayout.
	Date string
	// Embedded reports whether the date tags were stored in the file.
	Embedded bool
	// TagErr wraps ErrMetadataWrite when the file was saved without tags.
	TagErr error
}

// Message is the user facing report of the update.
func (r *DateResult) Message() string {
	if r.Embedded {
		return "Date updated to " + r.Date
	}
	return fmt.Sprintf("Date updated to %s (not persisted: %v)", r.Date, r.TagErr)
}

// WriteDate stores t in the DateTime, DateTimeOriginal and DateTimeDigitized
// tags of the image at path. JPEG, PNG and TIFF files are rewritten without
// re-encoding their pixels. Other files, or files whose tags cannot be
// rebuilt, are re-saved without tags; the result reports this through
// Embedded and TagErr. Only a failed save returns an error.
func WriteDate(path string, t time.Time) (*DateResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSave, err)
	}

	res := &DateResult{Date: DateString(t)}
	var out []byte
	switch {
	case isJPEG(data):
		out, err = setJPEGDate(data, res.Date)
	case isTIFF(data):
		out, err = setTIFFDate(data, res.Date)
	case bytes.HasPrefix(data, pngHeader):
		out, err = setPNGDate(data, res.Date)
	default:
		err = errors.New("format does not carry exif tags")
	}
	if err == nil {
		if err := replaceFile(path, func(w io.Writer) error {
			_, err := w.Write(out)
			return err
		}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSave, err)
		}
		res.Embedded = true
		return res, nil
	}

	res.TagErr = fmt.Errorf("%w: %v", ErrMetadataWrite, err)
	log.Warn("Saving without date tags", "file", path, "error", err)
	if err := resave(path, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSave, err)
	}
	return res, nil
}

// resave decodes data and encodes it again in the format of the file name.
func resave(path string, data []byte) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return replaceFile(path, func(w io.Writer) error {
		return imaging.Encode(w, img, format)
	})
}

// replaceFile writes a temporary file next to path and renames it over path.
func replaceFile(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		os.Chmod(f.Name(), info.Mode().Perm())
	}
	return os.Rename(f.Name(), path)
}

// An ifdEntry is a raw directory entry. val holds the value bytes in the
// byte order of the file.
type ifdEntry struct {
	id    uint16
	typ   tiff.DataType
	count uint32
	val   []byte
}

// exifDirs holds the directories rewritten by WriteDate. The thumbnail
// directory IFD1 is not kept.
type exifDirs struct {
	ifd0, exif, gps, interop []ifdEntry
}

func isPointer(id uint16) bool {
	return id == TagExifIFD || id == TagGPSIFD || id == TagInteropIFD
}

func entries(dir *tiff.Dir) (s []ifdEntry) {
	if dir == nil {
		return
	}
	for _, t := range dir.Tags {
		if !isPointer(t.Id) {
			s = append(s, ifdEntry{t.Id, t.Type, t.Count, t.Val})
		}
	}
	return
}

// readDirs reads IFD0 and its EXIF, GPS and Interop sub-directories from a
// TIFF structure.
func readDirs(data []byte) (d exifDirs, order binary.ByteOrder, err error) {
	t, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}
	if len(t.Dirs) == 0 {
		err = errors.New("no image file directory")
		return
	}
	ifd0 := t.Dirs[0]
	order = t.Order
	d.ifd0 = entries(ifd0)

	exifDir, err := subDir(data, order, ifd0, TagExifIFD)
	if err != nil {
		return
	}
	d.exif = entries(exifDir)
	gpsDir, err := subDir(data, order, ifd0, TagGPSIFD)
	if err != nil {
		return
	}
	d.gps = entries(gpsDir)
	interopDir, err := subDir(data, order, exifDir, TagInteropIFD)
	if err != nil {
		return
	}
	d.interop = entries(interopDir)
	return
}

func subDir(data []byte, order binary.ByteOrder, parent *tiff.Dir, code uint16) (*tiff.Dir, error) {
	if parent == nil {
		return nil, nil
	}
	off := intTag(IFDTags{Dir: parent}, code, -1)
	if off < 0 {
		return nil, nil
	}
	if off+2 > len(data) {
		return nil, fmt.Errorf("tag %#04x points outside the data", code)
	}
	r := bytes.NewReader(data)
	if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
		return nil, err
	}
	dir, _, err := tiff.DecodeDir(r, order)
	return dir, err
}

func asciiEntry(id uint16, s string) ifdEntry {
	return ifdEntry{id: id, typ: tiff.DTAscii, count: uint32(len(s) + 1), val: append([]byte(s), 0)}
}

// set replaces or adds an entry.
func set(s []ifdEntry, e ifdEntry) []ifdEntry {
	s = slices.DeleteFunc(s, func(x ifdEntry) bool { return x.id == e.id })
	return append(s, e)
}

func (d *exifDirs) setDate(date string) {
	d.ifd0 = set(d.ifd0, asciiEntry(TagDateTime, date))
	d.exif = set(d.exif, asciiEntry(TagDateTimeOriginal, date))
	d.exif = set(d.exif, asciiEntry(TagDateTimeDigitized, date))
}

func ifdSize(s []ifdEntry) int {
	n := 2 + 12*len(s) + 4
	for _, e := range s {
		if len(e.val) > 4 {
			n += len(e.val) + len(e.val)%2
		}
	}
	return n
}

// layout serializes the directories so that IFD0 starts at offset start of
// the TIFF structure. next is the offset of the directory following IFD0.
func (d exifDirs) layout(order binary.ByteOrder, start int, next uint32) ([]byte, error) {
	pointer := func(id uint16) ifdEntry {
		return ifdEntry{id: id, typ: tiff.DTLong, count: 1, val: make([]byte, 4)}
	}

	ifd0 := slices.Clone(d.ifd0)
	exif := slices.Clone(d.exif)
	ifd0 = append(ifd0, pointer(TagExifIFD))
	if d.gps != nil {
		ifd0 = append(ifd0, pointer(TagGPSIFD))
	}
	if d.interop != nil {
		exif = append(exif, pointer(TagInteropIFD))
	}

	exifOff := start + ifdSize(ifd0)
	gpsOff := exifOff + ifdSize(exif)
	interopOff := gpsOff
	if d.gps != nil {
		interopOff += ifdSize(d.gps)
	}
	end := interopOff
	if d.interop != nil {
		end += ifdSize(d.interop)
	}
	if int64(end) > math.MaxUint32 {
		return nil, errors.New("tiff structure too large")
	}
	for i := range ifd0 {
		switch ifd0[i].id {
		case TagExifIFD:
			order.PutUint32(ifd0[i].val, uint32(exifOff))
		case TagGPSIFD:
			order.PutUint32(ifd0[i].val, uint32(gpsOff))
		}
	}
	for i := range exif {
		if exif[i].id == TagInteropIFD {
			order.PutUint32(exif[i].val, uint32(interopOff))
		}
	}

	var buf bytes.Buffer
	writeIFD(&buf, order, start, ifd0, next)
	writeIFD(&buf, order, exifOff, exif, 0)
	if d.gps != nil {
		writeIFD(&buf, order, gpsOff, d.gps, 0)
	}
	if d.interop != nil {
		writeIFD(&buf, order, interopOff, d.interop, 0)
	}
	return buf.Bytes(), nil
}

// writeIFD writes a directory located at offset off, followed by the values
// that do not fit in their entries.
func writeIFD(buf *bytes.Buffer, order binary.ByteOrder, off int, s []ifdEntry, next uint32) {
	s = slices.Clone(s)
	slices.SortStableFunc(s, func(a, b ifdEntry) int { return int(a.id) - int(b.id) })

	b := make([]byte, 4)
	u16 := func(v uint16) { order.PutUint16(b, v); buf.Write(b[:2]) }
	u32 := func(v uint32) { order.PutUint32(b, v); buf.Write(b) }

	var extra bytes.Buffer
	extraOff := off + 2 + 12*len(s) + 4
	u16(uint16(len(s)))
	for _, e := range s {
		u16(e.id)
		u16(uint16(e.typ))
		u32(e.count)
		if len(e.val) > 4 {
			u32(uint32(extraOff + extra.Len()))
			extra.Write(e.val)
			if len(e.val)%2 == 1 {
				extra.WriteByte(0)
			}
		} else {
			v := make([]byte, 4)
			copy(v, e.val)
			buf.Write(v)
		}
	}
	u32(next)
	buf.Write(extra.Bytes())
}

// JPEG markers.
const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerAPP0 = 0xe0
	markerAPP1 = 0xe1
	markerScan = 0x00 // pseudo marker for entropy coded data
)

func isJPEG(data []byte) bool {
	return len(data) > 2 && data[0] == 0xff && data[1] == markerSOI
}

type jpegSegment struct {
	marker byte
	data   []byte
}

func parseJPEGSegments(data []byte) ([]jpegSegment, error) {
	if !isJPEG(data) {
		return nil, errors.New("not a jpeg")
	}
	segs := []jpegSegment{{marker: markerSOI}}
	for i := 2; i < len(data); {
		if data[i] != 0xff {
			return nil, fmt.Errorf("invalid marker at offset %d", i)
		}
		i++
		if i >= len(data) {
			break
		}
		marker := data[i]
		i++
		switch {
		case marker == 0xff: // fill byte
			i--
			continue
		case marker == markerEOI:
			segs = append(segs, jpegSegment{marker: marker})
			return segs, nil
		case marker >= 0xd0 && marker <= 0xd7 || marker == 0x01:
			segs = append(segs, jpegSegment{marker: marker})
			continue
		}
		if i+2 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		n := int(binary.BigEndian.Uint16(data[i:])) - 2
		i += 2
		if n < 0 || i+n > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		segs = append(segs, jpegSegment{marker: marker, data: data[i : i+n]})
		i += n
		if marker == markerSOS {
			// the rest, up to and including EOI, is kept as is
			segs = append(segs, jpegSegment{marker: markerScan, data: data[i:]})
			return segs, nil
		}
	}
	return segs, nil
}

func writeJPEGSegments(segs []jpegSegment) []byte {
	var buf bytes.Buffer
	for _, seg := range segs {
		switch {
		case seg.marker == markerScan:
			buf.Write(seg.data)
		case seg.data == nil:
			buf.Write([]byte{0xff, seg.marker})
		default:
			n := len(seg.data) + 2
			buf.Write([]byte{0xff, seg.marker, byte(n >> 8), byte(n)})
			buf.Write(seg.data)
		}
	}
	return buf.Bytes()
}

// setJPEGDate rebuilds the EXIF APP1 segment of a JPEG stream.
func setJPEGDate(data []byte, date string) ([]byte, error) {
	segs, err := parseJPEGSegments(data)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(segs, func(s jpegSegment) bool {
		return s.marker == markerAPP1 && bytes.HasPrefix(s.data, exifHeader)
	})
	var (
		dirs  exifDirs
		order binary.ByteOrder = binary.LittleEndian
	)
	if idx >= 0 {
		if dirs, order, err = readDirs(segs[idx].data[len(exifHeader):]); err != nil {
			return nil, err
		}
	}
	dirs.setDate(date)

	body, err := dirs.layout(order, 8, 0)
	if err != nil {
		return nil, err
	}
	app1 := append(slices.Clone(exifHeader), tiffHeader(order, 8)...)
	app1 = append(app1, body...)
	if len(app1)+2 > 0xffff {
		return nil, errors.New("exif segment too large")
	}

	seg := jpegSegment{marker: markerAPP1, data: app1}
	switch {
	case idx >= 0:
		segs[idx] = seg
	case len(segs) > 1 && segs[1].marker == markerAPP0:
		segs = slices.Insert(segs, 2, seg)
	default:
		segs = slices.Insert(segs, 1, seg)
	}
	return writeJPEGSegments(segs), nil
}

func tiffHeader(order binary.ByteOrder, ifd0 uint32) []byte {
	b := make([]byte, 8)
	if order == binary.BigEndian {
		copy(b, "MM")
	} else {
		copy(b, "II")
	}
	order.PutUint16(b[2:], 42)
	order.PutUint32(b[4:], ifd0)
	return b
}

// setTIFFDate appends new IFD0, EXIF, GPS and Interop directories to a TIFF
// file and points the header at them. Pixel data and any further
// directories stay where they are.
func setTIFFDate(data []byte, date string) ([]byte, error) {
	dirs, order, err := readDirs(data)
	if err != nil {
		return nil, err
	}
	dirs.setDate(date)

	off := int(order.Uint32(data[4:]))
	if off+2 > len(data) {
		return nil, errors.New("invalid ifd0 offset")
	}
	n := int(order.Uint16(data[off:]))
	if off+2+12*n+4 > len(data) {
		return nil, errors.New("truncated ifd0")
	}
	next := order.Uint32(data[off+2+12*n:])

	out := slices.Clip(data)
	if len(out)%2 == 1 {
		out = append(out, 0)
	}
	start := len(out)
	body, err := dirs.layout(order, start, next)
	if err != nil {
		return nil, err
	}
	out = append(out, body...)
	order.PutUint32(out[4:], uint32(start))
	return out, nil
}

type pngSpan struct {
	typ        string
	start, end int // length field up to and including the crc
}

// pngChunks lists the chunks of a PNG stream up to IEND.
func pngChunks(data []byte) ([]pngSpan, error) {
	if !bytes.HasPrefix(data, pngHeader) {
		return nil, errors.New("not a png")
	}
	var s []pngSpan
	for i := len(pngHeader); i < len(data); {
		if i+8 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		end := int64(i) + 12 + int64(binary.BigEndian.Uint32(data[i:]))
		if end > int64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		c := pngSpan{typ: string(data[i+4 : i+8]), start: i, end: int(end)}
		s = append(s, c)
		if c.typ == "IEND" {
			break
		}
		i = c.end
	}
	return s, nil
}

// setPNGDate replaces the eXIf chunk of a PNG stream, or inserts one before
// the first IDAT chunk.
func setPNGDate(data []byte, date string) ([]byte, error) {
	chunks, err := pngChunks(data)
	if err != nil {
		return nil, err
	}

	var (
		dirs       exifDirs
		order      binary.ByteOrder = binary.LittleEndian
		start, end int
	)
	if i := slices.IndexFunc(chunks, func(c pngSpan) bool { return c.typ == "eXIf" }); i >= 0 {
		c := chunks[i]
		if dirs, order, err = readDirs(bytes.TrimPrefix(data[c.start+8:c.end-4], exifHeader)); err != nil {
			return nil, err
		}
		start, end = c.start, c.end
	} else {
		i := slices.IndexFunc(chunks, func(c pngSpan) bool { return c.typ == "IDAT" })
		if i < 0 {
			return nil, errors.New("png has no image data")
		}
		start, end = chunks[i].start, chunks[i].start
	}
	dirs.setDate(date)

	body, err := dirs.layout(order, 8, 0)
	if err != nil {
		return nil, err
	}
	body = append(tiffHeader(order, 8), body...)
	if len(body) > math.MaxInt32 {
		return nil, errors.New("exif chunk too large")
	}

	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(body)))
	chunk = append(chunk, "eXIf"...)
	chunk = append(chunk, body...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))
	return slices.Concat(data[:start], chunk, data[end:]), nil
}
