package imgdate

import (
	"bytes"
	"encoding/binary"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sunshineplan/utils/log"
)

var (
	exifHeader = []byte("Exif\x00\x00")
	pngHeader  = []byte("\x89PNG\r\n\x1a\n")
)

// readTags finds the metadata of an encoded image. Missing or unreadable
// metadata yields NoTags.
func readTags(format string, data []byte) TagStore {
	var block []byte
	switch format {
	case "tiff":
		dir, _, err := readIFD0(data)
		if err != nil {
			log.Debug("No readable tiff tags", "error", err)
			return NoTags
		}
		// The registered tiff decoder has already applied photometric
		// polarity to the pixels.
		return Overlay{TagMap{TagPhotometric: PhotometricBlackIsZero}, IFDTags{Dir: dir}}
	case "jpeg":
		block = data
	case "png":
		block = pngEXIF(data)
	case "webp":
		block = webpEXIF(data)
	}
	if block == nil {
		return NoTags
	}
	return exifTags(block)
}

// exifTags parses an EXIF block, a JPEG stream or raw TIFF bytes, and returns
// its IFD0.
func exifTags(block []byte) TagStore {
	x, err := exif.Decode(bytes.NewReader(bytes.TrimPrefix(block, exifHeader)))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		log.Debug("No readable exif", "error", err)
		return NoTags
	}
	if x.Tiff == nil || len(x.Tiff.Dirs) == 0 {
		return NoTags
	}
	return IFDTags{Dir: x.Tiff.Dirs[0]}
}

// pngEXIF returns the content of the eXIf chunk.
func pngEXIF(data []byte) []byte {
	if !bytes.HasPrefix(data, pngHeader) {
		return nil
	}
	for i := len(pngHeader); i+8 <= len(data); {
		n := int(binary.BigEndian.Uint32(data[i:]))
		typ := string(data[i+4 : i+8])
		i += 8
		if n < 0 || i+n > len(data) {
			return nil
		}
		switch typ {
		case "eXIf":
			return data[i : i+n]
		case "IEND":
			return nil
		}
		i += n + 4 // data and crc
	}
	return nil
}

// webpEXIF returns the content of the EXIF chunk of a RIFF container.
func webpEXIF(data []byte) []byte {
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil
	}
	for i := 12; i+8 <= len(data); {
		id := string(data[i : i+4])
		n := int(binary.LittleEndian.Uint32(data[i+4:]))
		i += 8
		if n < 0 || i+n > len(data) {
			return nil
		}
		if id == "EXIF" {
			return data[i : i+n]
		}
		i += n + n%2
	}
	return nil
}
