package imgdate_test

import (
	"fmt"
	"image"
	"io"
	"log"

	"github.com/sunshineplan/imgdate"
)

func Example() {
	// A 16-bit image as it comes out of a scanner.
	img := image.NewGray16(image.Rect(0, 0, 300, 200))

	// Normalize it with an EXIF orientation of 6 and white-is-zero polarity.
	res := imgdate.Normalize(img, imgdate.TagMap{
		imgdate.TagOrientation: 6,
		imgdate.TagPhotometric: imgdate.PhotometricWhiteIsZero,
	})

	// Scale the upright result to fit 100x100 and write it as PNG.
	thumb := imgdate.Thumbnail(res.Image, 100, 100)
	if err := imgdate.Write(io.Discard, thumb, &imgdate.FormatOption{Format: imgdate.PNG}); err != nil {
		log.Fatalf("failed to write image: %v", err)
	}

	fmt.Println(res.Source, res.Stage, res.Image.Bounds().Size(), thumb.Bounds().Size())
	// output: I;16 RescaledGray (200,300) (66,100)
}
