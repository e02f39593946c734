package imgdate

import "image"

// ResolvePolarity inverts the tone of img when the hint declares
// WhiteIsZero. Only 8-bit gray and RGB images are inverted; every other
// format is returned unchanged, because it is converted before polarity is
// known to apply.
func ResolvePolarity(img image.Image, h Hint) image.Image {
	if !h.WhiteIsZero {
		return img
	}
	switch src := img.(type) {
	case *image.Gray:
		if checkBuffer(len(src.Pix), src.Stride, 1, src.Rect) != nil {
			return img
		}
		dst := image.NewGray(src.Rect)
		invert(dst.Pix, dst.Stride, src.Pix, src.Stride, src.Rect.Dx())
		return dst
	case *RGB:
		if checkBuffer(len(src.Pix), src.Stride, 3, src.Rect) != nil {
			return img
		}
		dst := NewRGB(src.Rect)
		invert(dst.Pix, dst.Stride, src.Pix, src.Stride, 3*src.Rect.Dx())
		return dst
	}
	return img
}

func invert(dst []uint8, dstStride int, src []uint8, srcStride, rowSize int) {
	rows := len(dst) / dstStride
	parallel(0, rows, func(ys <-chan int) {
		for y := range ys {
			d := dst[y*dstStride : y*dstStride+rowSize]
			s := src[y*srcStride : y*srcStride+rowSize]
			for i, v := range s {
				d[i] = 0xff - v
			}
		}
	})
}
