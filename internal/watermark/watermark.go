package watermark

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Cleaner removes the source channel's stamped watermark by cropping a
// fixed band off the bottom of a photo before re-upload.
type Cleaner struct {
	cropBottomPx int
}

// New creates a Cleaner cutting cropBottomPx pixels off the bottom.
func New(cropBottomPx int) *Cleaner {
	if cropBottomPx <= 0 {
		cropBottomPx = 48
	}
	return &Cleaner{cropBottomPx: cropBottomPx}
}

// Strip decodes the photo, crops the watermark band, and re-encodes as
// JPEG. Images shorter than twice the band are returned unchanged — the
// crop would eat real content.
func (c *Cleaner) Strip(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dy() < c.cropBottomPx*2 {
		return data, nil
	}

	cropped := imaging.Crop(img, image.Rect(
		bounds.Min.X, bounds.Min.Y,
		bounds.Max.X, bounds.Max.Y-c.cropBottomPx,
	))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
