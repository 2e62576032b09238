package watermark

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestStripCropsBottomBand(t *testing.T) {
	src := imaging.New(200, 300, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	data := encodePNG(t, src)

	c := New(48)
	out, err := c.Strip(data)
	if err != nil {
		t.Fatalf("Strip returned error: %v", err)
	}

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output not decodable: %v", err)
	}
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 200 || h != 252 {
		t.Errorf("output %dx%d, want 200x252", w, h)
	}
}

func TestStripSkipsShortImages(t *testing.T) {
	src := imaging.New(100, 80, color.NRGBA{A: 255})
	data := encodePNG(t, src)

	c := New(48)
	out, err := c.Strip(data)
	if err != nil {
		t.Fatalf("Strip returned error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("short image was modified, want passthrough")
	}
}

func TestStripRejectsGarbage(t *testing.T) {
	c := New(0)
	if _, err := c.Strip([]byte("not an image")); err == nil {
		t.Error("Strip on garbage succeeded, want error")
	}
}

func TestNewDefaultBand(t *testing.T) {
	c := New(0)
	if c.cropBottomPx != 48 {
		t.Errorf("cropBottomPx = %d, want default 48", c.cropBottomPx)
	}
}
