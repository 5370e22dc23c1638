package generate

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// Blank is the skip-generation image backend: a dark gradient card per
// scene, useful for fast pipeline runs and tests.
type Blank struct {
	Width, Height int
}

func (b Blank) Generate(ctx context.Context, prompt, style, outPath string) (string, error) {
	w, h := b.Width, b.Height
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 720
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		// vertical gradient so the frames are not literally identical black
		shade := uint8(24 + 40*y/h)
		c := color.NRGBA{R: shade / 2, G: shade / 2, B: shade, A: 255}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	if err := writePNG(outPath, img); err != nil {
		return "", err
	}
	return outPath, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
