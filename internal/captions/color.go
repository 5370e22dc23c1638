package captions

import (
	"fmt"
	"image"
	"image/color"
)

// TextColor picks a drawtext color that reads well over the part of the
// backing image a caption covers. The region's average color is inverted
// and pushed toward full brightness or full darkness depending on the
// background luminance, so text stays legible on both ends.
func TextColor(img image.Image, rect image.Rectangle) string {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return "0xFFFFFF"
	}

	var r, g, b, n uint64
	// Sampling every 4th pixel is plenty for an average.
	for y := rect.Min.Y; y < rect.Max.Y; y += 4 {
		for x := rect.Min.X; x < rect.Max.X; x += 4 {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			r += uint64(c.R)
			g += uint64(c.G)
			b += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return "0xFFFFFF"
	}
	avg := color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n)}

	comp := color.NRGBA{R: 255 - avg.R, G: 255 - avg.G, B: 255 - avg.B}
	if luminance(avg) < 128 {
		comp = brighten(comp)
	} else {
		comp = darken(comp)
	}
	return fmt.Sprintf("0x%02X%02X%02X", comp.R, comp.G, comp.B)
}

func luminance(c color.NRGBA) int {
	return (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
}

func brighten(c color.NRGBA) color.NRGBA {
	lift := func(v uint8) uint8 { return uint8(192 + int(v)/4) }
	return color.NRGBA{R: lift(c.R), G: lift(c.G), B: lift(c.B)}
}

func darken(c color.NRGBA) color.NRGBA {
	drop := func(v uint8) uint8 { return v / 4 }
	return color.NRGBA{R: drop(c.R), G: drop(c.G), B: drop(c.B)}
}
