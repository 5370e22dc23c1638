package generate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// CreditsCard renders the closing-credits still: title centered on a dark
// card, and when link is set, a QR code in the lower right corner.
func CreditsCard(outPath, title, link string, width, height int) (string, error) {
	card := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(card, card.Bounds(), image.NewUniform(color.NRGBA{R: 16, G: 16, B: 24, A: 255}), image.Point{}, draw.Src)

	if title != "" {
		if err := drawTitle(card, title, width, height); err != nil {
			return "", err
		}
	}
	if link != "" {
		if err := drawQR(card, link, width, height); err != nil {
			return "", err
		}
	}
	if err := writePNG(outPath, card); err != nil {
		return "", err
	}
	return outPath, nil
}

func drawTitle(dst *image.NRGBA, title string, width, height int) error {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return fmt.Errorf("parsing embedded font: %w", err)
	}
	size := float64(height) / 12
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("building title face: %w", err)
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 235, G: 235, B: 235, A: 255}),
		Face: face,
	}
	w := d.MeasureString(title).Ceil()
	d.Dot = fixed.P((width-w)/2, height/2)
	d.DrawString(title)
	return nil
}

func drawQR(dst *image.NRGBA, link string, width, height int) error {
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("building QR code: %w", err)
	}
	qr.BackgroundColor = color.NRGBA{R: 16, G: 16, B: 24, A: 255}
	qr.ForegroundColor = color.White

	side := height / 5
	img := qr.Image(side)
	margin := height / 16
	at := image.Pt(width-side-margin, height-side-margin)
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(image.Pt(side, side))}, img, img.Bounds().Min, draw.Over)
	return nil
}
