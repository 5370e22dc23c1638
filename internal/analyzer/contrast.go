// Package analyzer finds regions of interest in generated scene images so
// captions can stay clear of faces, figures and other detailed areas.
package analyzer

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Detector reports rectangles captions should avoid.
type Detector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
}

// New builds a detector by name. "contrast" (the default) runs edge-based
// detection; "none" disables ROI avoidance entirely.
func New(variant string) (Detector, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(), nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}

// Nop reports no regions; every caption candidate is considered clear.
type Nop struct{}

func (Nop) Detect(image.Image) ([]image.Rectangle, error) { return nil, nil }

// ContrastDetector marks high-detail areas: Sobel gradients above
// EdgeThreshold are dilated so nearby edges merge, then connected regions
// larger than MinRegionArea become ROIs.
type ContrastDetector struct {
	MinRegionArea int     // pixels², smaller regions are noise
	EdgeThreshold float64 // gradient magnitude cutoff
	DilateRadius  int
}

func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinRegionArea: 500,
		EdgeThreshold: 30.0,
		DilateRadius:  2,
	}
}

func (d *ContrastDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil, nil
	}

	gray := grayPlane(img)
	edges := d.edgeMask(gray)
	edges.dilate(d.DilateRadius)

	var rois []image.Rectangle
	for _, r := range edges.regions() {
		if r.Dx()*r.Dy() >= d.MinRegionArea {
			rois = append(rois, r.Add(b.Min))
		}
	}
	return rois, nil
}

// grayPlane flattens the image into a row-major luma slice.
func grayPlane(img image.Image) *plane {
	b := img.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]uint8, b.Dx()*b.Dy())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p.pix[i] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			i++
		}
	}
	return p
}

type plane struct {
	w, h int
	pix  []uint8
}

func (p *plane) at(x, y int) float64 { return float64(p.pix[y*p.w+x]) }

// edgeMask thresholds the Sobel gradient magnitude of the luma plane.
func (d *ContrastDetector) edgeMask(p *plane) *mask {
	m := &mask{w: p.w, h: p.h, on: make([]bool, p.w*p.h)}
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			gx := p.at(x+1, y-1) + 2*p.at(x+1, y) + p.at(x+1, y+1) -
				p.at(x-1, y-1) - 2*p.at(x-1, y) - p.at(x-1, y+1)
			gy := p.at(x-1, y+1) + 2*p.at(x, y+1) + p.at(x+1, y+1) -
				p.at(x-1, y-1) - 2*p.at(x, y-1) - p.at(x+1, y-1)
			if math.Sqrt(gx*gx+gy*gy) > d.EdgeThreshold {
				m.on[y*m.w+x] = true
			}
		}
	}
	return m
}

type mask struct {
	w, h int
	on   []bool
}

// dilate grows every set pixel by radius so fragmented edges join into
// one region.
func (m *mask) dilate(radius int) {
	if radius <= 0 {
		return
	}
	out := make([]bool, len(m.on))
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !m.on[y*m.w+x] {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= m.h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx >= 0 && xx < m.w {
						out[yy*m.w+xx] = true
					}
				}
			}
		}
	}
	m.on = out
}

// regions returns the bounding box of every 4-connected component.
func (m *mask) regions() []image.Rectangle {
	seen := make([]bool, len(m.on))
	var out []image.Rectangle
	var queue []int

	for start := range m.on {
		if !m.on[start] || seen[start] {
			continue
		}
		minX, minY := m.w, m.h
		maxX, maxY := 0, 0
		queue = append(queue[:0], start)
		seen[start] = true

		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%m.w, i/m.w

			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, n := range [4]int{i - 1, i + 1, i - m.w, i + m.w} {
				if n < 0 || n >= len(m.on) || seen[n] || !m.on[n] {
					continue
				}
				// left/right neighbors must stay on the same row
				if (n == i-1 || n == i+1) && n/m.w != y {
					continue
				}
				seen[n] = true
				queue = append(queue, n)
			}
		}
		out = append(out, image.Rect(minX, minY, maxX+1, maxY+1))
	}
	return out
}
