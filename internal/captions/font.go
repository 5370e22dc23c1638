package captions

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// measurer caches one font.Face per size. Faces are not safe for
// concurrent use, so measurement itself is serialized; layout is cheap
// relative to everything else in the pipeline.
type measurer struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[int]font.Face
}

var defaultMeasurer = &measurer{faces: make(map[int]font.Face)}

func (m *measurer) face(size int) (font.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.faces[size]; ok {
		return f, nil
	}
	if m.font == nil {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return nil, fmt.Errorf("parsing embedded font: %w", err)
		}
		m.font = f
	}
	face, err := opentype.NewFace(m.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("building %dpx face: %w", size, err)
	}
	m.faces[size] = face
	return face, nil
}

// textWidth returns the advance width of s in pixels at the given size.
func (m *measurer) textWidth(s string, size int) (int, error) {
	face, err := m.face(size)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return font.MeasureString(face, s).Ceil(), nil
}

// LineHeight returns the line spacing used by layout, so renderers can
// place wrapped lines exactly where the layout assumed them.
func LineHeight(size int) int {
	h, err := defaultMeasurer.lineHeight(size)
	if err != nil {
		return size + size/4
	}
	return h
}

// lineHeight returns the recommended line spacing in pixels.
func (m *measurer) lineHeight(size int) (int, error) {
	face, err := m.face(size)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return face.Metrics().Height.Ceil(), nil
}
