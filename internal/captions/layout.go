// Package captions turns timed words into positioned caption windows.
// Placement works against regions of interest detected on the backing
// image: a fixed list of candidate positions is tried in order and the
// first one clear of every ROI wins; when nothing is clear, the candidate
// that covers the least ROI area is used so captions never disappear.
package captions

import (
	"fmt"
	"image"
	"strings"

	"github.com/ivlev/script2video/internal/align"
)

// Style selects how many windows a sentence produces.
type Style string

const (
	// StyleStatic shows a whole sentence for its full duration.
	StyleStatic Style = "static"
	// StyleDynamic shows one word at a time at the sentence's position.
	StyleDynamic Style = "dynamic"
)

// ParseStyle validates a script-level caption style string.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleStatic:
		return StyleStatic, nil
	case StyleDynamic:
		return StyleDynamic, nil
	default:
		return "", fmt.Errorf("unknown caption style %q (want static or dynamic)", s)
	}
}

// Window is one caption to draw: the words it shows, the wrapped lines,
// and the frame rectangle to draw them in.
type Window struct {
	Index    int
	Start    float64
	End      float64
	Words    []align.Word
	Lines    []string
	Rect     image.Rectangle
	FontSize int
}

// Options tune the layout. Zero values take the defaults below.
type Options struct {
	FontSize    int     // default 42
	Margin      int     // distance from frame edges, default 24
	Padding     int     // inner padding of the caption box, default 12
	SentenceGap float64 // seconds of silence that split sentences, default 1.5
}

func (o Options) withDefaults() Options {
	if o.FontSize <= 0 {
		o.FontSize = 42
	}
	if o.Margin <= 0 {
		o.Margin = 24
	}
	if o.Padding <= 0 {
		o.Padding = 12
	}
	if o.SentenceGap <= 0 {
		o.SentenceGap = 1.5
	}
	return o
}

// candidate is a named anchor position tried during placement.
type candidate struct {
	name       string
	widthFrac  float64
	horizontal int // -1 left, 0 center, 1 right
	vertical   int // -1 top, 0 center, 1 bottom, 2 lower third
}

// Tried strictly in this order; the first ROI-free one wins.
var candidates = []candidate{
	{"bottom-center", 0.80, 0, 1},
	{"top-center", 0.80, 0, -1},
	{"lower-third-left", 0.45, -1, 2},
	{"lower-third-right", 0.45, 1, 2},
	{"center", 0.80, 0, 0},
}

// Layout positions every caption window for one segment. words must be in
// reading order; rois are the rectangles captions should avoid; frame is
// the video size. The function is pure and safe for concurrent use.
func Layout(words []align.Word, style Style, rois []image.Rectangle, frame image.Point, opts Options) ([]Window, error) {
	if len(words) == 0 {
		return nil, nil
	}
	if frame.X <= 0 || frame.Y <= 0 {
		return nil, fmt.Errorf("invalid frame %dx%d", frame.X, frame.Y)
	}
	opts = opts.withDefaults()

	var windows []Window
	for _, sentence := range splitSentences(words, opts.SentenceGap) {
		lines, rect, err := place(sentence, rois, frame, opts)
		if err != nil {
			return nil, err
		}
		switch style {
		case StyleDynamic:
			for _, w := range sentence {
				windows = append(windows, Window{
					Index:    len(windows),
					Start:    w.Start,
					End:      w.End,
					Words:    []align.Word{w},
					Lines:    []string{w.Text},
					Rect:     rect,
					FontSize: opts.FontSize,
				})
			}
		default:
			windows = append(windows, Window{
				Index:    len(windows),
				Start:    sentence[0].Start,
				End:      sentence[len(sentence)-1].End,
				Words:    sentence,
				Lines:    lines,
				Rect:     rect,
				FontSize: opts.FontSize,
			})
		}
	}
	return windows, nil
}

// splitSentences groups words into maximal runs where consecutive words
// are separated by less than gap seconds.
func splitSentences(words []align.Word, gap float64) [][]align.Word {
	var groups [][]align.Word
	start := 0
	for i := 1; i < len(words); i++ {
		if words[i].Start-words[i-1].End >= gap {
			groups = append(groups, words[start:i])
			start = i
		}
	}
	return append(groups, words[start:])
}

// place wraps the sentence for each candidate position and picks the best
// rectangle: first with zero ROI overlap, else minimal overlap area.
func place(sentence []align.Word, rois []image.Rectangle, frame image.Point, opts Options) ([]string, image.Rectangle, error) {
	text := joinWords(sentence)

	bestArea := -1
	var bestLines []string
	var bestRect image.Rectangle

	for _, c := range candidates {
		lines, rect, err := layoutCandidate(text, c, frame, opts)
		if err != nil {
			return nil, image.Rectangle{}, err
		}
		area := overlapArea(rect, rois)
		if area == 0 {
			return lines, rect, nil
		}
		if bestArea < 0 || area < bestArea {
			bestArea = area
			bestLines = lines
			bestRect = rect
		}
	}
	return bestLines, bestRect, nil
}

func layoutCandidate(text string, c candidate, frame image.Point, opts Options) ([]string, image.Rectangle, error) {
	boxWidth := int(float64(frame.X) * c.widthFrac)
	if limit := frame.X - 2*opts.Margin; boxWidth > limit {
		boxWidth = limit
	}
	lines, lineW, err := wrap(text, boxWidth-2*opts.Padding, opts.FontSize)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	lh, err := defaultMeasurer.lineHeight(opts.FontSize)
	if err != nil {
		return nil, image.Rectangle{}, err
	}

	w := lineW + 2*opts.Padding
	if w > boxWidth {
		w = boxWidth
	}
	h := len(lines)*lh + 2*opts.Padding
	if h > frame.Y-2*opts.Margin {
		h = frame.Y - 2*opts.Margin
	}

	var x int
	switch c.horizontal {
	case -1:
		x = opts.Margin
	case 1:
		x = frame.X - opts.Margin - w
	default:
		x = (frame.X - w) / 2
	}

	// The vertical anchor is the edge the box grows away from, so height
	// growth never pushes the box off the frame.
	var y int
	switch c.vertical {
	case -1:
		y = opts.Margin
	case 1:
		y = frame.Y - opts.Margin - h
	case 2:
		y = frame.Y * 2 / 3
		if y+h > frame.Y-opts.Margin {
			y = frame.Y - opts.Margin - h
		}
	default:
		y = (frame.Y - h) / 2
	}

	rect := image.Rect(x, y, x+w, y+h)
	return lines, clampToFrame(rect, frame, opts.Margin), nil
}

// wrap greedily fills lines up to maxWidth pixels. A single word wider
// than the limit gets its own line rather than being broken mid-word.
// Returns the lines and the widest line's pixel width.
func wrap(text string, maxWidth int, fontSize int) ([]string, int, error) {
	fields := strings.Fields(text)
	var lines []string
	var cur string
	widest := 0

	flush := func() error {
		if cur == "" {
			return nil
		}
		w, err := defaultMeasurer.textWidth(cur, fontSize)
		if err != nil {
			return err
		}
		if w > widest {
			widest = w
		}
		lines = append(lines, cur)
		cur = ""
		return nil
	}

	for _, f := range fields {
		next := f
		if cur != "" {
			next = cur + " " + f
		}
		w, err := defaultMeasurer.textWidth(next, fontSize)
		if err != nil {
			return nil, 0, err
		}
		if w <= maxWidth || cur == "" {
			cur = next
			continue
		}
		if err := flush(); err != nil {
			return nil, 0, err
		}
		cur = f
	}
	if err := flush(); err != nil {
		return nil, 0, err
	}
	return lines, widest, nil
}

func joinWords(words []align.Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

func overlapArea(rect image.Rectangle, rois []image.Rectangle) int {
	total := 0
	for _, roi := range rois {
		in := rect.Intersect(roi)
		total += in.Dx() * in.Dy()
	}
	return total
}

func clampToFrame(r image.Rectangle, frame image.Point, margin int) image.Rectangle {
	bounds := image.Rect(margin, margin, frame.X-margin, frame.Y-margin)
	if r.Dx() > bounds.Dx() {
		r.Max.X = r.Min.X + bounds.Dx()
	}
	if r.Dy() > bounds.Dy() {
		r.Max.Y = r.Min.Y + bounds.Dy()
	}
	if r.Min.X < bounds.Min.X {
		r = r.Add(image.Pt(bounds.Min.X-r.Min.X, 0))
	}
	if r.Min.Y < bounds.Min.Y {
		r = r.Add(image.Pt(0, bounds.Min.Y-r.Min.Y))
	}
	if r.Max.X > bounds.Max.X {
		r = r.Sub(image.Pt(r.Max.X-bounds.Max.X, 0))
	}
	if r.Max.Y > bounds.Max.Y {
		r = r.Sub(image.Pt(0, r.Max.Y-bounds.Max.Y))
	}
	return r
}
