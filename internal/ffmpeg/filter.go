package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/ivlev/script2video/internal/captions"
)

// Quoting single quotes inside drawtext is not worth the escaping tower;
// the typographic apostrophe renders the same.
var drawtextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, "’",
	`:`, `\:`,
	`,`, `\,`,
	`%`, `\%`,
	`;`, `\;`,
	`[`, `\[`,
	`]`, `\]`,
)

// drawtextFilters renders caption windows as one drawtext per line, each
// gated to its window's time span and centered inside the window rect.
func drawtextFilters(windows []captions.Window, color string, lineHeight int) []string {
	if color == "" {
		color = "0xFFFFFF"
	}
	var filters []string
	for _, w := range windows {
		for li, line := range w.Lines {
			f := fmt.Sprintf(
				"drawtext=text='%s':fontcolor=%s:fontsize=%d:borderw=2:bordercolor=black@0.7"+
					":x=%d+(%d-text_w)/2:y=%d:enable='between(t,%.3f,%.3f)'",
				drawtextEscaper.Replace(line), color, w.FontSize,
				w.Rect.Min.X, w.Rect.Dx(),
				w.Rect.Min.Y+li*lineHeight,
				w.Start, w.End,
			)
			filters = append(filters, f)
		}
	}
	return filters
}

// frameFilter scales and pads the source image to the target frame.
func frameFilter(width, height, fps int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,"+
			"pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
		width, height, width, height, fps)
}

// motionFilter adds a slow push-in so still images read as footage.
func motionFilter(width, height, fps int, duration float64) string {
	frames := int(duration * float64(fps))
	if frames < 1 {
		frames = 1
	}
	return fmt.Sprintf(
		"zoompan=z='min(1+0.08*on/%d,1.12)':d=1:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d",
		frames, width, height, fps)
}

// xfadeGraph chains N video inputs with crossfades and the matching audio
// inputs with acrossfades. Offsets accumulate as the running total of
// segment durations minus one fade per joint.
func xfadeGraph(durations []float64, transition string, fade float64) string {
	n := len(durations)
	var b strings.Builder

	offset := 0.0
	vPrev, aPrev := "[0:v]", "[0:a]"
	for i := 1; i < n; i++ {
		offset += durations[i-1] - fade
		vOut := fmt.Sprintf("[v%d]", i)
		aOut := fmt.Sprintf("[a%d]", i)
		if i == n-1 {
			vOut, aOut = "[vout]", "[aout]"
		}
		fmt.Fprintf(&b, "%s[%d:v]xfade=transition=%s:duration=%g:offset=%.3f%s;",
			vPrev, i, transition, fade, offset, vOut)
		fmt.Fprintf(&b, "%s[%d:a]acrossfade=d=%g%s;", aPrev, i, fade, aOut)
		vPrev, aPrev = vOut, aOut
	}
	return strings.TrimSuffix(b.String(), ";")
}

// musicGraph loops the music input under the narration with a fade-in and
// a fade-out toward the end of the video.
func musicGraph(totalDuration, volume float64) string {
	fadeIn := 2.0
	fadeOut := 3.0
	return fmt.Sprintf(
		"[1:a]volume='%g*(if(lte(t,%g), t/%g, if(gte(t,%.3f), max((%.3f-t)/%g,0), 1)))':eval=frame[bg];"+
			"[0:a][bg]amix=inputs=2:duration=first:dropout_transition=3[aout]",
		volume, fadeIn, fadeIn, totalDuration-fadeOut, totalDuration, fadeOut)
}
