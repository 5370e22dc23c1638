package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivlev/script2video/internal/captions"
)

// SegmentParams describe one scene composite.
type SegmentParams struct {
	Width, Height int
	FPS           int
	Duration      float64
	Encoder       string
	Quality       int
	Motion        bool
	TextColor     string
}

// SegmentOp composites a still image with its narration track and burns
// the caption windows in. Output is H.264 + AAC, padded to the frame.
func SegmentOp(imagePath, audioPath, outPath string, p SegmentParams, windows []captions.Window) Operation {
	chain := []string{frameFilter(p.Width, p.Height, p.FPS)}
	if p.Motion {
		chain = append(chain, motionFilter(p.Width, p.Height, p.FPS, p.Duration))
	}
	if len(windows) > 0 {
		chain = append(chain, drawtextFilters(windows, p.TextColor, captions.LineHeight(windows[0].FontSize))...)
	}
	graph := "[0:v]" + strings.Join(chain, ",") + "[v]"

	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-filter_complex", graph,
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", encoderOrDefault(p.Encoder),
	}
	args = append(args, qualityArgs(p.Encoder, p.Quality)...)
	args = append(args,
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.3f", p.Duration),
		outPath,
	)
	return Operation{Name: "segment", Args: args, Output: outPath}
}

// ConcatParams describe the final join of encoded segments.
type ConcatParams struct {
	Transition string
	Fade       float64
	Durations  []float64
	Encoder    string
	Quality    int
}

// ConcatOp joins segments in order. With a fade it builds an xfade +
// acrossfade graph and re-encodes; without one it writes a concat-demuxer
// list next to the output and stream-copies, which is much faster.
func ConcatOp(segments []string, outPath string, p ConcatParams) (Operation, error) {
	if len(segments) == 0 {
		return Operation{}, fmt.Errorf("nothing to concatenate")
	}
	if len(segments) == 1 || p.Fade <= 0 || p.Transition == "none" {
		return concatDemuxerOp(segments, outPath)
	}
	if len(p.Durations) != len(segments) {
		return Operation{}, fmt.Errorf("have %d segments but %d durations", len(segments), len(p.Durations))
	}

	fade := clampFade(p.Fade, p.Durations)

	args := []string{"-y"}
	for _, s := range segments {
		args = append(args, "-i", s)
	}
	args = append(args,
		"-filter_complex", xfadeGraph(p.Durations, transitionOrDefault(p.Transition), fade),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", encoderOrDefault(p.Encoder),
	)
	args = append(args, qualityArgs(p.Encoder, p.Quality)...)
	args = append(args, "-c:a", "aac", "-pix_fmt", "yuv420p", outPath)
	return Operation{Name: "concat", Args: args, Output: outPath}, nil
}

// clampFade shrinks the fade so it never eats half of any segment.
func clampFade(fade float64, durations []float64) float64 {
	for _, d := range durations {
		if fade >= d/2 {
			fade = d / 2
		}
	}
	return fade
}

// ConcatDuration returns the duration of the video ConcatOp produces for
// the same inputs: the plain sum on the demuxer path, the sum minus one
// (clamped) fade per joint on the xfade path.
func ConcatDuration(durations []float64, transition string, fade float64) float64 {
	total := 0.0
	for _, d := range durations {
		total += d
	}
	if len(durations) <= 1 || fade <= 0 || transition == "none" {
		return total
	}
	return total - float64(len(durations)-1)*clampFade(fade, durations)
}

func concatDemuxerOp(segments []string, outPath string) (Operation, error) {
	listPath := outPath + ".txt"
	var b strings.Builder
	for _, s := range segments {
		abs, err := filepath.Abs(s)
		if err != nil {
			return Operation{}, err
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return Operation{}, fmt.Errorf("writing concat list: %w", err)
	}
	return Operation{
		Name: "concat",
		Args: []string{
			"-y",
			"-f", "concat",
			"-safe", "0",
			"-i", listPath,
			"-c", "copy",
			outPath,
		},
		Output: outPath,
	}, nil
}

// MusicMixOp ducks a looped music track under the narration of a finished
// video. Video stream is copied untouched.
func MusicMixOp(videoPath, musicPath, outPath string, totalDuration, volume float64) Operation {
	return Operation{
		Name: "music-mix",
		Args: []string{
			"-y",
			"-i", videoPath,
			"-stream_loop", "-1",
			"-i", musicPath,
			"-filter_complex", musicGraph(totalDuration, volume),
			"-map", "0:v",
			"-map", "[aout]",
			"-c:v", "copy",
			"-c:a", "aac",
			"-shortest",
			outPath,
		},
		Output: outPath,
	}
}

// CreditsOp renders the closing-credits segment: the credits card held for
// the length of the credits audio.
func CreditsOp(cardPath, audioPath, outPath string, p SegmentParams) Operation {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", cardPath,
		"-i", audioPath,
		"-filter_complex", "[0:v]" + frameFilter(p.Width, p.Height, p.FPS) + "[v]",
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", encoderOrDefault(p.Encoder),
	}
	args = append(args, qualityArgs(p.Encoder, p.Quality)...)
	args = append(args,
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-shortest",
		outPath,
	)
	return Operation{Name: "credits", Args: args, Output: outPath}
}

// AppendOp re-encodes main + trailer into one file through a concat
// filter, so mismatched stream parameters cannot corrupt the join.
func AppendOp(mainPath, trailerPath, outPath string, p SegmentParams) Operation {
	args := []string{
		"-y",
		"-i", mainPath,
		"-i", trailerPath,
		"-filter_complex", "[0:v][0:a][1:v][1:a]concat=n=2:v=1:a=1[v][a]",
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", encoderOrDefault(p.Encoder),
	}
	args = append(args, qualityArgs(p.Encoder, p.Quality)...)
	args = append(args, "-c:a", "aac", "-pix_fmt", "yuv420p", outPath)
	return Operation{Name: "append", Args: args, Output: outPath}
}

func encoderOrDefault(enc string) string {
	if enc == "" {
		return "libx264"
	}
	return enc
}

func transitionOrDefault(t string) string {
	if t == "" {
		return "fade"
	}
	return t
}
