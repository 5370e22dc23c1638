// Package ffmpeg builds and runs the ffmpeg invocations the pipeline
// needs: per-scene composites, crossfade concatenation, music mixing and
// the closing-credits append. Operations are plain argv values so tests
// can inspect them and substitute a fake runner.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Operation is one ffmpeg call. Threads, when positive, is injected as
// `-threads N` immediately after the program name so it applies globally.
type Operation struct {
	Name    string
	Args    []string
	Output  string
	Threads int
}

// Runner executes operations. Exec is the real implementation.
type Runner interface {
	Run(ctx context.Context, op Operation) error
}

// EncodeError is a failed ffmpeg run. It is fatal for the segment that
// issued it: encoding does not get better on retry.
type EncodeError struct {
	Op     string
	Output string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ffmpeg %s error: %v, output: %s", e.Op, e.Err, e.Output)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Exec runs ffmpeg as a subprocess.
type Exec struct {
	Program string // defaults to "ffmpeg"
}

func (e *Exec) Run(ctx context.Context, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prog := e.Program
	if prog == "" {
		prog = "ffmpeg"
	}
	args := op.Args
	if op.Threads > 0 {
		args = append([]string{"-threads", strconv.Itoa(op.Threads)}, args...)
	}
	// A cancellation arriving after the process starts lets it run to
	// completion; killing ffmpeg mid-encode leaves truncated files. The
	// caller discards the result instead.
	cmd := exec.Command(prog, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &EncodeError{Op: op.Name, Output: string(out), Err: err}
	}
	return nil
}

// ProbeDuration returns a media file's duration in seconds via ffprobe.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %v, output: %s", path, err, strings.TrimSpace(string(out)))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parsing duration: %w", path, err)
	}
	return d, nil
}

// qualityArgs maps an encoder to its rate-control flag. Hardware encoders
// take a bitrate-style quality knob, libx264 takes CRF.
func qualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		return []string{"-q:v", strconv.Itoa(quality * 2)}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(quality)}
	default:
		return []string{"-crf", strconv.Itoa(quality)}
	}
}
