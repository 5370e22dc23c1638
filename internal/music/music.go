// Package music resolves the script's music blocks into playable files:
// a named file is validated, a prompt goes to the generation backend.
package music

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/generate"
	"github.com/ivlev/script2video/internal/retry"
)

// Track length bounds for generated music, in seconds.
const (
	minGenerated = 30
	maxGenerated = 240
)

// wordsPerSecond approximates narration pace when estimating how much
// music a script needs before any audio exists.
const wordsPerSecond = 2.5

// Source turns a MusicSpec into a file on disk.
type Source struct {
	Gen   generate.MusicGenerator
	Probe func(ctx context.Context, path string) (float64, error)
	Retry retry.Policy
	Log   *slog.Logger
}

// Resolve returns the path of the track described by spec, or "" when
// spec is nil. File specs must exist and probe as readable audio; prompt
// specs go through the generator with retries.
func (s *Source) Resolve(ctx context.Context, spec *config.MusicSpec, seconds float64, outPath string) (string, error) {
	if spec == nil {
		return "", nil
	}
	if spec.File != "" {
		if _, err := os.Stat(spec.File); err != nil {
			return "", fmt.Errorf("music file: %w", err)
		}
		if s.Probe != nil {
			if d, err := s.Probe(ctx, spec.File); err != nil || d <= 0 {
				return "", fmt.Errorf("music file %s is not readable audio: %v", spec.File, err)
			}
		}
		return spec.File, nil
	}

	if s.Gen == nil {
		return "", fmt.Errorf("script asks to generate music but no music backend is configured")
	}
	seconds = clamp(seconds, minGenerated, maxGenerated)
	if s.Log != nil {
		s.Log.Info("generating music", "prompt", spec.Prompt, "seconds", seconds)
	}
	return retry.DoValue(ctx, s.Retry, "music", func(ctx context.Context) (string, error) {
		return s.Gen.Generate(ctx, spec.Prompt, seconds, outPath)
	})
}

// EstimateDuration guesses the final video length from the script text,
// for sizing generated background music before narration exists.
func EstimateDuration(script *config.Script) float64 {
	words := 0
	for _, sc := range script.Scenes {
		words += len(strings.Fields(sc.Text))
	}
	return clamp(float64(words)/wordsPerSecond, minGenerated, maxGenerated)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
