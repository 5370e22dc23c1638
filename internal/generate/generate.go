// Package generate holds the pipeline's generation collaborators: image,
// speech and music backends plus the transcription provider, all consumed
// through narrow interfaces so the pipeline never knows which service is
// behind them. Local fallbacks (blank images, the credits card) live here
// too.
package generate

import (
	"context"
)

// ImageGenerator produces a scene image and returns the file it wrote.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, style, outPath string) (string, error)
}

// SpeechSynthesizer narrates text and returns the audio file it wrote.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) (string, error)
}

// MusicGenerator produces a music track of roughly the given length.
type MusicGenerator interface {
	Generate(ctx context.Context, prompt string, seconds float64, outPath string) (string, error)
}
