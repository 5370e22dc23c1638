// Package align produces word-level timings for a narration track. A
// transcription provider supplies coarse timed sub-segments; the engine
// reconciles them with the source text so every source word gets a start
// and end, falling back to uniform division when the provider is useless.
package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ivlev/script2video/internal/retry"
)

// ErrAlignmentFailed means no timings could be produced at all: the audio
// is unreadable, empty, or shorter than the provider's own output.
var ErrAlignmentFailed = errors.New("alignment failed")

// Span is one timed sub-segment returned by a transcription provider.
type Span struct {
	Text  string
	Start float64
	End   float64
}

// Provider transcribes an audio file into timed sub-segments.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string) ([]Span, error)
}

// Word is one source-text token with its reconciled timing.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Result carries one Word per whitespace token of the source text, in
// order. Degraded is set when the provider could not be used and timings
// were divided uniformly instead.
type Result struct {
	Words    []Word
	Degraded bool
}

// Engine aligns narration audio against its source text.
type Engine struct {
	Provider Provider
	// Probe returns the duration of an audio file in seconds.
	Probe func(ctx context.Context, path string) (float64, error)
	Retry retry.Policy
	Log   *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// Align produces a timing for every whitespace-separated token of text.
// Provider failures after retries degrade to uniform division; a missing
// or zero-length audio track is ErrAlignmentFailed.
func (e *Engine) Align(ctx context.Context, audioPath, text string) (Result, error) {
	if e.Probe == nil {
		return Result{}, errors.New("align: no duration probe configured")
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Result{}, nil
	}

	duration, err := e.Probe(ctx, audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: probing %s: %v", ErrAlignmentFailed, audioPath, err)
	}
	if duration <= 0 {
		return Result{}, fmt.Errorf("%w: %s has zero duration", ErrAlignmentFailed, audioPath)
	}

	spans, err := e.transcribe(ctx, audioPath)
	if err != nil || len(spans) == 0 {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		e.logger().Warn("transcription unusable, dividing audio uniformly",
			"audio", audioPath, "err", err)
		return Result{Words: uniform(tokens, duration), Degraded: true}, nil
	}

	if spans[0].End-spans[0].Start > duration {
		return Result{}, fmt.Errorf("%w: audio %.2fs shorter than first transcript segment", ErrAlignmentFailed, duration)
	}

	words := reconcile(tokens, spans)
	if words == nil {
		e.logger().Warn("transcript carried no tokens, dividing audio uniformly", "audio", audioPath)
		return Result{Words: uniform(tokens, duration), Degraded: true}, nil
	}
	return Result{Words: words}, nil
}

func (e *Engine) transcribe(ctx context.Context, audioPath string) ([]Span, error) {
	if e.Provider == nil {
		return nil, errors.New("no transcription provider")
	}
	return retry.DoValue(ctx, e.Retry, "transcribe", func(ctx context.Context) ([]Span, error) {
		return e.Provider.Transcribe(ctx, audioPath)
	})
}

// uniform gives every token an equal slice of the track.
func uniform(tokens []string, duration float64) []Word {
	per := duration / float64(len(tokens))
	words := make([]Word, len(tokens))
	for i, tok := range tokens {
		words[i] = Word{
			Text:  tok,
			Start: float64(i) * per,
			End:   float64(i+1) * per,
		}
	}
	return words
}

// timedToken is a provider token with times interpolated inside its span.
type timedToken struct {
	start, end float64
}

// reconcile maps source tokens onto provider tokens positionally: source
// token i covers the provider-token interval [i*P/S, (i+1)*P/S). When one
// provider token covers several source words the boundary falls inside it
// by linear interpolation, so timings stay strictly ordered either way.
// Returns nil when the provider text has no tokens.
func reconcile(tokens []string, spans []Span) []Word {
	ptoks := splitSpans(spans)
	if len(ptoks) == 0 {
		return nil
	}

	s := len(tokens)
	p := len(ptoks)

	boundary := func(i int) float64 {
		// fractional position in the provider token timeline
		x := float64(i) * float64(p) / float64(s)
		j := int(x)
		if j >= p {
			return ptoks[p-1].end
		}
		frac := x - float64(j)
		return ptoks[j].start + frac*(ptoks[j].end-ptoks[j].start)
	}

	words := make([]Word, s)
	prev := boundary(0)
	for i := 0; i < s; i++ {
		next := boundary(i + 1)
		if next < prev {
			next = prev
		}
		words[i] = Word{Text: tokens[i], Start: prev, End: next}
		prev = next
	}
	return words
}

// splitSpans breaks each span into its whitespace tokens, spreading the
// span's time evenly across them. Degenerate spans (end <= start) still
// yield tokens so ordering survives.
func splitSpans(spans []Span) []timedToken {
	var out []timedToken
	var cursor float64
	for _, sp := range spans {
		fields := strings.Fields(sp.Text)
		if len(fields) == 0 {
			continue
		}
		start, end := sp.Start, sp.End
		if start < cursor {
			start = cursor
		}
		if end < start {
			end = start
		}
		per := (end - start) / float64(len(fields))
		for i := range fields {
			out = append(out, timedToken{
				start: start + float64(i)*per,
				end:   start + float64(i+1)*per,
			})
		}
		cursor = end
	}
	return out
}
