package align

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ivlev/script2video/internal/retry"
)

type fakeProvider struct {
	spans []Span
	err   error
	calls int
}

func (f *fakeProvider) Transcribe(ctx context.Context, audioPath string) ([]Span, error) {
	f.calls++
	return f.spans, f.err
}

func probeOf(d float64) func(context.Context, string) (float64, error) {
	return func(context.Context, string) (float64, error) { return d, nil }
}

func checkMonotone(t *testing.T, words []Word) {
	t.Helper()
	for i, w := range words {
		if w.End < w.Start {
			t.Errorf("word %d %q: end %.3f before start %.3f", i, w.Text, w.End, w.Start)
		}
		if i > 0 && w.Start < words[i-1].Start {
			t.Errorf("word %d %q: start %.3f before previous start %.3f", i, w.Text, w.Start, words[i-1].Start)
		}
		if i > 0 && w.End < words[i-1].End {
			t.Errorf("word %d %q: end %.3f before previous end %.3f", i, w.Text, w.End, words[i-1].End)
		}
	}
}

func TestAlignExactTokenMatch(t *testing.T) {
	p := &fakeProvider{spans: []Span{
		{Text: "the quick fox", Start: 0, End: 1.5},
		{Text: "jumps high", Start: 1.5, End: 2.5},
	}}
	e := &Engine{Provider: p, Probe: probeOf(2.5), Retry: retry.New(1, 0)}

	res, err := e.Align(context.Background(), "a.wav", "the quick fox jumps high")
	if err != nil {
		t.Fatal(err)
	}
	if res.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if len(res.Words) != 5 {
		t.Fatalf("got %d words, want 5", len(res.Words))
	}
	checkMonotone(t, res.Words)

	// With equal token counts each source word gets exactly one provider
	// token: "jumps" is the first token of the second span.
	if got := res.Words[3]; math.Abs(got.Start-1.5) > 1e-9 || math.Abs(got.End-2.0) > 1e-9 {
		t.Errorf("jumps = [%.3f, %.3f], want [1.5, 2.0]", got.Start, got.End)
	}
	if got := res.Words[4].End; math.Abs(got-2.5) > 1e-9 {
		t.Errorf("last word ends at %.3f, want 2.5", got)
	}
}

func TestAlignFewerProviderTokens(t *testing.T) {
	// One provider token covers four source words: boundaries interpolate
	// inside it and stay strictly ordered.
	p := &fakeProvider{spans: []Span{{Text: "allfour", Start: 1.0, End: 3.0}}}
	e := &Engine{Provider: p, Probe: probeOf(3.0), Retry: retry.New(1, 0)}

	res, err := e.Align(context.Background(), "a.wav", "one two three four")
	if err != nil {
		t.Fatal(err)
	}
	checkMonotone(t, res.Words)
	if res.Words[0].Start != 1.0 {
		t.Errorf("first start = %.3f, want 1.0", res.Words[0].Start)
	}
	if res.Words[3].End != 3.0 {
		t.Errorf("last end = %.3f, want 3.0", res.Words[3].End)
	}
	if math.Abs(res.Words[1].Start-1.5) > 1e-9 {
		t.Errorf("second start = %.3f, want 1.5", res.Words[1].Start)
	}
}

func TestAlignMoreProviderTokens(t *testing.T) {
	p := &fakeProvider{spans: []Span{{Text: "a b c d e f", Start: 0, End: 6}}}
	e := &Engine{Provider: p, Probe: probeOf(6), Retry: retry.New(1, 0)}

	res, err := e.Align(context.Background(), "a.wav", "first second")
	if err != nil {
		t.Fatal(err)
	}
	checkMonotone(t, res.Words)
	// Each source word absorbs three provider tokens.
	if math.Abs(res.Words[0].End-3.0) > 1e-9 {
		t.Errorf("first word end = %.3f, want 3.0", res.Words[0].End)
	}
}

func TestAlignDegradesAfterProviderFailure(t *testing.T) {
	p := &fakeProvider{err: retry.Transientf("whisper down")}
	e := &Engine{Provider: p, Probe: probeOf(4.0), Retry: retry.New(3, 0)}

	res, err := e.Align(context.Background(), "a.wav", "one two three four")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if p.calls != 3 {
		t.Errorf("provider called %d times, want 3", p.calls)
	}
	checkMonotone(t, res.Words)
	for i, w := range res.Words {
		if math.Abs(w.Start-float64(i)) > 1e-9 || math.Abs(w.End-float64(i+1)) > 1e-9 {
			t.Errorf("word %d = [%.2f, %.2f], want [%d, %d]", i, w.Start, w.End, i, i+1)
		}
	}
}

func TestAlignDegradesOnEmptyTranscript(t *testing.T) {
	p := &fakeProvider{spans: nil}
	e := &Engine{Provider: p, Probe: probeOf(2.0), Retry: retry.New(1, 0)}

	res, err := e.Align(context.Background(), "a.wav", "hello world")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if len(res.Words) != 2 {
		t.Fatalf("got %d words", len(res.Words))
	}
}

func TestAlignUnreadableAudio(t *testing.T) {
	e := &Engine{
		Provider: &fakeProvider{},
		Probe: func(context.Context, string) (float64, error) {
			return 0, errors.New("no such file")
		},
		Retry: retry.New(1, 0),
	}
	_, err := e.Align(context.Background(), "missing.wav", "hello")
	if !errors.Is(err, ErrAlignmentFailed) {
		t.Fatalf("err = %v, want ErrAlignmentFailed", err)
	}
}

func TestAlignAudioShorterThanSegment(t *testing.T) {
	p := &fakeProvider{spans: []Span{{Text: "hello there", Start: 0, End: 5}}}
	e := &Engine{Provider: p, Probe: probeOf(1.0), Retry: retry.New(1, 0)}

	_, err := e.Align(context.Background(), "a.wav", "hello there")
	if !errors.Is(err, ErrAlignmentFailed) {
		t.Fatalf("err = %v, want ErrAlignmentFailed", err)
	}
}

func TestAlignWithoutProbe(t *testing.T) {
	e := &Engine{Provider: &fakeProvider{}}
	_, err := e.Align(context.Background(), "a.wav", "hello there")
	if err == nil || !strings.Contains(err.Error(), "probe") {
		t.Fatalf("err = %v, want a configuration error", err)
	}
}

func TestAlignEmptyText(t *testing.T) {
	e := &Engine{Provider: &fakeProvider{}, Probe: probeOf(1.0)}
	res, err := e.Align(context.Background(), "a.wav", "   ")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Words) != 0 {
		t.Errorf("got %d words for empty text", len(res.Words))
	}
}

func TestAlignWordCountMatchesTokens(t *testing.T) {
	text := "a b c d e f g h i j k"
	p := &fakeProvider{spans: []Span{
		{Text: "a b c", Start: 0, End: 1},
		{Text: "d e", Start: 1.2, End: 2},
		{Text: "f g h i j k", Start: 2, End: 4},
	}}
	e := &Engine{Provider: p, Probe: probeOf(4), Retry: retry.New(1, 0)}

	res, err := e.Align(context.Background(), "a.wav", text)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Words) != len(strings.Fields(text)) {
		t.Fatalf("got %d words, want %d", len(res.Words), len(strings.Fields(text)))
	}
	checkMonotone(t, res.Words)
}
