package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func countingPolicy(maxAttempts int, base time.Duration, delays *[]time.Duration) Policy {
	p := New(maxAttempts, base)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return p
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := countingPolicy(4, 100*time.Millisecond, &delays)

	calls := 0
	err := p.Do(context.Background(), "tts", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transientf("service busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	// Delays double: base, 2*base.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	var delays []time.Duration
	p := countingPolicy(5, time.Millisecond, &delays)

	boom := errors.New("bad request")
	calls := 0
	err := p.Do(context.Background(), "image", func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(delays) != 0 {
		t.Errorf("unexpected delays: %v", delays)
	}
}

func TestDoExhaustion(t *testing.T) {
	var delays []time.Duration
	p := countingPolicy(3, 50*time.Millisecond, &delays)

	inner := errors.New("timeout")
	calls := 0
	err := p.Do(context.Background(), "music", func(ctx context.Context) error {
		calls++
		return Transient(inner)
	})

	var ex *ExhaustedRetries
	if !errors.As(err, &ex) {
		t.Fatalf("err = %T %v, want *ExhaustedRetries", err, err)
	}
	if ex.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", ex.Attempts)
	}
	if !errors.Is(ex, inner) {
		t.Errorf("ExhaustedRetries does not wrap the last error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// k failed attempts -> k-1 waits.
	if len(delays) != 2 {
		t.Fatalf("delays = %v, want 2 entries", delays)
	}
	if delays[0] != 50*time.Millisecond || delays[1] != 100*time.Millisecond {
		t.Errorf("delays = %v, want [50ms 100ms]", delays)
	}
}

func TestDoContextCancelledDuringWait(t *testing.T) {
	p := New(5, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := p.Do(ctx, "align", func(ctx context.Context) error {
		return Transientf("flaky")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDoValueReturnsValue(t *testing.T) {
	var delays []time.Duration
	p := countingPolicy(2, time.Millisecond, &delays)

	got, err := DoValue(context.Background(), p, "probe", func(ctx context.Context) (string, error) {
		return "out.mp4", nil
	})
	if err != nil {
		t.Fatalf("DoValue: %v", err)
	}
	if got != "out.mp4" {
		t.Errorf("got %q", got)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(errors.New("plain")) {
		t.Error("plain error reported transient")
	}
	wrapped := Transientf("inner")
	if !IsTransient(wrapped) {
		t.Error("TransientError not reported transient")
	}
	deep := errors.Join(errors.New("other"), wrapped)
	if !IsTransient(deep) {
		t.Error("joined transient error not detected")
	}
}
