package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestThreadBudget(t *testing.T) {
	t.Setenv("CI", "")

	gib := func(n float64) uint64 { return uint64(n * (1 << 30)) }
	tests := []struct {
		name  string
		cores int
		mem   uint64
		want  int
	}{
		{"tiny memory", 8, gib(2), 2},
		{"8 GiB", 8, gib(8), 4},
		{"12 GiB", 8, gib(12), 6},
		{"big host", 8, gib(32), 12},
		{"big host capped", 32, gib(64), 16},
		{"single core", 1, gib(32), 1},
		{"unknown memory", 4, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := threadBudget(tt.cores, tt.mem); got != tt.want {
				t.Errorf("threadBudget(%d, %d) = %d, want %d", tt.cores, tt.mem, got, tt.want)
			}
		})
	}
}

func TestThreadBudgetCIHalved(t *testing.T) {
	t.Setenv("CI", "true")
	if got := threadBudget(8, 32<<30); got != 6 {
		t.Errorf("budget under CI = %d, want 6", got)
	}
}

func TestAcquireNeverOversubscribes(t *testing.T) {
	m := newManager(6, nil)

	var outstanding atomic.Int64
	var peakViolation atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := m.Acquire(context.Background(), 4)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if n := outstanding.Add(int64(g.Threads)); n > 6 {
				peakViolation.Store(true)
			}
			time.Sleep(time.Millisecond)
			outstanding.Add(-int64(g.Threads))
			g.Release()
		}()
	}
	wg.Wait()

	if peakViolation.Load() {
		t.Fatal("sum of outstanding grants exceeded the budget")
	}
	if m.granted != 0 {
		t.Errorf("granted = %d after all releases, want 0", m.granted)
	}
}

func TestAcquireFairShareShrinksUnderContention(t *testing.T) {
	m := newManager(8, nil)

	first, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	// Sole caller takes the whole budget.
	if first.Threads != 8 {
		t.Errorf("solo grant = %d, want 8", first.Threads)
	}
	first.Release()

	first, _ = m.Acquire(context.Background(), 3)
	if first.Threads != 3 {
		t.Errorf("requested cap ignored: grant = %d, want 3", first.Threads)
	}
	first.Release()
}

func TestHoldersStayInFairShare(t *testing.T) {
	m := newManager(6, nil)

	// A capped holder keeps counting toward the fair share, so the next
	// caller sees budget/2 and proceeds instead of demanding all 6.
	holder, err := m.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if holder.Threads != 2 {
		t.Fatalf("holder grant = %d, want 2", holder.Threads)
	}

	done := make(chan *Grant)
	go func() {
		g, err := m.Acquire(context.Background(), 0)
		if err != nil {
			t.Errorf("second Acquire: %v", err)
		}
		done <- g
	}()

	select {
	case g := <-done:
		if g.Threads != 3 {
			t.Errorf("second grant = %d, want 3 (budget 6 over 2 active callers)", g.Threads)
		}
		g.Release()
	case <-time.After(time.Second):
		t.Fatal("second Acquire blocked although 4 of 6 threads were free")
	}
	holder.Release()
}

func TestSingleThreadBudgetSerializes(t *testing.T) {
	m := newManager(1, nil)

	g1, err := m.Acquire(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if g1.Threads != 1 {
		t.Fatalf("grant = %d, want 1", g1.Threads)
	}

	acquired := make(chan *Grant)
	go func() {
		g, err := m.Acquire(context.Background(), 4)
		if err != nil {
			t.Errorf("second Acquire: %v", err)
		}
		acquired <- g
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire proceeded while the budget was spent")
	case <-time.After(20 * time.Millisecond):
	}

	g1.Release()
	select {
	case g2 := <-acquired:
		g2.Release()
	case <-time.After(time.Second):
		t.Fatal("second Acquire never woke after Release")
	}
}

func TestAcquireContextCancel(t *testing.T) {
	m := newManager(1, nil)
	g, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := m.Acquire(ctx, 1)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Acquire ignored cancellation")
	}
}

func TestReleaseExactlyOnce(t *testing.T) {
	m := newManager(4, nil)
	g, err := m.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	g.Release()
	g.Release()
	g.Release()
	if m.granted != 0 {
		t.Errorf("granted = %d after repeated Release, want 0", m.granted)
	}
}
