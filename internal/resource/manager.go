// Package resource hands out ffmpeg thread budgets so that concurrent
// encodes share the host fairly instead of oversubscribing it.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const maxBudget = 16

// Manager owns a fixed thread budget derived from the host. Acquire blocks
// until a fair share fits under the unspent budget, so the sum of
// outstanding grants never exceeds the budget.
type Manager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	budget  int
	active  int // callers holding a grant or waiting for one
	granted int // threads currently handed out
	log     *slog.Logger
}

// NewManager inspects the host and builds a manager with
// budget = threadBudget(cores - reserve, memory). reserve keeps cores free
// for the pipeline itself; it defaults to 1 when negative.
func NewManager(reserve int, log *slog.Logger) (*Manager, error) {
	cores, err := cpu.Counts(true)
	if err != nil {
		return nil, fmt.Errorf("counting cpu cores: %w", err)
	}
	var memBytes uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		memBytes = vm.Total
	}
	if reserve < 0 {
		reserve = 1
	}
	return newManager(threadBudget(cores-reserve, memBytes), log), nil
}

// NewFixed builds a manager with an explicit budget, for callers that
// override host detection.
func NewFixed(budget int, log *slog.Logger) *Manager {
	return newManager(budget, log)
}

func newManager(budget int, log *slog.Logger) *Manager {
	if budget < 1 {
		budget = 1
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{budget: budget, log: log}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// threadBudget applies the memory-aware cap: low-memory hosts get a small
// fixed budget regardless of core count, large hosts get 1.5x cores up to
// maxBudget. CI environments are halved to leave room for the runner.
func threadBudget(cores int, memBytes uint64) int {
	if cores < 1 {
		cores = 1
	}
	gib := float64(memBytes) / (1 << 30)

	var budget int
	switch {
	case memBytes == 0:
		budget = cores
	case gib < 4:
		budget = 2
	case gib <= 8:
		budget = 4
	case gib < 16:
		budget = 6
	default:
		budget = int(float64(cores) * 1.5)
		if budget > maxBudget {
			budget = maxBudget
		}
	}
	if cores == 1 {
		budget = 1
	}
	if os.Getenv("CI") != "" {
		budget /= 2
	}
	if budget < 1 {
		budget = 1
	}
	return budget
}

// Budget returns the total thread budget.
func (m *Manager) Budget() int { return m.budget }

// Acquire blocks until a fair share of the budget can be granted. The
// grant size is budget/active clamped to [1, requested], where active
// counts every caller holding or waiting for a grant, so shares rebalance
// as callers join and leave; requested <= 0 means "as much as the fair
// share allows". On a 1-thread budget callers are serialized. The caller
// must Release the grant.
func (m *Manager) Acquire(ctx context.Context, requested int) (*Grant, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active++

	for {
		if err := ctx.Err(); err != nil {
			m.active--
			m.cond.Broadcast()
			return nil, err
		}
		want := m.budget / m.active
		if want < 1 {
			want = 1
		}
		if requested > 0 && want > requested {
			want = requested
		}
		if m.granted+want <= m.budget {
			m.granted += want
			m.log.Debug("threads granted", "threads", want, "granted", m.granted, "budget", m.budget)
			return &Grant{m: m, Threads: want}, nil
		}
		m.cond.Wait()
	}
}

// Grant is a slice of the thread budget. The holder stays in the fair
// share until Release returns it; extra Release calls are no-ops.
type Grant struct {
	m       *Manager
	once    sync.Once
	Threads int
}

func (g *Grant) Release() {
	g.once.Do(func() {
		g.m.mu.Lock()
		g.m.granted -= g.Threads
		g.m.active--
		g.m.cond.Broadcast()
		g.m.mu.Unlock()
	})
}
