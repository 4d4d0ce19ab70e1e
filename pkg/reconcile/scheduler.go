package reconcile

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs a step after a delay. Steps never run on the caller's goroutine
// for the real implementation; ManualScheduler runs them only when told to.
type Scheduler interface {
	After(d time.Duration, step func())
}

type realScheduler struct{}

// RealScheduler schedules steps on wall-clock timers
func RealScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) After(d time.Duration, step func()) {
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, step)
}

type queuedStep struct {
	deadline time.Time
	seq      uint64
	step     func()
}

// ManualScheduler is a deterministic Scheduler driven by a fake clock.
// Queued steps fire in deadline order, ties in scheduling order, and only
// from Advance, RunNext or Flush. Steps may schedule further steps.
//
// Do not call Advance, RunNext or Flush from inside a step.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	queue []queuedStep
}

// NewManualScheduler creates a scheduler whose clock starts at start
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// After queues step at now+d. Nothing runs until the clock is driven.
func (m *ManualScheduler) After(d time.Duration, step func()) {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.queue = append(m.queue, queuedStep{deadline: m.now.Add(d), seq: m.seq, step: step})
}

// Now returns the fake time
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of queued steps
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Advance moves the clock forward by d, running every step whose deadline
// falls inside the window, including steps queued by those steps.
// It returns the number of steps run.
func (m *ManualScheduler) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	ran := 0
	for {
		step, ok := m.popDue(&target)
		if !ok {
			break
		}
		step()
		ran++
	}

	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
	return ran
}

// RunNext jumps the clock to the earliest queued step and runs it.
// It reports false when the queue is empty.
func (m *ManualScheduler) RunNext() bool {
	step, ok := m.popDue(nil)
	if !ok {
		return false
	}
	step()
	return true
}

// Flush runs queued steps until the queue is empty and returns how many ran
func (m *ManualScheduler) Flush() int {
	ran := 0
	for m.RunNext() {
		ran++
	}
	return ran
}

// popDue removes the earliest step due by limit (any step when limit is nil)
// and moves the clock to its deadline
func (m *ManualScheduler) popDue(limit *time.Time) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	sort.Slice(m.queue, func(i, j int) bool {
		if !m.queue[i].deadline.Equal(m.queue[j].deadline) {
			return m.queue[i].deadline.Before(m.queue[j].deadline)
		}
		return m.queue[i].seq < m.queue[j].seq
	})
	next := m.queue[0]
	if limit != nil && next.deadline.After(*limit) {
		return nil, false
	}
	m.queue = m.queue[1:]
	if next.deadline.After(m.now) {
		m.now = next.deadline
	}
	return next.step, true
}
