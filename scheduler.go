package molecule

import (
	"sync"
	"time"
)

// Scheduler defers a unit of work until after the current synchronous burst
// of subscribe/unsubscribe activity. The injector uses it to arm the
// teardown check when an entry's reference count reaches zero.
type Scheduler interface {
	// Schedule enqueues fn and returns a cancellation function. Cancelling
	// after fn has started is a no-op.
	Schedule(fn func()) (cancel func())
}

// TimerScheduler runs scheduled work on a one-shot timer. With zero delay
// the work runs as soon as the runtime yields, which is enough to absorb a
// synchronous release/use pair.
type TimerScheduler struct {
	delay time.Duration
}

func NewTimerScheduler(delay time.Duration) *TimerScheduler {
	return &TimerScheduler{delay: delay}
}

func (s *TimerScheduler) Schedule(fn func()) func() {
	timer := time.AfterFunc(s.delay, fn)
	return func() {
		timer.Stop()
	}
}

// ManualScheduler queues work until Flush is called. Hosts drain it at
// their own commit boundary; tests drain it to make the deferred-teardown
// window deterministic.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []*manualTask
}

type manualTask struct {
	fn        func()
	cancelled bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Schedule(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &manualTask{fn: fn}
	s.queue = append(s.queue, task)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		task.cancelled = true
	}
}

// Flush runs queued tasks in order, including tasks enqueued while
// flushing. Cancelled tasks are skipped.
func (s *ManualScheduler) Flush() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		cancelled := task.cancelled
		s.mu.Unlock()

		if !cancelled {
			task.fn()
		}
	}
}

// Pending reports how many tasks are queued, cancelled ones included
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
