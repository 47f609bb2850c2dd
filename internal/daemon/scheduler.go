package daemon

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

type delayedTaskState uint

const (
	delayedTaskReady delayedTaskState = iota
	delayedTaskRunning
	delayedTaskDone
)

// delayedTask is one scheduled function. It can be canceled until it
// starts running.
type delayedTask struct {
	mu    sync.Mutex
	state delayedTaskState
	timer *time.Timer
	fn    func()
}

// Cancel withdraws the task if it has not started yet.
func (t *delayedTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == delayedTaskReady {
		if t.timer != nil {
			t.timer.Stop()
		}
		t.state = delayedTaskDone
	}
}

func (t *delayedTask) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != delayedTaskReady {
		return false
	}
	t.state = delayedTaskRunning
	return true
}

func (t *delayedTask) finish() {
	t.mu.Lock()
	t.state = delayedTaskDone
	t.mu.Unlock()
}

// Scheduler runs delayed tasks one at a time on a single goroutine.
// Timers only enqueue; the function itself always executes on the
// scheduler goroutine, so tasks never overlap.
type Scheduler struct {
	queue    chan *delayedTask
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewScheduler starts a scheduler goroutine.
func NewScheduler(logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		queue:  make(chan *delayedTask, 16),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.loop()
	return s
}

// AfterFunc schedules fn to run after d on the scheduler goroutine.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) domain.Cancelable {
	t := &delayedTask{fn: fn}
	t.mu.Lock()
	t.timer = time.AfterFunc(d, func() { s.enqueue(t) })
	t.mu.Unlock()
	return t
}

func (s *Scheduler) enqueue(t *delayedTask) {
	select {
	case s.queue <- t:
	case <-s.quit:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case t := <-s.queue:
			s.run(t)
		}
	}
}

func (s *Scheduler) run(t *delayedTask) {
	if !t.claim() {
		return
	}
	defer t.finish()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", zap.Any("panic", r))
		}
	}()
	t.fn()
}

// Stop ends the scheduler goroutine. Pending tasks are dropped.
// It waits for a running task to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

// Ensure Scheduler implements domain.Scheduler.
var _ domain.Scheduler = (*Scheduler)(nil)
