package daemon

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScheduler_RunsTask(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	defer s.Stop()

	done := make(chan struct{})
	s.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestScheduler_CancelBeforeRun(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	defer s.Stop()

	var ran atomic.Bool
	task := s.AfterFunc(50*time.Millisecond, func() { ran.Store(true) })
	task.Cancel()

	time.Sleep(150 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestScheduler_TasksNeverOverlap(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	defer s.Stop()

	var (
		running  atomic.Int32
		overlaps atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		s.AfterFunc(0, func() {
			defer wg.Done()
			if running.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		})
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load())
}

func TestScheduler_PanicDoesNotKillLoop(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	defer s.Stop()

	s.AfterFunc(0, func() { panic("boom") })

	done := make(chan struct{})
	s.AfterFunc(20*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stopped after a panic")
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	s.AfterFunc(time.Hour, func() {})

	s.Stop()
	s.Stop()
}
