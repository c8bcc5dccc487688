package broadcast

import (
	"sync"
	"time"
)

// Scheduler produces periodic callbacks for broadcast channels. The engine
// never touches timer primitives directly; tests substitute a manual
// scheduler and drive ticks themselves.
type Scheduler interface {
	// Schedule begins invoking fn every interval until the returned task
	// is stopped.
	Schedule(interval time.Duration, fn func()) Task
}

// Task is a handle for a scheduled periodic callback
type Task interface {
	// Stop cancels the task. After Stop returns no new invocation of fn
	// is started; an invocation already in flight may still complete.
	Stop()
}

// NewTickerScheduler returns the production scheduler backed by time.Ticker,
// one goroutine per active channel
func NewTickerScheduler() Scheduler {
	return &tickerScheduler{}
}

type tickerScheduler struct{}

func (s *tickerScheduler) Schedule(interval time.Duration, fn func()) Task {
	task := &tickerTask{quit: make(chan struct{})}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-task.quit:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return task
}

type tickerTask struct {
	quit chan struct{}
	once sync.Once
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		close(t.quit)
	})
}
